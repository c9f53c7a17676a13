package handlers

import (
	"context"
	"net/http"
	"os"

	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/internal/auth"
	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/orders"
	"suruchiraj-service/internal/payment/phonepe"
	"suruchiraj-service/internal/products"
	"suruchiraj-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
)

// The handler package depends on interfaces rather than the concrete Confs
// so the HTTP surface can be exercised with fakes in tests.

type CartManager interface {
	AddOrSetItem(ctx context.Context, userID, productID string, qty50, qty100 int) (*cart.Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, qty50, qty100 int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID string) error
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, userID string, userCart *cart.Cart, addr addresses.Address) (orders.Order, error)
	MarkProcessing(ctx context.Context, merchantTxID string) error
	ReconcileFromGateway(ctx context.Context, result phonepe.Result) (orders.Order, bool, error)
	GetOrderByMerchantTxID(ctx context.Context, merchantTxID string) (orders.Order, error)
	GetOrderStatus(ctx context.Context, orderID, userID string) (orders.Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]orders.Order, error)
	ListAllOrders(ctx context.Context) ([]orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (orders.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type Catalog interface {
	InsertProduct(ctx context.Context, np products.NewProduct) (products.Product, error)
	GetProductByID(ctx context.Context, productID string) (products.Product, error)
	ListProducts(ctx context.Context, includeHidden bool) ([]products.Product, error)
	TrendingProducts(ctx context.Context) ([]products.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	UpdateProduct(ctx context.Context, productID string, np products.NewProduct) (products.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ToggleVisibility(ctx context.Context, productID string) (bool, error)
	SetTrendingRank(ctx context.Context, productID string, rank *int) error
}

type AddressBook interface {
	GetAddress(ctx context.Context, addressID, userID string) (addresses.Address, error)
	InsertAddress(ctx context.Context, userID string, na addresses.NewAddress) (addresses.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]addresses.Address, error)
}

type Gateway interface {
	Pay(ctx context.Context, merchantTransactionID, merchantUserID string, amount int64) (string, error)
	Status(ctx context.Context, merchantTransactionID string) (phonepe.Result, error)
	VerifyAndDecodeWebhook(body []byte, xVerify string) (phonepe.Result, error)
	Refund(ctx context.Context, merchantRefundID, originalMerchantTxID, merchantUserID string, amount int64) (phonepe.RefundResult, error)
	RefundStatus(ctx context.Context, merchantRefundID string) (phonepe.RefundResult, error)
}

type Producer interface {
	ProduceMessage(topic string, key, value []byte) error
}

type Handler struct {
	cart      CartManager
	orders    OrderStore
	catalog   Catalog
	addresses AddressBook
	gateway   Gateway
	producer  Producer
	rdb       *redis.Client
	validate  *validator.Validate
	clientURL string
}

func NewHandler(cm CartManager, o OrderStore, p Catalog, ab AddressBook, g Gateway, k Producer, rdb *redis.Client) *Handler {
	return &Handler{
		cart:      cm,
		orders:    o,
		catalog:   p,
		addresses: ab,
		gateway:   g,
		producer:  k,
		rdb:       rdb,
		validate:  validator.New(),
		clientURL: os.Getenv("CLIENT_URL"),
	}
}

func API(keys *auth.Keys, h *Handler) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(keys)
	if err != nil {
		panic(err)
	}

	r.Use(middleware.Logger(), gin.Recovery())
	r.GET("/ping", healthCheck)

	productsGroup := r.Group("/api/products")
	{
		productsGroup.GET("", h.ListProducts)
		productsGroup.GET("/trending", h.TrendingProducts)
		productsGroup.GET("/categories", h.ListCategories)
		productsGroup.GET("/:id", h.GetProduct)
	}

	cartGroup := r.Group("/api/cart")
	cartGroup.Use(m.Authentication())
	{
		cartGroup.POST("/add-to-cart", m.Authorize(h.AddToCart, auth.RoleUser))
		cartGroup.GET("", m.Authorize(h.GetCart, auth.RoleUser))
		cartGroup.PUT("/update", m.Authorize(h.UpdateQuantity, auth.RoleUser))
		cartGroup.DELETE("/remove/:productId", m.Authorize(h.RemoveFromCart, auth.RoleUser))
		cartGroup.DELETE("/clear", m.Authorize(h.ClearCart, auth.RoleUser))
	}

	addressGroup := r.Group("/api/addresses")
	addressGroup.Use(m.Authentication())
	{
		addressGroup.POST("", m.Authorize(h.AddAddress, auth.RoleUser))
		addressGroup.GET("", m.Authorize(h.ListAddresses, auth.RoleUser))
	}

	paymentGroup := r.Group("/api/payment")
	{
		// The webhook authenticates itself via the X-VERIFY checksum, not a
		// bearer token.
		paymentGroup.POST("/webhook", h.Webhook)
		paymentGroup.GET("/redirect", h.PaymentRedirect)

		authed := paymentGroup.Group("")
		authed.Use(m.Authentication())
		authed.POST("/initiate", m.Authorize(h.InitiatePayment, auth.RoleUser))
		authed.GET("/status/:orderId", m.Authorize(h.GetOrderStatus, auth.RoleUser))
		authed.GET("/orders", m.Authorize(h.GetUserOrders, auth.RoleUser))
		// Admins may look any order up by transaction id; the handler still
		// enforces ownership for everyone else.
		authed.GET("/order/db/:merchantOrderId", m.Authorize(h.GetOrderFromDb, auth.RoleUser, auth.RoleAdmin))
		authed.POST("/refund", m.Authorize(h.InitiateRefund, auth.RoleAdmin))
		authed.GET("/refund-status/:merchantRefundId", m.Authorize(h.GetRefundStatus, auth.RoleAdmin))
	}

	adminGroup := r.Group("/api/admin")
	adminGroup.Use(m.Authentication())
	{
		adminGroup.POST("/addProduct", m.Authorize(h.CreateProduct, auth.RoleAdmin))
		adminGroup.PUT("/updateProduct/:id", m.Authorize(h.UpdateProduct, auth.RoleAdmin))
		adminGroup.DELETE("/deleteProduct/:id", m.Authorize(h.DeleteProduct, auth.RoleAdmin))
		adminGroup.PUT("/products/:id/toggle-visibility", m.Authorize(h.ToggleProductVisibility, auth.RoleAdmin))
		adminGroup.PUT("/products/:id/trending-rank", m.Authorize(h.UpdateTrendingRank, auth.RoleAdmin))
		adminGroup.GET("/orders", m.Authorize(h.GetAllOrders, auth.RoleAdmin))
		adminGroup.PUT("/orders/:orderId/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
		adminGroup.DELETE("/orders/:orderId", m.Authorize(h.DeleteOrder, auth.RoleAdmin))
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// claimsFromRequest pulls the authenticated user out of the request context.
func claimsFromRequest(c *gin.Context) (auth.Claims, bool) {
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	return claims, ok
}
