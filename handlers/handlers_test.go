package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/internal/auth"
	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/orders"
	"suruchiraj-service/internal/payment/phonepe"
	"suruchiraj-service/internal/products"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// The fakes below stand in for the store Confs and the gateway so the HTTP
// layer can be tested without postgres, redis, kafka or PhonePe.

type fakeCart struct {
	cart *cart.Cart
	err  error

	gotQty50, gotQty100 int
	cleared             bool
}

func (f *fakeCart) AddOrSetItem(_ context.Context, userID, productID string, qty50, qty100 int) (*cart.Cart, error) {
	f.gotQty50, f.gotQty100 = qty50, qty100
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCart) UpdateItem(_ context.Context, userID, productID string, qty50, qty100 int) (*cart.Cart, error) {
	f.gotQty50, f.gotQty100 = qty50, qty100
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCart) RemoveItem(_ context.Context, userID, productID string) (*cart.Cart, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCart) ClearCart(_ context.Context, userID string) error {
	f.cleared = true
	return f.err
}

func (f *fakeCart) GetCart(_ context.Context, userID string) (*cart.Cart, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

type fakeOrders struct {
	order     orders.Order
	completed bool
	err       error

	reconciled     []phonepe.Result
	markedTx       string
	createCalled   bool
	createdAddress addresses.Address
}

func (f *fakeOrders) CreateOrder(_ context.Context, userID string, userCart *cart.Cart, addr addresses.Address) (orders.Order, error) {
	f.createCalled = true
	f.createdAddress = addr
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) MarkProcessing(_ context.Context, merchantTxID string) error {
	f.markedTx = merchantTxID
	return nil
}

func (f *fakeOrders) ReconcileFromGateway(_ context.Context, result phonepe.Result) (orders.Order, bool, error) {
	f.reconciled = append(f.reconciled, result)
	if f.err != nil {
		return orders.Order{}, false, f.err
	}
	return f.order, f.completed, nil
}

func (f *fakeOrders) GetOrderByMerchantTxID(_ context.Context, merchantTxID string) (orders.Order, error) {
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) GetOrderStatus(_ context.Context, orderID, userID string) (orders.Order, error) {
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) GetUserOrders(_ context.Context, userID string) ([]orders.Order, error) {
	return []orders.Order{f.order}, f.err
}

func (f *fakeOrders) ListAllOrders(_ context.Context) ([]orders.Order, error) {
	return []orders.Order{f.order}, f.err
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, orderID, status string) (orders.Order, error) {
	if f.err != nil {
		return orders.Order{}, f.err
	}
	o := f.order
	o.OrderStatus = status
	return o, nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, orderID string) error { return f.err }

type fakeCatalog struct {
	product products.Product
	err     error
}

func (f *fakeCatalog) InsertProduct(_ context.Context, np products.NewProduct) (products.Product, error) {
	return f.product, f.err
}

func (f *fakeCatalog) GetProductByID(_ context.Context, productID string) (products.Product, error) {
	if f.err != nil {
		return products.Product{}, f.err
	}
	return f.product, nil
}

func (f *fakeCatalog) ListProducts(_ context.Context, includeHidden bool) ([]products.Product, error) {
	return []products.Product{f.product}, f.err
}

func (f *fakeCatalog) TrendingProducts(_ context.Context) ([]products.Product, error) {
	return []products.Product{f.product}, f.err
}

func (f *fakeCatalog) ListCategories(_ context.Context) ([]string, error) {
	return []string{f.product.Category}, f.err
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, productID string, np products.NewProduct) (products.Product, error) {
	return f.product, f.err
}

func (f *fakeCatalog) DeleteProduct(_ context.Context, productID string) error { return f.err }

func (f *fakeCatalog) ToggleVisibility(_ context.Context, productID string) (bool, error) {
	return !f.product.IsVisible, f.err
}

func (f *fakeCatalog) SetTrendingRank(_ context.Context, productID string, rank *int) error {
	return f.err
}

type fakeAddresses struct {
	address addresses.Address
	err     error
}

func (f *fakeAddresses) GetAddress(_ context.Context, addressID, userID string) (addresses.Address, error) {
	if f.err != nil {
		return addresses.Address{}, f.err
	}
	return f.address, nil
}

func (f *fakeAddresses) InsertAddress(_ context.Context, userID string, na addresses.NewAddress) (addresses.Address, error) {
	if f.err != nil {
		return addresses.Address{}, f.err
	}
	return f.address, nil
}

func (f *fakeAddresses) ListAddresses(_ context.Context, userID string) ([]addresses.Address, error) {
	return []addresses.Address{f.address}, f.err
}

type fakeGateway struct {
	checkoutURL  string
	result       phonepe.Result
	refund       phonepe.RefundResult
	payErr       error
	statusErr    error
	webhookErr   error
	refundErr    error
	paidTx       string
	paidAmount   int64
	refundedTx   string
	refundAmount int64
}

func (f *fakeGateway) Pay(_ context.Context, merchantTransactionID, merchantUserID string, amount int64) (string, error) {
	f.paidTx, f.paidAmount = merchantTransactionID, amount
	if f.payErr != nil {
		return "", f.payErr
	}
	return f.checkoutURL, nil
}

func (f *fakeGateway) Status(_ context.Context, merchantTransactionID string) (phonepe.Result, error) {
	if f.statusErr != nil {
		return phonepe.Result{}, f.statusErr
	}
	return f.result, nil
}

func (f *fakeGateway) VerifyAndDecodeWebhook(body []byte, xVerify string) (phonepe.Result, error) {
	if f.webhookErr != nil {
		return phonepe.Result{}, f.webhookErr
	}
	return f.result, nil
}

func (f *fakeGateway) Refund(_ context.Context, merchantRefundID, originalMerchantTxID, merchantUserID string, amount int64) (phonepe.RefundResult, error) {
	f.refundedTx, f.refundAmount = originalMerchantTxID, amount
	if f.refundErr != nil {
		return phonepe.RefundResult{}, f.refundErr
	}
	return f.refund, nil
}

func (f *fakeGateway) RefundStatus(_ context.Context, merchantRefundID string) (phonepe.RefundResult, error) {
	return f.refund, f.refundErr
}

type fakeProducer struct {
	mu       sync.Mutex
	messages [][]byte
	done     chan struct{}
}

func newFakeProducer(expect int) *fakeProducer {
	p := &fakeProducer{done: make(chan struct{}, expect)}
	return p
}

func (f *fakeProducer) ProduceMessage(topic string, key, value []byte) error {
	f.mu.Lock()
	f.messages = append(f.messages, value)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func newTestHandler(fc *fakeCart, fo *fakeOrders, fp *fakeCatalog, fa *fakeAddresses, fg *fakeGateway, fk Producer) *Handler {
	return NewHandler(fc, fo, fp, fa, fg, fk, nil)
}

func userClaims(userID string, roles ...string) auth.Claims {
	if len(roles) == 0 {
		roles = []string{auth.RoleUser}
	}
	return auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Roles:            roles,
	}
}

// withClaims stands in for the authentication middleware.
func withClaims(claims auth.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), auth.ClaimsKey, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func init() {
	gin.SetMode(gin.TestMode)
}
