package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/products"
	"suruchiraj-service/pkg/ctxmanage"
	"suruchiraj-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type cartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty50g    *int   `json:"qty_50g" validate:"required"`
	Qty100g   *int   `json:"qty_100g" validate:"required"`
}

// AddToCart sets the requested pouch counts for a product in the caller's
// cart. The quantities replace any existing line for the product.
func (h *Handler) AddToCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var request cartItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID and quantities are required"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		slog.Error("cart request validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID and quantities are required"})
		return
	}

	updated, err := h.cart.AddOrSetItem(c.Request.Context(), claims.Subject, request.ProductID, *request.Qty50g, *request.Qty100g)
	if err != nil {
		h.respondCartError(c, traceId, request.ProductID, err)
		return
	}

	slog.Info("item added to cart", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, claims.Subject), slog.String(logkey.ProductID, request.ProductID))
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart", "cart": updated})
}

// GetCart returns the caller's cart; a user with no cart yet gets an empty
// one, never a 404.
func (h *Handler) GetCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userCart, err := h.cart.GetCart(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching cart", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": userCart})
}

// UpdateQuantity replaces the pouch counts of an existing line; zero for
// both sizes removes the line.
func (h *Handler) UpdateQuantity(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var request cartItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID and new quantities are required"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		slog.Error("cart request validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID and new quantities are required"})
		return
	}

	updated, err := h.cart.UpdateItem(c.Request.Context(), claims.Subject, request.ProductID, *request.Qty50g, *request.Qty100g)
	if err != nil {
		h.respondCartError(c, traceId, request.ProductID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated", "cart": updated})
}

// RemoveFromCart drops a product's line. Removing an already-absent item
// succeeds: the outcome the caller asked for holds either way.
func (h *Handler) RemoveFromCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	productID := c.Param("productId")
	if productID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID is required"})
		return
	}

	updated, err := h.cart.RemoveItem(c.Request.Context(), claims.Subject, productID)
	if err != nil {
		h.respondCartError(c, traceId, productID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "cart": updated})
}

func (h *Handler) ClearCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.cart.ClearCart(c.Request.Context(), claims.Subject); err != nil {
		slog.Error("error clearing cart", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to clear cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// respondCartError maps cart failures to actionable responses: capacity
// errors name the limiting factor so the storefront can suggest a smaller
// quantity.
func (h *Handler) respondCartError(c *gin.Context, traceId, productID string, err error) {
	var stockErr *cart.InsufficientStockError
	var packagingErr *cart.InsufficientPackagingError

	switch {
	case errors.As(err, &stockErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": stockErr.Error()})
	case errors.As(err, &packagingErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": packagingErr.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Quantities must be non-negative"})
	case errors.Is(err, cart.ErrItemNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Item not found in cart"})
	case errors.Is(err, products.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Product not found"})
	default:
		slog.Error("cart operation failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ProductID, productID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}
