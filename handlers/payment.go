package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/internal/auth"
	"suruchiraj-service/internal/orders"
	"suruchiraj-service/internal/payment/phonepe"
	"suruchiraj-service/internal/stores/kafka"
	"suruchiraj-service/pkg/ctxmanage"
	"suruchiraj-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InitiatePayment snapshots the caller's cart into an immutable order and
// starts a gateway transaction for it. On gateway failure the order stays
// pending and the shopper retries checkout with a fresh transaction id, so
// a failed initiation can never double charge.
func (h *Handler) InitiatePayment(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var request struct {
		AddressID string `json:"address_id" validate:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Address ID is required"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Address ID is required"})
		return
	}

	if ok := h.claimIdempotencyKey(c, traceId); !ok {
		return
	}

	userCart, err := h.cart.GetCart(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching cart for checkout", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch cart"})
		return
	}

	address, err := h.addresses.GetAddress(c.Request.Context(), request.AddressID, claims.Subject)
	if err != nil {
		if errors.Is(err, addresses.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid delivery address"})
			return
		}
		slog.Error("error fetching address", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch address"})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), claims.Subject, userCart, address)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrCartEmpty):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Cart is empty"})
		case errors.Is(err, orders.ErrInvalidAmount):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid total amount calculated"})
		default:
			slog.Error("error creating order", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to create order"})
		}
		return
	}

	merchantTxID := order.PaymentDetails.MerchantTransactionID
	checkoutURL, err := h.gateway.Pay(c.Request.Context(), merchantTxID, claims.Subject, order.TotalAmount)
	if err != nil {
		// Order remains pending; no retry at this layer.
		slog.Error("payment initiation failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.TxID, merchantTxID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Payment initialization failed"})
		return
	}

	if err := h.orders.MarkProcessing(c.Request.Context(), merchantTxID); err != nil {
		slog.Error("error marking order processing", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.TxID, merchantTxID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to update order"})
		return
	}

	slog.Info("payment initiated", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, order.ID), slog.String(logkey.TxID, merchantTxID))
	c.JSON(http.StatusOK, gin.H{
		"payment_url":             checkoutURL,
		"merchant_transaction_id": merchantTxID,
		"order_id":                order.ID,
	})
}

// Webhook is the gateway's asynchronous callback and the authoritative
// reconciliation path. It verifies the X-VERIFY checksum before trusting
// anything in the body, and tolerates duplicate deliveries.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	const maxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("error reading webhook body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	result, err := h.gateway.VerifyAndDecodeWebhook(body, c.GetHeader("X-VERIFY"))
	if err != nil {
		if errors.Is(err, phonepe.ErrInvalidSignature) {
			slog.Error("webhook signature mismatch", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		slog.Error("error decoding webhook", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	order, completed, err := h.orders.ReconcileFromGateway(c.Request.Context(), result)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			slog.Error("webhook for unknown order", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.TxID, result.MerchantTransactionID))
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		slog.Error("webhook reconciliation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	if completed {
		h.emitOrderPaidEvents(order)
	}

	slog.Info("webhook reconciled", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, order.ID), slog.String("payment_status", order.PaymentStatus))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PaymentRedirect handles the shopper's browser returning from the hosted
// checkout page. Redirect query parameters are client-controlled, so the
// gateway's status endpoint is polled instead of trusting them; the result
// feeds the same reconciliation as the webhook, whichever arrives first.
func (h *Handler) PaymentRedirect(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	merchantOrderID := c.Query("merchantOrderId")
	if merchantOrderID == "" {
		merchantOrderID = c.Query("merchantTransactionId")
	}
	if merchantOrderID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "merchantOrderId is required"})
		return
	}

	result, err := h.gateway.Status(c.Request.Context(), merchantOrderID)
	if err != nil {
		// The webhook may still reconcile; send the shopper to the status
		// page which polls the order record.
		slog.Error("status poll failed on redirect", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.TxID, merchantOrderID), slog.String(logkey.ERROR, err.Error()))
		h.redirectToStatusPage(c, merchantOrderID)
		return
	}

	order, completed, err := h.orders.ReconcileFromGateway(c.Request.Context(), result)
	if err != nil && !errors.Is(err, orders.ErrOrderNotFound) {
		slog.Error("redirect reconciliation failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.TxID, merchantOrderID), slog.String(logkey.ERROR, err.Error()))
	}
	if completed {
		h.emitOrderPaidEvents(order)
	}

	h.redirectToStatusPage(c, merchantOrderID)
}

func (h *Handler) redirectToStatusPage(c *gin.Context, merchantOrderID string) {
	if h.clientURL == "" {
		c.JSON(http.StatusOK, gin.H{"merchant_transaction_id": merchantOrderID})
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/status?merchantOrderId=%s", h.clientURL, merchantOrderID))
}

// GetOrderFromDb serves the client status page's polling loop: the stored
// order by merchant transaction id, owner or admin only.
func (h *Handler) GetOrderFromDb(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	merchantOrderID := c.Param("merchantOrderId")
	order, err := h.orders.GetOrderByMerchantTxID(c.Request.Context(), merchantOrderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		slog.Error("error fetching order", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
		return
	}

	if order.UserID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// GetOrderStatus returns one order, enforcing ownership.
func (h *Handler) GetOrderStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	order, err := h.orders.GetOrderStatus(c.Request.Context(), c.Param("orderId"), claims.Subject)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		slog.Error("error fetching order status", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// GetUserOrders lists the caller's orders, newest first.
func (h *Handler) GetUserOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userOrders, err := h.orders.GetUserOrders(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching user orders", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": userOrders})
}

// InitiateRefund asks the gateway to refund a completed order. Refund state
// lives at the gateway; GetRefundStatus polls it by the refund's own
// correlation id.
func (h *Handler) InitiateRefund(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var request struct {
		MerchantTransactionID string `json:"merchant_transaction_id" validate:"required"`
		Amount                int64  `json:"amount"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Merchant transaction ID is required"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Merchant transaction ID is required"})
		return
	}

	order, err := h.orders.GetOrderByMerchantTxID(c.Request.Context(), request.MerchantTransactionID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		slog.Error("error fetching order for refund", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
		return
	}
	if order.PaymentStatus != orders.PaymentCompleted {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Only completed payments can be refunded"})
		return
	}

	amount := request.Amount
	if amount <= 0 || amount > order.TotalAmount {
		amount = order.TotalAmount
	}

	merchantRefundID := "REFUND_" + uuid.NewString()
	result, err := h.gateway.Refund(c.Request.Context(), merchantRefundID, request.MerchantTransactionID, order.UserID, amount)
	if err != nil {
		slog.Error("refund initiation failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.TxID, request.MerchantTransactionID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Refund initiation failed"})
		return
	}

	slog.Info("refund initiated", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, order.ID), slog.String("merchant_refund_id", merchantRefundID))
	c.JSON(http.StatusOK, gin.H{"success": true, "refund": result})
}

func (h *Handler) GetRefundStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	result, err := h.gateway.RefundStatus(c.Request.Context(), c.Param("merchantRefundId"))
	if err != nil {
		slog.Error("refund status poll failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Failed to fetch refund status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "refund": result})
}

// claimIdempotencyKey honors an optional Idempotent-Key header on checkout:
// a repeated key within 24h is rejected before any order is created.
func (h *Handler) claimIdempotencyKey(c *gin.Context, traceId string) bool {
	key := c.GetHeader("Idempotent-Key")
	if key == "" || h.rdb == nil {
		return true
	}

	redisKey := fmt.Sprintf("idempotent-key:%s", key)
	set, err := h.rdb.SetNX(c.Request.Context(), redisKey, "exists", 24*time.Hour).Result()
	if err != nil {
		slog.Error("idempotency check failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to check idempotency key"})
		return false
	}
	if !set {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Duplicate checkout request"})
		return false
	}
	return true
}

// emitOrderPaidEvents produces one event per line of a freshly paid order.
// Delivery is best effort and off the request path, matching how the order
// webhook fans out downstream work.
func (h *Handler) emitOrderPaidEvents(order orders.Order) {
	if h.producer == nil {
		return
	}
	go func() {
		for _, item := range order.Items {
			payload, err := json.Marshal(kafka.OrderPaidEvent{
				OrderId:    order.ID,
				ProductId:  item.ProductID,
				Qty50g:     item.Qty50g,
				Qty100g:    item.Qty100g,
				TotalGrams: item.TotalGrams,
				CreatedAt:  time.Now().UTC(),
			})
			if err != nil {
				slog.Error("failed to marshal OrderPaidEvent", slog.String(logkey.ERROR, err.Error()))
				return
			}
			if err := h.producer.ProduceMessage(kafka.TopicOrderPaid, []byte(order.ID), payload); err != nil {
				slog.Error("failed to produce OrderPaidEvent", slog.String(logkey.ERROR, err.Error()),
					slog.String(logkey.OrderID, order.ID))
				return
			}
		}
	}()
}
