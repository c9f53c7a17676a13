package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"suruchiraj-service/internal/auth"
	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/orders"
	"suruchiraj-service/internal/payment/phonepe"
	"suruchiraj-service/internal/stores/kafka"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentRouter(h *Handler, claims auth.Claims) *gin.Engine {
	r := gin.New()
	r.POST("/api/payment/webhook", h.Webhook)
	r.GET("/api/payment/redirect", h.PaymentRedirect)

	authed := r.Group("")
	authed.Use(withClaims(claims))
	authed.POST("/api/payment/initiate", h.InitiatePayment)
	authed.GET("/api/payment/status/:orderId", h.GetOrderStatus)
	authed.GET("/api/payment/orders", h.GetUserOrders)
	authed.GET("/api/payment/order/db/:merchantOrderId", h.GetOrderFromDb)
	authed.POST("/api/payment/refund", h.InitiateRefund)
	return r
}

func paidUpOrder() orders.Order {
	return orders.Order{
		ID:     "o1",
		UserID: "u1",
		Items: []orders.Item{
			{ProductID: "p1", Qty50g: 2, Qty100g: 1, TotalGrams: 200},
			{ProductID: "p2", Qty100g: 2, TotalGrams: 200},
		},
		TotalAmount: 55400,
		PaymentDetails: orders.PaymentDetails{
			MerchantTransactionID: "ORDER_tx1",
			Status:                orders.PaymentPending,
		},
		PaymentStatus: orders.PaymentPending,
		OrderStatus:   orders.OrderPending,
	}
}

func TestInitiatePayment(t *testing.T) {
	fc := &fakeCart{cart: &cart.Cart{
		UserID:      "u1",
		Items:       []cart.Item{{ProductID: "p1", Qty50g: 2, Price50g: 9900}},
		TotalAmount: 19800,
	}}
	fo := &fakeOrders{order: paidUpOrder()}
	fa := &fakeAddresses{}
	fg := &fakeGateway{checkoutURL: "https://pay.example/checkout/abc"}

	h := newTestHandler(fc, fo, nil, fa, fg, nil)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/initiate", map[string]string{"address_id": "a1"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://pay.example/checkout/abc", body["payment_url"])
	assert.Equal(t, "ORDER_tx1", body["merchant_transaction_id"])

	assert.True(t, fo.createCalled)
	assert.Equal(t, "ORDER_tx1", fg.paidTx)
	assert.Equal(t, int64(55400), fg.paidAmount)
	assert.Equal(t, "ORDER_tx1", fo.markedTx)
}

func TestInitiatePaymentEmptyCart(t *testing.T) {
	fc := &fakeCart{cart: cart.EmptyCart("u1")}
	fo := &fakeOrders{err: orders.ErrCartEmpty}
	h := newTestHandler(fc, fo, nil, &fakeAddresses{}, &fakeGateway{}, nil)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/initiate", map[string]string{"address_id": "a1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cart is empty", decodeBody(t, w)["message"])
}

func TestInitiatePaymentGatewayFailureLeavesOrderPending(t *testing.T) {
	fc := &fakeCart{cart: &cart.Cart{UserID: "u1", Items: []cart.Item{{ProductID: "p1", Qty50g: 1, Price50g: 9900}}}}
	fo := &fakeOrders{order: paidUpOrder()}
	fg := &fakeGateway{payErr: errors.New("gateway timeout")}
	h := newTestHandler(fc, fo, nil, &fakeAddresses{}, fg, nil)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/initiate", map[string]string{"address_id": "a1"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	// the order was created but never moved to processing
	assert.True(t, fo.createCalled)
	assert.Empty(t, fo.markedTx)
}

func TestWebhookReconcilesAndEmitsEvents(t *testing.T) {
	order := paidUpOrder()
	order.PaymentStatus = orders.PaymentCompleted
	fo := &fakeOrders{order: order, completed: true}
	fg := &fakeGateway{result: phonepe.Result{
		MerchantTransactionID: "ORDER_tx1",
		State:                 phonepe.StateCompleted,
	}}
	producer := newFakeProducer(len(order.Items))

	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, producer)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/webhook", map[string]string{"response": "ignored-by-fake"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fo.reconciled, 1)
	assert.Equal(t, "ORDER_tx1", fo.reconciled[0].MerchantTransactionID)

	// events are produced off the request path
	for i := 0; i < len(order.Items); i++ {
		select {
		case <-producer.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for order-paid events")
		}
	}
	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.messages, len(order.Items))

	var ev kafka.OrderPaidEvent
	require.NoError(t, json.Unmarshal(producer.messages[0], &ev))
	assert.Equal(t, "o1", ev.OrderId)
	assert.Equal(t, "p1", ev.ProductId)
	assert.Equal(t, 200, ev.TotalGrams)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fo := &fakeOrders{}
	fg := &fakeGateway{webhookErr: phonepe.ErrInvalidSignature}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/webhook", map[string]string{"response": "tampered"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fo.reconciled, "an unverified webhook must never reach reconciliation")
}

func TestWebhookUnknownOrder(t *testing.T) {
	fo := &fakeOrders{err: orders.ErrOrderNotFound}
	fg := &fakeGateway{result: phonepe.Result{MerchantTransactionID: "ORDER_ghost", State: phonepe.StateCompleted}}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodPost, "/api/payment/webhook", map[string]string{"response": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentRedirectPollsStatus(t *testing.T) {
	fo := &fakeOrders{order: paidUpOrder()}
	fg := &fakeGateway{result: phonepe.Result{MerchantTransactionID: "ORDER_tx1", State: phonepe.StateFailed}}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	h.clientURL = "https://shop.example"
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodGet, "/api/payment/redirect?merchantOrderId=ORDER_tx1", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example/payment/status?merchantOrderId=ORDER_tx1", w.Header().Get("Location"))
	require.Len(t, fo.reconciled, 1)
	assert.Equal(t, phonepe.StateFailed, fo.reconciled[0].State)
}

func TestPaymentRedirectSurvivesStatusOutage(t *testing.T) {
	// Status poll failing must not strand the shopper; the webhook path
	// will reconcile later.
	fo := &fakeOrders{}
	fg := &fakeGateway{statusErr: errors.New("gateway down")}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	h.clientURL = "https://shop.example"
	r := paymentRouter(h, userClaims("u1"))

	w := doJSON(t, r, http.MethodGet, "/api/payment/redirect?merchantOrderId=ORDER_tx1", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, fo.reconciled)
}

func TestGetOrderFromDbEnforcesOwnership(t *testing.T) {
	fo := &fakeOrders{order: paidUpOrder()}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, &fakeGateway{}, nil)

	r := paymentRouter(h, userClaims("someone-else"))
	w := doJSON(t, r, http.MethodGet, "/api/payment/order/db/ORDER_tx1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = paymentRouter(h, userClaims("u1"))
	w = doJSON(t, r, http.MethodGet, "/api/payment/order/db/ORDER_tx1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	r = paymentRouter(h, userClaims("someone-else", auth.RoleAdmin))
	w = doJSON(t, r, http.MethodGet, "/api/payment/order/db/ORDER_tx1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitiateRefundRequiresCompletedPayment(t *testing.T) {
	fo := &fakeOrders{order: paidUpOrder()} // payment still pending
	fg := &fakeGateway{}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	r := paymentRouter(h, userClaims("admin", auth.RoleAdmin))

	w := doJSON(t, r, http.MethodPost, "/api/payment/refund", map[string]any{
		"merchant_transaction_id": "ORDER_tx1",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, fg.refundedTx)
}

func TestInitiateRefundDefaultsToFullAmount(t *testing.T) {
	order := paidUpOrder()
	order.PaymentStatus = orders.PaymentCompleted
	fo := &fakeOrders{order: order}
	fg := &fakeGateway{refund: phonepe.RefundResult{State: phonepe.StatePending}}
	h := newTestHandler(&fakeCart{}, fo, nil, &fakeAddresses{}, fg, nil)
	r := paymentRouter(h, userClaims("admin", auth.RoleAdmin))

	w := doJSON(t, r, http.MethodPost, "/api/payment/refund", map[string]any{
		"merchant_transaction_id": "ORDER_tx1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ORDER_tx1", fg.refundedTx)
	assert.Equal(t, order.TotalAmount, fg.refundAmount)
}
