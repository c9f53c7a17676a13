package orders

import (
	"testing"
	"time"

	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/payment/phonepe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() Order {
	return Order{
		ID:     "o1",
		UserID: "u1",
		Items: []Item{
			{ProductID: "p1", Qty50g: 2, Qty100g: 1, Price50g: 9900, Price100g: 17900, TotalGrams: 200},
		},
		TotalAmount: 2*9900 + 17900,
		PaymentDetails: PaymentDetails{
			MerchantTransactionID: "ORDER_abc",
			Status:                PaymentProcessing,
		},
		PaymentStatus: PaymentProcessing,
		OrderStatus:   OrderPending,
	}
}

func TestSnapshotCart(t *testing.T) {
	c := &cart.Cart{
		UserID: "u1",
		Items: []cart.Item{
			{ProductID: "p1", ProductName: "Garam Masala", Qty50g: 2, Price50g: 9900, TotalGrams: 100},
			{ProductID: "p2", ProductName: "Turmeric", Qty100g: 1, Price100g: 12900, TotalGrams: 100},
		},
		TotalAmount: 999, // stale stored total must be ignored
	}

	items, total, err := SnapshotCart(c)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2*9900+12900), total)
	assert.Equal(t, "Garam Masala", items[0].ProductName)
	assert.Equal(t, 100, items[1].TotalGrams)
}

func TestSnapshotCartEmpty(t *testing.T) {
	_, _, err := SnapshotCart(nil)
	assert.ErrorIs(t, err, ErrCartEmpty)

	_, _, err = SnapshotCart(&cart.Cart{UserID: "u1"})
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestSnapshotCartInvalidAmount(t *testing.T) {
	c := &cart.Cart{
		UserID: "u1",
		Items:  []cart.Item{{ProductID: "p1", Qty50g: 0, Qty100g: 0}},
	}
	_, _, err := SnapshotCart(c)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApplyGatewayResultCompleted(t *testing.T) {
	o := pendingOrder()
	now := time.Now().UTC()

	changed, completed := ApplyGatewayResult(&o, phonepe.Result{
		MerchantTransactionID: "ORDER_abc",
		TransactionID:         "T123",
		State:                 phonepe.StateCompleted,
		PaymentMethod:         "UPI",
	}, now)

	assert.True(t, changed)
	assert.True(t, completed)
	assert.Equal(t, PaymentCompleted, o.PaymentDetails.Status)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, "T123", o.PaymentDetails.TransactionID)
	assert.Equal(t, "UPI", o.PaymentDetails.PaymentMethod)
	require.NotNil(t, o.PaymentDetails.PaymentTimestamp)
	assert.Equal(t, now, *o.PaymentDetails.PaymentTimestamp)
	assert.Equal(t, OrderConfirmed, o.OrderStatus)
}

func TestApplyGatewayResultFailed(t *testing.T) {
	o := pendingOrder()

	changed, completed := ApplyGatewayResult(&o, phonepe.Result{
		State:        phonepe.StateFailed,
		ResponseCode: "PAYMENT_DECLINED",
	}, time.Now())

	assert.True(t, changed)
	assert.False(t, completed)
	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Equal(t, "PAYMENT_DECLINED", o.PaymentDetails.ErrorMessage)
	assert.Equal(t, OrderPending, o.OrderStatus)
}

func TestApplyGatewayResultUnknownStateIsFailure(t *testing.T) {
	o := pendingOrder()

	changed, completed := ApplyGatewayResult(&o, phonepe.Result{State: "DECLINED"}, time.Now())

	assert.True(t, changed)
	assert.False(t, completed)
	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Equal(t, "payment failed", o.PaymentDetails.ErrorMessage)
}

func TestApplyGatewayResultPendingBumpsRetryOnly(t *testing.T) {
	o := pendingOrder()

	changed, completed := ApplyGatewayResult(&o, phonepe.Result{State: phonepe.StatePending}, time.Now())

	assert.False(t, changed)
	assert.False(t, completed)
	assert.Equal(t, 1, o.PaymentDetails.RetryCount)
	assert.Equal(t, PaymentProcessing, o.PaymentDetails.Status)
	assert.Equal(t, OrderPending, o.OrderStatus)
}

func TestApplyGatewayResultTerminalIsFrozen(t *testing.T) {
	// A terminal order ignores every later report, including a
	// contradictory one. Duplicate webhook deliveries must be no-ops.
	for _, status := range []string{PaymentCompleted, PaymentFailed} {
		o := pendingOrder()
		o.PaymentDetails.Status = status
		o.PaymentStatus = status
		before := o

		for _, state := range []string{phonepe.StateCompleted, phonepe.StateFailed, phonepe.StatePending} {
			changed, completed := ApplyGatewayResult(&o, phonepe.Result{State: state, TransactionID: "T999"}, time.Now())
			assert.False(t, changed, "terminal %s must not change on %s", status, state)
			assert.False(t, completed)
		}
		assert.Equal(t, before, o)
	}
}

func TestApplyGatewayResultCompletesOnlyOnce(t *testing.T) {
	o := pendingOrder()
	now := time.Now()

	_, completed := ApplyGatewayResult(&o, phonepe.Result{State: phonepe.StateCompleted}, now)
	require.True(t, completed)

	// The settlement side effects key off completed; a replay must not
	// trigger them again.
	_, completed = ApplyGatewayResult(&o, phonepe.Result{State: phonepe.StateCompleted}, now.Add(time.Minute))
	assert.False(t, completed)
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []string{OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled} {
		assert.True(t, ValidOrderStatus(s), s)
	}
	assert.False(t, ValidOrderStatus("completed"))
	assert.False(t, ValidOrderStatus(""))
	assert.False(t, ValidOrderStatus(OrderNA))
}
