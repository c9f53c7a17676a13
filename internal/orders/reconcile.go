package orders

import (
	"time"

	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/payment/phonepe"
)

// SnapshotCart freezes a cart into order lines and a re-summed total.
// Fails with ErrCartEmpty on an empty cart and ErrInvalidAmount when any
// line or the total comes out non-positive.
func SnapshotCart(c *cart.Cart) ([]Item, int64, error) {
	if c == nil || len(c.Items) == 0 {
		return nil, 0, ErrCartEmpty
	}

	items := make([]Item, 0, len(c.Items))
	var total int64
	for _, it := range c.Items {
		lineAmount := cart.LineAmount(it)
		if lineAmount <= 0 {
			return nil, 0, ErrInvalidAmount
		}
		items = append(items, Item{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Qty50g:      it.Qty50g,
			Qty100g:     it.Qty100g,
			Price50g:    it.Price50g,
			Price100g:   it.Price100g,
			TotalGrams:  it.TotalGrams,
		})
		total += lineAmount
	}
	if total <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	return items, total, nil
}

// terminal reports whether a payment status can no longer change.
func terminal(status string) bool {
	return status == PaymentCompleted || status == PaymentFailed
}

// ApplyGatewayResult folds the gateway's report into the order. It is
// idempotent and forward-only: an order already in a terminal state is left
// untouched whatever the result says, and a PENDING report never moves the
// order backwards. Returns whether the order changed and whether this call
// is the one that completed the payment.
func ApplyGatewayResult(o *Order, r phonepe.Result, now time.Time) (changed, completed bool) {
	if terminal(o.PaymentDetails.Status) {
		return false, false
	}

	switch r.State {
	case phonepe.StateCompleted:
		o.PaymentDetails.Status = PaymentCompleted
		o.PaymentDetails.TransactionID = r.TransactionID
		o.PaymentDetails.PaymentMethod = r.PaymentMethod
		o.PaymentDetails.PaymentTimestamp = &now
		o.PaymentDetails.ErrorMessage = ""
		o.PaymentStatus = PaymentCompleted
		if o.OrderStatus == OrderPending {
			o.OrderStatus = OrderConfirmed
		}
		return true, true

	case phonepe.StatePending:
		// Gateway has not decided yet; count the poll but change nothing
		// the shopper can observe.
		o.PaymentDetails.RetryCount++
		return false, false

	default:
		// FAILED and any unknown state the gateway may add.
		o.PaymentDetails.Status = PaymentFailed
		o.PaymentDetails.TransactionID = r.TransactionID
		o.PaymentDetails.PaymentMethod = r.PaymentMethod
		o.PaymentDetails.PaymentTimestamp = &now
		o.PaymentDetails.ErrorMessage = failureMessage(r)
		o.PaymentStatus = PaymentFailed
		return true, false
	}
}

func failureMessage(r phonepe.Result) string {
	if r.Message != "" {
		return r.Message
	}
	if r.ResponseCode != "" {
		return r.ResponseCode
	}
	return "payment failed"
}
