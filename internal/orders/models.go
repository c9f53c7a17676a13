package orders

import (
	"errors"
	"time"
)

// Payment states on paymentDetails. pending -> processing -> completed|failed;
// completed and failed are terminal and never regressed from.
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
)

// Fulfillment lifecycle, driven by admin action. Payment completion
// auto-advances pending to confirmed; everything after that is manual.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
	OrderNA        = "N/A"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrCartEmpty     = errors.New("cart is empty")
	// ErrInvalidAmount aborts order creation when a line or the total is
	// non-positive; an order with a bad total must never be persisted.
	ErrInvalidAmount = errors.New("invalid order amount")
	ErrInvalidStatus = errors.New("invalid order status")
)

// Item is an immutable snapshot of one cart line at checkout time.
type Item struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Qty50g      int    `json:"qty_50g"`
	Qty100g     int    `json:"qty_100g"`
	Price50g    int64  `json:"price_50g"`
	Price100g   int64  `json:"price_100g"`
	TotalGrams  int    `json:"total_grams"`
}

// PaymentDetails tracks the gateway transaction. MerchantTransactionID is
// globally unique and the sole correlation key for webhooks and polls.
type PaymentDetails struct {
	MerchantTransactionID string     `json:"merchant_transaction_id"`
	TransactionID         string     `json:"transaction_id,omitempty"`
	Status                string     `json:"status"`
	PaymentMethod         string     `json:"payment_method,omitempty"`
	Amount                int64      `json:"amount"`
	PaymentTimestamp      *time.Time `json:"payment_timestamp,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	RetryCount            int        `json:"retry_count"`
}

// DeliveryAddress is copied from the address book at checkout.
type DeliveryAddress struct {
	AddressName  string `json:"address_name"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	TotalAmount     int64           `json:"total_amount"`
	PaymentDetails  PaymentDetails  `json:"payment_details"`
	PaymentStatus   string          `json:"payment_status"`
	OrderStatus     string          `json:"order_status"`
	DeliveryAddress DeliveryAddress `json:"delivery_address"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ValidOrderStatus reports whether s is an admin-settable fulfillment state.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}
