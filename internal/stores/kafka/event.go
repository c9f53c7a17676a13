package kafka

import "time"

const TopicOrderPaid = `orders.order-paid`

// OrderPaidEvent is produced once per order line when a payment reaches the
// completed state. Downstream consumers (inventory tooling, notifications)
// key on OrderId.
type OrderPaidEvent struct {
	OrderId    string    `json:"order_id"`
	ProductId  string    `json:"product_id"`
	Qty50g     int       `json:"qty_50g"`
	Qty100g    int       `json:"qty_100g"`
	TotalGrams int       `json:"total_grams"`
	CreatedAt  time.Time `json:"created_at"`
}
