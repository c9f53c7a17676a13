// Package logkey holds the attribute names used across structured logs so
// log aggregation can rely on stable keys.
package logkey

const (
	TraceID   = "TRACE ID"
	ERROR     = "ERROR"
	UserID    = "UserID"
	ProductID = "ProductID"
	OrderID   = "OrderID"
	TxID      = "MerchantTransactionID"
)
