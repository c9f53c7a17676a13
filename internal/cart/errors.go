package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned by UpdateItem when the product has no
	// line in the cart. RemoveItem deliberately does NOT return it: removing
	// an absent item is an idempotent success since the net effect is the
	// same.
	ErrItemNotFound = errors.New("item not found in cart")

	// ErrInvalidQuantity covers negative pouch counts.
	ErrInvalidQuantity = errors.New("quantities must be non-negative")
)

// InsufficientStockError means the requested grams exceed the raw spice
// stock of the product.
type InsufficientStockError struct {
	ProductName    string
	RequestedGrams int
	AvailableGrams int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock of %s: requested %dg, available %dg",
		e.ProductName, e.RequestedGrams, e.AvailableGrams)
}

// InsufficientPackagingError means too few pre-made pouches of the given
// size are left, independent of raw stock.
type InsufficientPackagingError struct {
	ProductName string
	PouchSize   int
	Requested   int
	Available   int
}

func (e *InsufficientPackagingError) Error() string {
	return fmt.Sprintf("only %d %dg pouches of %s available, requested %d",
		e.Available, e.PouchSize, e.ProductName, e.Requested)
}
