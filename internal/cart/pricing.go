package cart

import "suruchiraj-service/internal/products"

// ValidateQuantities checks a requested (qty_50g, qty_100g) pair against a
// product. The checks run in a fixed order so the caller always learns the
// first limiting factor: raw stock in grams, then 50g pouches, then 100g
// pouches.
func ValidateQuantities(p products.Product, qty50, qty100 int) error {
	if qty50 < 0 || qty100 < 0 {
		return ErrInvalidQuantity
	}

	requiredGrams := qty50*50 + qty100*100
	if requiredGrams > p.Stock {
		return &InsufficientStockError{
			ProductName:    p.Name,
			RequestedGrams: requiredGrams,
			AvailableGrams: p.Stock,
		}
	}
	if qty50 > p.Packaging50gms {
		return &InsufficientPackagingError{
			ProductName: p.Name,
			PouchSize:   50,
			Requested:   qty50,
			Available:   p.Packaging50gms,
		}
	}
	if qty100 > p.Packaging100gm {
		return &InsufficientPackagingError{
			ProductName: p.Name,
			PouchSize:   100,
			Requested:   qty100,
			Available:   p.Packaging100gm,
		}
	}
	return nil
}

// BuildItem snapshots a product's name and MRP into a cart line for the
// given quantities. Derived fields are always recomputed here, never stored
// by the caller.
func BuildItem(p products.Product, qty50, qty100 int) Item {
	return Item{
		ProductID:   p.ID,
		ProductName: p.Name,
		Qty50g:      qty50,
		Qty100g:     qty100,
		Price50g:    p.MRP50g,
		Price100g:   p.MRP100g,
		Quantity:    qty50 + qty100,
		TotalGrams:  qty50*50 + qty100*100,
	}
}

// SetLine applies the add-to-cart semantics to a line set: the requested
// quantities REPLACE any existing line for the product (the product page
// sends the full desired count, not a delta), a new product is appended,
// and zero of both sizes drops the line. No line with both counts zero can
// come out of this.
func SetLine(items []Item, p products.Product, qty50, qty100 int) []Item {
	keep := qty50+qty100 > 0
	out := make([]Item, 0, len(items)+1)
	replaced := false
	for _, it := range items {
		if it.ProductID == p.ID {
			replaced = true
			if keep {
				out = append(out, BuildItem(p, qty50, qty100))
			}
			continue
		}
		out = append(out, it)
	}
	if !replaced && keep {
		out = append(out, BuildItem(p, qty50, qty100))
	}
	return out
}

// UpdateLine replaces the quantities of an existing line, removing it when
// both are zero. Unlike SetLine it is not an upsert: a product with no line
// yields ErrItemNotFound.
func UpdateLine(items []Item, p products.Product, qty50, qty100 int) ([]Item, error) {
	for _, it := range items {
		if it.ProductID == p.ID {
			return SetLine(items, p, qty50, qty100), nil
		}
	}
	return nil, ErrItemNotFound
}

// LineAmount is the paise total of one line.
func LineAmount(it Item) int64 {
	return int64(it.Qty50g)*it.Price50g + int64(it.Qty100g)*it.Price100g
}

// RecomputeTotal sums every line. Cart totals are always recomputed from
// the lines after a mutation, never adjusted incrementally, so they cannot
// drift.
func RecomputeTotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += LineAmount(it)
	}
	return total
}
