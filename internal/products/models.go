package products

import "time"

// Product is a catalog entry. Stock is the raw spice in grams; the
// packaging counts are the finished 50g/100g pouches ready to ship. The two
// are independent ceilings: packaging_50gms*50 + packaging_100gms*100 need
// not equal stock.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Stock          int       `json:"stock"`
	Packaging50gms int       `json:"packaging_50gms"`
	Packaging100gm int       `json:"packaging_100gms"`
	MRP50g         int64     `json:"mrp_50g"`
	MRP100g        int64     `json:"mrp_100g"`
	IsVisible      bool      `json:"is_visible"`
	TrendingRank   *int      `json:"trending_rank,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewProduct is the admin payload for creating a product. Prices are in the
// smallest currency unit (paise).
type NewProduct struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Stock          int    `json:"stock" validate:"min=0"`
	Packaging50gms int    `json:"packaging_50gms" validate:"min=0"`
	Packaging100gm int    `json:"packaging_100gms" validate:"min=0"`
	MRP50g         int64  `json:"mrp_50g" validate:"min=0"`
	MRP100g        int64  `json:"mrp_100g" validate:"min=0"`
	IsVisible      *bool  `json:"is_visible"`
}
