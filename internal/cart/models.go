package cart

// Item is one cart line. A product appears at most once per cart; the 50g
// and 100g pouch counts are tracked independently on the same line. Prices
// are snapshots of the product MRP at the last mutation, in paise.
type Item struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Qty50g      int    `json:"qty_50g"`
	Qty100g     int    `json:"qty_100g"`
	Price50g    int64  `json:"price_50g"`
	Price100g   int64  `json:"price_100g"`
	Quantity    int    `json:"quantity"`
	TotalGrams  int    `json:"total_grams"`
}

// Cart is the server-side authoritative cart for one user. Version is a
// per-cart counter bumped on every mutation so concurrent writes for the
// same user serialize instead of racing.
type Cart struct {
	UserID      string `json:"user_id"`
	Items       []Item `json:"items"`
	TotalAmount int64  `json:"total_amount"`
	Version     int64  `json:"version"`
}

// EmptyCart is what GetCart returns for a user with no cart yet; reading a
// missing cart is never an error.
func EmptyCart(userID string) *Cart {
	return &Cart{UserID: userID, Items: []Item{}}
}
