package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"suruchiraj-service/internal/products"
)

// Catalog is the slice of the product service the cart needs for
// validation. The cart never mutates catalog state.
type Catalog interface {
	GetProductByID(ctx context.Context, productID string) (products.Product, error)
}

type Conf struct {
	db      *sql.DB
	catalog Catalog
}

func NewConf(db *sql.DB, catalog Catalog) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	return &Conf{db: db, catalog: catalog}, nil
}

// AddOrSetItem puts (qty_50g, qty_100g) of a product into the user's cart.
// If the product already has a line, the quantities REPLACE the existing
// ones; this matches the storefront's behavior where the product page sends
// the full desired count, not a delta. The cart is created on first add.
func (c *Conf) AddOrSetItem(ctx context.Context, userID, productID string, qty50, qty100 int) (*Cart, error) {
	product, err := c.visibleProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := ValidateQuantities(product, qty50, qty100); err != nil {
		return nil, err
	}

	var out *Cart
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, err := c.lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		items, err := loadItems(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if err := c.storeItems(ctx, tx, cartID, SetLine(items, product, qty50, qty100)); err != nil {
			return err
		}
		out, err = c.finalizeCart(ctx, tx, cartID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateItem replaces the quantities of an existing line. A combined
// quantity of zero removes the line instead of storing a zeroed one.
// Returns ErrItemNotFound when the product has no line; update is not an
// upsert here, the storefront only calls it from the cart page.
func (c *Conf) UpdateItem(ctx context.Context, userID, productID string, qty50, qty100 int) (*Cart, error) {
	product, err := c.visibleProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if qty50+qty100 > 0 {
		if err := ValidateQuantities(product, qty50, qty100); err != nil {
			return nil, err
		}
	} else if qty50 < 0 || qty100 < 0 {
		return nil, ErrInvalidQuantity
	}

	var out *Cart
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, ok, err := c.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrItemNotFound
		}
		items, err := loadItems(ctx, tx, cartID)
		if err != nil {
			return err
		}
		updated, err := UpdateLine(items, product, qty50, qty100)
		if err != nil {
			return err
		}
		if err := c.storeItems(ctx, tx, cartID, updated); err != nil {
			return err
		}
		out, err = c.finalizeCart(ctx, tx, cartID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveItem drops the product's line if present. Removing an item that is
// not in the cart is a no-op success: the caller wanted it gone and it is.
func (c *Conf) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	var out *Cart
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, ok, err := c.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			out = EmptyCart(userID)
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
		if err != nil {
			return fmt.Errorf("removing cart item: %w", err)
		}

		out, err = c.finalizeCart(ctx, tx, cartID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearCart empties all lines and resets the total. Clearing an absent cart
// succeeds.
func (c *Conf) ClearCart(ctx context.Context, userID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, ok, err := c.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clearing cart items: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE carts SET total_amount = 0, version = version + 1, updated_at = NOW()
			WHERE id = $1`, cartID)
		if err != nil {
			return fmt.Errorf("resetting cart total: %w", err)
		}
		return nil
	})
}

// GetCart returns the user's cart, or an empty cart when none exists yet.
func (c *Conf) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var cartID int64
	var version, total int64
	err := c.db.QueryRowContext(ctx,
		`SELECT id, version, total_amount FROM carts WHERE user_id = $1`, userID).
		Scan(&cartID, &version, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EmptyCart(userID), nil
		}
		return nil, fmt.Errorf("querying cart: %w", err)
	}

	items, err := loadItems(ctx, c.db, cartID)
	if err != nil {
		return nil, err
	}
	return &Cart{UserID: userID, Items: items, TotalAmount: total, Version: version}, nil
}

func (c *Conf) visibleProduct(ctx context.Context, productID string) (products.Product, error) {
	product, err := c.catalog.GetProductByID(ctx, productID)
	if err != nil {
		return products.Product{}, err
	}
	// Hidden products are indistinguishable from absent ones to shoppers.
	if !product.IsVisible {
		return products.Product{}, products.ErrNotFound
	}
	return product, nil
}

// lockCart takes the row lock on the user's cart so concurrent mutations
// for the same user serialize, and bumps nothing yet.
func (c *Conf) lockCart(ctx context.Context, tx *sql.Tx, userID string) (int64, bool, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("locking cart: %w", err)
	}
	return cartID, true, nil
}

func (c *Conf) lockOrCreateCart(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	cartID, ok, err := c.lockCart(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return cartID, nil
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1) RETURNING id`, userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("creating cart: %w", err)
	}
	return cartID, nil
}

// storeItems rewrites the cart's lines to exactly match items. The caller
// holds the cart row lock, so the delete-and-reinsert is not observable
// half done.
func (c *Conf) storeItems(ctx context.Context, tx *sql.Tx, cartID int64, items []Item) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clearing cart lines: %w", err)
	}
	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, product_name, qty_50g, qty_100g,
				price_50g, price_100g, total_grams)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			cartID, it.ProductID, it.ProductName, it.Qty50g, it.Qty100g,
			it.Price50g, it.Price100g, it.TotalGrams)
		if err != nil {
			return fmt.Errorf("storing cart line: %w", err)
		}
	}
	return nil
}

// finalizeCart reloads the lines, recomputes the total from scratch, bumps
// the version, and returns the full cart the caller responds with.
func (c *Conf) finalizeCart(ctx context.Context, tx *sql.Tx, cartID int64, userID string) (*Cart, error) {
	items, err := loadItems(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	total := RecomputeTotal(items)
	var version int64
	err = tx.QueryRowContext(ctx, `
		UPDATE carts SET total_amount = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING version`, total, cartID).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("storing cart total: %w", err)
	}

	return &Cart{UserID: userID, Items: items, TotalAmount: total, Version: version}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadItems(ctx context.Context, q querier, cartID int64) ([]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, qty_50g, qty_100g, price_50g, price_100g, total_grams
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("querying cart items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Qty50g, &it.Qty100g,
			&it.Price50g, &it.Price100g, &it.TotalGrams); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		it.Quantity = it.Qty50g + it.Qty100g
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cart items: %w", err)
	}
	return items, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}
