package products

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a product id does not exist.
var ErrNotFound = errors.New("product not found")

const (
	trendingCacheKey = "products:trending"
	trendingCacheTTL = 5 * time.Minute
	trendingLimit    = 10
)

type Conf struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewConf wires the catalog over the shared db handle. rdb may be nil, in
// which case trending reads skip the cache.
func NewConf(db *sql.DB, rdb *redis.Client) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db, rdb: rdb}, nil
}

const productColumns = `id, name, description, category, stock, packaging_50gms, packaging_100gms,
	mrp_50g, mrp_100g, is_visible, trending_rank, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var rank sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Stock, &p.Packaging50gms,
		&p.Packaging100gm, &p.MRP50g, &p.MRP100g, &p.IsVisible, &rank, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if rank.Valid {
		r := int(rank.Int64)
		p.TrendingRank = &r
	}
	return p, nil
}

func (c *Conf) InsertProduct(ctx context.Context, np NewProduct) (Product, error) {
	visible := true
	if np.IsVisible != nil {
		visible = *np.IsVisible
	}

	query := `
		INSERT INTO products (id, name, description, category, stock, packaging_50gms, packaging_100gms,
			mrp_50g, mrp_100g, is_visible)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + productColumns

	row := c.db.QueryRowContext(ctx, query, uuid.NewString(), np.Name, np.Description,
		np.Category, np.Stock, np.Packaging50gms, np.Packaging100gm, np.MRP50g, np.MRP100g, visible)

	p, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("inserting product: %w", err)
	}
	c.invalidateTrending(ctx)
	return p, nil
}

func (c *Conf) GetProductByID(ctx context.Context, productID string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(c.db.QueryRowContext(ctx, query, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("querying product %s: %w", productID, err)
	}
	return p, nil
}

// ListProducts returns the catalog, visible-only unless includeHidden is set
// (admin listing).
func (c *Conf) ListProducts(ctx context.Context, includeHidden bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeHidden {
		query += ` WHERE is_visible`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return out, nil
}

// TrendingProducts returns visible products with a trending rank, ascending
// by rank, at most 10. Served from the redis cache when warm.
func (c *Conf) TrendingProducts(ctx context.Context) ([]Product, error) {
	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, trendingCacheKey).Result()
		if err == nil && cached != "" {
			var out []Product
			if err := json.Unmarshal([]byte(cached), &out); err == nil {
				return out, nil
			}
		}
	}

	query := `SELECT ` + productColumns + ` FROM products
		WHERE is_visible AND trending_rank IS NOT NULL
		ORDER BY trending_rank ASC
		LIMIT $1`

	rows, err := c.db.QueryContext(ctx, query, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("listing trending products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trending product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trending products: %w", err)
	}

	if c.rdb != nil {
		if encoded, err := json.Marshal(out); err == nil {
			c.rdb.Set(ctx, trendingCacheKey, encoded, trendingCacheTTL)
		}
	}
	return out, nil
}

func (c *Conf) UpdateProduct(ctx context.Context, productID string, np NewProduct) (Product, error) {
	visible := true
	if np.IsVisible != nil {
		visible = *np.IsVisible
	}

	query := `
		UPDATE products
		SET name = $1, description = $2, category = $3, stock = $4, packaging_50gms = $5,
			packaging_100gms = $6, mrp_50g = $7, mrp_100g = $8, is_visible = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING ` + productColumns

	row := c.db.QueryRowContext(ctx, query, np.Name, np.Description, np.Category, np.Stock,
		np.Packaging50gms, np.Packaging100gm, np.MRP50g, np.MRP100g, visible, productID)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("updating product %s: %w", productID, err)
	}
	c.invalidateTrending(ctx)
	return p, nil
}

// ListCategories returns the distinct categories of visible products.
func (c *Conf) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM products
		WHERE is_visible AND category <> ''
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}
	return out, nil
}

func (c *Conf) DeleteProduct(ctx context.Context, productID string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("deleting product %s: %w", productID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	c.invalidateTrending(ctx)
	return nil
}

// ToggleVisibility flips is_visible and returns the new value. Hidden
// products stay in the catalog for the admin but are never offered to
// shoppers.
func (c *Conf) ToggleVisibility(ctx context.Context, productID string) (bool, error) {
	var visible bool
	query := `UPDATE products SET is_visible = NOT is_visible, updated_at = NOW()
		WHERE id = $1 RETURNING is_visible`
	err := c.db.QueryRowContext(ctx, query, productID).Scan(&visible)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("toggling visibility for %s: %w", productID, err)
	}
	c.invalidateTrending(ctx)
	return visible, nil
}

// SetTrendingRank sets or clears (nil) the product's trending rank.
func (c *Conf) SetTrendingRank(ctx context.Context, productID string, rank *int) error {
	var value sql.NullInt64
	if rank != nil {
		value = sql.NullInt64{Int64: int64(*rank), Valid: true}
	}
	result, err := c.db.ExecContext(ctx,
		`UPDATE products SET trending_rank = $1, updated_at = NOW() WHERE id = $2`, value, productID)
	if err != nil {
		return fmt.Errorf("setting trending rank for %s: %w", productID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking trending rank update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	c.invalidateTrending(ctx)
	return nil
}

func (c *Conf) invalidateTrending(ctx context.Context) {
	if c.rdb != nil {
		c.rdb.Del(ctx, trendingCacheKey)
	}
}
