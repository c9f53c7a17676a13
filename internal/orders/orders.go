package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/payment/phonepe"

	"github.com/google/uuid"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// CreateOrder snapshots the cart and address into a new pending order with
// a fresh merchant transaction id. The cart itself is left alone; it is
// cleared only when the payment completes.
func (c *Conf) CreateOrder(ctx context.Context, userID string, userCart *cart.Cart, addr addresses.Address) (Order, error) {
	items, total, err := SnapshotCart(userCart)
	if err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()
	order := Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		Items:       items,
		TotalAmount: total,
		PaymentDetails: PaymentDetails{
			MerchantTransactionID: "ORDER_" + uuid.NewString(),
			Status:                PaymentPending,
			Amount:                total,
		},
		PaymentStatus: PaymentPending,
		OrderStatus:   OrderPending,
		DeliveryAddress: DeliveryAddress{
			AddressName:  addr.AddressName,
			Name:         addr.Name,
			Phone:        addr.Phone,
			AddressLine1: addr.AddressLine1,
			AddressLine2: addr.AddressLine2,
			City:         addr.City,
			State:        addr.State,
			Pincode:      addr.Pincode,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = c.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, total_amount, payment_status, order_status,
				merchant_transaction_id, payment_detail_status, address_name, recipient_name,
				phone, address_line1, address_line2, city, state, pincode, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			order.ID, order.UserID, order.TotalAmount, order.PaymentStatus, order.OrderStatus,
			order.PaymentDetails.MerchantTransactionID, order.PaymentDetails.Status,
			order.DeliveryAddress.AddressName, order.DeliveryAddress.Name, order.DeliveryAddress.Phone,
			order.DeliveryAddress.AddressLine1, order.DeliveryAddress.AddressLine2,
			order.DeliveryAddress.City, order.DeliveryAddress.State, order.DeliveryAddress.Pincode,
			order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		for _, it := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, qty_50g, qty_100g,
					price_50g, price_100g, total_grams)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				order.ID, it.ProductID, it.ProductName, it.Qty50g, it.Qty100g,
				it.Price50g, it.Price100g, it.TotalGrams)
			if err != nil {
				return fmt.Errorf("inserting order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// MarkProcessing moves a pending order to processing once the gateway has
// accepted the transaction.
func (c *Conf) MarkProcessing(ctx context.Context, merchantTxID string) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_detail_status = $1, updated_at = NOW()
		WHERE merchant_transaction_id = $2 AND payment_detail_status = $3`,
		PaymentProcessing, merchantTxID, PaymentPending)
	if err != nil {
		return fmt.Errorf("marking order processing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking processing update: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ReconcileFromGateway folds a gateway result (webhook or status poll) into
// the order it correlates to. Safe to call any number of times with the
// same result: the row is locked, the transition is forward-only, and the
// completion side effects run exactly once, on the transition itself.
// Returns the updated order and whether this call completed the payment.
func (c *Conf) ReconcileFromGateway(ctx context.Context, result phonepe.Result) (Order, bool, error) {
	var order Order
	var completedNow bool

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = c.getOrderTx(ctx, tx, `merchant_transaction_id = $1`, true, result.MerchantTransactionID)
		if err != nil {
			return err
		}

		retriesBefore := order.PaymentDetails.RetryCount
		changed, completed := ApplyGatewayResult(&order, result, time.Now().UTC())
		completedNow = completed
		if !changed {
			// A duplicate report for a terminal order must leave the row
			// byte-identical; only a genuine pending poll bumps the counter.
			if order.PaymentDetails.RetryCount > retriesBefore {
				_, err = tx.ExecContext(ctx, `
					UPDATE orders SET retry_count = $1, updated_at = NOW() WHERE id = $2`,
					order.PaymentDetails.RetryCount, order.ID)
				if err != nil {
					return fmt.Errorf("storing retry count: %w", err)
				}
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_detail_status = $1, payment_status = $2, order_status = $3,
				gateway_transaction_id = $4, payment_method = $5, payment_timestamp = $6,
				payment_error = $7, updated_at = NOW()
			WHERE id = $8`,
			order.PaymentDetails.Status, order.PaymentStatus, order.OrderStatus,
			order.PaymentDetails.TransactionID, order.PaymentDetails.PaymentMethod,
			order.PaymentDetails.PaymentTimestamp, order.PaymentDetails.ErrorMessage, order.ID)
		if err != nil {
			return fmt.Errorf("storing reconciled order: %w", err)
		}

		if completed {
			if err := c.settleInventory(ctx, tx, order.Items); err != nil {
				return err
			}
			if err := c.clearUserCart(ctx, tx, order.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return order, completedNow, nil
}

// settleInventory decrements raw stock and pouch counts for a paid order.
// Counts are clamped at zero: payment already happened, so a stale
// inventory record must not fail the reconciliation, it surfaces to the
// admin instead.
func (c *Conf) settleInventory(ctx context.Context, tx *sql.Tx, items []Item) error {
	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock - $1, 0),
				packaging_50gms = GREATEST(packaging_50gms - $2, 0),
				packaging_100gms = GREATEST(packaging_100gms - $3, 0),
				updated_at = NOW()
			WHERE id = $4`,
			it.TotalGrams, it.Qty50g, it.Qty100g, it.ProductID)
		if err != nil {
			return fmt.Errorf("settling inventory for %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// clearUserCart empties the shopper's cart after a successful payment.
func (c *Conf) clearUserCart(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID)
	if err != nil {
		return fmt.Errorf("clearing cart items after payment: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE carts SET total_amount = 0, version = version + 1, updated_at = NOW()
		WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("resetting cart after payment: %w", err)
	}
	return nil
}

// GetOrderByMerchantTxID looks an order up by its gateway correlation id.
func (c *Conf) GetOrderByMerchantTxID(ctx context.Context, merchantTxID string) (Order, error) {
	return c.getOrder(ctx, `merchant_transaction_id = $1`, merchantTxID)
}

// GetOrderStatus returns the order only if it belongs to the user.
func (c *Conf) GetOrderStatus(ctx context.Context, orderID, userID string) (Order, error) {
	return c.getOrder(ctx, `id = $1 AND user_id = $2`, orderID, userID)
}

// GetUserOrders lists the user's orders, newest first.
func (c *Conf) GetUserOrders(ctx context.Context, userID string) ([]Order, error) {
	return c.listOrders(ctx, `WHERE user_id = $1`, userID)
}

// ListAllOrders is the admin view over every order, newest first.
func (c *Conf) ListAllOrders(ctx context.Context) ([]Order, error) {
	return c.listOrders(ctx, ``)
}

// UpdateOrderStatus is the admin mutation on the fulfillment lifecycle.
func (c *Conf) UpdateOrderStatus(ctx context.Context, orderID, status string) (Order, error) {
	if !ValidOrderStatus(status) {
		return Order{}, ErrInvalidStatus
	}
	result, err := c.db.ExecContext(ctx, `
		UPDATE orders SET order_status = $1, updated_at = NOW() WHERE id = $2`, status, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("updating order status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Order{}, fmt.Errorf("checking status update: %w", err)
	}
	if affected == 0 {
		return Order{}, ErrOrderNotFound
	}
	return c.getOrder(ctx, `id = $1`, orderID)
}

func (c *Conf) DeleteOrder(ctx context.Context, orderID string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("deleting order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking order delete: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const orderColumns = `id, user_id, total_amount, payment_status, order_status,
	merchant_transaction_id, gateway_transaction_id, payment_detail_status, payment_method,
	payment_timestamp, payment_error, retry_count, address_name, recipient_name, phone,
	address_line1, address_line2, city, state, pincode, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	var paymentTS sql.NullTime
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.PaymentStatus, &o.OrderStatus,
		&o.PaymentDetails.MerchantTransactionID, &o.PaymentDetails.TransactionID,
		&o.PaymentDetails.Status, &o.PaymentDetails.PaymentMethod, &paymentTS,
		&o.PaymentDetails.ErrorMessage, &o.PaymentDetails.RetryCount,
		&o.DeliveryAddress.AddressName, &o.DeliveryAddress.Name, &o.DeliveryAddress.Phone,
		&o.DeliveryAddress.AddressLine1, &o.DeliveryAddress.AddressLine2,
		&o.DeliveryAddress.City, &o.DeliveryAddress.State, &o.DeliveryAddress.Pincode,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if paymentTS.Valid {
		ts := paymentTS.Time
		o.PaymentDetails.PaymentTimestamp = &ts
	}
	o.PaymentDetails.Amount = o.TotalAmount
	return o, nil
}

func (c *Conf) getOrder(ctx context.Context, where string, args ...any) (Order, error) {
	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = c.getOrderTx(ctx, tx, where, false, args...)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (c *Conf) getOrderTx(ctx context.Context, tx *sql.Tx, where string, forUpdate bool, args ...any) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("querying order: %w", err)
	}

	order.Items, err = loadItems(ctx, tx, order.ID)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (c *Conf) listOrders(ctx context.Context, where string, args ...any) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	for i := range out {
		out[i].Items, err = loadItems(ctx, c.db, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, qty_50g, qty_100g, price_50g, price_100g, total_grams
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Qty50g, &it.Qty100g,
			&it.Price50g, &it.Price100g, &it.TotalGrams); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
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
