// Package addresses is the delivery address book. Orders snapshot an
// address at checkout; later edits never touch placed orders.
package addresses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("address not found")

type Address struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AddressName  string `json:"address_name"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

type NewAddress struct {
	AddressName  string `json:"address_name"`
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	Pincode      string `json:"pincode" validate:"required"`
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// GetAddress fetches an address only if it belongs to the user.
func (c *Conf) GetAddress(ctx context.Context, addressID, userID string) (Address, error) {
	var a Address
	err := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, address_name, name, phone, address_line1, address_line2, city, state, pincode
		FROM addresses
		WHERE id = $1 AND user_id = $2`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.AddressName, &a.Name, &a.Phone, &a.AddressLine1,
			&a.AddressLine2, &a.City, &a.State, &a.Pincode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("querying address: %w", err)
	}
	return a, nil
}

func (c *Conf) InsertAddress(ctx context.Context, userID string, na NewAddress) (Address, error) {
	a := Address{
		ID:           uuid.NewString(),
		UserID:       userID,
		AddressName:  na.AddressName,
		Name:         na.Name,
		Phone:        na.Phone,
		AddressLine1: na.AddressLine1,
		AddressLine2: na.AddressLine2,
		City:         na.City,
		State:        na.State,
		Pincode:      na.Pincode,
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, address_name, name, phone, address_line1, address_line2, city, state, pincode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.AddressName, a.Name, a.Phone, a.AddressLine1, a.AddressLine2,
		a.City, a.State, a.Pincode)
	if err != nil {
		return Address{}, fmt.Errorf("inserting address: %w", err)
	}
	return a, nil
}

func (c *Conf) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, address_name, name, phone, address_line1, address_line2, city, state, pincode
		FROM addresses
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.AddressName, &a.Name, &a.Phone,
			&a.AddressLine1, &a.AddressLine2, &a.City, &a.State, &a.Pincode); err != nil {
			return nil, fmt.Errorf("scanning address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating addresses: %w", err)
	}
	return out, nil
}
