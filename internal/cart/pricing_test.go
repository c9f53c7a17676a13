package cart

import (
	"errors"
	"testing"

	"suruchiraj-service/internal/products"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func garamMasala() products.Product {
	return products.Product{
		ID:             "p1",
		Name:           "Garam Masala",
		Stock:          500,
		Packaging50gms: 4,
		Packaging100gm: 3,
		MRP50g:         9900,
		MRP100g:        17900,
		IsVisible:      true,
	}
}

func TestValidateQuantities(t *testing.T) {
	tests := []struct {
		name    string
		qty50   int
		qty100  int
		wantErr error
	}{
		{name: "within all limits", qty50: 2, qty100: 2},
		{name: "exactly at stock ceiling", qty50: 4, qty100: 3},
		{name: "zero of both is valid input", qty50: 0, qty100: 0},
		{name: "negative 50g", qty50: -1, qty100: 1, wantErr: ErrInvalidQuantity},
		{name: "negative 100g", qty50: 1, qty100: -1, wantErr: ErrInvalidQuantity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuantities(garamMasala(), tc.qty50, tc.qty100)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateQuantitiesStockCeiling(t *testing.T) {
	// 4*50 + 4*100 = 600g > 500g stock. Stock is checked before pouch
	// counts, so the error names grams even though 100g pouches are also
	// short.
	err := ValidateQuantities(garamMasala(), 4, 4)
	require.Error(t, err)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Garam Masala", stockErr.ProductName)
	assert.Equal(t, 600, stockErr.RequestedGrams)
	assert.Equal(t, 500, stockErr.AvailableGrams)
}

func TestValidateQuantitiesPouchCeilings(t *testing.T) {
	p := garamMasala()
	p.Stock = 10000 // stock no longer the limiting factor

	err := ValidateQuantities(p, 5, 0)
	var packErr *InsufficientPackagingError
	require.ErrorAs(t, err, &packErr)
	assert.Equal(t, 50, packErr.PouchSize)
	assert.Equal(t, 5, packErr.Requested)
	assert.Equal(t, 4, packErr.Available)

	err = ValidateQuantities(p, 0, 4)
	require.ErrorAs(t, err, &packErr)
	assert.Equal(t, 100, packErr.PouchSize)
	assert.Equal(t, 4, packErr.Requested)
	assert.Equal(t, 3, packErr.Available)
}

func TestValidateQuantitiesIndependentCeilings(t *testing.T) {
	// Pouch inventory can exceed what raw stock could fill; the checks are
	// independent and stock wins when both are exceeded.
	p := products.Product{Name: "Turmeric", Stock: 100, Packaging50gms: 10, Packaging100gm: 10}

	var stockErr *InsufficientStockError
	err := ValidateQuantities(p, 3, 0)
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 150, stockErr.RequestedGrams)
}

func TestBuildItem(t *testing.T) {
	it := BuildItem(garamMasala(), 2, 1)

	assert.Equal(t, "p1", it.ProductID)
	assert.Equal(t, "Garam Masala", it.ProductName)
	assert.Equal(t, 3, it.Quantity)
	assert.Equal(t, 200, it.TotalGrams)
	assert.Equal(t, int64(9900), it.Price50g)
	assert.Equal(t, int64(17900), it.Price100g)
	assert.Equal(t, int64(2*9900+17900), LineAmount(it))
}

func TestRecomputeTotal(t *testing.T) {
	items := []Item{
		{Qty50g: 2, Price50g: 9900},
		{Qty100g: 3, Price100g: 17900},
		{Qty50g: 1, Qty100g: 1, Price50g: 5000, Price100g: 9000},
	}
	assert.Equal(t, int64(2*9900+3*17900+5000+9000), RecomputeTotal(items))
	assert.Equal(t, int64(0), RecomputeTotal(nil))
}

func TestInsufficientErrorMessages(t *testing.T) {
	stockErr := &InsufficientStockError{ProductName: "Chaat Masala", RequestedGrams: 300, AvailableGrams: 250}
	assert.Contains(t, stockErr.Error(), "Chaat Masala")
	assert.Contains(t, stockErr.Error(), "300")

	packErr := &InsufficientPackagingError{ProductName: "Chaat Masala", PouchSize: 50, Requested: 6, Available: 2}
	assert.Contains(t, packErr.Error(), "50g")
	assert.False(t, errors.Is(packErr, ErrInvalidQuantity))
}
