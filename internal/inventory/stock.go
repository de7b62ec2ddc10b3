// Package inventory tracks per-product stock as a projection of the
// ledger and runs physical-count reconciliation sessions.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is catalog data read from the external product catalog.
type Product struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// Catalog is the external product-catalog contract. Read-only.
type Catalog interface {
	GetProduct(ctx context.Context, restaurantID, productID string) (*Product, error)
}

// StockLedgerEntry is one signed quantity movement, always linked to
// the journal entry that caused it.
type StockLedgerEntry struct {
	ID             string    `json:"id"`
	RestaurantID   string    `json:"restaurant_id"`
	ProductID      string    `json:"product_id"`
	Delta          int64     `json:"delta"`
	JournalEntryID string    `json:"journal_entry_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// StockStore persists stock movements append-only.
type StockStore interface {
	AppendMovement(ctx context.Context, e *StockLedgerEntry) error
	Movements(ctx context.Context, productID string) ([]StockLedgerEntry, error)
}

// StockLedger exposes the running quantity-on-hand per product. The
// quantity is never stored as a mutable field; it is always the sum
// of recorded deltas, so it cannot drift from the ledger.
type StockLedger struct {
	store StockStore
}

// NewStockLedger creates a stock ledger over a movement store.
func NewStockLedger(store StockStore) *StockLedger {
	return &StockLedger{store: store}
}

// RecordMovement appends a signed quantity delta linked to a posted
// journal entry. Callers are components that post inventory-affecting
// entries; catalog edits never call this.
func (s *StockLedger) RecordMovement(ctx context.Context, restaurantID, productID string, delta int64, journalEntryID string) error {
	if productID == "" {
		return fmt.Errorf("product id is required")
	}
	if delta == 0 {
		return fmt.Errorf("movement delta must be non-zero")
	}
	if journalEntryID == "" {
		return fmt.Errorf("journal entry id is required")
	}
	return s.store.AppendMovement(ctx, &StockLedgerEntry{
		ID:             uuid.NewString(),
		RestaurantID:   restaurantID,
		ProductID:      productID,
		Delta:          delta,
		JournalEntryID: journalEntryID,
		OccurredAt:     time.Now().UTC(),
	})
}

// CurrentQuantity returns the on-hand quantity for a product as the
// running sum of its movement deltas.
func (s *StockLedger) CurrentQuantity(ctx context.Context, productID string) (int64, error) {
	moves, err := s.store.Movements(ctx, productID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range moves {
		total += m.Delta
	}
	return total, nil
}

// Movements returns the full movement history for a product.
func (s *StockLedger) Movements(ctx context.Context, productID string) ([]StockLedgerEntry, error) {
	return s.store.Movements(ctx, productID)
}
