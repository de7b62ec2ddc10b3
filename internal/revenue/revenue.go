// Package revenue converts raw point-of-sale transactions into
// balanced journal entries.
package revenue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
)

// POSTransaction is one sale delivered by the POS feed. Delivery is
// at-least-once, so ingestion must be idempotent on ID.
type POSTransaction struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	Gross        decimal.Decimal `json:"gross"`
	Tax          decimal.Decimal `json:"tax"`
	Tip          decimal.Decimal `json:"tip"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Recognizer posts one balanced journal entry per POS transaction:
// debit Cash for the full tender, credit Gross Revenue, Sales Tax
// Payable, and Tips Payable for their shares. Net sales is never
// stored; the statement compiler derives it.
type Recognizer struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewRecognizer creates a revenue recognizer. logger may be nil.
func NewRecognizer(ls *ledger.Service, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{ledger: ls, logger: logger}
}

// Ingest posts the journal entry for one POS transaction and returns
// its id. Re-ingesting a transaction id that was already posted is a
// no-op: the existing entry id is returned without error.
func (r *Recognizer) Ingest(ctx context.Context, tx POSTransaction) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("pos transaction id is required")
	}
	if tx.RestaurantID == "" {
		return "", fmt.Errorf("restaurant id is required")
	}
	if !tx.Gross.IsPositive() {
		return "", fmt.Errorf("gross amount must be positive, got %s", tx.Gross)
	}
	if tx.Tax.IsNegative() || tx.Tip.IsNegative() {
		return "", fmt.Errorf("tax and tip amounts must not be negative")
	}

	store := r.ledger.Store()
	cash, err := store.GetAccount(ctx, tx.RestaurantID, ledger.CodeCash)
	if err != nil {
		return "", fmt.Errorf("cash account: %w", err)
	}
	gross, err := store.GetAccount(ctx, tx.RestaurantID, ledger.CodeGrossRevenue)
	if err != nil {
		return "", fmt.Errorf("gross revenue account: %w", err)
	}
	taxPayable, err := store.GetAccount(ctx, tx.RestaurantID, ledger.CodeSalesTaxPayable)
	if err != nil {
		return "", fmt.Errorf("sales tax payable account: %w", err)
	}
	tipsPayable, err := store.GetAccount(ctx, tx.RestaurantID, ledger.CodeTipsPayable)
	if err != nil {
		return "", fmt.Errorf("tips payable account: %w", err)
	}

	tender := tx.Gross.Add(tx.Tax).Add(tx.Tip)
	lines := []ledger.Line{
		{AccountID: cash.ID, Side: ledger.Debit, Amount: tender, Memo: "pos tender"},
		{AccountID: gross.ID, Side: ledger.Credit, Amount: tx.Gross, Memo: "gross revenue"},
	}
	if tx.Tax.IsPositive() {
		lines = append(lines, ledger.Line{AccountID: taxPayable.ID, Side: ledger.Credit, Amount: tx.Tax, Memo: "sales tax"})
	}
	if tx.Tip.IsPositive() {
		lines = append(lines, ledger.Line{AccountID: tipsPayable.ID, Side: ledger.Credit, Amount: tx.Tip, Memo: "tips"})
	}

	entry := &ledger.JournalEntry{
		RestaurantID: tx.RestaurantID,
		OccurredAt:   tx.OccurredAt,
		Source:       ledger.SourcePOSSale,
		SourceID:     tx.ID,
		Description:  fmt.Sprintf("POS sale %s", tx.ID),
		Lines:        lines,
	}

	entryID, err := r.ledger.Post(ctx, entry)
	if err != nil {
		var dup *ledger.DuplicateEntryError
		if errors.As(err, &dup) {
			r.logger.Info("duplicate_pos_ingestion",
				"restaurant_id", tx.RestaurantID,
				"pos_transaction_id", tx.ID,
				"entry_id", dup.ExistingID,
			)
			return dup.ExistingID, nil
		}
		return "", err
	}
	return entryID, nil
}
