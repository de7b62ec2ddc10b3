package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEntryNotFound is returned when a referenced journal entry does not exist.
	ErrEntryNotFound = errors.New("journal entry not found")
)

// BalanceError reports a journal entry whose debit and credit totals
// differ. Such an entry is rejected and never persisted; it indicates
// a defect in the producer, not a retryable condition.
type BalanceError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("unbalanced journal entry: debits %s != credits %s", e.Debits, e.Credits)
}

// DuplicateEntryError reports an append that collides with an entry
// already posted for the same (source, source_id). Idempotent
// producers treat this as a no-op.
type DuplicateEntryError struct {
	Source     SourceType
	SourceID   string
	ExistingID string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("journal entry for %s %q already posted as %s", e.Source, e.SourceID, e.ExistingID)
}
