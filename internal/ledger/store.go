package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LineFilter selects posted lines for read-side queries. Empty slices
// match everything.
type LineFilter struct {
	AccountTypes []AccountType
	AccountCodes []string
	Sources      []SourceType
	Period       Period
}

func (f LineFilter) matchType(t AccountType) bool {
	if len(f.AccountTypes) == 0 {
		return true
	}
	for _, ft := range f.AccountTypes {
		if ft == t {
			return true
		}
	}
	return false
}

func (f LineFilter) matchCode(code string) bool {
	if len(f.AccountCodes) == 0 {
		return true
	}
	for _, c := range f.AccountCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (f LineFilter) matchSource(s SourceType) bool {
	if len(f.Sources) == 0 {
		return true
	}
	for _, fs := range f.Sources {
		if fs == s {
			return true
		}
	}
	return false
}

// PostedLine is a journal line joined with its entry and account,
// as returned by Store.Lines.
type PostedLine struct {
	EntryID     string          `json:"entry_id"`
	EntrySeq    int64           `json:"entry_seq"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Source      SourceType      `json:"source"`
	AccountID   string          `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountType AccountType     `json:"account_type"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
}

// Signed returns the line amount signed relative to the account's
// normal balance side.
func (l PostedLine) Signed() decimal.Decimal {
	if l.Side == l.AccountType.NormalSide() {
		return l.Amount
	}
	return l.Amount.Neg()
}

// Store is the append-only persistence contract for accounts and
// journal entries. Implementations must make AppendEntry atomic: a
// reader never observes a partially written entry, and a successful
// append is visible to all subsequent reads.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, restaurantID, code string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context, restaurantID string) ([]*Account, error)

	// AppendEntry persists the entry and assigns its insertion
	// sequence. Returns *DuplicateEntryError when an entry with the
	// same (restaurant, source, source_id) already exists.
	AppendEntry(ctx context.Context, e *JournalEntry) error
	GetEntry(ctx context.Context, restaurantID, id string) (*JournalEntry, error)
	// FindBySource returns the entry generated from the given source
	// document, or nil when none exists.
	FindBySource(ctx context.Context, restaurantID string, source SourceType, sourceID string) (*JournalEntry, error)

	// Lines returns posted lines matching the filter, ordered by
	// occurrence time with ties broken by insertion sequence.
	Lines(ctx context.Context, restaurantID string, f LineFilter) ([]PostedLine, error)
}
