package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account for statement compilation.
type AccountType string

const (
	TypeAsset         AccountType = "asset"
	TypeLiability     AccountType = "liability"
	TypeRevenue       AccountType = "revenue"
	TypeContraRevenue AccountType = "contra_revenue"
	TypeCOGS          AccountType = "cogs"
	TypeExpense       AccountType = "expense"
)

// Side is the debit or credit side of a journal line.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// NormalSide returns the side on which the account type carries a
// positive balance.
func (t AccountType) NormalSide() Side {
	switch t {
	case TypeAsset, TypeExpense, TypeCOGS, TypeContraRevenue:
		return Debit
	default:
		return Credit
	}
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeRevenue, TypeContraRevenue, TypeCOGS, TypeExpense:
		return true
	}
	return false
}

// Account is a ledger account. Accounts are immutable once created.
type Account struct {
	ID           string      `json:"id"`
	RestaurantID string      `json:"restaurant_id"`
	Code         string      `json:"code"`
	Name         string      `json:"name"`
	Type         AccountType `json:"type"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SourceType tags the origin of a journal entry.
type SourceType string

const (
	SourcePOSSale        SourceType = "pos_sale"
	SourceManual         SourceType = "manual"
	SourceReconciliation SourceType = "reconciliation_adjustment"
	SourceReversal       SourceType = "reversal"
)

// Line is a single debit or credit against an account. Amount is
// always positive; the side carries the sign.
type Line struct {
	AccountID string          `json:"account_id"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
}

// JournalEntry is a balanced set of lines posted atomically. Entries
// are immutable once posted; corrections are new reversing entries.
type JournalEntry struct {
	ID           string     `json:"id"`
	RestaurantID string     `json:"restaurant_id"`
	OccurredAt   time.Time  `json:"occurred_at"`
	Source       SourceType `json:"source"`
	// SourceID is the external identifier this entry was generated
	// from (POS transaction id, reconciliation session id). At most
	// one entry per (restaurant, source, source_id) may exist.
	SourceID    string    `json:"source_id,omitempty"`
	Description string    `json:"description"`
	Lines       []Line    `json:"lines"`
	Seq         int64     `json:"seq"`
	CreatedAt   time.Time `json:"created_at"`
}

// Totals returns the debit and credit sums across all lines.
func (e *JournalEntry) Totals() (debits, credits decimal.Decimal) {
	for _, l := range e.Lines {
		switch l.Side {
		case Debit:
			debits = debits.Add(l.Amount)
		case Credit:
			credits = credits.Add(l.Amount)
		}
	}
	return debits, credits
}

// Balanced reports whether debit and credit totals are equal.
func (e *JournalEntry) Balanced() bool {
	d, c := e.Totals()
	return d.Equal(c)
}

// Period is a half-open time interval [Start, End). A zero bound
// leaves that end of the interval unbounded.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}
