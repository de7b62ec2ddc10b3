package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toyiyo/nimble-pnl-sub016/pkg/audit"
)

// Auditor receives a record of every successful post.
type Auditor interface {
	Append(payload string) *audit.LogEntry
}

// Service provides the high-level double-entry API over a Store.
type Service struct {
	store   Store
	logger  *slog.Logger
	auditor Auditor
}

// NewService creates a ledger service. logger may be nil.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// SetAuditor attaches a tamper-evident audit sink for posted entries.
func (s *Service) SetAuditor(a Auditor) { s.auditor = a }

// Store exposes the underlying store for read-side collaborators.
func (s *Service) Store() Store { return s.store }

// CreateAccount validates and creates an immutable account.
func (s *Service) CreateAccount(ctx context.Context, a *Account) (*Account, error) {
	if a.RestaurantID == "" {
		return nil, fmt.Errorf("restaurant id is required")
	}
	if a.Code == "" || a.Name == "" {
		return nil, fmt.Errorf("account code and name are required")
	}
	if !a.Type.Valid() {
		return nil, fmt.Errorf("invalid account type: %s", a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}

// Post validates and appends a journal entry atomically. The entry is
// rejected with *BalanceError when debit and credit totals differ, and
// with *DuplicateEntryError when its source document was already
// posted. On success the assigned entry id is returned.
func (s *Service) Post(ctx context.Context, e *JournalEntry) (string, error) {
	if e.RestaurantID == "" {
		return "", fmt.Errorf("restaurant id is required")
	}
	if len(e.Lines) < 2 {
		return "", fmt.Errorf("journal entry requires at least two lines, got %d", len(e.Lines))
	}
	for i, l := range e.Lines {
		if l.Side != Debit && l.Side != Credit {
			return "", fmt.Errorf("line %d: invalid side %q", i, l.Side)
		}
		if !l.Amount.IsPositive() {
			return "", fmt.Errorf("line %d: amount must be positive, got %s", i, l.Amount)
		}
		acct, err := s.store.AccountByID(ctx, l.AccountID)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i, err)
		}
		if acct.RestaurantID != e.RestaurantID {
			return "", fmt.Errorf("line %d: account %s belongs to another restaurant", i, l.AccountID)
		}
	}

	debits, credits := e.Totals()
	if !debits.Equal(credits) {
		return "", &BalanceError{Debits: debits, Credits: credits}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.Source == "" {
		e.Source = SourceManual
	}

	if err := s.store.AppendEntry(ctx, e); err != nil {
		return "", err
	}

	s.logger.Info("journal_entry_posted",
		"entry_id", e.ID,
		"restaurant_id", e.RestaurantID,
		"source", string(e.Source),
		"lines", len(e.Lines),
		"amount", debits.String(),
	)
	if s.auditor != nil {
		s.auditor.Append(fmt.Sprintf("post entry=%s restaurant=%s source=%s amount=%s", e.ID, e.RestaurantID, e.Source, debits))
	}
	return e.ID, nil
}

// Reverse posts a mirror-image entry for a previously posted entry.
// The original is never modified.
func (s *Service) Reverse(ctx context.Context, restaurantID, entryID, reason string) (*JournalEntry, error) {
	orig, err := s.store.GetEntry(ctx, restaurantID, entryID)
	if err != nil {
		return nil, err
	}

	rev := &JournalEntry{
		RestaurantID: orig.RestaurantID,
		Source:       SourceReversal,
		SourceID:     orig.ID,
		Description:  fmt.Sprintf("reversal of %s: %s", orig.ID, reason),
		Lines:        make([]Line, len(orig.Lines)),
	}
	for i, l := range orig.Lines {
		side := Credit
		if l.Side == Credit {
			side = Debit
		}
		rev.Lines[i] = Line{AccountID: l.AccountID, Side: side, Amount: l.Amount, Memo: l.Memo}
	}

	if _, err := s.Post(ctx, rev); err != nil {
		var dup *DuplicateEntryError
		if errors.As(err, &dup) {
			return nil, fmt.Errorf("entry %s already reversed by %s: %w", orig.ID, dup.ExistingID, dup)
		}
		return nil, err
	}
	return rev, nil
}

// Query returns posted lines matching the filter, ordered by
// occurrence time then insertion sequence.
func (s *Service) Query(ctx context.Context, restaurantID string, f LineFilter) ([]PostedLine, error) {
	return s.store.Lines(ctx, restaurantID, f)
}

// AccountBalance returns the signed balance of one account over the
// period, positive on the account's normal side.
func (s *Service) AccountBalance(ctx context.Context, restaurantID, code string, p Period) (decimal.Decimal, error) {
	if _, err := s.store.GetAccount(ctx, restaurantID, code); err != nil {
		return decimal.Zero, err
	}
	lines, err := s.store.Lines(ctx, restaurantID, LineFilter{AccountCodes: []string{code}, Period: p})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Signed())
	}
	return total, nil
}

// CheckBalance verifies that total debits equal total credits across
// the whole ledger for a restaurant.
func (s *Service) CheckBalance(ctx context.Context, restaurantID string) (debits, credits decimal.Decimal, err error) {
	lines, err := s.store.Lines(ctx, restaurantID, LineFilter{})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	for _, l := range lines {
		switch l.Side {
		case Debit:
			debits = debits.Add(l.Amount)
		case Credit:
			credits = credits.Add(l.Amount)
		}
	}
	return debits, credits, nil
}
