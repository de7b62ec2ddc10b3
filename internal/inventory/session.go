package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a referenced session does not exist.
var ErrSessionNotFound = errors.New("reconciliation session not found")

// ErrProductNotFound is returned by catalog lookups for unknown products.
var ErrProductNotFound = errors.New("product not found")

// SessionState is the explicit workflow state of a reconciliation
// session. The UI step is never trusted; transition functions reject
// out-of-order calls.
type SessionState string

const (
	StateCountingInProgress SessionState = "counting_in_progress"
	StateReviewPending      SessionState = "review_pending"
	StateConfirmed          SessionState = "confirmed"
	StateCancelled          SessionState = "cancelled"
)

// AllowedTransitions defines the valid session state transitions.
// Confirmed and Cancelled are terminal.
func AllowedTransitions() map[SessionState][]SessionState {
	return map[SessionState][]SessionState{
		StateCountingInProgress: {StateReviewPending, StateCancelled},
		StateReviewPending:      {StateCountingInProgress, StateConfirmed, StateCancelled},
		StateConfirmed:          {},
		StateCancelled:          {},
	}
}

// IsValidTransition reports whether from → to is an allowed transition.
func IsValidTransition(from, to SessionState) bool {
	for _, s := range AllowedTransitions()[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one physical-count workflow instance for a product. The
// system quantity is snapshotted at start and frozen; the variance is
// always counted − snapshot, never stored independently.
type Session struct {
	ID           string       `json:"id"`
	RestaurantID string       `json:"restaurant_id"`
	ProductID    string       `json:"product_id"`
	State        SessionState `json:"state"`
	SnapshotQty  int64        `json:"snapshot_qty"`
	CountedQty   *int64       `json:"counted_qty,omitempty"`
	// JournalEntryID is set only on confirmation.
	JournalEntryID string    `json:"journal_entry_id,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Variance returns counted − snapshot. Zero until a count is entered.
func (s *Session) Variance() int64 {
	if s.CountedQty == nil {
		return 0
	}
	return *s.CountedQty - s.SnapshotQty
}

// Terminal reports whether the session has reached a final state.
func (s *Session) Terminal() bool {
	return s.State == StateConfirmed || s.State == StateCancelled
}

// SessionConflictError reports a concurrent-session conflict: a second
// open session for the same product, or a lost optimistic-version
// race. User-retryable.
type SessionConflictError struct {
	ProductID string
	SessionID string
	Reason    string
}

func (e *SessionConflictError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session conflict on %s: %s", e.SessionID, e.Reason)
	}
	return fmt.Sprintf("session conflict for product %s: %s", e.ProductID, e.Reason)
}

// InvalidStateError reports an operation attempted outside its allowed
// state-machine transition. A usage error; not retryable.
type InvalidStateError struct {
	SessionID string
	State     SessionState
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid operation %s for session %s in state %s", e.Operation, e.SessionID, e.State)
}

// SessionStore persists reconciliation sessions. CreateSession must
// enforce at most one non-terminal session per product, failing fast
// with *SessionConflictError rather than queuing; UpdateSession must
// reject a stale expected version the same way.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session, expectedVersion int64) error
	OpenSessionForProduct(ctx context.Context, productID string) (*Session, error)
	History(ctx context.Context, productID string) ([]*Session, error)
}
