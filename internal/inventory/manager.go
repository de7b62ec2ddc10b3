package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
)

// Manager coordinates reconciliation sessions: it snapshots the
// system quantity at start, computes the variance on review, and on
// confirmation posts the adjusting journal entry and stock movement.
type Manager struct {
	sessions SessionStore
	stock    *StockLedger
	ledger   *ledger.Service
	catalog  Catalog
	logger   *slog.Logger
}

// NewManager creates a reconciliation session manager. logger may be nil.
func NewManager(sessions SessionStore, stock *StockLedger, ls *ledger.Service, catalog Catalog, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{sessions: sessions, stock: stock, ledger: ls, catalog: catalog, logger: logger}
}

// StartCount opens a new counting session for a product, freezing the
// current system quantity as the snapshot. At most one open session
// may exist per product; a second start fails with
// *SessionConflictError rather than queuing.
func (m *Manager) StartCount(ctx context.Context, restaurantID, productID string) (*Session, error) {
	if restaurantID == "" || productID == "" {
		return nil, fmt.Errorf("restaurant id and product id are required")
	}
	if _, err := m.catalog.GetProduct(ctx, restaurantID, productID); err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}

	snapshot, err := m.stock.CurrentQuantity(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot system quantity: %w", err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		ProductID:    productID,
		State:        StateCountingInProgress,
		SnapshotQty:  snapshot,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.sessions.CreateSession(ctx, s); err != nil {
		var conflict *SessionConflictError
		if errors.As(err, &conflict) && conflict.SessionID == "" {
			if open, lookupErr := m.sessions.OpenSessionForProduct(ctx, productID); lookupErr == nil && open != nil {
				conflict.SessionID = open.ID
			}
		}
		return nil, err
	}

	m.logger.Info("count_session_started",
		"session_id", s.ID,
		"product_id", productID,
		"snapshot_qty", snapshot,
	)
	return s, nil
}

// SubmitCount records the physically counted quantity and moves the
// session to ReviewPending. Submitting while already in ReviewPending
// is a re-count and replaces the previous value. Lost version races
// surface as *SessionConflictError.
func (m *Manager) SubmitCount(ctx context.Context, sessionID string, counted int64) (*Session, error) {
	if counted < 0 {
		return nil, fmt.Errorf("counted quantity must not be negative, got %d", counted)
	}
	s, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != StateCountingInProgress && s.State != StateReviewPending {
		return nil, &InvalidStateError{SessionID: s.ID, State: s.State, Operation: "submit_count"}
	}

	expected := s.Version
	s.CountedQty = &counted
	s.State = StateReviewPending
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	if err := m.sessions.UpdateSession(ctx, s, expected); err != nil {
		return nil, err
	}

	m.logger.Info("count_submitted",
		"session_id", s.ID,
		"product_id", s.ProductID,
		"counted_qty", counted,
		"variance", s.Variance(),
	)
	return s, nil
}

// Recount returns a ReviewPending session to CountingInProgress,
// discarding the submitted value.
func (m *Manager) Recount(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(s.State, StateCountingInProgress) {
		return nil, &InvalidStateError{SessionID: s.ID, State: s.State, Operation: "recount"}
	}

	expected := s.Version
	s.CountedQty = nil
	s.State = StateCountingInProgress
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	if err := m.sessions.UpdateSession(ctx, s, expected); err != nil {
		return nil, err
	}
	return s, nil
}

// Confirm commits a ReviewPending session. The Confirmed transition is
// claimed first under the session's version, so a lost race leaves the
// ledger and stock untouched; only the claiming writer goes on to post
// the variance adjustment and record the stock movement. Returns the
// adjustment entry id, or "" when the variance was zero and no
// adjustment was needed.
func (m *Manager) Confirm(ctx context.Context, sessionID string) (string, error) {
	s, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	// A Confirmed session with a non-zero variance but no entry id was
	// interrupted after the claim; re-running resumes the posting step.
	if s.State == StateConfirmed && s.JournalEntryID == "" && s.Variance() != 0 {
		return m.settleAdjustment(ctx, s)
	}
	if !IsValidTransition(s.State, StateConfirmed) {
		return "", &InvalidStateError{SessionID: s.ID, State: s.State, Operation: "confirm"}
	}
	if s.CountedQty == nil {
		return "", &InvalidStateError{SessionID: s.ID, State: s.State, Operation: "confirm"}
	}

	variance := s.Variance()
	if variance != 0 {
		// Validate catalog and account preconditions before claiming,
		// so a claimed session cannot fail on them afterwards.
		if _, err := m.planAdjustment(ctx, s); err != nil {
			return "", err
		}
	}

	expected := s.Version
	s.State = StateConfirmed
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	if err := m.sessions.UpdateSession(ctx, s, expected); err != nil {
		return "", err
	}

	if variance == 0 {
		m.logger.Info("reconciliation_confirmed",
			"session_id", s.ID,
			"product_id", s.ProductID,
			"variance", int64(0),
			"entry_id", "",
		)
		return "", nil
	}
	return m.settleAdjustment(ctx, s)
}

// adjustmentPlan is the resolved two-line variance entry for a session:
// overage debits Inventory Asset and credits Inventory Adjustment,
// shortage the reverse, both for |variance| × unit cost.
type adjustmentPlan struct {
	variance  int64
	amount    decimal.Decimal
	assetSide ledger.Side
	adjSide   ledger.Side
	asset     *ledger.Account
	adjust    *ledger.Account
	product   *Product
}

func (m *Manager) planAdjustment(ctx context.Context, s *Session) (*adjustmentPlan, error) {
	product, err := m.catalog.GetProduct(ctx, s.RestaurantID, s.ProductID)
	if err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	if !product.UnitCost.IsPositive() {
		return nil, fmt.Errorf("cannot value variance for product %s: unit cost %s", s.ProductID, product.UnitCost)
	}

	store := m.ledger.Store()
	asset, err := store.GetAccount(ctx, s.RestaurantID, ledger.CodeInventoryAsset)
	if err != nil {
		return nil, fmt.Errorf("inventory asset account: %w", err)
	}
	adjust, err := store.GetAccount(ctx, s.RestaurantID, ledger.CodeInventoryAdjustment)
	if err != nil {
		return nil, fmt.Errorf("inventory adjustment account: %w", err)
	}

	variance := s.Variance()
	magnitude := variance
	if magnitude < 0 {
		magnitude = -magnitude
	}
	assetSide, adjSide := ledger.Debit, ledger.Credit
	if variance < 0 {
		assetSide, adjSide = ledger.Credit, ledger.Debit
	}
	return &adjustmentPlan{
		variance:  variance,
		amount:    product.UnitCost.Mul(decimal.NewFromInt(magnitude)),
		assetSide: assetSide,
		adjSide:   adjSide,
		asset:     asset,
		adjust:    adjust,
		product:   product,
	}, nil
}

// settleAdjustment runs the posting step for a claimed session. Each
// step is idempotent against an interrupted earlier attempt: a
// duplicate-source post resolves to the existing entry, and the stock
// movement is skipped when one already references that entry.
func (m *Manager) settleAdjustment(ctx context.Context, s *Session) (string, error) {
	plan, err := m.planAdjustment(ctx, s)
	if err != nil {
		return "", err
	}

	entry := &ledger.JournalEntry{
		RestaurantID: s.RestaurantID,
		Source:       ledger.SourceReconciliation,
		SourceID:     s.ID,
		Description:  fmt.Sprintf("stock variance %+d for %s (%s)", plan.variance, plan.product.Name, plan.product.SKU),
		Lines: []ledger.Line{
			{AccountID: plan.asset.ID, Side: plan.assetSide, Amount: plan.amount, Memo: "physical count adjustment"},
			{AccountID: plan.adjust.ID, Side: plan.adjSide, Amount: plan.amount, Memo: "physical count adjustment"},
		},
	}
	entryID, err := m.ledger.Post(ctx, entry)
	if err != nil {
		var dup *ledger.DuplicateEntryError
		if !errors.As(err, &dup) {
			return "", fmt.Errorf("failed to post adjustment entry: %w", err)
		}
		entryID = dup.ExistingID
	}

	recorded, err := m.movementRecorded(ctx, s.ProductID, entryID)
	if err != nil {
		return "", fmt.Errorf("failed to check stock movements: %w", err)
	}
	if !recorded {
		if err := m.stock.RecordMovement(ctx, s.RestaurantID, s.ProductID, plan.variance, entryID); err != nil {
			return "", fmt.Errorf("failed to record stock movement: %w", err)
		}
	}

	expected := s.Version
	s.JournalEntryID = entryID
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	if err := m.sessions.UpdateSession(ctx, s, expected); err != nil {
		return "", err
	}

	m.logger.Info("reconciliation_confirmed",
		"session_id", s.ID,
		"product_id", s.ProductID,
		"variance", plan.variance,
		"entry_id", entryID,
	)
	return entryID, nil
}

func (m *Manager) movementRecorded(ctx context.Context, productID, journalEntryID string) (bool, error) {
	moves, err := m.stock.Movements(ctx, productID)
	if err != nil {
		return false, err
	}
	for _, mv := range moves {
		if mv.JournalEntryID == journalEntryID {
			return true, nil
		}
	}
	return false, nil
}

// Cancel discards a non-terminal session with no ledger effect.
func (m *Manager) Cancel(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(s.State, StateCancelled) {
		return nil, &InvalidStateError{SessionID: s.ID, State: s.State, Operation: "cancel"}
	}

	expected := s.Version
	s.State = StateCancelled
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	if err := m.sessions.UpdateSession(ctx, s, expected); err != nil {
		return nil, err
	}

	m.logger.Info("count_session_cancelled", "session_id", s.ID, "product_id", s.ProductID)
	return s, nil
}

// GetSession returns a session by id.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return m.sessions.GetSession(ctx, sessionID)
}

// History returns the archived terminal sessions for a product.
func (m *Manager) History(ctx context.Context, productID string) ([]*Session, error) {
	return m.sessions.History(ctx, productID)
}
