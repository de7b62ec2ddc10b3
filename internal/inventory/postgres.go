package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStockStore persists stock movements in PostgreSQL.
type PostgresStockStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStockStore creates a PostgreSQL-backed stock store.
func NewPostgresStockStore(pool *pgxpool.Pool) *PostgresStockStore {
	return &PostgresStockStore{Pool: pool}
}

// Migrate creates the stock movement table if it does not exist.
func (ps *PostgresStockStore) Migrate(ctx context.Context) error {
	_, err := ps.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stock_movements (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			delta BIGINT NOT NULL,
			journal_entry_id TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS stock_movements_product_idx ON stock_movements (product_id);
	`)
	if err != nil {
		return fmt.Errorf("stock migration failed: %w", err)
	}
	return nil
}

func (ps *PostgresStockStore) AppendMovement(ctx context.Context, e *StockLedgerEntry) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := ps.Pool.Exec(queryCtx, `
		INSERT INTO stock_movements (id, restaurant_id, product_id, delta, journal_entry_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.RestaurantID, e.ProductID, e.Delta, e.JournalEntryID, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}
	return nil
}

func (ps *PostgresStockStore) Movements(ctx context.Context, productID string) ([]StockLedgerEntry, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT id, restaurant_id, product_id, delta, journal_entry_id, occurred_at
		FROM stock_movements WHERE product_id = $1 ORDER BY occurred_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var out []StockLedgerEntry
	for rows.Next() {
		var e StockLedgerEntry
		if err := rows.Scan(&e.ID, &e.RestaurantID, &e.ProductID, &e.Delta, &e.JournalEntryID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresSessionStore persists reconciliation sessions. A partial
// unique index on open sessions backs the one-open-session-per-product
// lock, and version-guarded updates back optimistic concurrency.
type PostgresSessionStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresSessionStore creates a PostgreSQL-backed session store.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{Pool: pool}
}

// Migrate creates the session table if it does not exist.
func (ps *PostgresSessionStore) Migrate(ctx context.Context) error {
	_, err := ps.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_sessions (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			state TEXT NOT NULL,
			snapshot_qty BIGINT NOT NULL,
			counted_qty BIGINT,
			journal_entry_id TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS reconciliation_sessions_open_uniq
			ON reconciliation_sessions (product_id)
			WHERE state IN ('counting_in_progress', 'review_pending');
	`)
	if err != nil {
		return fmt.Errorf("session migration failed: %w", err)
	}
	return nil
}

func (ps *PostgresSessionStore) CreateSession(ctx context.Context, s *Session) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := ps.Pool.Exec(queryCtx, `
		INSERT INTO reconciliation_sessions
			(id, restaurant_id, product_id, state, snapshot_qty, counted_qty, journal_entry_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.RestaurantID, s.ProductID, string(s.State), s.SnapshotQty, s.CountedQty, s.JournalEntryID, s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &SessionConflictError{ProductID: s.ProductID, Reason: "count already in progress"}
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (ps *PostgresSessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := scanSession(ps.Pool.QueryRow(queryCtx, `
		SELECT id, restaurant_id, product_id, state, snapshot_qty, counted_qty, journal_entry_id, version, created_at, updated_at
		FROM reconciliation_sessions WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (ps *PostgresSessionStore) UpdateSession(ctx context.Context, s *Session, expectedVersion int64) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := ps.Pool.Exec(queryCtx, `
		UPDATE reconciliation_sessions
		SET state = $1, counted_qty = $2, journal_entry_id = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7
	`, string(s.State), s.CountedQty, s.JournalEntryID, s.Version, s.UpdatedAt, s.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := ps.Pool.QueryRow(queryCtx,
			`SELECT EXISTS(SELECT 1 FROM reconciliation_sessions WHERE id = $1)`, s.ID).Scan(&exists); err == nil && !exists {
			return ErrSessionNotFound
		}
		return &SessionConflictError{ProductID: s.ProductID, SessionID: s.ID, Reason: "session was modified concurrently"}
	}
	return nil
}

func (ps *PostgresSessionStore) OpenSessionForProduct(ctx context.Context, productID string) (*Session, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := scanSession(ps.Pool.QueryRow(queryCtx, `
		SELECT id, restaurant_id, product_id, state, snapshot_qty, counted_qty, journal_entry_id, version, created_at, updated_at
		FROM reconciliation_sessions
		WHERE product_id = $1 AND state IN ('counting_in_progress', 'review_pending')
	`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	return s, nil
}

func (ps *PostgresSessionStore) History(ctx context.Context, productID string) ([]*Session, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT id, restaurant_id, product_id, state, snapshot_qty, counted_qty, journal_entry_id, version, created_at, updated_at
		FROM reconciliation_sessions
		WHERE product_id = $1 AND state IN ('confirmed', 'cancelled')
		ORDER BY updated_at
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var state string
	err := row.Scan(&s.ID, &s.RestaurantID, &s.ProductID, &state, &s.SnapshotQty, &s.CountedQty, &s.JournalEntryID, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.State = SessionState(state)
	return &s, nil
}
