package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore is the production Store backed by PostgreSQL. Appends
// run in SERIALIZABLE transactions and retry on serialization failure.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// Migrate creates the ledger tables if they do not exist.
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			account_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (restaurant_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			seq BIGSERIAL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS journal_entries_source_uniq
			ON journal_entries (restaurant_id, source, source_id)
			WHERE source_id <> ''`,
		`CREATE TABLE IF NOT EXISTS journal_lines (
			id BIGSERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL REFERENCES journal_entries(id),
			line_no INT NOT NULL,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			side TEXT NOT NULL,
			amount NUMERIC(20,6) NOT NULL,
			memo TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS journal_lines_account_idx ON journal_lines (account_id)`,
	}
	for _, stmt := range stmts {
		if _, err := ps.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (ps *PostgresStore) CreateAccount(ctx context.Context, a *Account) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := ps.Pool.Exec(queryCtx, `
		INSERT INTO accounts (id, restaurant_id, code, name, account_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.RestaurantID, a.Code, a.Name, string(a.Type), a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("account code %s already exists", a.Code)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetAccount(ctx context.Context, restaurantID, code string) (*Account, error) {
	return ps.scanAccount(ctx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE restaurant_id = $1 AND code = $2
	`, restaurantID, code)
}

func (ps *PostgresStore) AccountByID(ctx context.Context, id string) (*Account, error) {
	return ps.scanAccount(ctx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE id = $1
	`, id)
}

func (ps *PostgresStore) scanAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var a Account
	var typ string
	err := ps.Pool.QueryRow(queryCtx, query, args...).Scan(
		&a.ID, &a.RestaurantID, &a.Code, &a.Name, &typ, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Type = AccountType(typ)
	return &a, nil
}

func (ps *PostgresStore) ListAccounts(ctx context.Context, restaurantID string) ([]*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE restaurant_id = $1 ORDER BY code
	`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		var a Account
		var typ string
		if err := rows.Scan(&a.ID, &a.RestaurantID, &a.Code, &a.Name, &typ, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = AccountType(typ)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AppendEntry persists the entry atomically. The write runs under
// SERIALIZABLE isolation so concurrent appends never interleave, and
// retries up to three times on serialization failure.
func (ps *PostgresStore) AppendEntry(ctx context.Context, e *JournalEntry) error {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := ps.appendEntryOnce(ctx, e)
		if err != nil {
			var dup *DuplicateEntryError
			if errors.As(err, &dup) {
				return err
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "40001" {
				if attempt == maxRetries-1 {
					return fmt.Errorf("failed to append entry after %d retries due to serialization failure: %w", maxRetries, err)
				}
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
		break
	}
	return nil
}

func (ps *PostgresStore) appendEntryOnce(ctx context.Context, e *JournalEntry) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := ps.Pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if e.SourceID != "" {
		var existingID string
		err = tx.QueryRow(queryCtx, `
			SELECT id FROM journal_entries
			WHERE restaurant_id = $1 AND source = $2 AND source_id = $3
		`, e.RestaurantID, string(e.Source), e.SourceID).Scan(&existingID)
		if err == nil {
			return &DuplicateEntryError{Source: e.Source, SourceID: e.SourceID, ExistingID: existingID}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check source uniqueness: %w", err)
		}
	}

	err = tx.QueryRow(queryCtx, `
		INSERT INTO journal_entries (id, restaurant_id, occurred_at, source, source_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`, e.ID, e.RestaurantID, e.OccurredAt, string(e.Source), e.SourceID, e.Description, e.CreatedAt).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	for i, l := range e.Lines {
		_, err = tx.Exec(queryCtx, `
			INSERT INTO journal_lines (entry_id, line_no, account_id, side, amount, memo)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.ID, i, l.AccountID, string(l.Side), l.Amount.String(), l.Memo)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", i, err)
		}
	}

	if err := tx.Commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetEntry(ctx context.Context, restaurantID, id string) (*JournalEntry, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var e JournalEntry
	var source string
	err := ps.Pool.QueryRow(queryCtx, `
		SELECT id, restaurant_id, occurred_at, source, source_id, description, seq, created_at
		FROM journal_entries WHERE restaurant_id = $1 AND id = $2
	`, restaurantID, id).Scan(&e.ID, &e.RestaurantID, &e.OccurredAt, &source, &e.SourceID, &e.Description, &e.Seq, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	e.Source = SourceType(source)

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT account_id, side, amount::text, memo
		FROM journal_lines WHERE entry_id = $1 ORDER BY line_no
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		var side, amount string
		if err := rows.Scan(&l.AccountID, &side, &amount, &l.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.Side = Side(side)
		l.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		e.Lines = append(e.Lines, l)
	}
	return &e, rows.Err()
}

func (ps *PostgresStore) FindBySource(ctx context.Context, restaurantID string, source SourceType, sourceID string) (*JournalEntry, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id string
	err := ps.Pool.QueryRow(queryCtx, `
		SELECT id FROM journal_entries
		WHERE restaurant_id = $1 AND source = $2 AND source_id = $3
	`, restaurantID, string(source), sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entry by source: %w", err)
	}
	return ps.GetEntry(ctx, restaurantID, id)
}

func (ps *PostgresStore) Lines(ctx context.Context, restaurantID string, f LineFilter) ([]PostedLine, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT je.id, je.seq, je.occurred_at, je.source,
		       a.id, a.code, a.account_type,
		       jl.side, jl.amount::text
		FROM journal_lines jl
		JOIN journal_entries je ON jl.entry_id = je.id
		JOIN accounts a ON jl.account_id = a.id
		WHERE je.restaurant_id = $1
	`
	args := []any{restaurantID}
	argCount := 2

	if len(f.AccountTypes) > 0 {
		types := make([]string, len(f.AccountTypes))
		for i, t := range f.AccountTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND a.account_type = ANY($%d)", argCount)
		args = append(args, types)
		argCount++
	}
	if len(f.AccountCodes) > 0 {
		query += fmt.Sprintf(" AND a.code = ANY($%d)", argCount)
		args = append(args, f.AccountCodes)
		argCount++
	}
	if len(f.Sources) > 0 {
		sources := make([]string, len(f.Sources))
		for i, src := range f.Sources {
			sources[i] = string(src)
		}
		query += fmt.Sprintf(" AND je.source = ANY($%d)", argCount)
		args = append(args, sources)
		argCount++
	}
	if !f.Period.Start.IsZero() {
		query += fmt.Sprintf(" AND je.occurred_at >= $%d", argCount)
		args = append(args, f.Period.Start)
		argCount++
	}
	if !f.Period.End.IsZero() {
		query += fmt.Sprintf(" AND je.occurred_at < $%d", argCount)
		args = append(args, f.Period.End)
		argCount++
	}

	query += " ORDER BY je.occurred_at, je.seq, jl.line_no"

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var out []PostedLine
	for rows.Next() {
		var l PostedLine
		var source, typ, side, amount string
		if err := rows.Scan(&l.EntryID, &l.EntrySeq, &l.OccurredAt, &source, &l.AccountID, &l.AccountCode, &typ, &side, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.Source = SourceType(source)
		l.AccountType = AccountType(typ)
		l.Side = Side(side)
		l.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
