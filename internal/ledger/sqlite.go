package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore is an embedded Store for single-node deployments,
// backed by database/sql with the mattn/go-sqlite3 driver. SQLite
// serializes writers, so each append commits atomically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open sqlite database and creates the ledger
// tables if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (restaurant_id, code)
	);
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		seq INTEGER,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS journal_entries_source_uniq
		ON journal_entries (restaurant_id, source, source_id)
		WHERE source_id <> '';
	CREATE TABLE IF NOT EXISTS journal_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL REFERENCES journal_entries(id),
		line_no INTEGER NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		side TEXT NOT NULL,
		amount TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS journal_lines_account_idx ON journal_lines (account_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, restaurant_id, code, name, account_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.RestaurantID, a.Code, a.Name, string(a.Type), a.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("account code %s already exists", a.Code)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, restaurantID, code string) (*Account, error) {
	return s.scanAccount(ctx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE restaurant_id = ? AND code = ?
	`, restaurantID, code)
}

func (s *SQLiteStore) AccountByID(ctx context.Context, id string) (*Account, error) {
	return s.scanAccount(ctx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE id = ?
	`, id)
}

func (s *SQLiteStore) scanAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	var a Account
	var typ string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.RestaurantID, &a.Code, &a.Name, &typ, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Type = AccountType(typ)
	return &a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, restaurantID string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restaurant_id, code, name, account_type, created_at
		FROM accounts WHERE restaurant_id = ? ORDER BY code
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

func (s *SQLiteStore) AppendEntry(ctx context.Context, e *JournalEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if e.SourceID != "" {
		var existingID string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM journal_entries
			WHERE restaurant_id = ? AND source = ? AND source_id = ?
		`, e.RestaurantID, string(e.Source), e.SourceID).Scan(&existingID)
		if err == nil {
			return &DuplicateEntryError{Source: e.Source, SourceID: e.SourceID, ExistingID: existingID}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check source uniqueness: %w", err)
		}
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM journal_entries`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}
	e.Seq = maxSeq.Int64 + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journal_entries (id, restaurant_id, occurred_at, source, source_id, description, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RestaurantID, e.OccurredAt, string(e.Source), e.SourceID, e.Description, e.Seq, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	for i, l := range e.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_lines (entry_id, line_no, account_id, side, amount, memo)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, i, l.AccountID, string(l.Side), l.Amount.String(), l.Memo)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEntry(ctx context.Context, restaurantID, id string) (*JournalEntry, error) {
	var e JournalEntry
	var source string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, occurred_at, source, source_id, description, seq, created_at
		FROM journal_entries WHERE restaurant_id = ? AND id = ?
	`, restaurantID, id).Scan(&e.ID, &e.RestaurantID, &e.OccurredAt, &source, &e.SourceID, &e.Description, &e.Seq, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	e.Source = SourceType(source)

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, side, amount, memo
		FROM journal_lines WHERE entry_id = ? ORDER BY line_no
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

func (s *SQLiteStore) FindBySource(ctx context.Context, restaurantID string, source SourceType, sourceID string) (*JournalEntry, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM journal_entries
		WHERE restaurant_id = ? AND source = ? AND source_id = ?
	`, restaurantID, string(source), sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entry by source: %w", err)
	}
	return s.GetEntry(ctx, restaurantID, id)
}

func (s *SQLiteStore) Lines(ctx context.Context, restaurantID string, f LineFilter) ([]PostedLine, error) {
	query := `
		SELECT je.id, je.seq, je.occurred_at, je.source,
		       a.id, a.code, a.account_type,
		       jl.side, jl.amount
		FROM journal_lines jl
		JOIN journal_entries je ON jl.entry_id = je.id
		JOIN accounts a ON jl.account_id = a.id
		WHERE je.restaurant_id = ?
	`
	args := []any{restaurantID}

	addIn := func(column string, values []string) {
		query += " AND " + column + " IN (?" + strings.Repeat(",?", len(values)-1) + ")"
		for _, v := range values {
			args = append(args, v)
		}
	}

	if len(f.AccountTypes) > 0 {
		types := make([]string, len(f.AccountTypes))
		for i, t := range f.AccountTypes {
			types[i] = string(t)
		}
		addIn("a.account_type", types)
	}
	if len(f.AccountCodes) > 0 {
		addIn("a.code", f.AccountCodes)
	}
	if len(f.Sources) > 0 {
		sources := make([]string, len(f.Sources))
		for i, src := range f.Sources {
			sources[i] = string(src)
		}
		addIn("je.source", sources)
	}
	if !f.Period.Start.IsZero() {
		query += " AND je.occurred_at >= ?"
		args = append(args, f.Period.Start)
	}
	if !f.Period.End.IsZero() {
		query += " AND je.occurred_at < ?"
		args = append(args, f.Period.End)
	}

	query += " ORDER BY je.occurred_at, je.seq, jl.line_no"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// OpenSQLite opens (or creates) a sqlite database file suitable for
// the embedded store.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}
