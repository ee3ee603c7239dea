// Package sqlite keeps every identity's ledger in one SQLite database. The
// schema is managed by embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"expenses/internal/core"
	"expenses/internal/ledger"
	"expenses/internal/log"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open creates the database file if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id core.Identity) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE name = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: lookup identity %s: %w", ledger.ErrIO, id, err)
	}
	return n > 0, nil
}

func (s *Store) Create(ctx context.Context, id core.Identity) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (name) VALUES (?)`, id.String()); err != nil {
		return fmt.Errorf("%w: create identity %s: %w", ledger.ErrIO, id, err)
	}
	return nil
}

// Load reads the rows of id in insertion order. If any row fails to parse,
// all rows of id are deleted and the result is StatusRecovered.
func (s *Store) Load(ctx context.Context, id core.Identity) (ledger.LoadResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, category, amount, currency, description
		FROM expenses
		WHERE identity = ?
		ORDER BY id`, id.String())
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: query expenses of %s: %w", ledger.ErrIO, id, err)
	}
	defer rows.Close()

	var (
		records []core.Record
		bad     error
	)
	for rows.Next() {
		var rowID int64
		var date, category, amount, cur, descr string
		if err := rows.Scan(&rowID, &date, &category, &amount, &cur, &descr); err != nil {
			return ledger.LoadResult{}, fmt.Errorf("%w: scan expense: %w", ledger.ErrIO, err)
		}
		r, err := decodeRow(date, category, amount, cur, descr)
		if err != nil {
			bad = fmt.Errorf("row %d: %w", rowID, err)
			break
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: iterate expenses: %w", ledger.ErrIO, err)
	}
	rows.Close()

	if bad != nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE identity = ?`, id.String()); err != nil {
			return ledger.LoadResult{}, fmt.Errorf("%w: reset expenses of %s: %w", ledger.ErrIO, id, err)
		}
		return ledger.LoadResult{
			Status: ledger.StatusRecovered,
			Reason: fmt.Errorf("%w: %w", ledger.ErrCorruptStore, bad),
		}, nil
	}

	if len(records) == 0 {
		return ledger.LoadResult{Status: ledger.StatusFresh}, nil
	}
	return ledger.LoadResult{Records: records, Status: ledger.StatusLoaded}, nil
}

// AppendRecord inserts one row, registering id first if it is unknown.
func (s *Store) AppendRecord(ctx context.Context, id core.Identity, r core.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ledger.ErrIO, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO identities (name) VALUES (?)`, id.String()); err != nil {
		return fmt.Errorf("%w: register identity %s: %w", ledger.ErrIO, id, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (identity, date, category, amount, currency, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), r.Date.String(), r.Category.String(), r.Amount.String(),
		r.Currency.String(), r.Description)
	if err != nil {
		return fmt.Errorf("%w: insert expense: %w", ledger.ErrIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit expense: %w", ledger.ErrIO, err)
	}

	rowID, _ := res.LastInsertId()
	slog.DebugContext(ctx, "Expense saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldIdentity, id.String(),
		"id", rowID,
		log.FieldAmount, r.Amount.String(),
		log.FieldCurrency, r.Currency.String())

	return nil
}

func decodeRow(date, category, amount, cur, descr string) (core.Record, error) {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, date)
	}
	c, err := core.ParseCategory(category)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, category)
	}
	a, err := core.ParseAmount(amount)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, amount)
	}
	cu, err := core.ParseCurrency(cur)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, cur)
	}
	return core.Record{Date: d, Category: c, Amount: a, Currency: cu, Description: descr}, nil
}
