// Package sqlite is the storage.Store backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"expenses/internal/core"
	"expenses/internal/storage"
)

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

const selectColumns = `SELECT id, amount, description, category, date, created_at, updated_at FROM expenses`

type Store struct {
	db   *sql.DB
	opts storage.Options
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string, opts ...storage.Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.Unavailable("open sqlite database", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storage.Unavailable("ping database", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, opts: storage.ApplyOptions(opts)}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.Unavailable("ping database", err)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY date DESC, created_at DESC, id`)
	if err != nil {
		return nil, storage.Unavailable("list expenses", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list expenses", err)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (core.Expense, error) {
	return getByID(ctx, s.db, id)
}

func (s *Store) Insert(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Normalize().Validate(); err != nil {
		return core.Expense{}, err
	}
	e := s.opts.NewRecord(in)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, amount, description, category, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount, e.Description, string(e.Category), e.Date.String(),
		e.CreatedAt.UnixMicro(), e.UpdatedAt.UnixMicro())
	if err != nil {
		return core.Expense{}, storage.Unavailable("insert expense", err)
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	if err := patch.Normalize().Validate(); err != nil {
		return core.Expense{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, storage.Unavailable("begin update", err)
	}
	defer tx.Rollback()

	e, err := getByID(ctx, tx, id)
	if err != nil {
		return core.Expense{}, err
	}
	e = s.opts.Merge(e, patch)

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses SET amount = ?, description = ?, category = ?, date = ?, updated_at = ?
		 WHERE id = ?`,
		e.Amount, e.Description, string(e.Category), e.Date.String(), e.UpdatedAt.UnixMicro(), id)
	if err != nil {
		return core.Expense{}, storage.Unavailable("update expense", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, storage.Unavailable("commit update", err)
	}
	return e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return storage.Unavailable("delete expense", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("delete expense", err)
	}
	if n == 0 {
		return storage.NotFound(id)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return storage.Unavailable("clear expenses", err)
	}
	return nil
}

func (s *Store) SaveStatsSnapshot(ctx context.Context, snap storage.StatsSnapshot) error {
	payload, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stats_snapshots (as_of, computed_at, payload) VALUES (?, ?, ?)`,
		snap.AsOf.String(), storage.Timestamp(snap.ComputedAt).UnixMicro(), string(payload))
	if err != nil {
		return storage.Unavailable("save snapshot", err)
	}
	return nil
}

func (s *Store) LatestStatsSnapshot(ctx context.Context) (storage.StatsSnapshot, error) {
	var (
		snap       storage.StatsSnapshot
		asOf       string
		computedAt int64
		payload    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT as_of, computed_at, payload FROM stats_snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&asOf, &computedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, storage.ErrNoSnapshot
	}
	if err != nil {
		return snap, storage.Unavailable("load snapshot", err)
	}

	if snap.AsOf, err = core.ParseDate(asOf); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.ComputedAt = time.UnixMicro(computedAt).UTC()
	if err := json.Unmarshal([]byte(payload), &snap.Stats); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getByID(ctx context.Context, q queryer, id string) (core.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, storage.NotFound(id)
	}
	return e, err
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e                    core.Expense
		category, date       string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.Amount, &e.Description, &category, &date, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, storage.Unavailable("scan expense", err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("decode expense %s: %w", e.ID, err)
	}
	e.Category = core.Category(category)
	e.Date = d
	e.CreatedAt = time.UnixMicro(createdAt).UTC()
	e.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return e, nil
}
