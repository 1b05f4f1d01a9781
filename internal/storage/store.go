// Package storage defines the record store boundary for expenses and the
// helpers shared by its implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
	"expenses/internal/stats"
)

// Store is the record store adapter. Each call is atomic for the single
// record it touches; there are no cross-record transactions.
type Store interface {
	// GetAll returns every record ordered by date, then creation time,
	// newest first.
	GetAll(ctx context.Context) ([]core.Expense, error)
	GetByID(ctx context.Context, id string) (core.Expense, error)
	// Insert assigns the id and both timestamps.
	Insert(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	// Update merges the patch and refreshes UpdatedAt.
	Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// StatsSnapshot is a persisted result of stats.ComputeStats.
type StatsSnapshot struct {
	AsOf       core.Date   `json:"as_of"`
	ComputedAt time.Time   `json:"computed_at"`
	Stats      stats.Stats `json:"stats"`
}

// SnapshotStore is implemented by stores that can keep precomputed stats.
type SnapshotStore interface {
	SaveStatsSnapshot(ctx context.Context, snap StatsSnapshot) error
	// LatestStatsSnapshot returns ErrNoSnapshot when nothing was saved yet.
	LatestStatsSnapshot(ctx context.Context) (StatsSnapshot, error)
}

var ErrNoSnapshot = errors.New("no stats snapshot")

// Options holds settings shared by every Store implementation.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

type Option func(*Options)

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// WithIDGenerator overrides uuid.NewString.
func WithIDGenerator(gen func() string) Option {
	return func(o *Options) { o.NewID = gen }
}

func ApplyOptions(opts []Option) Options {
	o := Options{Now: time.Now, NewID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Timestamp normalizes t to UTC microseconds, the precision every backend
// can round-trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NewRecord builds the record Insert persists.
func (o Options) NewRecord(in core.ExpenseInput) core.Expense {
	in = in.Normalize()
	now := Timestamp(o.Now())
	return core.Expense{
		ID:          o.NewID(),
		Amount:      in.Amount,
		Description: in.Description,
		Category:    in.Category,
		Date:        in.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Merge applies patch to e and refreshes UpdatedAt, never letting it fall
// behind CreatedAt.
func (o Options) Merge(e core.Expense, patch core.ExpensePatch) core.Expense {
	e = patch.Normalize().Apply(e)
	now := Timestamp(o.Now())
	if now.Before(e.CreatedAt) {
		now = e.CreatedAt
	}
	e.UpdatedAt = now
	return e
}

// NotFound wraps core.ErrNotFound with the missing id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

// Unavailable marks a backend failure as core.ErrStoreUnavailable while
// keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

// SortRecords orders records the way GetAll returns them.
func SortRecords(es []core.Expense) {
	slices.SortStableFunc(es, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
