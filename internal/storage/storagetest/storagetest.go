// Package storagetest is the behavioural contract every storage.Store
// implementation runs in its own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/stats"
	"expenses/internal/storage"
)

// Factory opens an empty store using the given options.
type Factory func(t *testing.T, opts ...storage.Option) storage.Store

// Clock is a settable time source for deterministic timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func Input(amount float64, desc string, c core.Category, d core.Date) core.ExpenseInput {
	return core.ExpenseInput{Amount: amount, Description: desc, Category: c, Date: d}
}

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("insert then get round-trips", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC))
		s := newStore(t, storage.WithClock(clock.Now))

		in := Input(42.5, "  Groceries  ", core.Food, core.NewDate(2024, time.February, 28))
		created, err := s.Insert(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, "Groceries", created.Description)
		assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))
		assert.True(t, created.CreatedAt.Equal(storage.Timestamp(clock.Now())))

		got, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assertSameRecord(t, created, got)
	})

	t.Run("ids are unique", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		seen := map[string]bool{}
		for i := range 20 {
			e, err := s.Insert(ctx, Input(float64(i+1), fmt.Sprintf("item %d", i), core.Other, core.NewDate(2024, 1, 1)))
			require.NoError(t, err)
			assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
			seen[e.ID] = true
		}
		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("insert rejects invalid input", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(context.Background(), Input(0, "", "rent", core.Date{}))
		assert.ErrorIs(t, err, core.ErrValidation)
		all, err := s.GetAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("get all orders newest first", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
		s := newStore(t, storage.WithClock(clock.Now))
		a := mustInsert(t, s, Input(1, "a", core.Food, core.NewDate(2024, 1, 10)))
		clock.Advance(time.Second)
		b := mustInsert(t, s, Input(2, "b", core.Food, core.NewDate(2024, 2, 10)))
		clock.Advance(time.Second)
		c := mustInsert(t, s, Input(3, "c", core.Food, core.NewDate(2024, 1, 10)))

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{b.ID, c.ID, a.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("update merges and refreshes updated_at", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
		s := newStore(t, storage.WithClock(clock.Now))
		e := mustInsert(t, s, Input(10, "bus", core.Transport, core.NewDate(2024, 2, 1)))

		clock.Advance(time.Hour)
		amount := 12.25
		updated, err := s.Update(ctx, e.ID, core.ExpensePatch{Amount: &amount})
		require.NoError(t, err)
		assert.Equal(t, 12.25, updated.Amount)
		assert.Equal(t, "bus", updated.Description)
		assert.Equal(t, core.Transport, updated.Category)
		assert.True(t, updated.CreatedAt.Equal(e.CreatedAt))
		assert.True(t, updated.UpdatedAt.Equal(e.CreatedAt.Add(time.Hour)))

		got, err := s.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assertSameRecord(t, updated, got)
	})

	t.Run("updated_at never precedes created_at", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
		s := newStore(t, storage.WithClock(clock.Now))
		e := mustInsert(t, s, Input(10, "bus", core.Transport, core.NewDate(2024, 2, 1)))

		clock.Advance(-time.Hour)
		desc := "train"
		updated, err := s.Update(ctx, e.ID, core.ExpensePatch{Description: &desc})
		require.NoError(t, err)
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})

	t.Run("update validates patch", func(t *testing.T) {
		s := newStore(t)
		e := mustInsert(t, s, Input(10, "bus", core.Transport, core.NewDate(2024, 2, 1)))
		cat := core.Category("rent")
		_, err := s.Update(context.Background(), e.ID, core.ExpensePatch{Category: &cat})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("missing ids are not found", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)

		amount := 5.0
		_, err = s.Update(ctx, "missing", core.ExpensePatch{Amount: &amount})
		assert.ErrorIs(t, err, core.ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "missing"), core.ErrNotFound)
	})

	t.Run("delete and clear", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		a := mustInsert(t, s, Input(1, "a", core.Food, core.NewDate(2024, 1, 1)))
		mustInsert(t, s, Input(2, "b", core.Food, core.NewDate(2024, 1, 2)))
		mustInsert(t, s, Input(3, "c", core.Food, core.NewDate(2024, 1, 3)))

		require.NoError(t, s.Delete(ctx, a.ID))
		_, err := s.GetByID(ctx, a.ID)
		assert.True(t, errors.Is(err, core.ErrNotFound))

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, s.Clear(ctx))
		all, err = s.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.NotNil(t, all)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}

// RunSnapshots exercises storage.SnapshotStore.
func RunSnapshots(t *testing.T, newStore func(t *testing.T) storage.SnapshotStore) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.LatestStatsSnapshot(ctx)
	assert.ErrorIs(t, err, storage.ErrNoSnapshot)

	all := []core.Expense{
		{Amount: 10, Category: core.Food, Date: core.NewDate(2024, 1, 5)},
		{Amount: 20, Category: core.Health, Date: core.NewDate(2024, 2, 5)},
	}
	first := storage.StatsSnapshot{
		AsOf:       core.NewDate(2024, 2, 5),
		ComputedAt: storage.Timestamp(time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)),
		Stats:      stats.ComputeStats(all, time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)),
	}
	second := first
	second.ComputedAt = first.ComputedAt.Add(time.Minute)
	second.Stats = stats.ComputeStats(all[:1], time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC))

	require.NoError(t, s.SaveStatsSnapshot(ctx, first))
	require.NoError(t, s.SaveStatsSnapshot(ctx, second))

	got, err := s.LatestStatsSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, got.ComputedAt.Equal(second.ComputedAt))
	assert.Equal(t, second.AsOf.String(), got.AsOf.String())
	assert.Equal(t, 1, got.Stats.TotalExpenses)
	require.NotNil(t, got.Stats.MonthlyChange)
	assert.Equal(t, -100.0, *got.Stats.MonthlyChange)
	assert.Equal(t, second.Stats.CategoryTotals, got.Stats.CategoryTotals)
}

func mustInsert(t *testing.T, s storage.Store, in core.ExpenseInput) core.Expense {
	t.Helper()
	e, err := s.Insert(context.Background(), in)
	require.NoError(t, err)
	return e
}

func assertSameRecord(t *testing.T, want, got core.Expense) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Amount, got.Amount)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Date.String(), got.Date.String())
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %v != %v", want.UpdatedAt, got.UpdatedAt)
}
