package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/query"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
	"expenses/internal/storage/sqlite"
)

var asOf = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu       sync.Mutex
	events   []amqp.ChangeEvent
	err      error
	closeErr error
}

func (p *fakePublisher) PublishChange(_ context.Context, ev amqp.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return p.closeErr }

func (p *fakePublisher) ops() []amqp.ChangeOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.ChangeOp, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Op
	}
	return out
}

// gatedStore reads the snapshot, then waits on gate before returning it.
type gatedStore struct {
	storage.Store
	gate    chan struct{}
	reading chan struct{}
	once    sync.Once
}

func (g *gatedStore) GetAll(ctx context.Context) ([]core.Expense, error) {
	all, err := g.Store.GetAll(ctx)
	if g.gate != nil {
		g.once.Do(func() {
			close(g.reading)
			<-g.gate
		})
	}
	return all, err
}

// blockingStore holds every read until release is closed, failing early
// when the reader's context ends the way a database driver would.
type blockingStore struct {
	storage.Store
	release chan struct{}
	reading chan struct{}
	once    sync.Once
	reads   atomic.Int32
}

func (b *blockingStore) GetAll(ctx context.Context) ([]core.Expense, error) {
	b.reads.Add(1)
	b.once.Do(func() { close(b.reading) })
	select {
	case <-ctx.Done():
		return nil, storage.Unavailable("list expenses", ctx.Err())
	case <-b.release:
	}
	return b.Store.GetAll(ctx)
}

type brokenStore struct {
	storage.Store
	closeErr error
}

func (b brokenStore) GetAll(context.Context) ([]core.Expense, error) {
	return nil, storage.Unavailable("list expenses", errors.New("disk I/O error"))
}

func (b brokenStore) Close() error { return b.closeErr }

func input(amount float64, desc string, c core.Category, d core.Date) core.ExpenseInput {
	return core.ExpenseInput{Amount: amount, Description: desc, Category: c, Date: d}
}

func newService(t *testing.T, opts ...Option) (*ExpenseService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	opts = append([]Option{WithPublisher(pub), WithClock(func() time.Time { return asOf })}, opts...)
	svc := NewExpenseService(memory.New(), opts...)
	t.Cleanup(func() { svc.Close() })
	return svc, pub
}

func TestCreateInvalidatesStatsAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)

	before, err := svc.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, before.TotalThisMonth)

	e, err := svc.Create(ctx, input(25, "Dinner", core.Food, core.NewDate(2024, 3, 10)))
	require.NoError(t, err)

	after, err := svc.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 25.0, after.TotalThisMonth)
	assert.Equal(t, 1, after.TotalExpenses)

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.OpCreated, pub.events[0].Op)
	assert.Equal(t, e.ID, pub.events[0].ID)
}

func TestValidationFailsBeforeStore(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)

	_, err := svc.Create(ctx, input(-1, "", "rent", core.Date{}))
	require.ErrorIs(t, err, core.ErrValidation)

	var verrs core.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Amount must be positive", verrs.Fields()["amount"])
	assert.Len(t, verrs, 4)
	assert.Empty(t, pub.events)

	all, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMissingIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)

	_, err := svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), core.ErrNotFound)
	amount := 3.0
	_, err = svc.Update(ctx, "nope", core.ExpensePatch{Amount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, pub.events)
}

func TestListPaginatesAndReturnsCopies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for i := 1; i <= 12; i++ {
		_, err := svc.Create(ctx, input(float64(i), "item", core.Other, core.NewDate(2024, 1, i)))
		require.NoError(t, err)
	}

	p, err := svc.List(ctx, query.Filters{}, query.Sort{Field: query.SortByAmount, Direction: query.SortAsc}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.Equal(t, 12, p.TotalItems)
	assert.Equal(t, 2, p.TotalPages)
	require.Len(t, p.Items, 2)
	assert.Equal(t, 11.0, p.Items[0].Amount)

	p.Items[0].Amount = 999
	again, err := svc.List(ctx, query.Filters{}, query.Sort{Field: query.SortByAmount, Direction: query.SortAsc}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 11.0, again.Items[0].Amount)

	overshoot, err := svc.List(ctx, query.Filters{}, query.Sort{}, 9, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, overshoot.Page)
}

func TestStaleSnapshotIsNotCachedAfterMutation(t *testing.T) {
	ctx := context.Background()
	gated := &gatedStore{Store: memory.New(), gate: make(chan struct{}), reading: make(chan struct{})}
	svc := NewExpenseService(gated, WithClock(func() time.Time { return asOf }))
	defer svc.Close()

	type result struct {
		total float64
		err   error
	}
	done := make(chan result)
	go func() {
		st, err := svc.Stats(ctx, time.Time{})
		done <- result{st.TotalThisMonth, err}
	}()

	<-gated.reading
	_, err := svc.Create(ctx, input(40, "Groceries", core.Food, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)
	close(gated.gate)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Zero(t, stale.total)

	fresh, err := svc.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 40.0, fresh.TotalThisMonth)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	pub.err = errors.New("broker down")

	e, err := svc.Create(ctx, input(5, "Bus", core.Transport, core.NewDate(2024, 3, 2)))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, e.ID))
	assert.Equal(t, []amqp.ChangeOp{amqp.OpCreated, amqp.OpDeleted}, pub.ops())
}

func TestUpdateReplaceClearAndRecent(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	var ids []string
	for i := 1; i <= 7; i++ {
		e, err := svc.Create(ctx, input(float64(i), "thing", core.Shopping, core.NewDate(2024, 3, i)))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	recent, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	assert.Equal(t, ids[6], recent[0].ID)

	desc := "  gift  "
	updated, err := svc.Update(ctx, ids[0], core.ExpensePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "gift", updated.Description)
	assert.Equal(t, 1.0, updated.Amount)

	_, err = svc.Replace(ctx, ids[0], input(10, "", core.Health, core.NewDate(2024, 3, 1)))
	assert.ErrorIs(t, err, core.ErrValidation)

	replaced, err := svc.Replace(ctx, ids[0], input(10, "Doctor", core.Health, core.NewDate(2024, 2, 1)))
	require.NoError(t, err)
	assert.Equal(t, core.Health, replaced.Category)
	assert.Equal(t, "2024-02-01", replaced.Date.String())

	require.NoError(t, svc.Clear(ctx))
	all, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	ops := pub.ops()
	assert.Equal(t, amqp.OpCleared, ops[len(ops)-1])
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)

	rows := []core.Expense{
		{ID: "ignored", Amount: 3, Description: "Tea", Category: core.Food, Date: core.NewDate(2024, 1, 1)},
		{Amount: 4, Description: "Metro", Category: core.Transport, Date: core.NewDate(2024, 1, 2)},
		{Amount: 0, Description: "bad", Category: core.Food, Date: core.NewDate(2024, 1, 3)},
	}
	n, err := svc.Import(ctx, rows)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 2, n)

	all, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.NotEqual(t, "ignored", e.ID)
	}
	assert.Equal(t, []amqp.ChangeOp{amqp.OpImported}, pub.ops())
}

func TestImportLogsOperation(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Format: log.FormatJSON, Output: &logs})
	svc, _ := newService(t, WithLogger(logger))

	n, err := svc.Import(context.Background(), []core.Expense{
		{Amount: 3, Description: "Tea", Category: core.Food, Date: core.NewDate(2024, 1, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, logs.String(), `"operation":"import"`)
	assert.Contains(t, logs.String(), `"count":1`)
}

func TestStoreUnavailableSurfaces(t *testing.T) {
	svc := NewExpenseService(brokenStore{Store: memory.New()})
	defer svc.Close()

	_, err := svc.Stats(context.Background(), asOf)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	_, err = svc.List(context.Background(), query.Filters{}, query.Sort{}, 1, 10)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestLatestSnapshot(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoSnapshot)

	plain := NewExpenseService(brokenStore{Store: memory.New()})
	defer plain.Close()
	_, err = plain.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotsUnsupported)
}

func TestCloseAggregatesErrors(t *testing.T) {
	storeErr := errors.New("store close")
	pubErr := errors.New("publisher close")
	svc := NewExpenseService(brokenStore{Store: memory.New(), closeErr: storeErr},
		WithPublisher(&fakePublisher{closeErr: pubErr}))

	err := svc.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, pubErr)
}

func TestCloseWithoutPublisher(t *testing.T) {
	svc := NewExpenseService(memory.New())
	assert.NoError(t, svc.Close())
}

func TestCancelledCallerDoesNotFailSharedRead(t *testing.T) {
	blocking := &blockingStore{Store: memory.New(), release: make(chan struct{}), reading: make(chan struct{})}
	_, err := blocking.Store.Insert(context.Background(), input(12, "Lunch", core.Food, core.NewDate(2024, 3, 14)))
	require.NoError(t, err)
	svc := NewExpenseService(blocking, WithClock(func() time.Time { return asOf }))
	defer svc.Close()

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Stats(first, time.Time{})
		firstDone <- err
	}()
	<-blocking.reading

	type result struct {
		total int
		err   error
	}
	secondDone := make(chan result, 1)
	go func() {
		st, err := svc.Stats(context.Background(), time.Time{})
		secondDone <- result{st.TotalExpenses, err}
	}()
	// Let the second caller join the in-flight read.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting on the shared read")
	}

	close(blocking.release)
	second := <-secondDone
	require.NoError(t, second.err)
	assert.Equal(t, 1, second.total)
	assert.Equal(t, int32(1), blocking.reads.Load())
}

func openSharedSQLite(t *testing.T, path string) storage.Store {
	t.Helper()
	st, err := sqlite.Open(path)
	require.NoError(t, err)
	return st
}

func TestUncachedServiceSeesWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "expenses.db")
	clock := WithClock(func() time.Time { return asOf })

	server := NewExpenseService(openSharedSQLite(t, path), clock, WithResultCache(false))
	defer server.Close()
	other := NewExpenseService(openSharedSQLite(t, path), clock)
	defer other.Close()

	before, err := server.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalExpenses)

	_, err = other.Create(ctx, input(9.5, "Cinema", core.Entertainment, core.NewDate(2024, 3, 12)))
	require.NoError(t, err)

	after, err := server.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalExpenses)

	page, err := server.List(ctx, query.Filters{}, query.Sort{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)
}

func TestInvalidateDropsResultsCachedBeforeExternalWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "expenses.db")
	clock := WithClock(func() time.Time { return asOf })

	server := NewExpenseService(openSharedSQLite(t, path), clock)
	defer server.Close()
	other := NewExpenseService(openSharedSQLite(t, path), clock)
	defer other.Close()

	require.True(t, server.CachingResults())
	before, err := server.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalExpenses)

	_, err = other.Create(ctx, input(9.5, "Cinema", core.Entertainment, core.NewDate(2024, 3, 12)))
	require.NoError(t, err)

	// A change event arriving from the other process lands here.
	server.Invalidate()

	after, err := server.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalExpenses)
}

func TestDisableResultCache(t *testing.T) {
	svc, _ := newService(t)
	assert.True(t, svc.CachingResults())
	svc.DisableResultCache()
	assert.False(t, svc.CachingResults())

	off := NewExpenseService(memory.New(), WithResultCache(false))
	defer off.Close()
	assert.False(t, off.CachingResults())
}
