// Package services orchestrates the expense store, the query and stats
// engines, the result caches and change-event publishing.
package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/metrics"
	"expenses/internal/query"
	"expenses/internal/stats"
	"expenses/internal/storage"
)

const (
	DefaultRecentLimit = 5
	DefaultCacheSize   = 128
	DefaultCacheTTL    = 5 * time.Minute

	// snapshotTimeout bounds a shared store read, which no single caller
	// may cancel.
	snapshotTimeout = 30 * time.Second
)

// ErrSnapshotsUnsupported is returned by LatestSnapshot when the store keeps
// no stats snapshots.
var ErrSnapshotsUnsupported = errors.New("store does not keep stats snapshots")

// EventPublisher announces mutations to other processes.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev amqp.ChangeEvent) error
	Close() error
}

type Option func(*ExpenseService)

func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithClock sets the time source for the default stats reference date.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func WithLocale(locale string) Option {
	return func(s *ExpenseService) {
		if locale != "" {
			s.locale = locale
		}
	}
}

func WithCache(size int, ttl time.Duration) Option {
	return func(s *ExpenseService) {
		s.cacheSize, s.cacheTTL = size, ttl
	}
}

// WithResultCache turns the page and stats caches on or off. Turn them off
// when other processes write to the same store and no change events reach
// this one.
func WithResultCache(enabled bool) Option {
	return func(s *ExpenseService) { s.noCache.Store(!enabled) }
}

func WithDefaultPageSize(n int) Option {
	return func(s *ExpenseService) {
		if query.IsValidPageSize(n) {
			s.pageSize = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ExpenseService) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = l.WithComponent(log.ComponentExpense) }
}

// ExpenseService is safe for concurrent use.
//
// Reads share one store snapshot per data version through singleflight.
// Every successful mutation bumps the version and purges the caches, so a
// result computed from an older snapshot is never served afterwards.
type ExpenseService struct {
	store     storage.Store
	publisher EventPublisher
	now       func() time.Time
	locale    string
	pageSize  int
	logger    *log.Logger
	metrics   *metrics.Metrics

	cacheSize int
	cacheTTL  time.Duration
	caches    *cache.Manager
	pages     *cache.LRUCache[query.Page[core.Expense]]
	stats     *cache.LRUCache[stats.Stats]

	version atomic.Uint64
	group   singleflight.Group
	noCache atomic.Bool
}

func NewExpenseService(store storage.Store, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:     store,
		now:       time.Now,
		locale:    query.DefaultLocale,
		pageSize:  query.DefaultPageSize,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
		logger:    log.Default().WithComponent(log.ComponentExpense),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.caches = cache.NewManager(s.logger.Logger)
	s.pages = cache.NewLRUCache[query.Page[core.Expense]](s.cacheSize, s.cacheTTL)
	s.stats = cache.NewLRUCache[stats.Stats](s.cacheSize, s.cacheTTL)
	s.caches.Register(s.pages)
	s.caches.Register(s.stats)
	s.caches.StartCleanup(s.cacheTTL)
	return s
}

// Now is the service clock.
func (s *ExpenseService) Now() time.Time { return s.now() }

func (s *ExpenseService) Locale() string { return s.locale }

func (s *ExpenseService) DefaultPageSize() int { return s.pageSize }

func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	e, err := s.store.Insert(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	s.changed(ctx, amqp.OpCreated, e.ID)
	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithExpense(e.ID, e.Amount, string(e.Category)).WithOperation(log.OpCreate).ToSlice()...)
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// Update applies a partial update. An empty patch only refreshes UpdatedAt.
func (s *ExpenseService) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	e, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.changed(ctx, amqp.OpUpdated, id)
	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithExpense(e.ID, e.Amount, string(e.Category)).WithOperation(log.OpUpdate).ToSlice()...)
	return e, nil
}

// Replace overwrites every user-editable field. The full input is validated
// before the store is touched.
func (s *ExpenseService) Replace(ctx context.Context, id string, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("replace expense: %w", err)
	}
	return s.Update(ctx, id, core.ExpensePatch{
		Amount:      &in.Amount,
		Description: &in.Description,
		Category:    &in.Category,
		Date:        &in.Date,
	})
}

func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.changed(ctx, amqp.OpDeleted, id)
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id)
	return nil
}

func (s *ExpenseService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	s.changed(ctx, amqp.OpCleared, "")
	s.logger.InfoContext(ctx, "All expenses cleared")
	return nil
}

// Import inserts rows as new expenses; ids and timestamps in rows are
// ignored. It stops at the first failure and reports how many were stored.
func (s *ExpenseService) Import(ctx context.Context, rows []core.Expense) (int, error) {
	n := 0
	defer func() {
		if n > 0 {
			s.changed(ctx, amqp.OpImported, "")
		}
	}()
	for i, row := range rows {
		if _, err := s.store.Insert(ctx, row.Input()); err != nil {
			return n, fmt.Errorf("import row %d: %w", i+1, err)
		}
		n++
	}
	s.logger.InfoContext(ctx, "Expenses imported", log.FieldOperation, log.OpImport, log.FieldCount, n)
	return n, nil
}

// List filters, sorts and paginates the current records. A pageSize of 0
// uses the configured default; the page is clamped into range.
func (s *ExpenseService) List(ctx context.Context, f query.Filters, srt query.Sort, page, pageSize int) (query.Page[core.Expense], error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	key := f.Key() + "|" + srt.String() + "|" + strconv.Itoa(page) + "|" + strconv.Itoa(pageSize)
	cached := s.CachingResults()
	if cached {
		if p, ok := s.pages.Get(key); ok {
			s.metrics.CacheLookup("pages", true)
			return clonePage(p), nil
		}
		s.metrics.CacheLookup("pages", false)
	}

	gen := s.pages.Generation()
	all, err := s.snapshot(ctx)
	if err != nil {
		return query.Page[core.Expense]{}, fmt.Errorf("list expenses: %w", err)
	}
	p := query.Run(all, f, srt, page, pageSize, query.WithLocale(s.locale))
	if cached {
		s.pages.SetIfGeneration(key, p, gen)
	}
	return clonePage(p), nil
}

// Filtered returns every record matching f in srt order.
func (s *ExpenseService) Filtered(ctx context.Context, f query.Filters, srt query.Sort) ([]core.Expense, error) {
	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("filter expenses: %w", err)
	}
	return query.Apply(all, f, srt, query.WithLocale(s.locale)), nil
}

// Recent returns up to limit records, newest date first. limit <= 0 means
// DefaultRecentLimit.
func (s *ExpenseService) Recent(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent expenses: %w", err)
	}
	sorted := query.SortExpenses(all, query.DefaultSort(), query.WithLocale(s.locale))
	return sorted[:min(limit, len(sorted))], nil
}

// Stats aggregates every record relative to asOf's calendar date. A zero
// asOf means the service clock.
func (s *ExpenseService) Stats(ctx context.Context, asOf time.Time) (stats.Stats, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	key := core.DateOf(asOf).String()
	cached := s.CachingResults()
	if cached {
		if st, ok := s.stats.Get(key); ok {
			s.metrics.CacheLookup("stats", true)
			return cloneStats(st), nil
		}
		s.metrics.CacheLookup("stats", false)
	}

	gen := s.stats.Generation()
	all, err := s.snapshot(ctx)
	if err != nil {
		return stats.Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	st := stats.ComputeStats(all, asOf)
	if cached {
		s.stats.SetIfGeneration(key, st, gen)
	}
	return cloneStats(st), nil
}

// Snapshot returns a copy of every record in store order.
func (s *ExpenseService) Snapshot(ctx context.Context) ([]core.Expense, error) {
	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

// LatestSnapshot returns the most recent persisted stats snapshot.
func (s *ExpenseService) LatestSnapshot(ctx context.Context) (storage.StatsSnapshot, error) {
	ss, ok := s.store.(storage.SnapshotStore)
	if !ok {
		return storage.StatsSnapshot{}, ErrSnapshotsUnsupported
	}
	return ss.LatestStatsSnapshot(ctx)
}

// Ping checks that the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// snapshot reads all records once per data version; concurrent callers of
// the same version share the read. The shared read runs detached from any
// caller's cancellation, and each caller stops waiting when its own ctx is
// done. The result must not be modified.
func (s *ExpenseService) snapshot(ctx context.Context) ([]core.Expense, error) {
	key := strconv.FormatUint(s.version.Load(), 10)
	ch := s.group.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
		defer cancel()
		return s.store.GetAll(readCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]core.Expense), nil
	}
}

// Invalidate drops every cached result and starts a new data version. Call
// it when another process reports a mutation.
func (s *ExpenseService) Invalidate() {
	s.version.Add(1)
	s.caches.InvalidateAll()
}

// DisableResultCache stops serving cached pages and stats, for when change
// events from other writers can no longer be received.
func (s *ExpenseService) DisableResultCache() {
	s.noCache.Store(true)
	s.Invalidate()
}

// CachingResults reports whether page and stats results are cached.
func (s *ExpenseService) CachingResults() bool {
	return !s.noCache.Load()
}

// changed runs after every successful mutation. Publishing is best effort:
// the mutation is already stored.
func (s *ExpenseService) changed(ctx context.Context, op amqp.ChangeOp, id string) {
	s.Invalidate()
	s.metrics.Mutation(string(op))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, amqp.NewChangeEvent(op, id)); err != nil {
		s.metrics.PublishFailed()
		s.logger.ErrorContext(ctx, "Failed to publish change event",
			"op", op, log.FieldExpenseID, id, log.FieldError, err)
	}
}

// Close stops cache maintenance and closes the store and the publisher.
func (s *ExpenseService) Close() error {
	var errs []error
	if s.caches != nil {
		s.caches.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}

func clonePage(p query.Page[core.Expense]) query.Page[core.Expense] {
	p.Items = slices.Clone(p.Items)
	return p
}

func cloneStats(st stats.Stats) stats.Stats {
	st.CategoryTotals = maps.Clone(st.CategoryTotals)
	st.MonthlyTotals = maps.Clone(st.MonthlyTotals)
	st.DailyTotals = maps.Clone(st.DailyTotals)
	if st.MonthlyChange != nil {
		v := *st.MonthlyChange
		st.MonthlyChange = &v
	}
	if st.TopSpendingCategory != nil {
		c := *st.TopSpendingCategory
		st.TopSpendingCategory = &c
	}
	return st
}
