// Package worker keeps persisted stats snapshots current.
package worker

import (
	"context"
	"fmt"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/metrics"
	"expenses/internal/stats"
	"expenses/internal/storage"
)

// Refresh triggers, used as the metrics label.
const (
	TriggerStartup  = "startup"
	TriggerEvent    = "event"
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// Store is what the worker needs: read access to records and a place to
// write snapshots.
type Store interface {
	GetAll(ctx context.Context) ([]core.Expense, error)
	storage.SnapshotStore
}

// StatsWorker recomputes stats for the current date and persists them as a
// snapshot, on change events and on a fixed interval.
type StatsWorker struct {
	store   Store
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewStatsWorker(store Store, logger *log.Logger, m *metrics.Metrics) *StatsWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &StatsWorker{
		store:   store,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentWorker),
		metrics: m,
	}
}

// Refresh computes and saves one snapshot.
func (w *StatsWorker) Refresh(ctx context.Context, trigger string) (storage.StatsSnapshot, error) {
	start := time.Now()
	all, err := w.store.GetAll(ctx)
	if err != nil {
		w.metrics.SnapshotFailed(trigger)
		return storage.StatsSnapshot{}, fmt.Errorf("load expenses: %w", err)
	}

	now := w.now()
	snap := storage.StatsSnapshot{
		AsOf:       core.DateOf(now),
		ComputedAt: storage.Timestamp(now),
		Stats:      stats.ComputeStats(all, now),
	}
	if err := w.store.SaveStatsSnapshot(ctx, snap); err != nil {
		w.metrics.SnapshotFailed(trigger)
		return storage.StatsSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	w.metrics.SnapshotSaved(trigger, snap.ComputedAt)

	elapsed := time.Since(start)
	w.logger.InfoContext(ctx, "Stats snapshot saved",
		log.FieldOperation, log.OpSnapshot,
		"trigger", trigger,
		log.FieldDuration, elapsed.Milliseconds(),
		log.FieldDurationHuman, elapsed.String(),
		"as_of", snap.AsOf.String(),
		"total_expenses", snap.Stats.TotalExpenses,
		"total_this_month", snap.Stats.TotalThisMonth)
	return snap, nil
}

// HandleChange is the AMQP consumer callback.
func (w *StatsWorker) HandleChange(ctx context.Context, ev amqp.ChangeEvent) error {
	w.logger.DebugContext(ctx, "Processing change event", "op", ev.Op, log.FieldExpenseID, ev.ID)
	_, err := w.Refresh(ctx, TriggerEvent)
	return err
}

// RunPeriodic refreshes once at startup and then every interval until ctx
// is done. Failed refreshes are logged and retried on the next tick.
func (w *StatsWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if _, err := w.Refresh(ctx, TriggerStartup); err != nil {
		w.logger.ErrorContext(ctx, "Startup snapshot failed", log.FieldError, err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Refresh(ctx, TriggerInterval); err != nil {
				w.logger.ErrorContext(ctx, "Periodic snapshot failed", log.FieldError, err)
			}
		}
	}
}
