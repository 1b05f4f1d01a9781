package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expenses/internal/cli"
	"expenses/internal/log"
	"expenses/internal/worker"
)

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume change events and persist stats snapshots",
		Long: "Consumes expense change events from AMQP and recomputes today's stats after each one,\n" +
			"persisting the result as a snapshot. Also refreshes every SNAPSHOT_INTERVAL.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker(cmd.Context())
		},
	}
}

func (a *app) runWorker(parent context.Context) error {
	ctx, cancel := cli.GracefulShutdown(parent, a.logger)
	defer cancel()

	res, err := a.openBackend(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			a.logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}()

	store, ok := res.Store.(worker.Store)
	if !ok {
		return fmt.Errorf("backend %s does not keep stats snapshots", a.cfg.DataBackend)
	}
	w := worker.NewStatsWorker(store, a.logger, nil)

	a.logger.Info("Starting expenses worker",
		log.FieldOperation, log.OpStartup,
		log.FieldBackend, a.cfg.DataBackend,
		"interval", a.cfg.SnapshotInterval.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.Events.ConsumeChanges(gctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.RunPeriodic(gctx, a.cfg.SnapshotInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Worker stopped gracefully")
	return nil
}
