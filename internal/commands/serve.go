package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/cli"
	apphttp "expenses/internal/http"
	"expenses/internal/log"
	"expenses/internal/metrics"
	"expenses/internal/middleware/security"
	"expenses/internal/services"
	"expenses/internal/worker"
)

func newServeCommand(a *app) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also refresh stats snapshots in-process every SNAPSHOT_INTERVAL")
	return cmd
}

func (a *app) runServe(parent context.Context, withWorker bool) error {
	ctx, cancel := cli.GracefulShutdown(parent, a.logger)
	defer cancel()

	m := metrics.New()
	svc, res, err := a.openService(ctx, m)
	if err != nil {
		return err
	}
	defer a.closeService(svc)

	resolver, err := security.NewIPResolver(a.cfg.TrustedProxies...)
	if err != nil {
		return err
	}
	srv := apphttp.NewServer(":"+a.cfg.Port, svc,
		apphttp.WithLogger(a.logger),
		apphttp.WithMetrics(m),
		apphttp.WithRateLimit(a.cfg.RateLimitPerMin),
		apphttp.WithIPResolver(resolver),
		apphttp.WithCurrency(a.cfg.Currency()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer shutdownCancel()
		a.logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if res.Events != nil {
		g.Go(func() error {
			err := res.Events.SubscribeChanges(gctx, invalidateOnChange(svc))
			if err != nil && gctx.Err() == nil {
				a.logger.WithComponent(log.ComponentAMQP).Error("Change subscription stopped, serving uncached results",
					log.FieldError, err)
				svc.DisableResultCache()
			}
			return nil
		})
	}

	if withWorker {
		store, ok := res.Store.(worker.Store)
		if !ok {
			return fmt.Errorf("backend %s does not keep stats snapshots", a.cfg.DataBackend)
		}
		w := worker.NewStatsWorker(store, a.logger, m)
		g.Go(func() error {
			return w.RunPeriodic(gctx, a.cfg.SnapshotInterval)
		})
	}

	a.logger.Info("Starting expenses server",
		log.FieldOperation, log.OpStartup,
		"port", a.cfg.Port,
		log.FieldBackend, a.cfg.DataBackend,
		"events_enabled", res.Events != nil)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}

// invalidateOnChange drops cached results whenever any process reports a
// mutation, including this one.
func invalidateOnChange(svc *services.ExpenseService) func(context.Context, amqp.ChangeEvent) error {
	return func(_ context.Context, _ amqp.ChangeEvent) error {
		svc.Invalidate()
		return nil
	}
}
