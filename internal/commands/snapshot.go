package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expenses/internal/services"
	"expenses/internal/stats"
	"expenses/internal/storage"
	"expenses/internal/worker"
)

func newSnapshotCommand(a *app) *cobra.Command {
	var (
		refresh bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the latest persisted stats snapshot",
		Long: `Snapshot prints the stats last saved by the worker. With --refresh it
recomputes and saves a new snapshot first. The memory backend keeps
snapshots only for the life of the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, res, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			var snap storage.StatsSnapshot
			if refresh {
				store, ok := res.Store.(worker.Store)
				if !ok {
					return services.ErrSnapshotsUnsupported
				}
				snap, err = worker.NewStatsWorker(store, a.logger, nil).Refresh(ctx, worker.TriggerManual)
			} else {
				snap, err = svc.LatestSnapshot(ctx)
			}
			if errors.Is(err, storage.ErrNoSnapshot) {
				return errors.New("no stats snapshot yet: run with --refresh or start the worker")
			}
			if err != nil {
				return err
			}

			cur := a.cfg.Currency()
			return render(cmd.OutOrStdout(), output, snap, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Computed at\t%s\n", snap.ComputedAt.Format(time.RFC3339))
				writeStats(tw, newStatsReport(snap.Stats, snap.AsOf.Time, stats.DefaultMonthlyWindow), cur)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute and save a snapshot first")
	addOutputFlag(cmd, &output)
	return cmd
}
