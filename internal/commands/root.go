package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"expenses/internal/backend"
	"expenses/internal/buildinfo"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/metrics"
	"expenses/internal/services"
)

// app is the state shared by every subcommand, filled in by the root's
// PersistentPreRunE.
type app struct {
	envFiles  []string
	backend   string
	logLevel  string
	logFormat string

	cfg     *config.Config
	logger  *log.Logger
	factory backend.Factory
	logOut  io.Writer
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{logOut: os.Stderr})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "expenses",
		Short:   "Personal expense tracker",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "env files to load (default .env if present)")
	flags.StringVar(&a.backend, "backend", "", "data backend: memory, sqlite or postgres (overrides DATA_BACKEND)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text, json or tint (overrides LOG_FORMAT)")

	rootCmd.AddCommand(
		newServeCommand(a),
		newWorkerCommand(a),
		newAddCommand(a),
		newListCommand(a),
		newStatsCommand(a),
		newDeleteCommand(a),
		newClearCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newSnapshotCommand(a),
		newVersionCommand(),
	)

	return rootCmd
}

func (a *app) init() error {
	if err := cli.LoadEnvFile(a.envFiles...); err != nil {
		return err
	}

	cfg := config.Load()
	if a.backend != "" {
		cfg.DataBackend = a.backend
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cli.SetupLogger(cfg, a.logOut)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	if a.factory == nil {
		a.factory = backend.NewFactory(logger)
	}
	return nil
}

// openBackend opens the configured store and, when configured, AMQP.
func (a *app) openBackend(ctx context.Context, requireEvents bool) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	bc.RequireEvents = requireEvents
	res, err := a.factory.CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return res, nil
}

// openService wraps the backend in an ExpenseService. Closing the service
// closes the store and the event client.
func (a *app) openService(ctx context.Context, m *metrics.Metrics) (*services.ExpenseService, *backend.BackendResult, error) {
	res, err := a.openBackend(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	opts := []services.Option{
		services.WithLogger(a.logger),
		services.WithLocale(a.cfg.CurrencyLocale),
		services.WithDefaultPageSize(a.cfg.DefaultPageSize),
		services.WithCache(a.cfg.CacheSize, a.cfg.CacheTTL),
		services.WithMetrics(m),
	}
	switch {
	case res.Events != nil:
		opts = append(opts, services.WithPublisher(res.Events))
	case a.cfg.DataBackend != config.BackendMemory:
		// Other processes can write this store and nothing would tell us.
		opts = append(opts, services.WithResultCache(false))
	}
	return services.NewExpenseService(res.Store, opts...), res, nil
}

// closeService logs instead of failing: it runs after the command's work
// is done.
func (a *app) closeService(svc *services.ExpenseService) {
	if err := svc.Close(); err != nil {
		a.logger.Warn("Close failed", log.FieldError, err)
	}
}
