package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"expenses/internal/core"
	"expenses/internal/export"
	"expenses/internal/log"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		qf     queryFlags
		format string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export expenses as CSV or XLSX",
		Example: `  expenses export > expenses.csv
  expenses export --format xlsx --file march.xlsx --from 2024-03-01 --to 2024-03-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("unknown export format %q (want csv or xlsx)", format)
			}
			f, srt, err := qf.parse()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			es, err := svc.Filtered(ctx, f, srt)
			if err != nil {
				return err
			}

			if file == "" || file == "-" {
				return a.writeExport(cmd.OutOrStdout(), format, es)
			}
			out, err := os.Create(file)
			if err != nil {
				return err
			}
			if err := a.writeExport(out, format, es); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			a.logger.Info("Expenses exported",
				log.FieldOperation, log.OpExport,
				log.FieldCount, len(es),
				"file", file)
			return nil
		},
	}

	qf.register(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "csv", "csv or xlsx")
	fs.StringVar(&file, "file", "", "write to this file instead of stdout")
	return cmd
}

func (a *app) writeExport(w io.Writer, format string, es []core.Expense) error {
	var err error
	if format == "xlsx" {
		err = export.WriteXLSX(w, es, a.cfg.Currency())
	} else {
		err = export.WriteCSV(w, es)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	return nil
}
