package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"expenses/internal/export"
)

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import expenses from a CSV file (- for stdin)",
		Long: `Import reads a CSV with a header row naming the columns date, category,
description and amount, in any order. Other columns, such as the id and
timestamps written by export, are ignored: every row becomes a new expense.
The whole file is validated before anything is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			rows, err := export.ReadCSV(r)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			n, err := svc.Import(ctx, rows)
			if err != nil {
				return fmt.Errorf("imported %d of %d expenses: %w", n, len(rows), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d expenses\n", n)
			return nil
		},
	}
}
