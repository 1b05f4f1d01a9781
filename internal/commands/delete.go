package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"expenses/internal/core"
)

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete expenses by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			var failed []error
			for _, id := range args {
				if err := svc.Delete(ctx, id); err != nil {
					if errors.Is(err, core.ErrNotFound) {
						err = fmt.Errorf("expense %s not found", id)
					}
					failed = append(failed, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return errors.Join(failed...)
		},
	}
}
