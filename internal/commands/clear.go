package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete every expense without --yes")
			}
			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			if err := svc.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All expenses deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deleting every expense")
	return cmd
}
