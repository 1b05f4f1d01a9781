package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expenses/internal/core"
)

func newAddCommand(a *app) *cobra.Command {
	var (
		amount, description, category, date string
		output                              string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Example: `  expenses add --amount 12.50 --description "Lunch" --category food
  expenses add --amount 40 -d "Train" -c transport --date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			var errs core.ValidationErrors
			in := core.ExpenseInput{
				Description: description,
				Category:    core.Category(category),
			}
			if amount == "" {
				errs.Add("amount", "Amount is required")
			} else if v, err := core.ParseAmount(amount); err != nil {
				errs.Add("amount", "Amount must be a number")
			} else {
				in.Amount = v
			}
			if date == "" {
				in.Date = core.DateOf(svc.Now())
			} else if d, err := core.ParseDate(date); err != nil {
				errs.Add("date", "Date must be YYYY-MM-DD")
			} else {
				in.Date = d
			}
			if err := in.Normalize().Validate(); err != nil {
				var ve core.ValidationErrors
				if errors.As(err, &ve) {
					seen := errs.Fields()
					for _, fe := range ve {
						if _, dup := seen[fe.Field]; !dup {
							errs = append(errs, fe)
						}
					}
				}
			}
			if err := errs.Err(); err != nil {
				return err
			}

			e, err := svc.Create(ctx, in.Normalize())
			if err != nil {
				return err
			}
			cur := a.cfg.Currency()
			return render(cmd.OutOrStdout(), output, e, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Added %s: %s on %s (%s, %s)\n",
					e.ID, core.FormatAmount(e.Amount, cur), e.Description, e.Date, e.Category.Label())
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&amount, "amount", "a", "", "amount, e.g. 12.50 or 12,50")
	fs.StringVarP(&description, "description", "d", "", "what the money was spent on")
	fs.StringVarP(&category, "category", "c", "", "one of food, transport, entertainment, utilities, health, shopping, other")
	fs.StringVar(&date, "date", "", "date of the expense, YYYY-MM-DD (default today)")
	addOutputFlag(cmd, &output)
	return cmd
}

// writeExpenses prints one row per expense with a header.
func writeExpenses(tw *tabwriter.Writer, es []core.Expense, cur core.Currency) {
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tDESCRIPTION\tAMOUNT")
	for _, e := range es {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.Category.Label(), e.Description, core.FormatAmount(e.Amount, cur))
	}
}
