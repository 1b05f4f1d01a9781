package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expenses/internal/core"
	"expenses/internal/stats"
)

type statsReport struct {
	Stats      stats.Stats           `json:"stats"`
	Categories []stats.CategorySlice `json:"categories"`
	Monthly    []stats.MonthlyPoint  `json:"monthly"`
}

func newStatsReport(st stats.Stats, asOf time.Time, months int) statsReport {
	return statsReport{
		Stats:      st,
		Categories: stats.CategoryBreakdown(st.CategoryTotals),
		Monthly:    stats.MonthlySeries(st.MonthlyTotals, asOf, months),
	}
}

func newStatsCommand(a *app) *cobra.Command {
	var (
		asOf   string
		months int
		output string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show spending totals, trends and the category breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			if months < 1 || months > 120 {
				return errors.New("--months must be between 1 and 120")
			}
			var ref time.Time
			if asOf != "" {
				d, err := core.ParseDate(asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				ref = d.Time
			}

			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			if ref.IsZero() {
				ref = svc.Now()
			}
			st, err := svc.Stats(ctx, ref)
			if err != nil {
				return err
			}
			report := newStatsReport(st, ref, months)
			return render(cmd.OutOrStdout(), output, report, func(tw *tabwriter.Writer) {
				writeStats(tw, report, a.cfg.Currency())
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&asOf, "as-of", "", "reference date, YYYY-MM-DD (default today)")
	fs.IntVar(&months, "months", stats.DefaultMonthlyWindow, "months in the trend")
	addOutputFlag(cmd, &output)
	return cmd
}

func writeStats(tw *tabwriter.Writer, r statsReport, cur core.Currency) {
	st := r.Stats
	money := func(a float64) string { return core.FormatAmount(a, cur) }

	fmt.Fprintf(tw, "As of\t%s\n", st.AsOf)
	fmt.Fprintf(tw, "This month\t%s\t%d expenses\n", money(st.TotalThisMonth), st.CurrentMonthExpenseCount)
	fmt.Fprintf(tw, "Last month\t%s\n", money(st.TotalLastMonth))
	fmt.Fprintf(tw, "Change\t%s\n", core.FormatChange(st.MonthlyChange))
	fmt.Fprintf(tw, "Today\t%d expenses\taverage %s\n", st.TodayExpenseCount, money(st.AverageTodayExpense))
	if st.TopSpendingCategory != nil {
		fmt.Fprintf(tw, "Top category\t%s\n", st.TopSpendingCategory.Label())
	}
	fmt.Fprintf(tw, "All time\t%d expenses\n", st.TotalExpenses)

	if len(r.Categories) > 0 {
		fmt.Fprintln(tw, "\nCATEGORY\tAMOUNT\tSHARE")
		for _, c := range r.Categories {
			fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", c.Label, money(c.Amount), c.Percent)
		}
	}

	fmt.Fprintln(tw, "\nMONTH\tAMOUNT")
	for _, p := range r.Monthly {
		fmt.Fprintf(tw, "%s\t%s\n", p.Month, money(p.Amount))
	}
}
