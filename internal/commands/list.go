package commands

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apphttp "expenses/internal/http"
)

func newListCommand(a *app) *cobra.Command {
	var (
		qf       queryFlags
		page     int
		pageSize int
		all      bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses with filters, sorting and paging",
		Example: `  expenses list --category food --from 2024-03-01
  expenses list --sort amount --dir desc --page-size 20 --page 2
  expenses list --all -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			f, srt, err := qf.parse()
			if err != nil {
				return err
			}
			v := url.Values{}
			v.Set("page", strconv.Itoa(page))
			if pageSize != 0 {
				v.Set("page_size", strconv.Itoa(pageSize))
			}
			pageNum, size, errs := apphttp.ParsePageParams(v)
			if err := errs.Err(); err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, _, err := a.openService(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeService(svc)
			cur := a.cfg.Currency()
			out := cmd.OutOrStdout()

			if all {
				es, err := svc.Filtered(ctx, f, srt)
				if err != nil {
					return err
				}
				return render(out, output, es, func(tw *tabwriter.Writer) {
					writeExpenses(tw, es, cur)
				})
			}

			p, err := svc.List(ctx, f, srt, pageNum, size)
			if err != nil {
				return err
			}
			return render(out, output, p, func(tw *tabwriter.Writer) {
				writeExpenses(tw, p.Items, cur)
				if p.TotalPages > 0 {
					fmt.Fprintf(tw, "\nPage %d of %d (%d expenses)\n", p.Page, p.TotalPages, p.TotalItems)
				} else {
					fmt.Fprintln(tw, "\nNo expenses found")
				}
			})
		},
	}

	qf.register(cmd)
	fs := cmd.Flags()
	fs.IntVarP(&page, "page", "p", 1, "page number")
	fs.IntVar(&pageSize, "page-size", 0, "page size: 10, 20, 50 or 100 (default PAGE_SIZE)")
	fs.BoolVar(&all, "all", false, "print every matching expense without paging")
	addOutputFlag(cmd, &output)
	return cmd
}
