package commands

import (
	"net/url"

	"github.com/spf13/cobra"

	apphttp "expenses/internal/http"
	"expenses/internal/query"
)

// queryFlags are the filter and sort flags shared by list and export. They
// are parsed with the same rules as the HTTP query string.
type queryFlags struct {
	category  string
	from      string
	to        string
	minAmount string
	maxAmount string
	search    string
	sort      string
	dir       string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&q.category, "category", "c", "", "only this category")
	fs.StringVar(&q.from, "from", "", "earliest date, YYYY-MM-DD (inclusive)")
	fs.StringVar(&q.to, "to", "", "latest date, YYYY-MM-DD (inclusive)")
	fs.StringVar(&q.minAmount, "min", "", "minimum amount (inclusive)")
	fs.StringVar(&q.maxAmount, "max", "", "maximum amount (inclusive)")
	fs.StringVarP(&q.search, "search", "s", "", "case-insensitive text in the description")
	fs.StringVar(&q.sort, "sort", "", "sort field: date, amount, category or description")
	fs.StringVar(&q.dir, "dir", "", "sort direction: asc or desc")
}

func (q *queryFlags) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set(query.FieldCategory, q.category)
	set(query.FieldStartDate, q.from)
	set(query.FieldEndDate, q.to)
	set(query.FieldMinAmount, q.minAmount)
	set(query.FieldMaxAmount, q.maxAmount)
	set(query.FieldSearch, q.search)
	set("sort", q.sort)
	set("dir", q.dir)
	return v
}

func (q *queryFlags) parse() (query.Filters, query.Sort, error) {
	v := q.values()
	f, errs := apphttp.ParseFilters(v)
	srt, sortErrs := apphttp.ParseSortParams(v)
	errs = append(errs, sortErrs...)
	if err := errs.Err(); err != nil {
		return query.Filters{}, query.Sort{}, err
	}
	return f, srt, nil
}
