package query

import "expenses/internal/core"

const DefaultLocale = "en-US"

type options struct {
	locale string
}

// Option configures Apply and SortExpenses.
type Option func(*options)

// WithLocale sets the BCP 47 locale used to collate descriptions.
func WithLocale(locale string) Option {
	return func(o *options) {
		if locale != "" {
			o.locale = locale
		}
	}
}

func newOptions(opts []Option) options {
	o := options{locale: DefaultLocale}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Apply filters all with f (AND across predicates) and orders the result by s.
// The zero Sort orders by date, newest first.
func Apply(all []core.Expense, f Filters, s Sort, opts ...Option) []core.Expense {
	o := newOptions(opts)
	// Filter allocates, so sorting its result leaves all untouched.
	out := Filter(all, f)
	sortInPlace(out, s, o.locale)
	return out
}

// Run is Apply followed by Paginate.
func Run(all []core.Expense, f Filters, s Sort, page, pageSize int, opts ...Option) Page[core.Expense] {
	return Paginate(Apply(all, f, s, opts...), page, pageSize)
}
