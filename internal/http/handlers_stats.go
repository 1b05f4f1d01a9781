package http

import (
	"net/http"
	"time"

	"expenses/internal/log"
	"expenses/internal/stats"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	asOf, errs := ParseAsOf(r.URL.Query())
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}
	st, err := s.svc.Stats(r.Context(), asOf)
	if err != nil {
		writeError(w, r, log.OpStats, err)
		return
	}
	NewResponse().JSON(st).Write(w)
}

type dailySeriesResponse struct {
	Year   int                `json:"year"`
	Month  int                `json:"month"`
	Points []stats.DailyPoint `json:"points"`
}

// handleDailySeries returns every day of year/month, defaulting to the
// current month.
func (s *Server) handleDailySeries(w http.ResponseWriter, r *http.Request) {
	mp, errs := ParseMonthParams(r.URL.Query(), s.svc.Now())
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}
	st, err := s.svc.Stats(r.Context(), time.Time{})
	if err != nil {
		writeError(w, r, log.OpStats, err)
		return
	}
	NewResponse().JSON(dailySeriesResponse{
		Year:   mp.Year,
		Month:  int(mp.Month),
		Points: stats.DailySeries(st.DailyTotals, mp.Year, mp.Month),
	}).Write(w)
}

func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	months, errs := ParseBoundedInt(q, "months", stats.DefaultMonthlyWindow, maxMonthsWindow)
	asOf, asOfErrs := ParseAsOf(q)
	errs = append(errs, asOfErrs...)
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}
	if asOf.IsZero() {
		asOf = s.svc.Now()
	}

	st, err := s.svc.Stats(r.Context(), asOf)
	if err != nil {
		writeError(w, r, log.OpStats, err)
		return
	}
	NewResponse().JSON(stats.MonthlySeries(st.MonthlyTotals, asOf, months)).Write(w)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context(), time.Time{})
	if err != nil {
		writeError(w, r, log.OpStats, err)
		return
	}
	NewResponse().JSON(stats.CategoryBreakdown(st.CategoryTotals)).Write(w)
}

type periodsResponse struct {
	Years  []int `json:"years"`
	Year   int   `json:"year,omitempty"`
	Months []int `json:"months,omitempty"`
}

// handlePeriods lists years with data; with ?year= also that year's months.
func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.svc.Now()
	mp, errs := ParseMonthParams(q, now)
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}
	st, err := s.svc.Stats(r.Context(), time.Time{})
	if err != nil {
		writeError(w, r, log.OpStats, err)
		return
	}

	resp := periodsResponse{Years: stats.AvailableYears(st.DailyTotals, now)}
	if q.Get("year") != "" {
		resp.Year = mp.Year
		resp.Months = []int{}
		for _, m := range stats.AvailableMonths(st.DailyTotals, mp.Year, now) {
			resp.Months = append(resp.Months, int(m))
		}
	}
	NewResponse().JSON(resp).Write(w)
}
