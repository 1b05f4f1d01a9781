package http

import (
	"fmt"
	"net/http"
	"net/url"

	"expenses/internal/core"
	"expenses/internal/export"
	"expenses/internal/log"
	"expenses/internal/query"
	"expenses/internal/services"
)

// listParams gathers every list query parameter, reporting all bad ones.
func listParams(q url.Values) (query.Filters, query.Sort, int, int, core.ValidationErrors) {
	f, errs := ParseFilters(q)
	srt, sortErrs := ParseSortParams(q)
	page, pageSize, pageErrs := ParsePageParams(q)
	errs = append(errs, sortErrs...)
	errs = append(errs, pageErrs...)
	return f, srt, page, pageSize, errs
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, srt, page, pageSize, errs := listParams(r.URL.Query())
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}

	p, err := s.svc.List(r.Context(), f, srt, page, pageSize)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(p).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExpenseRequest(w, r)
	if err != nil {
		badBody(w, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	e, err := s.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+url.PathEscape(e.ID)).
		JSON(e).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExpenseRequest(w, r)
	if err != nil {
		badBody(w, err)
		return
	}
	patch, err := req.Patch()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	e, err := s.svc.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleReplaceExpense(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExpenseRequest(w, r)
	if err != nil {
		badBody(w, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	e, err := s.svc.Replace(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clear(r.Context()); err != nil {
		writeError(w, r, log.OpClear, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleRecentExpenses(w http.ResponseWriter, r *http.Request) {
	limit, errs := ParseBoundedInt(r.URL.Query(), "limit", services.DefaultRecentLimit, maxRecentLimit)
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}
	es, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(es).Write(w)
}

// handleExportExpenses streams the filtered, sorted list as CSV or XLSX.
func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, srt, _, _, errs := listParams(q)
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		errs.Add("format", "Format must be csv or xlsx")
	}
	if len(errs) > 0 {
		InvalidQueryError(errs).Write(w)
		return
	}

	es, err := s.svc.Filtered(r.Context(), f, srt)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	filename := fmt.Sprintf("expenses-%s.%s", core.DateOf(s.svc.Now()), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(w, es, s.currency)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = export.WriteCSV(w, es)
	}
	if err != nil {
		// Headers are already sent; the client sees a truncated file.
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed",
			log.FieldOperation, log.OpExport, log.FieldError, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expenses exported",
		log.FieldCount, len(es), "format", format)
}
