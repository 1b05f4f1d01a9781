package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"expenses/internal/core"
	"expenses/internal/uistate"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady pings the store; an unreachable store answers 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	rl := s.limiter.GetMetrics()
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients":   rl.ClientCount,
			"limited_requests": rl.LimitedRequests,
		},
	}
	if err := s.svc.Ping(ctx); err != nil {
		status, code = "not_ready", http.StatusServiceUnavailable
		checks["store"] = "failed: " + err.Error()
	} else {
		checks["store"] = "ok"
	}

	NewResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(core.Categories).Write(w)
}

type reduceRequest struct {
	State  *uistate.State `json:"state"`
	Action uistate.Action `json:"action"`
}

// handleReduceUIState applies one action to a client-held state. A missing
// state starts from the initial one.
func (s *Server) handleReduceUIState(w http.ResponseWriter, r *http.Request) {
	var req reduceRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		badBody(w, err)
		return
	}
	state := uistate.Initial(s.svc.DefaultPageSize())
	if req.State != nil {
		state = *req.State
	}
	next, err := uistate.Reduce(state, req.Action)
	if err != nil {
		writeError(w, r, "reduce", err)
		return
	}
	NewResponse().JSON(next).Write(w)
}

func badBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large").Write(w)
	case errors.Is(err, errEmptyBody):
		BadRequestError(errEmptyBody.Error()).Write(w)
	default:
		BadRequestError("malformed JSON body").Write(w)
	}
}
