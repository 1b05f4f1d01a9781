package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/metrics"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/services"
)

type Server struct {
	http.Server
	svc      *services.ExpenseService
	logger   *log.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	resolver *security.IPResolver
	currency core.Currency
	started  time.Time

	rateLimitPerMin int
	readyTimeout    time.Duration
}

type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l.WithComponent(log.ComponentHTTP) }
}

// WithMetrics also mounts GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimitPerMin = perMinute }
}

// WithIPResolver sets how client addresses are derived behind proxies.
func WithIPResolver(r *security.IPResolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithCurrency sets the currency used by the XLSX export.
func WithCurrency(c core.Currency) Option {
	return func(s *Server) { s.currency = c }
}

// NewServer wires the routes and middleware. The handler speaks HTTP/1.1
// and cleartext HTTP/2.
func NewServer(addr string, svc *services.ExpenseService, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		logger:       log.Default().WithComponent(log.ComponentHTTP),
		resolver:     security.MustIPResolver(security.DefaultTrustedProxies...),
		currency:     core.DefaultCurrency,
		started:      time.Now(),
		readyTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimitPerMin})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.routes(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.limiter.Middleware(s.resolver.ClientIP, s.onRateLimited)(h))
	}
	api("GET /api/categories", s.handleCategories)

	api("GET /api/expenses", s.handleListExpenses)
	api("POST /api/expenses", s.handleCreateExpense)
	api("DELETE /api/expenses", s.handleClearExpenses)
	api("GET /api/expenses/recent", s.handleRecentExpenses)
	api("GET /api/expenses/export", s.handleExportExpenses)
	api("GET /api/expenses/{id}", s.handleGetExpense)
	api("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	api("PUT /api/expenses/{id}", s.handleReplaceExpense)
	api("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	api("GET /api/stats", s.handleStats)
	api("GET /api/stats/daily", s.handleDailySeries)
	api("GET /api/stats/monthly", s.handleMonthlySeries)
	api("GET /api/stats/categories", s.handleCategoryBreakdown)
	api("GET /api/stats/periods", s.handlePeriods)

	api("POST /api/ui/reduce", s.handleReduceUIState)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.resolver.ClientIP, s.logger, s.metrics)
	return tracer.Middleware(headers.Middleware(mux))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit)
	logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.resolver.ClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// ListenAndServe runs until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
