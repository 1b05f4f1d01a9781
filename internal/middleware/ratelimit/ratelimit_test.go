package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, perMin int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: perMin, CleanupInterval: time.Hour, Now: clock.Now})
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestAllowWithinWindow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("4th request allowed, want rejected")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other client rejected, want allowed")
	}
	if got := rl.GetMetrics().LimitedRequests; got != 1 {
		t.Errorf("LimitedRequests = %d, want 1", got)
	}
}

func TestWindowResets(t *testing.T) {
	rl, clock := newTestLimiter(t, 1)

	if !rl.Allow("a") {
		t.Fatal("first request rejected")
	}
	if rl.Allow("a") {
		t.Fatal("second request allowed")
	}

	// Rejected requests must not extend the window.
	clock.Advance(30 * time.Second)
	if rl.Allow("a") {
		t.Fatal("request mid-window allowed")
	}
	clock.Advance(30 * time.Second)
	if !rl.Allow("a") {
		t.Error("request after window rejected")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 10)
	rl.Allow("a")
	clock.Advance(5 * time.Minute)
	rl.Allow("b")
	clock.Advance(6 * time.Minute)

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients = %d, want 1", got)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	var limitedCalls int
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		limitedCalls++
		w.WriteHeader(http.StatusTooManyRequests)
	}
	h := rl.Middleware(func(r *http.Request) string { return "client" }, onLimit)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if limitedCalls != 1 {
		t.Errorf("onLimit called %d times, want 1", limitedCalls)
	}
}

func TestStopIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
