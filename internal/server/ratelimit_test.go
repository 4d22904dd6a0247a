package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qaforge/qaforge/internal/rag"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl, stop := newRateLimiter(1, 3, discardLogger())
	defer stop()

	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-burst request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl, stop := newRateLimiter(1, 1, discardLogger())
	defer stop()

	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Exhaust the first IP's bucket.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(rec, req)
	}

	// A different IP still has a full bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second IP: status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_EvictsStaleEntries(t *testing.T) {
	rl, stop := newRateLimiter(1, 1, discardLogger())
	defer stop()

	rl.getLimiter("10.0.0.1")
	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastSeen = time.Now().Add(-10 * time.Minute)
	rl.mu.Unlock()

	rl.evict()

	rl.mu.Lock()
	_, ok := rl.limiters["10.0.0.1"]
	rl.mu.Unlock()
	if ok {
		t.Error("stale entry survived eviction")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:5000", "10.0.0.1"},
		{"[::1]:5000", "[::1]"},
		{"10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.addr
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestServer_RateLimitConfigApplied(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true, Text: "ответ"}}
	ts := newTestServer(t, fake, func(cfg *Config) {
		cfg.RateLimit = 1
		cfg.RateBurst = 1
	})

	first := postJSON(t, ts.URL+"/api/ask", `{"question":"Как вернуть товар в магазин?"}`)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", first.StatusCode)
	}
	second := postJSON(t, ts.URL+"/api/ask", `{"question":"Как вернуть товар в магазин?"}`)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", second.StatusCode)
	}
}
