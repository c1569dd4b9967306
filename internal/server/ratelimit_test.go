package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newTestLimiter(t *testing.T, rps float64, burst int) (*rateLimiter, prometheus.Counter) {
	t.Helper()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected"})
	rl, stop := newRateLimiter(rps, burst, slog.New(slog.NewTextHandler(io.Discard, nil)), c)
	t.Cleanup(stop)
	return rl, c
}

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/recommend", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, 0.001, 3)
	h := rl.middleware(okHandler)

	for i := range 3 {
		if code := hit(h, "10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, code)
		}
	}
	if code := hit(h, "10.0.0.1:1000"); code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: want 429, got %d", code)
	}
}

func TestRateLimit_RejectionHeadersAndBody(t *testing.T) {
	t.Parallel()

	rl, c := newTestLimiter(t, 0.001, 1)
	h := rl.middleware(okHandler)
	hit(h, "10.0.0.2:1234")

	req := httptest.NewRequest(http.MethodPost, "/api/recommend", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if got := counterValueOf(t, c); got != 1 {
		t.Errorf("rejected counter: want 1, got %v", got)
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, 0.001, 1)
	h := rl.middleware(okHandler)

	for range 3 {
		hit(h, "192.168.1.1:1111")
	}
	if code := hit(h, "192.168.1.2:2222"); code != http.StatusOK {
		t.Errorf("second IP should have its own bucket, got %d", code)
	}
	// Same host on a different source port shares the bucket.
	if code := hit(h, "192.168.1.1:3333"); code != http.StatusTooManyRequests {
		t.Errorf("port must not reset the bucket, got %d", code)
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, 1, 1)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("1.1.1.1")
	now = now.Add(limiterIdleTTL / 2)
	rl.allow("2.2.2.2")
	now = now.Add(limiterIdleTTL/2 + time.Second)

	if n := rl.evict(); n != 1 {
		t.Fatalf("want 1 evicted bucket, got %d", n)
	}
	if _, ok := rl.buckets["2.2.2.2"]; !ok {
		t.Error("recently seen bucket was evicted")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"[2001:db8::7]:443", "2001:db8::7"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("RemoteAddr %q: want %q, got %q", tc.remoteAddr, tc.want, got)
		}
	}
}

func counterValueOf(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	return mfs[0].GetMetric()[0].GetCounter().GetValue()
}
