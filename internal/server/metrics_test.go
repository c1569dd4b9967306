package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterWithLabels returns the value of the named counter whose labels
// include all of want, or -1 if absent.
func counterWithLabels(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestMetrics_Endpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil, nil)
	do(t, s, http.MethodGet, "/api/health", "")

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "bookrec_http_requests_total") {
		t.Error("scrape is missing bookrec_http_requests_total")
	}
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t, nil, func(c *Config) { c.Interactions = &fakeInteractions{} })

	do(t, s, http.MethodGet, "/api/interactions/a", "")
	do(t, s, http.MethodGet, "/api/interactions/b", "")
	do(t, s, http.MethodGet, "/no/such/route", "")

	got := counterWithLabels(t, reg, "bookrec_http_requests_total", map[string]string{
		"handler": "GET /api/interactions/{id}",
		"code":    "404",
	})
	if got != 2 {
		t.Errorf("want 2 requests under the route pattern, got %v", got)
	}

	if got := counterWithLabels(t, reg, "bookrec_http_requests_total", map[string]string{"handler": "unmatched"}); got != 1 {
		t.Errorf("want 1 unmatched request, got %v", got)
	}
}

func TestMetrics_RateLimitedCounter(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t, nil, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	for range 3 {
		do(t, s, http.MethodPost, "/api/recommend", `{"text":"x"}`)
	}

	if got := counterWithLabels(t, reg, "bookrec_http_rate_limited_total", nil); got != 2 {
		t.Errorf("want 2 rejections, got %v", got)
	}
}
