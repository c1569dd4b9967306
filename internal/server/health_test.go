package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// fakeHealthChecker stands in for a provider.HealthChecker.
type fakeHealthChecker struct{ err error }

func (f *fakeHealthChecker) HealthCheck(_ context.Context) error { return f.err }

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil, nil)
	w := do(t, s, http.MethodGet, "/api/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Version == "" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
		wantFailed []string
	}{
		{
			name:       "no pingers",
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name: "all healthy",
			pingers: []Pinger{
				&fakePinger{name: "qdrant"},
				&fakePinger{name: "interactions"},
				NewLLMPinger(&fakeHealthChecker{}, "ollama"),
			},
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name: "store down",
			pingers: []Pinger{
				&fakePinger{name: "qdrant"},
				&fakePinger{name: "interactions", err: errors.New("database is locked")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"interactions"},
		},
		{
			name: "llm down",
			pingers: []Pinger{
				NewLLMPinger(&fakeHealthChecker{err: errors.New("401 Unauthorized")}, "openai"),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"openai"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t, nil, func(c *Config) { c.Pingers = tc.pingers })

			w := do(t, s, http.MethodGet, "/api/ready", "")
			if w.Code != tc.wantStatus {
				t.Fatalf("want %d, got %d: %s", tc.wantStatus, w.Code, w.Body.String())
			}
			var resp readyResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: want %v, got %v", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.pingers) {
				t.Fatalf("want %d checks, got %d", len(tc.pingers), len(resp.Checks))
			}
			var failed []string
			for _, c := range resp.Checks {
				if !c.OK {
					failed = append(failed, c.Name)
					if c.Error == "" {
						t.Errorf("check %q failed without an error message", c.Name)
					}
				}
			}
			if len(failed) != len(tc.wantFailed) {
				t.Fatalf("failed checks: want %v, got %v", tc.wantFailed, failed)
			}
			for i := range failed {
				if failed[i] != tc.wantFailed[i] {
					t.Errorf("failed[%d]: want %q, got %q", i, tc.wantFailed[i], failed[i])
				}
			}
		})
	}
}

func TestHandleReady_ChecksNeverNull(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if got := w.Body.String(); got != "{\"ready\":true,\"checks\":[]}\n" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestLLMPinger(t *testing.T) {
	t.Parallel()

	if err := NewLLMPinger(nil, "bedrock").Ping(t.Context()); err != nil {
		t.Errorf("nil checker should be a no-op, got %v", err)
	}

	p := NewLLMPinger(&fakeHealthChecker{err: errors.New("connection refused")}, "ollama")
	if p.Name() != "ollama" {
		t.Errorf("name: got %q", p.Name())
	}
	if err := p.Ping(t.Context()); err == nil {
		t.Error("expected error from failing checker")
	}
}

func TestMultiPinger(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	m := NewMultiPinger(&fakePinger{name: "a"}, &fakePinger{name: "b", err: boom}, &fakePinger{name: "c"})
	err := m.Ping(t.Context())
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped boom, got %v", err)
	}
	if err.Error() != "b: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
