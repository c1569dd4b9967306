// Package server exposes the recommender over a small JSON HTTP API with
// liveness, readiness and Prometheus endpoints. It is started by the
// `bookrec serve` command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// New constructs a Server around rec.
func New(rec Recommender, cfg *Config) (*Server, error) {
	if rec == nil {
		return nil, fmt.Errorf("server: recommender must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.RequestTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		rec:     rec,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log, s.metrics.rateLimitedTotal)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.instrument(s.routes(rl))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the mux. Only the generation endpoint is rate limited; the
// read paths are cheap.
func (s *Server) routes(rl *rateLimiter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/recommend", rl.middleware(http.HandlerFunc(s.handleRecommend)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	if s.cfg.Interactions != nil {
		mux.HandleFunc("GET /api/interactions", s.handleInteractions)
		mux.HandleFunc("GET /api/interactions/{id}", s.handleInteraction)
		mux.HandleFunc("GET /api/stats/citations", s.handleCitationStats)
	}
	if s.cfg.Books != nil {
		mux.HandleFunc("GET /api/books/{id}/similar", s.handleSimilar)
		mux.HandleFunc("GET /api/distance", s.handleDistance)
	}
	return mux
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("bookrec server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// statusClientClosedRequest is the non-standard code logged when the caller
// disconnects before the answer is ready.
const statusClientClosedRequest = 499

// statusFor maps a classified failure onto an HTTP status.
func statusFor(err error, f rag.Failure) int {
	switch f.Kind {
	case rag.KindInvalidRequest:
		return http.StatusBadRequest
	case rag.KindInvalidMode:
		return http.StatusUnprocessableEntity
	case rag.KindEmbedding:
		return http.StatusBadGateway
	case rag.KindIndexUnavailable:
		return http.StatusServiceUnavailable
	case rag.KindGeneration:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case rag.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError classifies err and writes it as a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := rag.Classify(err)
	status := statusFor(err, f)
	if f.Retryable {
		w.Header().Set("Retry-After", "5")
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			slog.String("kind", string(f.Kind)),
			slog.Any("error", err),
		)
	}
	writeJSON(w, r, status, errorResponse{Error: f})
}

// badRequest writes a 400 for malformed input caught before the pipeline.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: rag.Failure{Kind: rag.KindInvalidRequest, Message: msg}})
}
