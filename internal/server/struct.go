package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
	"github.com/BiancaGL2104/rag-book-recommender/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed RequestTimeout.
	WriteTimeout time.Duration
	// RequestTimeout bounds a single POST /api/recommend (default: 3m).
	RequestTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/recommend (requests/second). Defaults to 2 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 5 if zero.
	RateBurst int
	// Interactions serves the analytics read paths. Those routes are not
	// registered when nil.
	Interactions InteractionReader
	// Books serves the similarity-graph read paths. Those routes are not
	// registered when nil.
	Books BookGraph
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Recommender answers recommendation queries. *recommender.Recommender
// satisfies it; tests inject a fake.
type Recommender interface {
	Answer(ctx context.Context, q rag.Query) (*rag.Response, error)
}

// InteractionReader is the read side of the interaction log.
// *store.SQLiteStore satisfies it.
type InteractionReader interface {
	Get(ctx context.Context, id string) (*rag.InteractionRecord, error)
	Recent(ctx context.Context, n int) ([]rag.InteractionRecord, error)
	CitationCounts(ctx context.Context, limit int) ([]store.CitationCount, error)
}

// BookGraph answers neighbourhood questions over the index.
// *rag.DefaultRetriever satisfies it.
type BookGraph interface {
	Similar(ctx context.Context, bookID string, k int) (rag.RetrievalResult, error)
	PairwiseDistance(ctx context.Context, idA, idB string) (float64, error)
	// DefaultK is the neighbour count used when the request sets none.
	DefaultK() int
	// MaxK is the largest neighbour count accepted.
	MaxK() int
}

// Server is the HTTP server that exposes the recommender.
type Server struct {
	// rec answers POST /api/recommend.
	rec Recommender
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// distanceResponse is the JSON body for GET /api/distance.
type distanceResponse struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
}

// errorResponse wraps a classified failure.
type errorResponse struct {
	Error rag.Failure `json:"error"`
}
