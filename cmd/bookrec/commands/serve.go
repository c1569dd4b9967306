package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/server"
	"github.com/BiancaGL2104/rag-book-recommender/internal/tracing"
)

// NewServeCmd constructs `bookrec serve`, which exposes the recommender over
// HTTP until interrupted.
func NewServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		rateLimit float64
		rateBurst int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recommender over a JSON HTTP API",
		Long: `Start the bookrec HTTP server.

Endpoints:
  POST /api/recommend               answer a request (rate limited per IP)
  GET  /api/interactions            recent interaction records
  GET  /api/interactions/{id}       one interaction record
  GET  /api/stats/citations         most recommended books
  GET  /api/books/{id}/similar      nearest catalog neighbours of a book
  GET  /api/distance?a=ID&b=ID      cosine distance between two books
  GET  /api/health, /api/ready      liveness and readiness
  GET  /metrics                     Prometheus metrics

The catalog, index and embedder are checked for consistency before the
listener opens; a mismatch aborts startup.

Examples:
  bookrec serve
  bookrec serve --port 9090
  BOOKREC_INDEX_BACKEND=qdrant MODEL_PROVIDER=openai bookrec serve`,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			// Flags win; otherwise the env, which a YAML file may have set.
			host = firstNonEmpty(host, getEnvOrDefault("BOOKREC_HOST", "127.0.0.1"))
			var errs []error
			if port == 0 {
				port, err = getEnvInt("BOOKREC_PORT", 8080)
				errs = append(errs, err)
			}
			if rateLimit == 0 {
				rateLimit, err = getEnvFloat("BOOKREC_RATE_LIMIT", 0)
				errs = append(errs, err)
			}
			if rateBurst == 0 {
				rateBurst, err = getEnvInt("BOOKREC_RATE_BURST", 0)
				errs = append(errs, err)
			}
			if err := errors.Join(errs...); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			flush, traced := tracing.Setup(tracing.ConfigFromEnv())
			defer flush()
			log.Info("langfuse tracing", slog.Bool("enabled", traced))

			a, err := buildApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			cfg := &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   a.pingers,
				RateLimit: rateLimit,
				RateBurst: rateBurst,
				Books:     a.retriever,
			}
			if a.interactions != nil {
				cfg.Interactions = a.interactions
			}

			srv, err := server.New(a.rec, cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (env BOOKREC_HOST, default 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (env BOOKREC_PORT, default 8080)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Recommend requests per second per IP (env BOOKREC_RATE_LIMIT, default 2)")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 0, "Burst size per IP (env BOOKREC_RATE_BURST, default 5)")

	return cmd
}
