package recommender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus instruments owned by a Recommender.
type metrics struct {
	// requestsTotal counts Answer calls by outcome: a response status
	// ("ok", "no_matches") or an error kind.
	requestsTotal *prometheus.CounterVec

	// durationSeconds records the wall-clock duration of Answer.
	durationSeconds *prometheus.HistogramVec

	// retrievalSeconds records retrieval latency.
	retrievalSeconds prometheus.Histogram

	// attemptsTotal counts individual model calls by result.
	attemptsTotal *prometheus.CounterVec

	// droppedCitations counts model picks rejected for citing a book that
	// was not in the grounding context.
	droppedCitations prometheus.Counter

	// fallbackTotal counts responses that cited the top candidate because
	// the model cited nothing valid.
	fallbackTotal prometheus.Counter

	// recordFailures counts interaction writes that failed.
	recordFailures prometheus.Counter

	// breakerState mirrors the generation circuit breaker: 0 closed,
	// 1 half-open, 2 open.
	breakerState prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrec",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total number of recommendation requests, partitioned by outcome.",
		}, []string{"outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookrec",
			Subsystem: "recommend",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of recommendation requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		retrievalSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookrec",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Latency of query embedding plus vector search.",
			Buckets:   prometheus.DefBuckets,
		}),

		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrec",
			Subsystem: "generation",
			Name:      "attempts_total",
			Help:      "Model calls, partitioned by result: ok, error, timeout or rejected.",
		}, []string{"result"}),

		droppedCitations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrec",
			Subsystem: "recommend",
			Name:      "dropped_citations_total",
			Help:      "Citations removed because the book was not in the grounding context.",
		}),

		fallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrec",
			Subsystem: "recommend",
			Name:      "fallback_citations_total",
			Help:      "Responses that cited the top candidate because the model cited nothing valid.",
		}),

		recordFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrec",
			Subsystem: "interactions",
			Name:      "record_failures_total",
			Help:      "Interaction records that could not be written.",
		}),

		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bookrec",
			Subsystem: "generation",
			Name:      "breaker_state",
			Help:      "Generation circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
	}
}
