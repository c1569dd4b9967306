package recommender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker/v2"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Generation defaults.
const (
	DefaultGenerationTimeout = 60 * time.Second
	DefaultMaxAttempts       = 3
	DefaultBackoffBase       = 500 * time.Millisecond
	DefaultBackoffMax        = 8 * time.Second
	DefaultBreakerFailures   = 5
	DefaultBreakerCooldown   = 30 * time.Second
)

// GenerationConfig bounds each model call.
type GenerationConfig struct {
	// Timeout caps a single attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; it doubles per
	// retry up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// BreakerFailures consecutive failures open the circuit for
	// BreakerCooldown, during which calls fail immediately.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// OmitSampling suppresses temperature and max-token options for models
	// that reject them.
	OmitSampling bool
}

func (c GenerationConfig) withDefaults() GenerationConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultGenerationTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	return c
}

// generator wraps the chat model with a per-attempt timeout, bounded
// exponential backoff and a circuit breaker.
type generator struct {
	model   model.BaseChatModel
	cfg     GenerationConfig
	breaker *gobreaker.CircuitBreaker[*schema.Message]
	metrics *metrics
}

func newGenerator(m model.BaseChatModel, cfg GenerationConfig, met *metrics) *generator {
	cfg = cfg.withDefaults()
	g := &generator{model: m, cfg: cfg, metrics: met}
	g.breaker = gobreaker.NewCircuitBreaker[*schema.Message](gobreaker.Settings{
		Name:    "chat-model",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A caller walking away says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			met.breakerState.Set(float64(to))
			slog.Warn("recommender: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return g
}

// generate returns the model reply. Exhausted retries yield ErrGeneration;
// caller cancellation aborts at once with the context's error.
func (g *generator) generate(ctx context.Context, msgs []*schema.Message, p mode.Params) (*schema.Message, error) {
	var opts []model.Option
	if !g.cfg.OmitSampling {
		opts = append(opts, model.WithTemperature(p.Temperature), model.WithMaxTokens(p.MaxTokens))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.BackoffBase
	bo.Multiplier = 2
	bo.MaxInterval = g.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(g.cfg.MaxAttempts-1)), ctx)

	var (
		out     *schema.Message
		attempt int
	)
	op := func() error {
		attempt++
		msg, err := g.attempt(ctx, msgs, opts)
		switch {
		case err == nil:
			g.metrics.attemptsTotal.WithLabelValues("ok").Inc()
			out = msg
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			g.metrics.attemptsTotal.WithLabelValues("timeout").Inc()
			return err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			g.metrics.attemptsTotal.WithLabelValues("rejected").Inc()
			return backoff.Permanent(err)
		default:
			g.metrics.attemptsTotal.WithLabelValues("error").Inc()
			return err
		}
	}
	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("recommender: generation attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("recommender: generation aborted: %w", cerr)
		}
		return nil, fmt.Errorf("recommender: generation failed after %d attempt(s): %w: %w", attempt, rag.ErrGeneration, err)
	}
	return out, nil
}

// attempt runs one bounded call through the breaker.
func (g *generator) attempt(ctx context.Context, msgs []*schema.Message, opts []model.Option) (*schema.Message, error) {
	actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	return g.breaker.Execute(func() (*schema.Message, error) {
		msg, err := g.model.Generate(actx, msgs, opts...)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, errors.New("model returned no message")
		}
		return msg, nil
	})
}
