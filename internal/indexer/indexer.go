// Package indexer implements the offline index build: every catalog book's
// retrieval text is embedded in batches, normalised, and written out as a
// flat index artifact, optionally also published to a Qdrant collection.
// It is invoked by the `bookrec index build` CLI command and never runs
// while the recommender is serving.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/index"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Config holds the configuration for the index builder.
type Config struct {
	// BatchSize is the number of books embedded per request.
	// Defaults to 32 if zero.
	BatchSize int

	// MaxRetries bounds retries per failed batch. Defaults to 3 if zero;
	// negative disables retries.
	MaxRetries int

	// InitialBackoff is the first retry delay. Defaults to 500ms if zero.
	InitialBackoff time.Duration

	// EmbeddingModel is recorded in the manifest.
	EmbeddingModel string

	// Now stamps the manifest. Defaults to time.Now.
	Now func() time.Time
}

// Publisher receives the built rows, e.g. an index.Qdrant collection.
type Publisher interface {
	Publish(ctx context.Context, rows [][]float32) error
}

// Builder orchestrates the catalog → embed → artifact flow.
type Builder struct {
	// embedder converts retrieval texts into vectors.
	embedder rag.Embedder

	// cfg holds the resolved builder configuration.
	cfg *Config
}

// NewBuilder constructs a Builder from the provided dependencies and config.
func NewBuilder(embedder rag.Embedder, cfg *Config) (*Builder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{embedder: embedder, cfg: cfg}, nil
}

// Build embeds every book in cat, in catalog ID order, and returns the flat
// index. Progress is reported via the optional progress callback.
func (b *Builder) Build(ctx context.Context, cat *catalog.Store, progress func(msg string)) (*index.Flat, error) {
	if progress == nil {
		progress = func(string) {}
	}
	ids := cat.IDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("indexer: catalog is empty")
	}

	rows := make([][]float32, 0, len(ids))
	for start := 0; start < len(ids); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(ids))

		texts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			book, _ := cat.Get(id)
			texts = append(texts, book.RetrievalText())
		}

		vecs, err := b.embedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("indexer: embed books [%d,%d): %w", start, end, err)
		}

		for i, v := range vecs {
			n, ok := rag.Normalize(v)
			if !ok {
				return nil, fmt.Errorf("indexer: book %q produced an unusable embedding", ids[start+i])
			}
			if len(rows) > 0 && len(n) != len(rows[0]) {
				return nil, fmt.Errorf("indexer: book %q has dimension %d, earlier books %d", ids[start+i], len(n), len(rows[0]))
			}
			rows = append(rows, n)
		}
		progress(fmt.Sprintf("embedded %d/%d books", end, len(ids)))
	}

	flat, err := index.NewFlat(index.Manifest{
		Dimension:      len(rows[0]),
		Metric:         rag.MetricCosine,
		EmbeddingModel: b.cfg.EmbeddingModel,
		BookIDs:        ids,
		CreatedAt:      b.cfg.Now().UTC(),
	}, rows)
	if err != nil {
		return nil, fmt.Errorf("indexer: assemble index: %w", err)
	}
	return flat, nil
}

// embedBatch embeds texts, retrying transient failures with exponential
// backoff. Caller cancellation stops retrying immediately.
func (b *Builder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.FromContext(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.InitialBackoff
	eb.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(b.cfg.MaxRetries)), ctx)

	var out [][]float32
	op := func() error {
		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs)))
		}
		out = vecs
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("indexer: embedding batch failed, retrying",
			slog.Int("batch_size", len(texts)),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// Write saves flat into dir and, when pub is non-nil, publishes the same
// rows to it. The artifact is written first so a failed publish still
// leaves a usable flat index.
func Write(ctx context.Context, flat *index.Flat, dir string, pub Publisher) error {
	if err := flat.Save(dir); err != nil {
		return fmt.Errorf("indexer: save artifact: %w", err)
	}
	if pub == nil {
		return nil
	}
	if err := pub.Publish(ctx, flat.Rows()); err != nil {
		return fmt.Errorf("indexer: publish: %w", err)
	}
	return nil
}
