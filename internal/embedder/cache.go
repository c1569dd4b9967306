package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Cached memoises embeddings per text so repeated queries, such as a
// follow-up "give me an alternative", skip the embedding round trip.
// Only texts that miss are sent to the wrapped embedder, in one batch.
type Cached struct {
	// next is the wrapped embedder.
	next rag.Embedder
	// model namespaces keys so a model change never returns stale vectors.
	model string
	// cache holds []float32 values keyed by model and text.
	cache *cache.Cache
}

// NewCached wraps next with a TTL cache.
func NewCached(next rag.Embedder, model string, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		model: model,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) key(text string) string { return c.model + "\x00" + text }

// Embed implements rag.Embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("embedder: cache: expected %d embeddings, got %d", len(missText), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.SetDefault(c.key(missText[j]), vecs[j])
	}
	return out, nil
}

// Len reports the number of cached entries, including expired ones not yet
// cleaned up.
func (c *Cached) Len() int { return c.cache.ItemCount() }
