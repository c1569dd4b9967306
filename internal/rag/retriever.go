package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
)

const (
	// DefaultTopK is the number of candidates retrieved when the caller
	// does not ask for a specific k.
	DefaultTopK = 5
	// DefaultMaxK bounds k so context building stays cheap.
	DefaultMaxK = 50

	// consistencyProbe is embedded once at startup to learn the embedder's
	// output dimension.
	consistencyProbe = "dimension probe"
)

// RerankWeights blends similarity with catalog signals. All-zero weights
// disable reranking.
type RerankWeights struct {
	// Similarity weighs the cosine similarity.
	Similarity float64
	// Rating weighs the reader rating normalised to [0,1].
	Rating float64
	// Genre weighs the share of the book's genres named in the query.
	Genre float64
}

// Enabled reports whether any weight is non-zero.
func (w RerankWeights) Enabled() bool {
	return w.Similarity != 0 || w.Rating != 0 || w.Genre != 0
}

// DefaultRerankWeights are the blend weights used when reranking is
// switched on without explicit values.
var DefaultRerankWeights = RerankWeights{Similarity: 0.7, Rating: 0.2, Genre: 0.1}

// RetrieverConfig holds the tunables for DefaultRetriever.
type RetrieverConfig struct {
	// DefaultK is used by callers that pass k=0 through DefaultK().
	// Defaults to DefaultTopK if zero.
	DefaultK int
	// MaxK is the hard ceiling on k. Defaults to DefaultMaxK if zero.
	MaxK int
	// MinScore is the relevance floor: candidates whose similarity falls
	// below it are dropped. Zero keeps everything with positive similarity.
	MinScore float64
	// Rerank optionally blends rating and genre overlap into the score.
	Rerank RerankWeights
}

// DefaultRetriever implements Retriever by combining an Embedder, a
// VectorIndex and the catalog.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder
	// index performs the nearest-neighbour search. May be nil, in which case
	// every call fails with ErrIndexUnavailable.
	index VectorIndex
	// catalog resolves index hits to books.
	catalog *catalog.Store
	// cfg holds the resolved configuration.
	cfg RetrieverConfig
}

// NewRetriever constructs a DefaultRetriever. A nil index is accepted so the
// caller can surface ErrIndexUnavailable per request instead of at build
// time; startup code should call CheckConsistency to fail fast instead.
func NewRetriever(embedder Embedder, index VectorIndex, cat *catalog.Store, cfg *RetrieverConfig) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("rag: catalog must not be nil")
	}
	if cfg == nil {
		cfg = &RetrieverConfig{}
	}
	c := *cfg
	if c.DefaultK <= 0 {
		c.DefaultK = DefaultTopK
	}
	if c.MaxK <= 0 {
		c.MaxK = DefaultMaxK
	}
	if c.DefaultK > c.MaxK {
		c.DefaultK = c.MaxK
	}
	return &DefaultRetriever{embedder: embedder, index: index, catalog: cat, cfg: c}, nil
}

// DefaultK returns the configured default result size.
func (r *DefaultRetriever) DefaultK() int { return r.cfg.DefaultK }

// MaxK returns the configured ceiling on k.
func (r *DefaultRetriever) MaxK() int { return r.cfg.MaxK }

// Retrieve embeds query and returns at most k ranked candidates.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, k int) (RetrievalResult, error) {
	if err := r.checkK(k); err != nil {
		return RetrievalResult{}, err
	}
	text := strings.TrimSpace(query)
	if text == "" {
		return RetrievalResult{}, fmt.Errorf("rag: empty query: %w", ErrEmbedding)
	}
	if r.index == nil {
		return RetrievalResult{}, fmt.Errorf("rag: no vector index loaded: %w", ErrIndexUnavailable)
	}

	embeddings, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		if ctx.Err() != nil {
			return RetrievalResult{}, fmt.Errorf("rag: embedding query: %w", ctx.Err())
		}
		return RetrievalResult{}, fmt.Errorf("rag: embedding query: %w: %w", ErrEmbeddingBackend, err)
	}
	if len(embeddings) == 0 {
		return RetrievalResult{}, fmt.Errorf("rag: embedder returned no vector: %w", ErrEmbedding)
	}
	vec, ok := Normalize(embeddings[0])
	if !ok {
		return RetrievalResult{}, fmt.Errorf("rag: query embedding has zero norm: %w", ErrEmbedding)
	}
	if len(vec) != r.index.Dimension() {
		return RetrievalResult{}, fmt.Errorf("rag: query dimension %d does not match index dimension %d: %w",
			len(vec), r.index.Dimension(), ErrIndexUnavailable)
	}

	items, err := r.search(ctx, vec, k, "")
	if err != nil {
		return RetrievalResult{}, err
	}
	if r.cfg.Rerank.Enabled() {
		rerank(items, text, r.cfg.Rerank)
	}
	return finalize(text, k, items), nil
}

// Similar returns up to k catalog books nearest to bookID, excluding the
// book itself.
func (r *DefaultRetriever) Similar(ctx context.Context, bookID string, k int) (RetrievalResult, error) {
	if err := r.checkK(k); err != nil {
		return RetrievalResult{}, err
	}
	if r.index == nil {
		return RetrievalResult{}, fmt.Errorf("rag: no vector index loaded: %w", ErrIndexUnavailable)
	}
	pos, ok := r.index.Position(bookID)
	if !ok {
		return RetrievalResult{}, fmt.Errorf("rag: book %q is not indexed: %w", bookID, ErrInvalidRequest)
	}
	vec, err := r.index.Vector(ctx, pos)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("rag: load vector for %q: %w: %w", bookID, ErrIndexUnavailable, err)
	}

	items, err := r.search(ctx, vec, k, bookID)
	if err != nil {
		return RetrievalResult{}, err
	}
	return finalize(bookID, k, items), nil
}

// PairwiseDistance returns the cosine distance between two catalog books.
func (r *DefaultRetriever) PairwiseDistance(ctx context.Context, idA, idB string) (float64, error) {
	if r.index == nil {
		return 0, fmt.Errorf("rag: no vector index loaded: %w", ErrIndexUnavailable)
	}
	for _, id := range []string{idA, idB} {
		if _, ok := r.index.Position(id); !ok {
			return 0, fmt.Errorf("rag: book %q is not indexed: %w", id, ErrInvalidRequest)
		}
	}
	d, err := r.index.PairwiseDistance(ctx, idA, idB)
	if err != nil {
		return 0, fmt.Errorf("rag: pairwise distance: %w: %w", ErrIndexUnavailable, err)
	}
	return d, nil
}

// CheckConsistency verifies at startup that the index is loaded, that the
// embedder's output dimension matches the index, and that every indexed ID
// exists in the catalog. Any mismatch wraps ErrIndexUnavailable and should
// abort startup.
func (r *DefaultRetriever) CheckConsistency(ctx context.Context) error {
	if r.index == nil {
		return fmt.Errorf("rag: no vector index loaded: %w", ErrIndexUnavailable)
	}
	for pos := 0; pos < r.index.Len(); pos++ {
		id, ok := r.index.BookID(pos)
		if !ok {
			return fmt.Errorf("rag: index position %d has no book id: %w", pos, ErrIndexUnavailable)
		}
		if _, ok := r.catalog.Get(id); !ok {
			return fmt.Errorf("rag: indexed book %q missing from catalog: %w", id, ErrIndexUnavailable)
		}
	}

	vecs, err := r.embedder.Embed(ctx, []string{consistencyProbe})
	if err != nil {
		return fmt.Errorf("rag: embedder probe failed: %w: %w", ErrIndexUnavailable, err)
	}
	if len(vecs) != 1 || len(vecs[0]) != r.index.Dimension() {
		got := 0
		if len(vecs) == 1 {
			got = len(vecs[0])
		}
		return fmt.Errorf("rag: embedder dimension %d does not match index dimension %d: %w",
			got, r.index.Dimension(), ErrIndexUnavailable)
	}
	return nil
}

// checkK enforces 0 < k <= MaxK.
func (r *DefaultRetriever) checkK(k int) error {
	if k <= 0 || k > r.cfg.MaxK {
		return fmt.Errorf("rag: k=%d outside [1, %d]: %w", k, r.cfg.MaxK, ErrInvalidRequest)
	}
	return nil
}

// search queries the index with some headroom, resolves positions to books
// and applies the relevance floor. skip is an ID to leave out (the anchor
// book for Similar).
func (r *DefaultRetriever) search(ctx context.Context, vec []float32, k int, skip string) ([]Candidate, error) {
	fetch := 2*k + 1
	if n := r.index.Len(); n > 0 && fetch > n {
		fetch = n
	}
	hits, err := r.index.Search(ctx, vec, fetch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rag: vector search: %w", ctx.Err())
		}
		return nil, fmt.Errorf("rag: vector search: %w: %w", ErrIndexUnavailable, err)
	}

	log := logging.FromContext(ctx)
	seen := make(map[string]bool, len(hits))
	items := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		id, ok := r.index.BookID(h.Position)
		if !ok {
			log.Warn("retriever: index returned unknown position", slog.Int("position", h.Position))
			continue
		}
		if id == skip || seen[id] {
			continue
		}
		book, ok := r.catalog.Get(id)
		if !ok {
			log.Warn("retriever: indexed book missing from catalog", slog.String("book_id", id))
			continue
		}
		sim := 1 - h.Distance
		if sim <= 0 || sim < r.cfg.MinScore {
			continue
		}
		seen[id] = true
		items = append(items, Candidate{Book: book, Score: sim, Similarity: sim, Distance: h.Distance})
	}
	return items, nil
}

// finalize sorts candidates by descending score with ties broken by book
// ID, truncates to k and assigns contiguous 1-based ranks.
func finalize(query string, k int, items []Candidate) RetrievalResult {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Book.ID < items[j].Book.ID
	})
	if len(items) > k {
		items = items[:k]
	}
	for i := range items {
		items[i].Rank = i + 1
	}
	return RetrievalResult{Query: query, K: k, Items: items}
}

// rerank replaces each candidate's Score with the weighted blend of
// similarity, normalised rating and genre overlap with the query.
func rerank(items []Candidate, query string, w RerankWeights) {
	q := strings.ToLower(query)
	for i := range items {
		b := items[i].Book
		rating := b.Rating / 5
		if rating > 1 {
			rating = 1
		}
		items[i].Score = w.Similarity*items[i].Similarity + w.Rating*rating + w.Genre*genreOverlap(q, b.Genres)
	}
}

// genreOverlap returns the share of genres mentioned in the lower-cased query.
func genreOverlap(query string, genres []string) float64 {
	if len(genres) == 0 {
		return 0
	}
	hits := 0
	for _, g := range genres {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" && strings.Contains(query, g) {
			hits++
		}
	}
	return float64(hits) / float64(len(genres))
}
