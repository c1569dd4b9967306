package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	// fallback is returned for unknown texts.
	fallback []float32
	err      error
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = f.fallback
		}
	}
	return out, nil
}

// memIndex is a brute-force VectorIndex over normalised vectors.
type memIndex struct {
	ids  []string
	vecs [][]float32
	err  error
}

func newMemIndex(t *testing.T, rows map[string][]float32) *memIndex {
	t.Helper()
	idx := &memIndex{}
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v, ok := Normalize(rows[id])
		if !ok {
			t.Fatalf("bad vector for %s", id)
		}
		idx.ids = append(idx.ids, id)
		idx.vecs = append(idx.vecs, v)
	}
	return idx
}

func (m *memIndex) Search(_ context.Context, vector []float32, k int) ([]Neighbor, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Neighbor, len(m.vecs))
	for i, v := range m.vecs {
		out[i] = Neighbor{Position: i, Distance: CosineDistance(vector, v)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) PairwiseDistance(_ context.Context, a, b string) (float64, error) {
	pa, _ := m.Position(a)
	pb, _ := m.Position(b)
	return CosineDistance(m.vecs[pa], m.vecs[pb]), nil
}

func (m *memIndex) Vector(_ context.Context, pos int) ([]float32, error) {
	if pos < 0 || pos >= len(m.vecs) {
		return nil, fmt.Errorf("position %d out of range", pos)
	}
	return m.vecs[pos], nil
}

func (m *memIndex) BookID(pos int) (string, bool) {
	if pos < 0 || pos >= len(m.ids) {
		return "", false
	}
	return m.ids[pos], true
}

func (m *memIndex) Position(id string) (int, bool) {
	for i, x := range m.ids {
		if x == id {
			return i, true
		}
	}
	return 0, false
}

func (m *memIndex) Dimension() int { return len(m.vecs[0]) }
func (m *memIndex) Len() int       { return len(m.vecs) }

const cozyQuery = "cozy mystery with a female detective"

// newScenario builds three mystery books and two romance books, with the
// query embedding close to the mystery direction.
func newScenario(t *testing.T) (*fakeEmbedder, *memIndex, *catalog.Store) {
	t.Helper()
	cat, err := catalog.New([]catalog.Book{
		{ID: "m1", Title: "The Vicarage Puzzle", Genres: []string{"Mystery"}, Rating: 4.5},
		{ID: "m2", Title: "Tea and Alibis", Genres: []string{"Mystery", "Cozy"}, Rating: 3.8},
		{ID: "m3", Title: "Knit One, Kill Two", Genres: []string{"Mystery"}, Rating: 4.0},
		{ID: "r1", Title: "Summer Hearts", Genres: []string{"Romance"}, Rating: 4.9},
		{ID: "r2", Title: "Paris Again", Genres: []string{"Romance"}, Rating: 4.2},
	})
	if err != nil {
		t.Fatal(err)
	}
	idx := newMemIndex(t, map[string][]float32{
		"m1": {1, 0.05, 0},
		"m2": {1, 0.15, 0},
		"m3": {1, 0.30, 0},
		"r1": {0.2, 1, 0},
		"r2": {0.1, 1, 0.2},
	})
	emb := &fakeEmbedder{
		vectors: map[string][]float32{cozyQuery: {1, 0.1, 0}},
		// Unknown texts point at the romance corner.
		fallback: []float32{0, 1, 0},
	}
	return emb, idx, cat
}

func TestRetrieve_MysteryRanksAboveRomance(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	r, err := NewRetriever(emb, idx, cat, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Retrieve(t.Context(), cozyQuery, 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Items) != 5 {
		t.Fatalf("got %d items, want 5", len(res.Items))
	}
	for i, c := range res.Items[:3] {
		if c.Book.Genres[0] != "Mystery" {
			t.Errorf("rank %d is %s, want a mystery", i+1, c.Book.ID)
		}
	}
	assertResultInvariants(t, res, 5)
}

func TestRetrieve_Invariants(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	r, err := NewRetriever(emb, idx, cat, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k <= 7; k++ {
		res, err := r.Retrieve(t.Context(), cozyQuery, k)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		assertResultInvariants(t, res, k)
	}
}

// assertResultInvariants checks size, score ordering, rank contiguity and ID
// uniqueness.
func assertResultInvariants(t *testing.T, res RetrievalResult, k int) {
	t.Helper()
	if len(res.Items) > k {
		t.Errorf("len=%d exceeds k=%d", len(res.Items), k)
	}
	seen := map[string]bool{}
	for i, c := range res.Items {
		if c.Rank != i+1 {
			t.Errorf("item %d has rank %d", i, c.Rank)
		}
		if i > 0 && c.Score > res.Items[i-1].Score {
			t.Errorf("score increases at rank %d", c.Rank)
		}
		if seen[c.Book.ID] {
			t.Errorf("duplicate book %s", c.Book.ID)
		}
		seen[c.Book.ID] = true
	}
}

func TestRetrieve_TiesBrokenByID(t *testing.T) {
	t.Parallel()

	cat, _ := catalog.New([]catalog.Book{{ID: "b"}, {ID: "a"}, {ID: "c"}})
	idx := newMemIndex(t, map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
		"c": {0.5, 1},
	})
	emb := &fakeEmbedder{fallback: []float32{1, 0}}
	r, _ := NewRetriever(emb, idx, cat, nil)

	res, err := r.Retrieve(t.Context(), "anything", 3)
	if err != nil {
		t.Fatal(err)
	}
	got := res.BookIDs()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	t.Parallel()

	_, idx, cat := newScenario(t)
	tests := []struct {
		name    string
		emb     *fakeEmbedder
		index   VectorIndex
		query   string
		k       int
		wantErr error
	}{
		{"k zero", &fakeEmbedder{fallback: []float32{1, 0, 0}}, idx, "q", 0, ErrInvalidRequest},
		{"k above ceiling", &fakeEmbedder{fallback: []float32{1, 0, 0}}, idx, "q", DefaultMaxK + 1, ErrInvalidRequest},
		{"empty query", &fakeEmbedder{fallback: []float32{1, 0, 0}}, idx, "   ", 3, ErrEmbedding},
		{"embedder failure", &fakeEmbedder{err: errors.New("connection refused")}, idx, "q", 3, ErrEmbedding},
		{"zero vector", &fakeEmbedder{fallback: []float32{0, 0, 0}}, idx, "q", 3, ErrEmbedding},
		{"no index", &fakeEmbedder{fallback: []float32{1, 0, 0}}, nil, "q", 3, ErrIndexUnavailable},
		{"index failure", &fakeEmbedder{fallback: []float32{1, 0, 0}}, &memIndex{err: errors.New("boom"), vecs: [][]float32{{1, 0, 0}}}, "q", 3, ErrIndexUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRetriever(tc.emb, tc.index, cat, nil)
			if err != nil {
				t.Fatal(err)
			}
			_, err = r.Retrieve(t.Context(), tc.query, tc.k)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Retrieve() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRetrieve_EmbeddingRetryability(t *testing.T) {
	t.Parallel()

	_, idx, cat := newScenario(t)

	failing, _ := NewRetriever(&fakeEmbedder{err: errors.New("503 service unavailable")}, idx, cat, nil)
	_, err := failing.Retrieve(t.Context(), "q", 3)
	if f := Classify(err); f.Kind != KindEmbedding || !f.Retryable {
		t.Errorf("backend failure classified as %+v, want retryable embedding_error", f)
	}

	ok, _ := NewRetriever(&fakeEmbedder{fallback: []float32{1, 0, 0}}, idx, cat, nil)
	_, err = ok.Retrieve(t.Context(), "  ", 3)
	if f := Classify(err); f.Kind != KindEmbedding || f.Retryable {
		t.Errorf("empty query classified as %+v, want non-retryable embedding_error", f)
	}
}

func TestRetrieve_NilIndexDoesNotEmbed(t *testing.T) {
	t.Parallel()

	_, _, cat := newScenario(t)
	emb := &fakeEmbedder{fallback: []float32{1, 0, 0}}
	r, _ := NewRetriever(emb, nil, cat, nil)
	if _, err := r.Retrieve(t.Context(), "q", 3); !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times", emb.calls)
	}
}

func TestRetrieve_RelevanceFloor(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	r, _ := NewRetriever(emb, idx, cat, &RetrieverConfig{MinScore: 0.999})

	// The fallback vector sits in the romance corner with similarity < 0.999
	// to every book.
	res, err := r.Retrieve(t.Context(), "spaceships", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() {
		t.Errorf("expected empty result above floor, got %v", res.BookIDs())
	}
}

func TestRetrieve_Rerank(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	// Rating-only weights: the highest-rated book must come first.
	r, _ := NewRetriever(emb, idx, cat, &RetrieverConfig{Rerank: RerankWeights{Rating: 1}})
	res, err := r.Retrieve(t.Context(), cozyQuery, 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].Book.ID != "r1" {
		t.Errorf("top = %s, want r1 (rating 4.9)", res.Items[0].Book.ID)
	}
	assertResultInvariants(t, res, 5)
}

func TestGenreOverlap(t *testing.T) {
	t.Parallel()

	if got := genreOverlap("a cozy mystery", []string{"Mystery", "Cozy"}); got != 1 {
		t.Errorf("genreOverlap = %v, want 1", got)
	}
	if got := genreOverlap("a cozy mystery", []string{"Mystery", "Horror"}); got != 0.5 {
		t.Errorf("genreOverlap = %v, want 0.5", got)
	}
	if got := genreOverlap("x", nil); got != 0 {
		t.Errorf("genreOverlap(nil) = %v", got)
	}
}

func TestSimilar_ExcludesSelf(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	r, _ := NewRetriever(emb, idx, cat, nil)

	res, err := r.Similar(t.Context(), "m1", 2)
	if err != nil {
		t.Fatal(err)
	}
	ids := res.BookIDs()
	if len(ids) != 2 || ids[0] != "m2" || ids[1] != "m3" {
		t.Errorf("Similar(m1) = %v, want [m2 m3]", ids)
	}

	if _, err := r.Similar(t.Context(), "nope", 2); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Similar(unknown) error = %v", err)
	}
}

func TestPairwiseDistance(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)
	r, _ := NewRetriever(emb, idx, cat, nil)

	near, err := r.PairwiseDistance(t.Context(), "m1", "m2")
	if err != nil {
		t.Fatal(err)
	}
	far, err := r.PairwiseDistance(t.Context(), "m1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if near >= far {
		t.Errorf("d(m1,m2)=%v should be < d(m1,r1)=%v", near, far)
	}
	if _, err := r.PairwiseDistance(t.Context(), "m1", "zzz"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown id error = %v", err)
	}
}

func TestCheckConsistency(t *testing.T) {
	t.Parallel()

	emb, idx, cat := newScenario(t)

	r, _ := NewRetriever(emb, idx, cat, nil)
	if err := r.CheckConsistency(t.Context()); err != nil {
		t.Fatalf("consistent setup: %v", err)
	}

	wrongDim := &fakeEmbedder{fallback: []float32{1, 0}}
	r, _ = NewRetriever(wrongDim, idx, cat, nil)
	if err := r.CheckConsistency(t.Context()); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("dimension mismatch error = %v", err)
	}

	small, _ := catalog.New([]catalog.Book{{ID: "m1"}})
	r, _ = NewRetriever(emb, idx, small, nil)
	if err := r.CheckConsistency(t.Context()); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("catalog mismatch error = %v", err)
	}

	r, _ = NewRetriever(emb, nil, cat, nil)
	if err := r.CheckConsistency(t.Context()); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("nil index error = %v", err)
	}
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	_, _, cat := newScenario(t)
	if _, err := NewRetriever(nil, nil, cat, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil catalog")
	}
	r, err := NewRetriever(&fakeEmbedder{}, nil, cat, &RetrieverConfig{DefaultK: 100, MaxK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if r.DefaultK() != 10 || r.MaxK() != 10 {
		t.Errorf("DefaultK=%d MaxK=%d, want 10/10", r.DefaultK(), r.MaxK())
	}
}

func TestRetrievalResult_Without(t *testing.T) {
	t.Parallel()

	res := RetrievalResult{Items: []Candidate{
		{Book: catalog.Book{ID: "a"}, Rank: 1},
		{Book: catalog.Book{ID: "b"}, Rank: 2},
		{Book: catalog.Book{ID: "c"}, Rank: 3},
	}}
	got := res.Without(map[string]bool{"a": true})
	if len(got.Items) != 2 || got.Items[0].Book.ID != "b" || got.Items[0].Rank != 1 || got.Items[1].Rank != 2 {
		t.Errorf("Without(a) = %+v", got.Items)
	}
	if len(res.Items) != 3 || res.Items[1].Rank != 2 {
		t.Error("Without must not mutate the receiver")
	}
}
