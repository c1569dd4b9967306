package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// upsertBatch is the number of points sent per Upsert call.
const upsertBatch = 256

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection holding the book vectors (default: bookrec-books).
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantConfigFromEnv reads QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION,
// QDRANT_API_KEY and QDRANT_TLS.
func QdrantConfigFromEnv() *QdrantConfig {
	cfg := &QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Collection: os.Getenv("QDRANT_COLLECTION"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}
	if p, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		cfg.Port = p
	}
	cfg.applyDefaults()
	return cfg
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "bookrec-books"
	}
}

// Qdrant implements rag.VectorIndex over a Qdrant collection. Point IDs are
// manifest positions, so the manifest remains the single source of truth
// for the position → book ID mapping.
type Qdrant struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig

	// manifest is the side-table the collection was built from.
	manifest Manifest

	// pos maps book ID to point ID.
	pos map[string]int
}

// Compile-time check.
var _ rag.VectorIndex = (*Qdrant)(nil)

// NewQdrant connects to Qdrant without touching the collection. Callers
// serving queries should use OpenQdrant; the index builder calls Publish.
func NewQdrant(cfg *QdrantConfig, m Manifest) (*Qdrant, error) {
	if cfg == nil {
		cfg = &QdrantConfig{}
	}
	cfg.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: create qdrant client: %w: %w", rag.ErrIndexUnavailable, err)
	}

	m.BookIDs = append([]string(nil), m.BookIDs...)
	return &Qdrant{client: client, cfg: cfg, manifest: m, pos: m.positions()}, nil
}

// OpenQdrant connects and verifies that the collection matches the manifest.
func OpenQdrant(ctx context.Context, cfg *QdrantConfig, m Manifest) (*Qdrant, error) {
	q, err := NewQdrant(cfg, m)
	if err != nil {
		return nil, err
	}
	if err := q.Verify(ctx); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

// Verify checks that the collection exists, uses cosine distance, has the
// manifest's vector size and holds one point per manifest position.
func (q *Qdrant) Verify(ctx context.Context) error {
	info, err := q.client.GetCollectionInfo(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("index: qdrant collection %q: %w: %w", q.cfg.Collection, rag.ErrIndexUnavailable, err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params.GetDistance() != qdrant.Distance_Cosine {
		return fmt.Errorf("index: qdrant collection %q uses %s distance, want Cosine: %w",
			q.cfg.Collection, params.GetDistance(), rag.ErrIndexUnavailable)
	}
	if got := params.GetSize(); got != uint64(q.manifest.Dimension) {
		return fmt.Errorf("index: qdrant collection %q has size %d, manifest dimension %d: %w",
			q.cfg.Collection, got, q.manifest.Dimension, rag.ErrIndexUnavailable)
	}
	if got := info.GetPointsCount(); got != uint64(len(q.manifest.BookIDs)) {
		return fmt.Errorf("index: qdrant collection %q holds %d points, manifest lists %d: %w",
			q.cfg.Collection, got, len(q.manifest.BookIDs), rag.ErrIndexUnavailable)
	}
	return nil
}

// Publish replaces the collection contents with rows, which must be aligned
// with the manifest and already normalised.
func (q *Qdrant) Publish(ctx context.Context, rows [][]float32) error {
	if len(rows) != len(q.manifest.BookIDs) {
		return fmt.Errorf("index: publish %d rows for %d book IDs", len(rows), len(q.manifest.BookIDs))
	}

	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("index: check qdrant collection: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
			return fmt.Errorf("index: drop qdrant collection %q: %w", q.cfg.Collection, err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.manifest.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: create qdrant collection %q: %w", q.cfg.Collection, err)
	}

	wait := true
	for start := 0; start < len(rows); start += upsertBatch {
		end := min(start+upsertBatch, len(rows))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(rows[i]...),
				Payload: qdrant.NewValueMap(map[string]any{"book_id": q.manifest.BookIDs[i]}),
			})
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.Collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("index: qdrant upsert [%d,%d): %w", start, end, err)
		}
	}
	return nil
}

// Search implements rag.VectorIndex. Qdrant reports cosine similarity,
// which is converted to distance.
func (q *Qdrant) Search(ctx context.Context, vector []float32, k int) ([]rag.Neighbor, error) {
	if len(vector) != q.manifest.Dimension {
		return nil, fmt.Errorf("index: query dimension %d, index dimension %d: %w", len(vector), q.manifest.Dimension, rag.ErrIndexUnavailable)
	}
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant search: %w", err)
	}
	return q.neighbors(results), nil
}

// neighbors converts scored points to neighbours, dropping IDs outside the
// manifest and applying the ID tie-break Qdrant does not guarantee.
func (q *Qdrant) neighbors(results []*qdrant.ScoredPoint) []rag.Neighbor {
	out := make([]rag.Neighbor, 0, len(results))
	for _, r := range results {
		pos := int(r.GetId().GetNum())
		if pos < 0 || pos >= len(q.manifest.BookIDs) {
			continue
		}
		d := 1 - float64(r.GetScore())
		out = append(out, rag.Neighbor{Position: pos, Distance: max(0, min(2, d))})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Distance != out[b].Distance {
			return out[a].Distance < out[b].Distance
		}
		return q.manifest.BookIDs[out[a].Position] < q.manifest.BookIDs[out[b].Position]
	})
	return out
}

// Vector implements rag.VectorIndex by fetching the stored point.
func (q *Qdrant) Vector(ctx context.Context, position int) ([]float32, error) {
	if position < 0 || position >= len(q.manifest.BookIDs) {
		return nil, fmt.Errorf("index: position %d out of range: %w", position, rag.ErrInvalidRequest)
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(position))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant get %d: %w", position, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("index: qdrant point %d missing: %w", position, rag.ErrIndexUnavailable)
	}
	data := points[0].GetVectors().GetVector().GetData()
	if len(data) != q.manifest.Dimension {
		return nil, fmt.Errorf("index: qdrant point %d has dimension %d: %w", position, len(data), rag.ErrIndexUnavailable)
	}
	return data, nil
}

// PairwiseDistance implements rag.VectorIndex.
func (q *Qdrant) PairwiseDistance(ctx context.Context, idA, idB string) (float64, error) {
	vecs := make([][]float32, 2)
	for i, id := range []string{idA, idB} {
		p, ok := q.pos[id]
		if !ok {
			return 0, fmt.Errorf("index: book %q not indexed: %w", id, rag.ErrInvalidRequest)
		}
		v, err := q.Vector(ctx, p)
		if err != nil {
			return 0, err
		}
		vecs[i] = v
	}
	return rag.CosineDistance(vecs[0], vecs[1]), nil
}

// BookID implements rag.VectorIndex.
func (q *Qdrant) BookID(position int) (string, bool) {
	if position < 0 || position >= len(q.manifest.BookIDs) {
		return "", false
	}
	return q.manifest.BookIDs[position], true
}

// Position implements rag.VectorIndex.
func (q *Qdrant) Position(id string) (int, bool) {
	p, ok := q.pos[id]
	return p, ok
}

// Dimension implements rag.VectorIndex.
func (q *Qdrant) Dimension() int { return q.manifest.Dimension }

// Len implements rag.VectorIndex.
func (q *Qdrant) Len() int { return len(q.manifest.BookIDs) }

// Name returns the dependency label used in readiness responses.
func (q *Qdrant) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("index: qdrant health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}
