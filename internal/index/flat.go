package index

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Flat is an exact nearest-neighbour index held in memory. Every search
// scans all rows, which is fast enough for catalogs of tens of thousands of
// books. Flat is immutable after construction and safe for concurrent use.
type Flat struct {
	// manifest is the side-table the rows are aligned with.
	manifest Manifest
	// rows holds one unit-length vector per manifest position.
	rows [][]float32
	// pos maps book ID to row.
	pos map[string]int
}

// Compile-time check.
var _ rag.VectorIndex = (*Flat)(nil)

// NewFlat validates m against rows and returns the index. Rows are
// re-normalised; a zero or mis-sized row fails with rag.ErrIndexUnavailable.
func NewFlat(m Manifest, rows [][]float32) (*Flat, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(rows) != len(m.BookIDs) {
		return nil, fmt.Errorf("index: %d vectors for %d book IDs: %w", len(rows), len(m.BookIDs), rag.ErrIndexUnavailable)
	}

	norm := make([][]float32, len(rows))
	for i, row := range rows {
		if len(row) != m.Dimension {
			return nil, fmt.Errorf("index: row %d (%s) has dimension %d, want %d: %w",
				i, m.BookIDs[i], len(row), m.Dimension, rag.ErrIndexUnavailable)
		}
		v, ok := rag.Normalize(row)
		if !ok {
			return nil, fmt.Errorf("index: row %d (%s) is not a valid vector: %w", i, m.BookIDs[i], rag.ErrIndexUnavailable)
		}
		norm[i] = v
	}

	m.BookIDs = append([]string(nil), m.BookIDs...)
	return &Flat{manifest: m, rows: norm, pos: m.positions()}, nil
}

// Manifest returns a copy of the index side-table.
func (f *Flat) Manifest() Manifest {
	m := f.manifest
	m.BookIDs = append([]string(nil), f.manifest.BookIDs...)
	return m
}

// Rows returns the normalised vectors in position order. The slices are
// shared with the index and must not be modified.
func (f *Flat) Rows() [][]float32 { return f.rows }

// Search implements rag.VectorIndex with an exhaustive scan.
func (f *Flat) Search(ctx context.Context, vector []float32, k int) ([]rag.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != f.manifest.Dimension {
		return nil, fmt.Errorf("index: query dimension %d, index dimension %d: %w", len(vector), f.manifest.Dimension, rag.ErrIndexUnavailable)
	}
	if k <= 0 || len(f.rows) == 0 {
		return nil, nil
	}

	hits := make([]rag.Neighbor, len(f.rows))
	for i, row := range f.rows {
		hits[i] = rag.Neighbor{Position: i, Distance: rag.CosineDistance(vector, row)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return f.manifest.BookIDs[hits[a].Position] < f.manifest.BookIDs[hits[b].Position]
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// PairwiseDistance implements rag.VectorIndex.
func (f *Flat) PairwiseDistance(_ context.Context, idA, idB string) (float64, error) {
	a, ok := f.pos[idA]
	if !ok {
		return 0, fmt.Errorf("index: book %q not indexed: %w", idA, rag.ErrInvalidRequest)
	}
	b, ok := f.pos[idB]
	if !ok {
		return 0, fmt.Errorf("index: book %q not indexed: %w", idB, rag.ErrInvalidRequest)
	}
	return rag.CosineDistance(f.rows[a], f.rows[b]), nil
}

// Vector implements rag.VectorIndex. The returned slice is a copy.
func (f *Flat) Vector(_ context.Context, position int) ([]float32, error) {
	if position < 0 || position >= len(f.rows) {
		return nil, fmt.Errorf("index: position %d out of range: %w", position, rag.ErrInvalidRequest)
	}
	return append([]float32(nil), f.rows[position]...), nil
}

// BookID implements rag.VectorIndex.
func (f *Flat) BookID(position int) (string, bool) {
	if position < 0 || position >= len(f.manifest.BookIDs) {
		return "", false
	}
	return f.manifest.BookIDs[position], true
}

// Position implements rag.VectorIndex.
func (f *Flat) Position(id string) (int, bool) {
	p, ok := f.pos[id]
	return p, ok
}

// Dimension implements rag.VectorIndex.
func (f *Flat) Dimension() int { return f.manifest.Dimension }

// Len implements rag.VectorIndex.
func (f *Flat) Len() int { return len(f.rows) }

// Save writes the artifact into dir, creating it if needed. The vectors file
// is written before the manifest so a reader never sees a manifest that
// points at missing rows.
func (f *Flat) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(f.rows) * f.manifest.Dimension * 4)
	for _, row := range f.rows {
		if err := binary.Write(&buf, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("index: encode vectors: %w", err)
		}
	}
	if err := writeFileAtomic(filepath.Join(dir, VectorsFile), buf.Bytes()); err != nil {
		return err
	}
	return writeManifest(dir, &f.manifest)
}

// LoadFlat reads the artifact in dir. Any inconsistency between the manifest
// and the vectors file fails with rag.ErrIndexUnavailable.
func LoadFlat(dir string) (*Flat, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, fmt.Errorf("index: read vectors: %w: %w", rag.ErrIndexUnavailable, err)
	}

	rowBytes := m.Dimension * 4
	if want := len(m.BookIDs) * rowBytes; len(data) != want {
		return nil, fmt.Errorf("index: vectors file is %d bytes, manifest implies %d: %w", len(data), want, rag.ErrIndexUnavailable)
	}

	rows := make([][]float32, len(m.BookIDs))
	for i := range rows {
		row := make([]float32, m.Dimension)
		off := i * rowBytes
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+j*4:]))
		}
		rows[i] = row
	}

	return NewFlat(*m, rows)
}
