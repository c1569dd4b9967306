// Package index implements the read-only vector indexes the retriever
// searches: an exact in-memory Flat index persisted as a two-file artifact,
// and a Qdrant-backed index that shares the same manifest side-table.
//
// Artifact layout:
//
//	<dir>/manifest.json   dimension, metric, embedding model, ordered book IDs
//	<dir>/vectors.f32     little-endian float32 rows, one per book ID, unit length
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

const (
	// ManifestFile is the side-table file name inside an index directory.
	ManifestFile = "manifest.json"
	// VectorsFile is the raw vector file name inside an index directory.
	VectorsFile = "vectors.f32"
)

// Manifest describes an index artifact. Row i of the vectors belongs to
// BookIDs[i].
type Manifest struct {
	// Dimension is the embedding length of every row.
	Dimension int `json:"dimension"`
	// Metric is the distance metric. Only rag.MetricCosine is accepted.
	Metric string `json:"metric"`
	// EmbeddingModel names the model the rows were produced with.
	EmbeddingModel string `json:"embedding_model"`
	// BookIDs is the position → catalog ID side-table.
	BookIDs []string `json:"book_ids"`
	// CreatedAt is when the artifact was built.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the manifest's internal consistency.
func (m *Manifest) Validate() error {
	if m.Metric != rag.MetricCosine {
		return fmt.Errorf("index: manifest metric %q is not %q: %w", m.Metric, rag.MetricCosine, rag.ErrIndexUnavailable)
	}
	if m.Dimension <= 0 {
		return fmt.Errorf("index: manifest dimension %d must be positive: %w", m.Dimension, rag.ErrIndexUnavailable)
	}
	seen := make(map[string]bool, len(m.BookIDs))
	for i, id := range m.BookIDs {
		if id == "" {
			return fmt.Errorf("index: manifest position %d has empty book ID: %w", i, rag.ErrIndexUnavailable)
		}
		if seen[id] {
			return fmt.Errorf("index: manifest lists book %q twice: %w", id, rag.ErrIndexUnavailable)
		}
		seen[id] = true
	}
	return nil
}

// positions builds the reverse lookup for the side-table.
func (m *Manifest) positions() map[string]int {
	pos := make(map[string]int, len(m.BookIDs))
	for i, id := range m.BookIDs {
		pos[id] = i
	}
	return pos
}

// ReadManifest loads and validates dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("index: read manifest: %w: %w", rag.ErrIndexUnavailable, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("index: decode manifest: %w: %w", rag.ErrIndexUnavailable, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// writeManifest writes m to dir/manifest.json via a temp file and rename.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("index: encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

// writeFileAtomic writes data next to path and renames it into place so a
// crashed build never leaves a half-written artifact.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("index: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("index: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
