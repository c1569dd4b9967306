// Package rag defines the retrieval half of the recommendation pipeline:
// the embedding and vector-index boundaries, the Retriever that turns a
// query into ranked catalog candidates, and the Context Builder that turns
// those candidates into bounded grounding text for the language model.
// Concrete backends (HTTP embedders, flat or Qdrant indexes) satisfy the
// interfaces declared here so the orchestrator never depends on one.
package rag

import (
	"context"
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Neighbor is a single nearest-neighbour hit returned by a VectorIndex.
type Neighbor struct {
	// Position is the row of the hit in the index side-table.
	Position int
	// Distance is the cosine distance (1 - cosine similarity) to the query.
	Distance float64
}

// VectorIndex is the read-only nearest-neighbour structure over the
// precomputed book embeddings. It is loaded once at startup and never
// mutated while serving, so implementations must be safe for concurrent
// readers.
type VectorIndex interface {
	// Search returns up to k neighbours of vector ordered by ascending
	// distance, ties broken by ascending book ID.
	Search(ctx context.Context, vector []float32, k int) ([]Neighbor, error)

	// PairwiseDistance returns the cosine distance between two indexed books.
	PairwiseDistance(ctx context.Context, idA, idB string) (float64, error)

	// Vector returns the stored, normalised embedding at position.
	Vector(ctx context.Context, position int) ([]float32, error)

	// BookID maps an index position to its catalog identifier.
	BookID(position int) (string, bool)

	// Position maps a catalog identifier to its index position.
	Position(id string) (int, bool)

	// Dimension is the embedding dimension the index was built with.
	Dimension() int

	// Len is the number of indexed books.
	Len() int
}

// Retriever turns free text into a ranked RetrievalResult.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns at most k ranked candidates for query.
	Retrieve(ctx context.Context, query string, k int) (RetrievalResult, error)
}
