package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
)

// Error taxonomy shared by the whole pipeline. Callers classify with
// errors.Is or with Classify.
var (
	// ErrEmbedding means the query could not be embedded (empty input or a
	// failing embedding backend). Not retried automatically.
	ErrEmbedding = errors.New("embedding error")

	// ErrEmbeddingBackend is the transient flavour of ErrEmbedding: the
	// embedding service failed, so the same query may succeed later.
	ErrEmbeddingBackend = fmt.Errorf("backend failure: %w", ErrEmbedding)

	// ErrIndexUnavailable means the vector index is not loaded or does not
	// match the catalog/embedder. Fatal at startup, retryable per request.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrInvalidMode means an unsupported style or mood was requested.
	ErrInvalidMode = mode.ErrInvalidMode

	// ErrGeneration means the language model failed or timed out on every
	// attempt.
	ErrGeneration = errors.New("generation error")

	// ErrInvalidRequest means the request itself is malformed (e.g. k out of
	// range, unknown book ID).
	ErrInvalidRequest = errors.New("invalid request")
)

// Kind is a stable, serialisable error class.
type Kind string

// Error kinds reported to callers.
const (
	KindEmbedding        Kind = "embedding_error"
	KindIndexUnavailable Kind = "index_unavailable"
	KindInvalidMode      Kind = "invalid_mode"
	KindGeneration       Kind = "generation_error"
	KindInvalidRequest   Kind = "invalid_request"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// Failure is the caller-facing classification of a terminal error.
type Failure struct {
	// Kind is the error class.
	Kind Kind `json:"kind"`
	// Retryable reports whether retrying the same request later may succeed.
	Retryable bool `json:"retryable"`
	// Message is the human-readable error text.
	Message string `json:"message"`
}

// Classify maps err onto the pipeline's error taxonomy. A nil error yields
// the zero Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	f := Failure{Message: err.Error()}
	switch {
	case errors.Is(err, ErrInvalidMode):
		f.Kind = KindInvalidMode
	case errors.Is(err, ErrInvalidRequest):
		f.Kind = KindInvalidRequest
	case errors.Is(err, ErrEmbeddingBackend):
		f.Kind, f.Retryable = KindEmbedding, true
	case errors.Is(err, ErrEmbedding):
		f.Kind = KindEmbedding
	case errors.Is(err, ErrIndexUnavailable):
		f.Kind, f.Retryable = KindIndexUnavailable, true
	case errors.Is(err, ErrGeneration):
		f.Kind, f.Retryable = KindGeneration, true
	case errors.Is(err, context.Canceled):
		f.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind, f.Retryable = KindGeneration, true
	default:
		f.Kind = KindInternal
	}
	return f
}
