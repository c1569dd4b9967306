package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"nil", nil, "", false},
		{"embedding", fmt.Errorf("rag: x: %w", ErrEmbedding), KindEmbedding, false},
		{"embedding backend", fmt.Errorf("rag: x: %w: %w", ErrEmbeddingBackend, errors.New("503")), KindEmbedding, true},
		{"index", fmt.Errorf("rag: x: %w", ErrIndexUnavailable), KindIndexUnavailable, true},
		{"mode", fmt.Errorf("mode: x: %w", ErrInvalidMode), KindInvalidMode, false},
		{"generation", fmt.Errorf("recommender: x: %w", ErrGeneration), KindGeneration, true},
		{"request", fmt.Errorf("rag: x: %w", ErrInvalidRequest), KindInvalidRequest, false},
		{"canceled", fmt.Errorf("x: %w", context.Canceled), KindCanceled, false},
		{"deadline", context.DeadlineExceeded, KindGeneration, true},
		{"other", errors.New("disk full"), KindInternal, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := Classify(tc.err)
			if f.Kind != tc.kind || f.Retryable != tc.retryable {
				t.Errorf("Classify() = %+v, want kind=%s retryable=%v", f, tc.kind, tc.retryable)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	v, ok := Normalize([]float32{3, 4})
	if !ok {
		t.Fatal("Normalize rejected a valid vector")
	}
	if d := Dot(v, v); d < 0.9999 || d > 1.0001 {
		t.Errorf("|v|^2 = %v, want 1", d)
	}
	if _, ok := Normalize([]float32{0, 0}); ok {
		t.Error("zero vector must be rejected")
	}
	if _, ok := Normalize(nil); ok {
		t.Error("empty vector must be rejected")
	}
	if d := CosineDistance(v, v); d > 1e-6 {
		t.Errorf("CosineDistance(v,v) = %v, want ~0", d)
	}
}
