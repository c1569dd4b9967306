package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// seenWindow is how many recent record IDs a JSONLWriter remembers for
// duplicate suppression. Older duplicates are left to ReadJSONL.
const seenWindow = 4096

// JSONLWriter appends one JSON object per line. Each record is written with
// a single Write under a mutex, so concurrent callers never interleave lines.
type JSONLWriter struct {
	// mu serialises appends and guards seen.
	mu sync.Mutex
	// w is the destination, usually an *os.File opened for append.
	w io.Writer
	// closer closes w, if it owns a file.
	closer io.Closer
	// seen holds the most recent IDs written so retries do not duplicate
	// lines. order is a ring over the same IDs; next is its oldest slot.
	seen   map[string]struct{}
	order  []string
	next   int
	window int
}

// Compile-time check.
var _ Logger = (*JSONLWriter)(nil)

// NewJSONLWriter writes to w. The caller owns w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w, seen: make(map[string]struct{}), window: seenWindow}
}

// OpenJSONL opens path for append, creating it and its directory if needed.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: jsonl mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: jsonl open %s: %w", path, err)
	}
	w := NewJSONLWriter(f)
	w.closer = f
	return w, nil
}

// Record implements Logger.
func (j *JSONLWriter) Record(_ context.Context, rec rag.InteractionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: jsonl encode: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, dup := j.seen[rec.ID]; dup {
		return nil
	}
	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("store: jsonl write: %w", err)
	}
	j.remember(rec.ID)
	return nil
}

// remember adds id to the recent-ID window, evicting the oldest entry once
// the window is full. Callers hold mu.
func (j *JSONLWriter) remember(id string) {
	if len(j.order) < j.window {
		j.order = append(j.order, id)
	} else {
		delete(j.seen, j.order[j.next])
		j.order[j.next] = id
		j.next = (j.next + 1) % j.window
	}
	j.seen[id] = struct{}{}
}

// Close closes the underlying file when the writer owns one.
func (j *JSONLWriter) Close() error {
	if j.closer == nil {
		return nil
	}
	if err := j.closer.Close(); err != nil {
		return fmt.Errorf("store: jsonl close: %w", err)
	}
	return nil
}

// ReadJSONL decodes every record in r, keeping the first occurrence of each
// ID. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]rag.InteractionRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)

	seen := make(map[string]bool)
	var out []rag.InteractionRecord
	for line := 1; sc.Scan(); line++ {
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec rag.InteractionRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("store: jsonl line %d: %w", line, err)
		}
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: jsonl scan: %w", err)
	}
	return out, nil
}

// Multi records to every logger in order and joins their errors. A failing
// sink does not stop the others.
type Multi []Logger

// Record implements Logger.
func (m Multi) Record(ctx context.Context, rec rag.InteractionRecord) error {
	var errs []error
	for _, l := range m {
		if err := l.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
