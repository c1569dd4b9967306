// Package catalog provides the immutable book catalog that every other
// component resolves book identifiers against. The catalog is loaded once at
// startup from a CSV table and never mutated afterwards, so it is safe for
// unlimited concurrent readers without locking.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Book is a single catalog entry. Its embedding vector lives in the vector
// index, keyed by ID.
type Book struct {
	// ID is the unique, stable book identifier.
	ID string `json:"book_id"`
	// Title is the display title.
	Title string `json:"title"`
	// Author is the primary author.
	Author string `json:"author"`
	// Genres lists the genre labels, in catalog order.
	Genres []string `json:"genres"`
	// Description is the free-text blurb used for grounding.
	Description string `json:"description"`
	// Rating is the average reader rating on a 0-5 scale. Zero means unknown.
	Rating float64 `json:"rating,omitempty"`
	// Year is the publication year. Zero means unknown.
	Year int `json:"year,omitempty"`
	// Publisher is the publishing house, if known.
	Publisher string `json:"publisher,omitempty"`
}

// RetrievalText returns the text embedded for this book at index-build time.
// Query-time embeddings are compared against vectors built from this text,
// so the format must stay stable across index rebuilds.
func (b Book) RetrievalText() string {
	var sb strings.Builder
	sb.WriteString(b.Title)
	if b.Author != "" {
		sb.WriteString(" by ")
		sb.WriteString(b.Author)
	}
	sb.WriteString(".")
	if len(b.Genres) > 0 {
		sb.WriteString(" Genres: ")
		sb.WriteString(strings.Join(b.Genres, ", "))
		sb.WriteString(".")
	}
	if b.Description != "" {
		sb.WriteString(" ")
		sb.WriteString(b.Description)
	}
	return sb.String()
}

// Store is an immutable, read-only mapping from book ID to Book.
type Store struct {
	// books maps ID to book.
	books map[string]Book
	// ids holds every ID in ascending order for deterministic iteration.
	ids []string
}

// New builds a Store from books. Duplicate or empty IDs are rejected because
// they would make index positions ambiguous.
func New(books []Book) (*Store, error) {
	s := &Store{books: make(map[string]Book, len(books))}
	for i, b := range books {
		if b.ID == "" {
			return nil, fmt.Errorf("catalog: row %d: empty book_id", i+1)
		}
		if _, dup := s.books[b.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate book_id %q", b.ID)
		}
		s.books[b.ID] = b
		s.ids = append(s.ids, b.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// Get returns the book with the given ID.
func (s *Store) Get(id string) (Book, bool) {
	b, ok := s.books[id]
	return b, ok
}

// Len returns the number of books in the catalog.
func (s *Store) Len() int { return len(s.books) }

// IDs returns all book IDs in ascending order. The returned slice is a copy.
func (s *Store) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// All returns every book ordered by ID.
func (s *Store) All() []Book {
	out := make([]Book, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.books[id])
	}
	return out
}

// FindByTitle returns the first book whose title matches title
// case-insensitively, trying an exact match before a substring match.
func (s *Store) FindByTitle(title string) (Book, bool) {
	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return Book{}, false
	}
	for _, id := range s.ids {
		if strings.ToLower(s.books[id].Title) == want {
			return s.books[id], true
		}
	}
	for _, id := range s.ids {
		if strings.Contains(strings.ToLower(s.books[id].Title), want) {
			return s.books[id], true
		}
	}
	return Book{}, false
}

// requiredColumns are the CSV header names every catalog file must carry.
var requiredColumns = []string{"book_id", "title", "author", "genres", "description"}

// LoadFile reads a catalog CSV from path. See [Load] for the format.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return s, nil
}

// Load parses a catalog CSV. The header must contain book_id, title, author,
// genres and description; rating, year and publisher are optional. Genres
// may be separated by "|" or ",".
func Load(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing required column %q", c)
		}
	}

	var books []Book
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		b := Book{
			ID:          field("book_id"),
			Title:       field("title"),
			Author:      field("author"),
			Genres:      splitGenres(field("genres")),
			Description: field("description"),
			Publisher:   field("publisher"),
		}
		if v := field("rating"); v != "" {
			if b.Rating, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: rating %q: %w", line, v, err)
			}
		}
		if v := field("year"); v != "" {
			// Years are sometimes exported as floats ("1998.0").
			y, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: year %q: %w", line, v, err)
			}
			b.Year = int(y)
		}
		books = append(books, b)
	}

	return New(books)
}

// splitGenres splits a genre field on "|" when present, otherwise on ",".
func splitGenres(s string) []string {
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, "|") {
		sep = "|"
	}
	var out []string
	for _, g := range strings.Split(s, sep) {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
