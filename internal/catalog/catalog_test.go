package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `book_id,title,author,genres,description,rating,year,publisher
b2,The Quiet Garden,Ana Reyes,Romance|Drama,Two strangers restore a garden.,4.1,2019,Harbor
b1,Murder at the Manor,Clara Doyle,"Mystery, Cozy",A retired librarian solves a village murder.,3.9,2001.0,
`

func TestLoad_ParsesRows(t *testing.T) {
	t.Parallel()

	s, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	b, ok := s.Get("b1")
	if !ok {
		t.Fatal("Get(b1) not found")
	}
	if b.Title != "Murder at the Manor" || b.Author != "Clara Doyle" {
		t.Errorf("unexpected book: %+v", b)
	}
	if len(b.Genres) != 2 || b.Genres[0] != "Mystery" || b.Genres[1] != "Cozy" {
		t.Errorf("Genres = %v, want [Mystery Cozy]", b.Genres)
	}
	if b.Year != 2001 {
		t.Errorf("Year = %d, want 2001", b.Year)
	}

	b2, _ := s.Get("b2")
	if len(b2.Genres) != 2 || b2.Genres[1] != "Drama" {
		t.Errorf("pipe-separated genres = %v", b2.Genres)
	}
	if b2.Rating != 4.1 {
		t.Errorf("Rating = %v, want 4.1", b2.Rating)
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader("book_id,title,author\nb1,T,A\n"))
	if err == nil || !strings.Contains(err.Error(), "genres") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestLoad_BadRating(t *testing.T) {
	t.Parallel()

	in := "book_id,title,author,genres,description,rating\nb1,T,A,G,D,great\n"
	if _, err := Load(strings.NewReader(in)); err == nil {
		t.Fatal("expected rating parse error")
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := New([]Book{{ID: "x"}, {ID: "x"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := New([]Book{{ID: ""}}); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestStore_IDsSortedAndCopied(t *testing.T) {
	t.Parallel()

	s, err := New([]Book{{ID: "c"}, {ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	ids := s.IDs()
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("IDs() = %v", ids)
	}
	ids[0] = "mutated"
	if s.IDs()[0] != "a" {
		t.Error("IDs() must return a copy")
	}
	if all := s.All(); all[2].ID != "c" {
		t.Errorf("All() not ordered: %v", all)
	}
}

func TestStore_FindByTitle(t *testing.T) {
	t.Parallel()

	s, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"murder at the manor", "b1", true},
		{"garden", "b2", true},
		{"  ", "", false},
		{"unknown", "", false},
	}
	for _, tc := range tests {
		b, ok := s.FindByTitle(tc.title)
		if ok != tc.ok || b.ID != tc.want {
			t.Errorf("FindByTitle(%q) = (%q, %v), want (%q, %v)", tc.title, b.ID, ok, tc.want, tc.ok)
		}
	}
}

func TestBook_RetrievalText(t *testing.T) {
	t.Parallel()

	b := Book{Title: "Dune", Author: "Frank Herbert", Genres: []string{"SF", "Classic"}, Description: "Spice."}
	want := "Dune by Frank Herbert. Genres: SF, Classic. Spice."
	if got := b.RetrievalText(); got != want {
		t.Errorf("RetrievalText() = %q, want %q", got, want)
	}
	if got := (Book{Title: "Alone"}).RetrievalText(); got != "Alone." {
		t.Errorf("RetrievalText() minimal = %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "books.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
