package rag

import (
	"reflect"
	"strings"
	"testing"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
)

// resultOf builds a RetrievalResult whose books have descriptions of the
// given lengths.
func resultOf(descLens ...int) RetrievalResult {
	res := RetrievalResult{K: len(descLens)}
	for i, n := range descLens {
		res.Items = append(res.Items, Candidate{
			Book: catalog.Book{
				ID:          string(rune('a' + i)),
				Title:       "Title",
				Description: strings.Repeat("w ", n/2),
			},
			Rank: i + 1,
		})
	}
	return res
}

func TestBuild_RespectsBudget(t *testing.T) {
	t.Parallel()

	b := NewContextBuilder(-1)
	res := resultOf(200, 200, 200, 200)
	one := b.Build(resultOf(200), 1_000_000).Used

	ctx := b.Build(res, one*2+1)
	if len(ctx.Excerpts) != 2 {
		t.Fatalf("included %d excerpts, want 2", len(ctx.Excerpts))
	}
	if ctx.Used > ctx.Budget {
		t.Errorf("Used=%d exceeds Budget=%d", ctx.Used, ctx.Budget)
	}
	if !ctx.Truncated || ctx.Dropped != 2 {
		t.Errorf("Truncated=%v Dropped=%d, want true/2", ctx.Truncated, ctx.Dropped)
	}
	if got := ctx.BookIDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("BookIDs() = %v, want rank prefix [a b]", got)
	}
}

func TestBuild_EverythingFits(t *testing.T) {
	t.Parallel()

	ctx := NewContextBuilder(0).Build(resultOf(40, 40, 40), 10_000)
	if len(ctx.Excerpts) != 3 || ctx.Truncated || ctx.Dropped != 0 {
		t.Errorf("unexpected context: %+v", ctx)
	}
	sum := 0
	for _, e := range ctx.Excerpts {
		sum += e.Cost
	}
	if sum != ctx.Used {
		t.Errorf("Used=%d, sum of costs=%d", ctx.Used, sum)
	}
}

func TestBuild_OversizedFirstStillIncluded(t *testing.T) {
	t.Parallel()

	ctx := NewContextBuilder(-1).Build(resultOf(2000, 10), 20)
	if len(ctx.Excerpts) != 1 || ctx.Excerpts[0].BookID != "a" {
		t.Fatalf("excerpts = %+v, want only the first", ctx.Excerpts)
	}
	if !ctx.Truncated {
		t.Error("oversized first excerpt must set Truncated")
	}
	if ctx.Used <= ctx.Budget {
		t.Errorf("expected Used > Budget in the oversized case, got %d <= %d", ctx.Used, ctx.Budget)
	}
}

func TestBuild_EmptyResult(t *testing.T) {
	t.Parallel()

	ctx := NewContextBuilder(0).Build(RetrievalResult{}, 100)
	if len(ctx.Excerpts) != 0 || ctx.Truncated || ctx.Text() != "" {
		t.Errorf("unexpected context for empty result: %+v", ctx)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	b := NewContextBuilder(0)
	res := resultOf(300, 120, 80, 500)
	first := b.Build(res, 180)
	for range 5 {
		if again := b.Build(res, 180); !reflect.DeepEqual(first, again) {
			t.Fatal("Build is not deterministic")
		}
	}
}

func TestBuild_ExcerptFormat(t *testing.T) {
	t.Parallel()

	res := RetrievalResult{Items: []Candidate{{
		Rank: 1,
		Book: catalog.Book{
			ID: "b1", Title: "Dune", Author: "Frank Herbert",
			Genres: []string{"SF"}, Rating: 4.3, Year: 1965,
			Description: "Desert planet politics.",
		},
	}}}
	text := NewContextBuilder(0).Build(res, 1000).Text()
	for _, want := range []string{"[BOOK id=b1]", "Title: Dune", "Author: Frank Herbert", "Genres: SF", "Rating: 4.3", "Year: 1965", "Description: Desert planet politics."} {
		if !strings.Contains(text, want) {
			t.Errorf("excerpt missing %q:\n%s", want, text)
		}
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short text", 400, "short text"},
		{"the quick brown fox jumps", 12, "the quick..."},
		{"the quick, brown fox", 11, "the quick..."},
		{"unbroken", 4, "unbr..."},
		{"keep everything here", -1, "keep everything here"},
	}
	for _, tc := range tests {
		if got := snippet(tc.in, tc.limit); got != tc.want {
			t.Errorf("snippet(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}
