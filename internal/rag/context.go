package rag

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BiancaGL2104/rag-book-recommender/internal/budget"
)

// DefaultMaxDescriptionChars caps the description snippet in each excerpt.
const DefaultMaxDescriptionChars = 400

// Excerpt is one book's grounding block inside a Context.
type Excerpt struct {
	// BookID is the provenance of the excerpt.
	BookID string `json:"book_id"`
	// Rank is the retrieval rank of the source book.
	Rank int `json:"rank"`
	// Text is the rendered block handed to the model.
	Text string `json:"text"`
	// Cost is the estimated token cost of Text.
	Cost int `json:"cost"`
}

// Context is the bounded grounding context built from a RetrievalResult.
// Used never exceeds Budget unless a single oversized first excerpt had to
// be included, which sets Truncated.
type Context struct {
	// Excerpts holds the included blocks in rank order.
	Excerpts []Excerpt `json:"excerpts"`
	// Used is the total estimated tokens consumed.
	Used int `json:"used"`
	// Budget is the configured maximum.
	Budget int `json:"budget"`
	// Truncated is set when any excerpt was dropped or the first excerpt
	// alone exceeded the budget.
	Truncated bool `json:"truncated"`
	// Dropped counts the candidates left out.
	Dropped int `json:"dropped"`
}

// Text joins the excerpts into the block passed to the prompt.
func (c Context) Text() string {
	parts := make([]string, len(c.Excerpts))
	for i, e := range c.Excerpts {
		parts[i] = e.Text
	}
	return strings.Join(parts, "\n\n")
}

// BookIDs returns the IDs of the books present in the context.
func (c Context) BookIDs() []string {
	ids := make([]string, len(c.Excerpts))
	for i, e := range c.Excerpts {
		ids[i] = e.BookID
	}
	return ids
}

// ContextBuilder renders retrieval results into bounded grounding context.
// It holds no mutable state and is safe for concurrent use.
type ContextBuilder struct {
	// maxDescriptionChars caps each description snippet; <=0 disables the cap.
	maxDescriptionChars int
}

// NewContextBuilder returns a builder that cuts descriptions at
// maxDescriptionChars (on a word boundary). Pass 0 for the default and a
// negative value to keep descriptions whole.
func NewContextBuilder(maxDescriptionChars int) *ContextBuilder {
	if maxDescriptionChars == 0 {
		maxDescriptionChars = DefaultMaxDescriptionChars
	}
	return &ContextBuilder{maxDescriptionChars: maxDescriptionChars}
}

// Build includes whole excerpts in rank order while they fit in budget
// tokens. The first excerpt is always included so non-empty retrieval never
// yields empty context; if it alone overflows, Truncated is set. Build is
// deterministic for identical inputs.
func (b *ContextBuilder) Build(result RetrievalResult, budgetTokens int) Context {
	ctx := Context{Budget: budgetTokens}
	for i, c := range result.Items {
		text := b.excerpt(c)
		cost := budget.Estimate(text)

		if i > 0 && ctx.Used+cost > budgetTokens {
			ctx.Dropped = len(result.Items) - i
			ctx.Truncated = true
			break
		}
		if i == 0 && cost > budgetTokens {
			ctx.Truncated = true
		}
		ctx.Excerpts = append(ctx.Excerpts, Excerpt{BookID: c.Book.ID, Rank: c.Rank, Text: text, Cost: cost})
		ctx.Used += cost
	}
	return ctx
}

// excerpt renders the grounding block for one candidate.
func (b *ContextBuilder) excerpt(c Candidate) string {
	book := c.Book
	var sb strings.Builder
	fmt.Fprintf(&sb, "[BOOK id=%s]\n", book.ID)
	fmt.Fprintf(&sb, "Title: %s\n", book.Title)
	if book.Author != "" {
		fmt.Fprintf(&sb, "Author: %s\n", book.Author)
	}
	if len(book.Genres) > 0 {
		fmt.Fprintf(&sb, "Genres: %s\n", strings.Join(book.Genres, ", "))
	}
	if book.Rating > 0 {
		fmt.Fprintf(&sb, "Rating: %.1f\n", book.Rating)
	}
	if book.Year > 0 {
		fmt.Fprintf(&sb, "Year: %d\n", book.Year)
	}
	fmt.Fprintf(&sb, "Description: %s", snippet(book.Description, b.maxDescriptionChars))
	return sb.String()
}

// snippet shortens s to at most limit runes, cutting at the last word
// boundary and appending "...". A limit <= 0 returns s unchanged.
func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	cut := limit
	for i := limit; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	}) + "..."
}
