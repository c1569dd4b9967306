package rag

import (
	"time"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
)

// Query is a single recommendation request.
type Query struct {
	// Text is the raw natural-language request.
	Text string `json:"text"`
	// Style optionally selects the response style (friendly, formal, concise, detailed).
	Style string `json:"style,omitempty"`
	// Mood optionally overrides the detected reader mood.
	Mood string `json:"mood,omitempty"`
	// ExplainWhy asks for a per-book justification grounded in the context.
	ExplainWhy bool `json:"explain_why,omitempty"`
	// WantAlternative asks for a second opinion that avoids books cited by
	// the response named in AlternativeOf.
	WantAlternative bool `json:"want_alternative,omitempty"`
	// AlternativeOf is the ID of the prior response being complemented.
	AlternativeOf string `json:"alternative_of,omitempty"`
	// ExcludeBookIDs lists prior citations supplied directly by the caller.
	// They are merged with the citations looked up for AlternativeOf.
	ExcludeBookIDs []string `json:"exclude_book_ids,omitempty"`
	// K overrides the number of retrieved candidates. Zero uses the default.
	K int `json:"k,omitempty"`
}

// Candidate is one ranked retrieval hit.
type Candidate struct {
	// Book is the resolved catalog entry.
	Book catalog.Book `json:"book"`
	// Score is the ranking score. Equal to Similarity unless reranking is enabled.
	Score float64 `json:"score"`
	// Similarity is the raw cosine similarity between query and book.
	Similarity float64 `json:"similarity"`
	// Distance is the cosine distance reported by the index.
	Distance float64 `json:"distance"`
	// Rank is the 1-based position in the result.
	Rank int `json:"rank"`
}

// RetrievalResult is the ranked candidate list for a query. Scores are
// non-increasing by rank, ranks are 1-based and contiguous, and book IDs
// are distinct.
type RetrievalResult struct {
	// Query is the text that was embedded.
	Query string `json:"query"`
	// K is the requested result size.
	K int `json:"k"`
	// Items holds the candidates in rank order.
	Items []Candidate `json:"items"`
}

// Empty reports whether no candidate survived retrieval.
func (r RetrievalResult) Empty() bool { return len(r.Items) == 0 }

// BookIDs returns the candidate IDs in rank order.
func (r RetrievalResult) BookIDs() []string {
	ids := make([]string, len(r.Items))
	for i, c := range r.Items {
		ids[i] = c.Book.ID
	}
	return ids
}

// Lookup returns the candidate for id, if retrieved.
func (r RetrievalResult) Lookup(id string) (Candidate, bool) {
	for _, c := range r.Items {
		if c.Book.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// Without returns a copy of r minus the excluded IDs, re-ranked so ranks
// stay contiguous.
func (r RetrievalResult) Without(exclude map[string]bool) RetrievalResult {
	out := RetrievalResult{Query: r.Query, K: r.K}
	for _, c := range r.Items {
		if exclude[c.Book.ID] {
			continue
		}
		c.Rank = len(out.Items) + 1
		out.Items = append(out.Items, c)
	}
	return out
}

// Head returns a copy of r holding at most its first n candidates.
func (r RetrievalResult) Head(n int) RetrievalResult {
	out := RetrievalResult{Query: r.Query, K: n, Items: r.Items}
	if len(out.Items) > n {
		out.Items = out.Items[:max(n, 0)]
	}
	return out
}

// Status is the outcome class of a successful Answer call.
type Status string

const (
	// StatusOK means the model produced a grounded recommendation.
	StatusOK Status = "ok"
	// StatusNoMatches means retrieval found nothing above the relevance floor
	// and no model call was made.
	StatusNoMatches Status = "no_matches"
)

// Citation is a recommended book referenced by a response.
type Citation struct {
	// BookID is the catalog identifier. Always one of the retrieved books.
	BookID string `json:"book_id"`
	// Title is the catalog title, copied for display.
	Title string `json:"title"`
	// Explanation justifies the pick. Set only in explain-why mode.
	Explanation string `json:"explanation,omitempty"`
}

// Response is the structured result of a recommendation request.
type Response struct {
	// ID uniquely identifies the response and its interaction record.
	ID string `json:"id"`
	// Status distinguishes a generated answer from a "no matches" result.
	Status Status `json:"status"`
	// Answer is the generated (or canned) answer text.
	Answer string `json:"answer"`
	// Citations lists the recommended books in the model's order.
	Citations []Citation `json:"citations"`
	// AlternativeOf links a second-opinion response to the one it complements.
	AlternativeOf string `json:"alternative_of,omitempty"`
	// Mode is the resolved generation mode.
	Mode mode.GenerationMode `json:"mode"`
	// Truncated reports that the grounding context dropped candidates to fit
	// the budget.
	Truncated bool `json:"truncated,omitempty"`
	// Fallback reports that the model cited no valid book and the top allowed
	// candidate was cited from retrieval evidence instead.
	Fallback bool `json:"fallback,omitempty"`
}

// CitedIDs returns the cited book IDs in order.
func (r *Response) CitedIDs() []string {
	ids := make([]string, len(r.Citations))
	for i, c := range r.Citations {
		ids[i] = c.BookID
	}
	return ids
}

// InteractionRecord is the append-only audit tuple written after each
// answered request.
type InteractionRecord struct {
	// ID equals the response ID. Time-ordered (UUIDv7).
	ID string `json:"id"`
	// CreatedAt is when the record was produced.
	CreatedAt time.Time `json:"created_at"`
	// Query is the request as received.
	Query Query `json:"query"`
	// Retrieval is the evidence the response was grounded on.
	Retrieval RetrievalResult `json:"retrieval"`
	// Mode is the resolved generation mode.
	Mode mode.GenerationMode `json:"mode"`
	// Response is the result returned to the caller.
	Response Response `json:"response"`
}
