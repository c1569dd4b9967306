package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
	"github.com/BiancaGL2104/rag-book-recommender/internal/store"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printResponse renders a recommendation for the terminal.
func printResponse(w io.Writer, resp *rag.Response) {
	fmt.Fprintln(w, strings.TrimSpace(resp.Answer))
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recommended:")
		for i, c := range resp.Citations {
			fmt.Fprintf(w, "  %d. %s [%s]\n", i+1, c.Title, c.BookID)
			if c.Explanation != "" {
				fmt.Fprintf(w, "     %s\n", c.Explanation)
			}
		}
	}

	var notes []string
	if resp.Fallback {
		notes = append(notes, "citation chosen from retrieval evidence")
	}
	if resp.Truncated {
		notes = append(notes, "context truncated")
	}
	if !resp.Mode.Mood.Neutral() {
		notes = append(notes, "mood: "+resp.Mode.Mood.Label)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "id: %s  style: %s", resp.ID, resp.Mode.Style)
	if len(notes) > 0 {
		fmt.Fprintf(w, "  (%s)", strings.Join(notes, "; "))
	}
	fmt.Fprintln(w)
}

// printNeighbours renders a similarity listing.
func printNeighbours(w io.Writer, res rag.RetrievalResult) {
	for _, c := range res.Items {
		fmt.Fprintf(w, "%2d. %-40s %-24s sim=%.3f [%s]\n", c.Rank, truncate(c.Book.Title, 40), truncate(c.Book.Author, 24), c.Similarity, c.Book.ID)
	}
}

// printRecords renders interaction records newest first.
func printRecords(w io.Writer, recs []rag.InteractionRecord) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %q -> %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.ID,
			truncate(r.Query.Text, 50),
			strings.Join(r.Response.CitedIDs(), ","),
		)
	}
}

// printCitationCounts renders the most recommended books.
func printCitationCounts(w io.Writer, counts []store.CitationCount) {
	for i, c := range counts {
		fmt.Fprintf(w, "%2d. %-40s %4d [%s]\n", i+1, truncate(c.Title, 40), c.Count, c.BookID)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
