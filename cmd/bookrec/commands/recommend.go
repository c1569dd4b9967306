package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
	"github.com/BiancaGL2104/rag-book-recommender/internal/tracing"
)

// recommendFlags are the per-request options of `bookrec recommend`.
type recommendFlags struct {
	style         string
	mood          string
	explain       bool
	alternative   bool
	alternativeOf string
	exclude       []string
	k             int
	asJSON        bool
}

// query builds the request from the positional text and flags.
func (f recommendFlags) query(args []string) rag.Query {
	q := rag.Query{
		Text:           strings.TrimSpace(strings.Join(args, " ")),
		Style:          f.style,
		Mood:           f.mood,
		ExplainWhy:     f.explain,
		AlternativeOf:  f.alternativeOf,
		ExcludeBookIDs: f.exclude,
		K:              f.k,
	}
	q.WantAlternative = f.alternative || f.alternativeOf != "" || len(f.exclude) > 0
	return q
}

// NewRecommendCmd constructs `bookrec recommend`, which answers a single
// request and prints the grounded recommendation.
func NewRecommendCmd() *cobra.Command {
	var f recommendFlags

	cmd := &cobra.Command{
		Use:   "recommend [request]",
		Short: "Recommend books for a free-text request",
		Long: `Retrieve the catalog books closest to the request and ask the configured
language model to recommend among them.

Styles: friendly (default), formal, concise, detailed.
Moods: neutral, happy, sad, anxious, excited, relaxed, curious (detected
from the request unless set explicitly or MOOD_DETECTION=false).

Examples:
  bookrec recommend "a slow-burn mystery set in a small coastal town"
  bookrec recommend --style concise --explain "space opera with found family"
  bookrec recommend --alternative-of 0190c3a4-7b8e-7def-8abc-1234567890ab "same, but something else"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			q := f.query(args)
			if q.Text == "" {
				return fmt.Errorf("recommend: request text is empty")
			}

			flush, traced := tracing.Setup(tracing.ConfigFromEnv())
			defer flush()
			if traced {
				log.Debug("langfuse tracing enabled")
			}

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("recommend: %w", err)
			}
			defer a.Close()

			resp, err := a.rec.Answer(ctx, q)
			if err != nil {
				return fmt.Errorf("recommend: %s: %w", rag.Classify(err).Kind, err)
			}

			out := cmd.OutOrStdout()
			if f.asJSON {
				return printJSON(out, resp)
			}
			printResponse(out, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.style, "style", "s", "", "Response style: friendly, formal, concise, detailed")
	cmd.Flags().StringVarP(&f.mood, "mood", "m", "", "Reader mood override: "+strings.Join(mode.Moods, ", "))
	cmd.Flags().BoolVarP(&f.explain, "explain", "e", false, "Explain why each book was recommended")
	cmd.Flags().BoolVar(&f.alternative, "alternative", false, "Ask for a second opinion")
	cmd.Flags().StringVar(&f.alternativeOf, "alternative-of", "", "Response ID whose recommendations should not be repeated")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Book IDs to leave out (implies --alternative)")
	cmd.Flags().IntVarP(&f.k, "k", "k", 0, "Number of candidates to retrieve (default: RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the full response as JSON")

	return cmd
}
