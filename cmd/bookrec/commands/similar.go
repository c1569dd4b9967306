package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
)

// resolveBook accepts a catalog ID or a title, matched as FindByTitle does.
func resolveBook(cat *catalog.Store, ref string) (catalog.Book, error) {
	if b, ok := cat.Get(ref); ok {
		return b, nil
	}
	if b, ok := cat.FindByTitle(ref); ok {
		return b, nil
	}
	return catalog.Book{}, fmt.Errorf("no book with ID or title %q", ref)
}

// NewSimilarCmd constructs `bookrec similar`, which lists the catalog books
// nearest to a given book. No language model is involved.
func NewSimilarCmd() *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "similar <book-id|title>",
		Short: "List the books most similar to a catalog book",
		Example: `  bookrec similar b042
  bookrec similar "The Name of the Rose" -k 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := buildRetrieval(ctx, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("similar: %w", err)
			}
			defer r.Close()

			book, err := resolveBook(r.catalog, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("similar: %w", err)
			}
			if k == 0 {
				k = r.retriever.DefaultK()
			}
			res, err := r.retriever.Similar(ctx, book.ID, k)
			if err != nil {
				return fmt.Errorf("similar: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Books similar to %s by %s [%s]:\n", book.Title, book.Author, book.ID)
			printNeighbours(out, res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of neighbours (default: RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

// NewDistanceCmd constructs `bookrec distance`, which prints the cosine
// distance between two catalog books.
func NewDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "distance <book-a> <book-b>",
		Short:   "Print the cosine distance between two books",
		Example: `  bookrec distance b001 b042`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := buildRetrieval(ctx, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("distance: %w", err)
			}
			defer r.Close()

			a, err := resolveBook(r.catalog, args[0])
			if err != nil {
				return fmt.Errorf("distance: %w", err)
			}
			b, err := resolveBook(r.catalog, args[1])
			if err != nil {
				return fmt.Errorf("distance: %w", err)
			}
			d, err := r.retriever.PairwiseDistance(ctx, a.ID, b.ID)
			if err != nil {
				return fmt.Errorf("distance: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s <-> %s\n", d, a.Title, b.Title)
			return nil
		},
	}
}
