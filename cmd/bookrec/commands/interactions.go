package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/store"
)

// NewInteractionsCmd constructs the `bookrec interactions` command group,
// which reads the SQLite interaction log.
func NewInteractionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "Inspect recorded recommendation interactions",
		Long: `Read the interaction log written by recommend and serve.

The database is BOOKREC_INTERACTIONS_DB (default ~/.bookrec/interactions.db).`,
	}
	cmd.AddCommand(newInteractionsTailCmd(), newInteractionsShowCmd(), newInteractionsStatsCmd())
	return cmd
}

// openReadStore opens the interaction store for the read-only subcommands.
func openReadStore() (*store.SQLiteStore, error) {
	s, err := openInteractionStore()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("interaction log is disabled (BOOKREC_INTERACTIONS_DB=disabled)")
	}
	return s, nil
}

func newInteractionsTailCmd() *cobra.Command {
	var (
		n      int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent interactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openReadStore()
			if err != nil {
				return fmt.Errorf("interactions tail: %w", err)
			}
			defer s.Close()

			recs, err := s.Recent(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("interactions tail: %w", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "Number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full records as JSON")
	return cmd
}

func newInteractionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <response-id>",
		Short: "Print one interaction record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openReadStore()
			if err != nil {
				return fmt.Errorf("interactions show: %w", err)
			}
			defer s.Close()

			rec, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("interactions show: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newInteractionsStatsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the most recommended books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openReadStore()
			if err != nil {
				return fmt.Errorf("interactions stats: %w", err)
			}
			defer s.Close()

			counts, err := s.CitationCounts(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("interactions stats: %w", err)
			}
			printCitationCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10, "Number of books")
	return cmd
}
