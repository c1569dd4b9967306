// Package commands defines the Cobra CLI for the bookrec binary.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/audit"
	"github.com/BiancaGL2104/rag-book-recommender/internal/config"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd constructs the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "bookrec",
		Short: "Grounded, explainable book recommendations from your catalog",
		Long: `bookrec recommends books from a catalog by retrieving the closest matches
to a free-text request and asking a language model to choose among them.
Every recommended book is guaranteed to come from the retrieved candidates.

Configuration comes from environment variables, optionally seeded from a
YAML file (--config, BOOKREC_CONFIG, ~/.bookrec/config.yaml, ./bookrec.yaml).
Environment variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := logging.Options{
				Level:   firstNonEmpty(g.logLevel, os.Getenv("LOG_LEVEL")),
				Format:  firstNonEmpty(g.logFormat, os.Getenv("LOG_FORMAT")),
				Service: "bookrec",
			}
			log := logging.NewWithWriter(os.Stderr, opts)

			path, err := config.Load(g.configPath, log)
			if err != nil {
				return err
			}
			// The YAML file may have set LOG_LEVEL or LOG_FORMAT.
			if path != "" && (g.logLevel == "" || g.logFormat == "") {
				opts.Level = firstNonEmpty(g.logLevel, os.Getenv("LOG_LEVEL"))
				opts.Format = firstNonEmpty(g.logFormat, os.Getenv("LOG_FORMAT"))
				log = logging.NewWithWriter(os.Stderr, opts)
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)
			audit.LogCommandStart(ctx, log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (default: ~/.bookrec/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: json or text (overrides LOG_FORMAT)")

	root.AddCommand(
		NewRecommendCmd(),
		NewServeCmd(),
		NewIndexCmd(),
		NewSimilarCmd(),
		NewDistanceCmd(),
		NewInteractionsCmd(),
		NewVersionCmd(),
	)
	return root
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
