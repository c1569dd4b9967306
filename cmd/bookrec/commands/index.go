package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/embedder"
	"github.com/BiancaGL2104/rag-book-recommender/internal/index"
	"github.com/BiancaGL2104/rag-book-recommender/internal/indexer"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
)

// NewIndexCmd constructs the `bookrec index` command group.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect the vector index",
	}
	cmd.AddCommand(newIndexBuildCmd(), newIndexInfoCmd())
	return cmd
}

// newIndexBuildCmd constructs `bookrec index build`, which embeds the
// catalog offline and writes the flat index artifact, optionally
// publishing the same vectors to Qdrant.
func newIndexBuildCmd() *cobra.Command {
	var (
		catalogPath string
		outDir      string
		batchSize   int
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed the catalog and write the index artifact",
		Long: `Embed every catalog book with the configured embedding model and write
the index artifact (manifest.json + vectors.f32) to the output directory.

With --qdrant the vectors are also upserted into the Qdrant collection
named by QDRANT_COLLECTION, replacing its contents. The manifest is still
written locally because it maps Qdrant point IDs back to catalog IDs.

The serving process must use the same embedding model; a mismatch is
reported at startup.

Examples:
  bookrec index build
  bookrec index build --catalog data/books.csv --out data/index
  EMBEDDING_PROVIDER=openai bookrec index build --qdrant`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			catalogPath = firstNonEmpty(catalogPath, getEnvOrDefault("BOOKREC_CATALOG", defaultCatalogPath))
			outDir = firstNonEmpty(outDir, getEnvOrDefault("BOOKREC_INDEX_DIR", defaultIndexDir))

			cat, err := catalog.LoadFile(catalogPath)
			if err != nil {
				return fmt.Errorf("index build: %w", err)
			}

			embCfg, err := embedder.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("index build: %w", err)
			}
			// Every catalog text is embedded once; caching would only hold memory.
			embCfg.CacheTTL = 0
			embCfg.WarnSuspicious(log, "")
			emb, err := embedder.New(embCfg)
			if err != nil {
				return fmt.Errorf("index build: %w", err)
			}

			b, err := indexer.NewBuilder(emb, &indexer.Config{
				BatchSize:      batchSize,
				EmbeddingModel: embCfg.Model,
			})
			if err != nil {
				return fmt.Errorf("index build: %w", err)
			}

			log.Info("index build started",
				slog.String("catalog", catalogPath),
				slog.Int("books", cat.Len()),
				slog.String("embedding_backend", embCfg.Backend),
				slog.String("embedding_model", embCfg.Model),
			)
			start := time.Now()
			flat, err := b.Build(ctx, cat, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("index build: %w", err)
			}

			var pub indexer.Publisher
			if publish {
				q, err := index.NewQdrant(index.QdrantConfigFromEnv(), flat.Manifest())
				if err != nil {
					return fmt.Errorf("index build: %w", err)
				}
				defer q.Close()
				pub = q
			}

			if err := indexer.Write(ctx, flat, outDir, pub); err != nil {
				return fmt.Errorf("index build: %w", err)
			}

			log.Info("index build complete",
				slog.String("dir", outDir),
				slog.Int("vectors", flat.Len()),
				slog.Int("dimension", flat.Dimension()),
				slog.Bool("qdrant", publish),
				slog.Duration("elapsed", time.Since(start)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d books (dimension %d) into %s\n", flat.Len(), flat.Dimension(), outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog CSV (env BOOKREC_CATALOG, default "+defaultCatalogPath+")")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (env BOOKREC_INDEX_DIR, default "+defaultIndexDir+")")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Books per embedding request (default 32)")
	cmd.Flags().BoolVar(&publish, "qdrant", false, "Also publish the vectors to Qdrant")

	return cmd
}

// newIndexInfoCmd constructs `bookrec index info`, which prints the
// manifest of an index artifact.
func newIndexInfoCmd() *cobra.Command {
	var dir string

	return &cobra.Command{
		Use:   "info [dir]",
		Short: "Print the index manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = getEnvOrDefault("BOOKREC_INDEX_DIR", defaultIndexDir)
			if len(args) == 1 {
				dir = args[0]
			}
			m, err := index.ReadManifest(dir)
			if err != nil {
				return fmt.Errorf("index info: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dir:             %s\n", dir)
			fmt.Fprintf(out, "books:           %d\n", len(m.BookIDs))
			fmt.Fprintf(out, "dimension:       %d\n", m.Dimension)
			fmt.Fprintf(out, "metric:          %s\n", m.Metric)
			fmt.Fprintf(out, "embedding_model: %s\n", m.EmbeddingModel)
			fmt.Fprintf(out, "created_at:      %s\n", m.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}
