package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BiancaGL2104/rag-book-recommender/internal/catalog"
	"github.com/BiancaGL2104/rag-book-recommender/internal/embedder"
	"github.com/BiancaGL2104/rag-book-recommender/internal/index"
	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
	"github.com/BiancaGL2104/rag-book-recommender/internal/provider"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
	"github.com/BiancaGL2104/rag-book-recommender/internal/recommender"
	"github.com/BiancaGL2104/rag-book-recommender/internal/server"
	"github.com/BiancaGL2104/rag-book-recommender/internal/store"
)

// Defaults for the data locations.
const (
	defaultCatalogPath  = "data/books.csv"
	defaultIndexDir     = "data/index"
	indexBackendFlat    = "flat"
	indexBackendQdrant  = "qdrant"
	interactionsOff     = "disabled"
	llmProbeHTTPTimeout = 5 * time.Second
)

// retrieval is the query-side stack shared by recommend, similar and serve:
// catalog, embedder, vector index and retriever, verified for consistency.
type retrieval struct {
	catalog   *catalog.Store
	retriever *rag.DefaultRetriever
	pingers   []server.Pinger
	closers   []func() error
}

// Close releases resources in reverse acquisition order.
func (r *retrieval) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// buildRetrieval loads the catalog, opens the configured index and checks
// that catalog, index and embedder agree. Any mismatch aborts startup.
func buildRetrieval(ctx context.Context, log *slog.Logger) (_ *retrieval, err error) {
	r := &retrieval{}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	catPath := getEnvOrDefault("BOOKREC_CATALOG", defaultCatalogPath)
	r.catalog, err = catalog.LoadFile(catPath)
	if err != nil {
		return nil, err
	}
	log.Info("catalog loaded", slog.String("path", catPath), slog.Int("books", r.catalog.Len()))

	emb, embCfg, err := embedder.NewFromEnv()
	if err != nil {
		return nil, err
	}

	idx, manifest, err := r.openIndex(ctx, log)
	if err != nil {
		return nil, err
	}
	embCfg.WarnSuspicious(log, manifest.EmbeddingModel)

	rcfg, err := retrieverConfigFromEnv()
	if err != nil {
		return nil, err
	}
	r.retriever, err = rag.NewRetriever(emb, idx, r.catalog, rcfg)
	if err != nil {
		return nil, err
	}
	if err := r.retriever.CheckConsistency(ctx); err != nil {
		return nil, err
	}
	log.Info("retriever ready",
		slog.String("embedding_model", embCfg.Model),
		slog.Int("indexed", idx.Len()),
		slog.Int("top_k", r.retriever.DefaultK()),
		slog.Bool("rerank", rcfg.Rerank.Enabled()),
	)
	return r, nil
}

// openIndex opens the flat artifact or the Qdrant collection described by
// BOOKREC_INDEX_BACKEND. Both read the manifest from BOOKREC_INDEX_DIR.
func (r *retrieval) openIndex(ctx context.Context, log *slog.Logger) (rag.VectorIndex, index.Manifest, error) {
	dir := getEnvOrDefault("BOOKREC_INDEX_DIR", defaultIndexDir)
	switch backend := getEnvOrDefault("BOOKREC_INDEX_BACKEND", indexBackendFlat); backend {
	case indexBackendFlat:
		flat, err := index.LoadFlat(dir)
		if err != nil {
			return nil, index.Manifest{}, err
		}
		log.Info("flat index loaded", slog.String("dir", dir), slog.Int("dimension", flat.Dimension()))
		return flat, flat.Manifest(), nil

	case indexBackendQdrant:
		m, err := index.ReadManifest(dir)
		if err != nil {
			return nil, index.Manifest{}, err
		}
		qcfg := index.QdrantConfigFromEnv()
		q, err := index.OpenQdrant(ctx, qcfg, *m)
		if err != nil {
			return nil, index.Manifest{}, err
		}
		r.closers = append(r.closers, q.Close)
		r.pingers = append(r.pingers, q)
		log.Info("qdrant index opened",
			slog.String("host", qcfg.Host),
			slog.String("collection", qcfg.Collection),
		)
		return q, *m, nil

	default:
		return nil, index.Manifest{}, fmt.Errorf("BOOKREC_INDEX_BACKEND=%q: valid values: flat, qdrant", backend)
	}
}

// retrieverConfigFromEnv reads RETRIEVAL_TOP_K, RETRIEVAL_MAX_K,
// RETRIEVAL_MIN_SCORE and RERANK_WEIGHTS.
func retrieverConfigFromEnv() (*rag.RetrieverConfig, error) {
	topK, err := getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK)
	if err != nil {
		return nil, err
	}
	maxK, err := getEnvInt("RETRIEVAL_MAX_K", rag.DefaultMaxK)
	if err != nil {
		return nil, err
	}
	minScore, err := getEnvFloat("RETRIEVAL_MIN_SCORE", 0)
	if err != nil {
		return nil, err
	}
	weights, err := parseRerankWeights(os.Getenv("RERANK_WEIGHTS"))
	if err != nil {
		return nil, err
	}
	return &rag.RetrieverConfig{DefaultK: topK, MaxK: maxK, MinScore: minScore, Rerank: weights}, nil
}

// app is the full serving stack.
type app struct {
	*retrieval
	rec          *recommender.Recommender
	interactions *store.SQLiteStore
	provider     *provider.Config
}

// buildApp wires retrieval, the chat model, mode control and the
// interaction sinks into a Recommender. reg receives the recommender
// metrics; nil keeps them private.
func buildApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	ret, err := buildRetrieval(ctx, log)
	if err != nil {
		return nil, err
	}
	a := &app{retrieval: ret}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	chatModel, pcfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	a.provider = pcfg
	log.Info("chat model ready", slog.String("provider", string(pcfg.Backend)), slog.String("model", pcfg.ModelName()))

	check, _ := provider.NewHealthChecker(pcfg, &http.Client{Timeout: llmProbeHTTPTimeout})
	a.pingers = append(a.pingers, server.NewLLMPinger(check, string(pcfg.Backend)))

	recorder, err := a.openInteractions(log)
	if err != nil {
		return nil, err
	}

	cfg, err := recommenderConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.ChatModel = chatModel
	cfg.Retriever = a.retriever
	// The retriever has already bounded RETRIEVAL_TOP_K by RETRIEVAL_MAX_K.
	cfg.TopK = a.retriever.DefaultK()
	cfg.Recorder = recorder
	cfg.Registerer = reg
	cfg.Generation.OmitSampling = !pcfg.SupportsSampling()
	if a.interactions != nil {
		cfg.Prior = a.interactions
	}

	a.rec, err = recommender.New(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// recommenderConfigFromEnv reads the context, generation and mood tunables.
func recommenderConfigFromEnv() (*recommender.Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &recommender.Config{}
	var descChars, attempts int
	var detect bool
	var minConf float64
	var err error

	cfg.ContextTokens, err = getEnvInt("CONTEXT_MAX_TOKENS", 0)
	collect(err)
	descChars, err = getEnvInt("CONTEXT_MAX_DESCRIPTION_CHARS", 0)
	collect(err)
	cfg.Generation.Timeout, err = getEnvDuration("GENERATION_TIMEOUT", recommender.DefaultGenerationTimeout)
	collect(err)
	attempts, err = getEnvInt("GENERATION_MAX_ATTEMPTS", recommender.DefaultMaxAttempts)
	collect(err)
	cfg.Generation.BackoffBase, err = getEnvDuration("GENERATION_BACKOFF_BASE", recommender.DefaultBackoffBase)
	collect(err)
	cfg.Generation.BackoffMax, err = getEnvDuration("GENERATION_BACKOFF_MAX", recommender.DefaultBackoffMax)
	collect(err)
	detect, err = getEnvBool("MOOD_DETECTION", true)
	collect(err)
	minConf, err = getEnvFloat("MOOD_MIN_CONFIDENCE", mode.DefaultMinConfidence)
	collect(err)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Generation.MaxAttempts = attempts
	cfg.Builder = rag.NewContextBuilder(descChars)
	cfg.Controller = mode.Controller{DetectionEnabled: detect, MinConfidence: minConf}
	if detect {
		cfg.Detector = mode.KeywordDetector{}
	}
	return cfg, nil
}

// openInteractions opens the SQLite store (BOOKREC_INTERACTIONS_DB, default
// ~/.bookrec/interactions.db, "disabled" to skip) and the optional JSONL
// export (BOOKREC_INTERACTIONS_JSONL). A sink that fails to open is logged
// and skipped: interaction logging never blocks answering.
func (a *app) openInteractions(log *slog.Logger) (recommender.Recorder, error) {
	var sinks store.Multi

	if s, err := openInteractionStore(); err != nil {
		log.Warn("interactions: sqlite store unavailable, continuing without it", slog.Any("error", err))
	} else if s != nil {
		a.interactions = s
		a.closers = append(a.closers, s.Close)
		a.pingers = append(a.pingers, s)
		sinks = append(sinks, s)
	}

	if path := os.Getenv("BOOKREC_INTERACTIONS_JSONL"); path != "" {
		j, err := store.OpenJSONL(path)
		if err != nil {
			log.Warn("interactions: jsonl export unavailable", slog.String("path", path), slog.Any("error", err))
		} else {
			a.closers = append(a.closers, j.Close)
			sinks = append(sinks, j)
		}
	}

	if len(sinks) == 0 {
		log.Info("interactions: recording disabled")
		return nil, nil
	}
	return sinks, nil
}

// openInteractionStore resolves BOOKREC_INTERACTIONS_DB. It returns nil
// without error when the store is disabled.
func openInteractionStore() (*store.SQLiteStore, error) {
	path := os.Getenv("BOOKREC_INTERACTIONS_DB")
	if path == interactionsOff {
		return nil, nil
	}
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}
