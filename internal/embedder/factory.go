package embedder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultAzureAPIVersion is the Azure OpenAI API version used when
	// AZURE_OPENAI_API_VERSION is unset.
	defaultAzureAPIVersion = "2025-04-01-preview"

	// DefaultCacheTTL is how long query embeddings are memoised.
	DefaultCacheTTL = 10 * time.Minute
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
)

// Config is the resolved embedding configuration. The model name is recorded
// in the index manifest so a mismatched serving embedder is easy to spot.
type Config struct {
	// Backend is ollama, openai or azure.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Endpoint is the API base URL.
	Endpoint string
	// APIKey authenticates OpenAI and Azure requests. Unused by Ollama.
	APIKey string
	// Dimensions requests a specific output size where the API supports it.
	// Zero keeps the model default.
	Dimensions int
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
	// CacheTTL enables the query-embedding cache when positive.
	CacheTTL time.Duration
}

// ConfigFromEnv resolves the embedding configuration, inheriting chat
// provider credentials when embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER when it names an embedding
//     backend, else ollama
//  2. EMBEDDING_MODEL overrides the backend default model
//  3. EMBEDDING_API_KEY overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  4. EMBEDDING_ENDPOINT overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  5. EMBEDDING_DIMENSIONS requests a vector size (OpenAI/Azure only)
//  6. EMBEDDING_CACHE_TTL sets the query cache lifetime (0 disables it)
func ConfigFromEnv() (*Config, error) {
	backend := getEnv("EMBEDDING_PROVIDER")
	if backend == "" {
		switch p := getEnv("MODEL_PROVIDER"); p {
		case BackendOpenAI, BackendAzure:
			backend = p
		default:
			backend = BackendOllama
		}
	}

	cfg := &Config{
		Backend:    backend,
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		CacheTTL:   getEnvDuration("EMBEDDING_CACHE_TTL", DefaultCacheTTL),
	}

	switch backend {
	case BackendOllama:
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("OLLAMA_HOST"), "http://localhost:11434")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)

	case BackendOpenAI:
		cfg.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), "https://api.openai.com/v1")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)

	case BackendAzure:
		cfg.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion)
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure", backend)
	}

	return cfg, nil
}

// New constructs the embedder described by cfg, wrapped in a query cache
// when cfg.CacheTTL is positive.
func New(cfg *Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var e rag.Embedder
	switch cfg.Backend {
	case BackendOllama:
		e = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model})
	case BackendOpenAI:
		e = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case BackendAzure:
		e = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	}

	if cfg.CacheTTL > 0 {
		e = NewCached(e, cfg.Model, cfg.CacheTTL)
	}
	return e, nil
}

// NewFromEnv is ConfigFromEnv followed by New. The resolved config is
// returned so callers can record the model name.
func NewFromEnv() (rag.Embedder, *Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	e, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration parses a Go duration from the named variable, or returns
// fallback if unset or invalid.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
