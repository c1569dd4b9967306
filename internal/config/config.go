// Package config loads an optional YAML file and projects its values onto
// environment variables, which every component reads through its own
// ConfigFromEnv constructor. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. BOOKREC_CONFIG environment variable
//  3. ~/.bookrec/config.yaml
//  4. ./bookrec.yaml
//
// With no file the binary runs entirely from env vars.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML document shape. Leaf names mirror the env vars they set.
type Config struct {
	Model        ModelConfig        `yaml:"model"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Index        IndexConfig        `yaml:"index"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Context      ContextConfig      `yaml:"context"`
	Generation   GenerationConfig   `yaml:"generation"`
	Mood         MoodConfig         `yaml:"mood"`
	Interactions InteractionsConfig `yaml:"interactions"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

// ModelConfig selects and tunes the chat model.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, bedrock, gemini, ark.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Ark     ArkConfig     `yaml:"ark"`
}

// OllamaConfig holds Ollama settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI settings. Prefer OPENAI_API_KEY over api_key.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark settings.
type ArkConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig selects the embedding backend. It must match the one the
// index was built with.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	APIKey     string        `yaml:"api_key"`
	Endpoint   string        `yaml:"endpoint"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// CatalogConfig locates the book catalog.
type CatalogConfig struct {
	// Path is the catalog CSV file.
	Path string `yaml:"path"`
}

// IndexConfig selects the vector index.
type IndexConfig struct {
	// Backend is "flat" (local artifact) or "qdrant".
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	TLS        bool   `yaml:"tls"`
}

// RetrievalConfig tunes candidate retrieval.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MaxK     int     `yaml:"max_k"`
	MinScore float64 `yaml:"min_score"`
	// RerankWeights is "similarity,rating,genre", e.g. "0.7,0.2,0.1".
	RerankWeights string `yaml:"rerank_weights"`
}

// ContextConfig bounds the grounding context.
type ContextConfig struct {
	MaxTokens           int `yaml:"max_tokens"`
	MaxDescriptionChars int `yaml:"max_description_chars"`
}

// GenerationConfig tunes the generation retry loop.
type GenerationConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// MoodConfig tunes mood detection.
type MoodConfig struct {
	// Detection is a pointer so an explicit false in YAML is applied.
	Detection     *bool   `yaml:"detection"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// InteractionsConfig locates the interaction log sinks.
type InteractionsConfig struct {
	// DB is the SQLite path, or "disabled".
	DB string `yaml:"db"`
	// JSONL is an optional append-only export path.
	JSONL string `yaml:"jsonl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping lists every env var a YAML file can set. Empty values are
// skipped.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return floatStr(float64(c.Model.Temperature)) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_CACHE_TTL", func(c *Config) string { return durationStr(c.Embedding.CacheTTL) }},
	{"BOOKREC_CATALOG", func(c *Config) string { return c.Catalog.Path }},
	{"BOOKREC_INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"BOOKREC_INDEX_DIR", func(c *Config) string { return c.Index.Dir }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Index.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_MAX_K", func(c *Config) string { return intStr(c.Retrieval.MaxK) }},
	{"RETRIEVAL_MIN_SCORE", func(c *Config) string { return floatStr(c.Retrieval.MinScore) }},
	{"RERANK_WEIGHTS", func(c *Config) string { return c.Retrieval.RerankWeights }},
	{"CONTEXT_MAX_TOKENS", func(c *Config) string { return intStr(c.Context.MaxTokens) }},
	{"CONTEXT_MAX_DESCRIPTION_CHARS", func(c *Config) string { return intStr(c.Context.MaxDescriptionChars) }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return durationStr(c.Generation.Timeout) }},
	{"GENERATION_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Generation.MaxAttempts) }},
	{"GENERATION_BACKOFF_BASE", func(c *Config) string { return durationStr(c.Generation.BackoffBase) }},
	{"GENERATION_BACKOFF_MAX", func(c *Config) string { return durationStr(c.Generation.BackoffMax) }},
	{"MOOD_DETECTION", func(c *Config) string { return optBoolStr(c.Mood.Detection) }},
	{"MOOD_MIN_CONFIDENCE", func(c *Config) string { return floatStr(c.Mood.MinConfidence) }},
	{"BOOKREC_INTERACTIONS_DB", func(c *Config) string { return c.Interactions.DB }},
	{"BOOKREC_INTERACTIONS_JSONL", func(c *Config) string { return c.Interactions.JSONL }},
	{"BOOKREC_HOST", func(c *Config) string { return c.Server.Host }},
	{"BOOKREC_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"BOOKREC_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"BOOKREC_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load resolves and parses the config file, then sets every non-empty value
// whose env var is not already set. It returns the loaded path, or "" when
// no file was found. An explicit path that does not exist is an error.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(&cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file that exists.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("BOOKREC_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".bookrec", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("bookrec.yaml"); err == nil {
		return "bookrec.yaml", nil
	}
	return "", nil
}

func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 32)
}

func durationStr(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

func optBoolStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
