package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat models
// which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate reports configuration that cannot work, such as a hosted backend
// with no API key.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("embedder: config must not be nil")
	}
	if c.Model == "" {
		return fmt.Errorf("embedder: %s: model must not be empty", c.Backend)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q", c.Backend)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must not be negative, got %d", c.Dimensions)
	}
	return nil
}

// WarnSuspicious logs configuration that works but is probably a mistake:
// a chat model named as the embedding model, or a manifest built with a
// different model than the one serving queries.
func (c *Config) WarnSuspicious(log *slog.Logger, indexModel string) {
	if looksLikeChatModel(c.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", c.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	if indexModel != "" && indexModel != c.Model {
		log.Warn("embedder: index was built with a different embedding model",
			slog.String("index_model", indexModel),
			slog.String("query_model", c.Model),
		)
	}
}
