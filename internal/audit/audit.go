// Package audit writes one structured record per CLI invocation describing
// the resolved configuration. Secret values are reduced to "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// entry is one env var reported in the audit record.
type entry struct {
	key    string
	secret bool
}

// keys is the ordered set of env vars reported on every command start.
var keys = []entry{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"OPENAI_BASE_URL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"AWS_BEARER_TOKEN_BEDROCK", true},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"BOOKREC_CATALOG", false},
	{"BOOKREC_INDEX_BACKEND", false},
	{"BOOKREC_INDEX_DIR", false},
	{"QDRANT_HOST", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"RETRIEVAL_TOP_K", false},
	{"RERANK_WEIGHTS", false},
	{"MOOD_DETECTION", false},
	{"BOOKREC_INTERACTIONS_DB", false},
	{"BOOKREC_INTERACTIONS_JSONL", false},
	{"LOG_LEVEL", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secrets indexes the secret keys for SanitiseKey.
var secrets = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range keys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart logs the command name, the config file in use and the
// sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(keys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range keys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys and the value (or
// "unset") otherwise.
func SanitiseKey(key, value string) string {
	if secrets[key] || looksSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

// looksSecret catches credentials that are not in the fixed key list.
func looksSecret(key string) bool {
	for _, marker := range []string{"_API_KEY", "_SECRET", "_TOKEN", "PASSWORD"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath shortens the home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
