// Package tracing registers an optional Langfuse callback so every chat
// model call made through eino is traced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is a self-hosted Langfuse on its default port.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool { return c.PublicKey != "" && c.SecretKey != "" }

// Setup installs the Langfuse handler as a global eino callback and returns
// a flush function to call before exit. When tracing is not configured it
// installs nothing and returns a no-op flush and false.
func Setup(cfg Config) (flush func(), enabled bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}
	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "bookrec.recommend",
	})
	callbacks.AppendGlobalHandlers(handler)
	return flusher, true
}
