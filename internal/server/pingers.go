package server

import (
	"context"
	"fmt"

	"github.com/BiancaGL2104/rag-book-recommender/internal/provider"
)

// LLMPinger probes the chat model backend through its listing endpoint, so
// readiness checks never spend tokens.
type LLMPinger struct {
	// check is nil for backends without a probe endpoint.
	check provider.HealthChecker
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. A nil check makes Ping a no-op.
func NewLLMPinger(check provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{check: check, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.check == nil {
		return nil
	}
	if err := p.check.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}
