package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthChecker probes the configured inference backend without generating.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpProbe issues a GET against a cheap listing endpoint of the backend.
type httpProbe struct {
	client *http.Client
	url    string
	header http.Header
}

// NewHealthChecker returns a probe for cfg's backend. The second result is
// false for backends that expose no listing endpoint to probe (Bedrock,
// Ark); callers should treat the model as ready in that case.
func NewHealthChecker(cfg *Config, client *http.Client) (HealthChecker, bool) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	p := &httpProbe{client: client, header: http.Header{}}

	switch cfg.Backend {
	case BackendOllama:
		p.url = strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		p.url = strings.TrimRight(base, "/") + "/models"
		p.header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	case BackendAzure:
		az := cfg.AzureOpenAI
		p.url = strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion
		p.header.Set("api-key", az.APIKey)
	case BackendGemini:
		p.url = "https://generativelanguage.googleapis.com/v1beta/models/" + cfg.Gemini.Model
		p.header.Set("x-goog-api-key", cfg.Gemini.APIKey)
	default:
		return nil, false
	}
	return p, true
}

// HealthCheck implements HealthChecker.
func (p *httpProbe) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	req.Header = p.header.Clone()

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health probe returned %s", resp.Status)
	}
	return nil
}
