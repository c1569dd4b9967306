// Package embedder provides rag.Embedder implementations for the Ollama and
// OpenAI (or Azure OpenAI) embedding APIs, talking plain HTTP so no vendor
// SDK is needed, plus a TTL cache for repeated query texts.
package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// maxErrorBody bounds how much of a failed response is read for the error
// message.
const maxErrorBody = 4 << 10

// apiError is the message extracted from a non-2xx response.
type apiError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the backend's error text, or the raw body prefix.
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// postJSON sends body as JSON and decodes a 2xx response into out. On other
// statuses errMsg extracts a message from the body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, errMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apiError{Status: resp.StatusCode, Message: errMsg(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
