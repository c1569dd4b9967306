package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// getEnvOrDefault returns the named variable, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses the named variable as an int. Unset means fallback; a
// malformed value is an error so typos do not silently take defaults.
func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: not an integer", key, v)
	}
	return n, nil
}

// getEnvFloat parses the named variable as a float64.
func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: not a number", key, v)
	}
	return f, nil
}

// getEnvDuration parses the named variable as a Go duration.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return d, nil
}

// getEnvBool parses the named variable with strconv.ParseBool.
func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: not a boolean", key, v)
	}
	return b, nil
}

// parseRerankWeights parses "similarity,rating,genre". "on" selects the
// default blend and "" or "off" disables reranking.
func parseRerankWeights(s string) (rag.RerankWeights, error) {
	switch s = strings.TrimSpace(strings.ToLower(s)); s {
	case "", "off", "false", "0":
		return rag.RerankWeights{}, nil
	case "on", "true", "default":
		return rag.DefaultRerankWeights, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return rag.RerankWeights{}, fmt.Errorf("RERANK_WEIGHTS=%q: want three comma-separated weights", s)
	}
	var w [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return rag.RerankWeights{}, fmt.Errorf("RERANK_WEIGHTS=%q: weight %q must be a non-negative number", s, p)
		}
		w[i] = f
	}
	return rag.RerankWeights{Similarity: w[0], Rating: w[1], Genre: w[2]}, nil
}
