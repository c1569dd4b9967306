package audit

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key, value, want string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"AWS_BEARER_TOKEN_BEDROCK", "tok", "set"},
		{"LANGFUSE_SECRET_KEY", "sk-lf", "set"},
		{"SOME_OTHER_API_KEY", "hunter2", "set"},
		{"DB_PASSWORD", "hunter2", "set"},
		{"MODEL_PROVIDER", "ollama", "ollama"},
		{"MODEL_PROVIDER", "", "unset"},
		{"BOOKREC_CATALOG", "data/books.csv", "data/books.csv"},
	}
	for _, tc := range cases {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty: got %q", got)
	}
	if got := sanitiseConfigPath("/etc/bookrec.yaml"); got != "/etc/bookrec.yaml" {
		t.Errorf("absolute: got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		p := filepath.Join(home, ".bookrec", "config.yaml")
		if got := sanitiseConfigPath(p); got != "~/.bookrec/config.yaml" {
			t.Errorf("home: got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-very-secret")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("BOOKREC_CATALOG", "books.csv")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(t.Context(), log, "recommend", "")

	if strings.Contains(buf.String(), "sk-very-secret") {
		t.Fatal("secret value leaked into audit log")
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"command":         "recommend",
		"config_file":     "none",
		"OPENAI_API_KEY":  "set",
		"MODEL_PROVIDER":  "openai",
		"BOOKREC_CATALOG": "books.csv",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s: got %v, want %q", k, rec[k], v)
		}
	}
}
