package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3.1"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},
		{
			name: "openai/valid",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o-mini"},
			},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o-mini"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},
		{
			name: "azure/valid",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Endpoint:   "https://books.openai.azure.com",
					Deployment: "gpt-4o",
					APIVersion: "2024-10-21",
				},
			},
		},
		{
			name: "azure/missing endpoint",
			cfg: Config{
				Backend:     BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Deployment: "gpt-4o"},
			},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name:    "azure/lists every missing var",
			cfg:     Config{Backend: BackendAzure},
			wantErr: "AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name: "bedrock/valid",
			cfg: Config{
				Backend: BackendBedrock,
				Bedrock: ProviderBedrock{AWSRegion: "us-east-1", ModelID: "openai.gpt-oss-20b-1:0", APIKey: "bedrock-key"},
			},
		},
		{
			name:    "bedrock/missing model id",
			cfg:     Config{Backend: BackendBedrock, Bedrock: ProviderBedrock{AWSRegion: "us-east-1", APIKey: "k"}},
			wantErr: "BEDROCK_MODEL_ID",
		},
		{
			name:    "bedrock/missing key",
			cfg:     Config{Backend: BackendBedrock, Bedrock: ProviderBedrock{AWSRegion: "us-east-1", ModelID: "m"}},
			wantErr: "AWS_BEARER_TOKEN_BEDROCK",
		},
		{
			name: "gemini/valid",
			cfg: Config{
				Backend: BackendGemini,
				Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.0-flash"},
			},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.0-flash"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}},
			wantErr: "ARK_MODEL",
		},
		{
			name: "temperature out of range",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3.1"},
				Tuning:  SharedTuning{Temperature: 2.5},
			},
			wantErr: "MODEL_TEMPERATURE",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "unknown"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1-preview", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O3-Mini", true},
		{"codex-mini", true},
		{"gpt-5.2-codex", false},
		{"gpt-4o", false},
		{"gpt-4.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			if got := isAzureReasoningModel(tc.deployment); got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestSupportsSampling(t *testing.T) {
	t.Parallel()

	reasoning := &Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Deployment: "o3-mini"}}
	if reasoning.SupportsSampling() {
		t.Error("azure o3-mini should not accept sampling parameters")
	}
	plain := &Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Deployment: "gpt-4o"}}
	if !plain.SupportsSampling() {
		t.Error("azure gpt-4o should accept sampling parameters")
	}
	// The o-series rule is Azure-specific.
	other := &Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "o3-mini"}}
	if !other.SupportsSampling() {
		t.Error("openai backend should always accept sampling parameters")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://books.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")
	t.Setenv("AZURE_OPENAI_API_VERSION", "")
	t.Setenv("MODEL_MAX_TOKENS", "512")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendAzure {
		t.Errorf("Backend = %q, want azure", cfg.Backend)
	}
	if cfg.AzureOpenAI.APIVersion != "2024-10-21" {
		t.Errorf("APIVersion = %q, want default", cfg.AzureOpenAI.APIVersion)
	}
	if cfg.Tuning.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want fallback 0.7", cfg.Tuning.Temperature)
	}
	if cfg.ModelName() != "gpt-4o" {
		t.Errorf("ModelName = %q, want gpt-4o", cfg.ModelName())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestHealthChecker_Ollama(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	hc, ok := NewHealthChecker(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL + "/"}}, srv.Client())
	if !ok {
		t.Fatal("ollama should have a health checker")
	}
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/api/tags" {
		t.Errorf("probe path = %q, want /api/tags", gotPath)
	}
}

func TestHealthChecker_OpenAIUnauthorized(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := &Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-bad", BaseURL: srv.URL}}
	hc, _ := NewHealthChecker(cfg, srv.Client())
	err := hc.HealthCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("HealthCheck error = %v, want 401", err)
	}
	if gotAuth != "Bearer sk-bad" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestHealthChecker_Unprobed(t *testing.T) {
	t.Parallel()

	for _, b := range []Backend{BackendBedrock, BackendArk} {
		if _, ok := NewHealthChecker(&Config{Backend: b}, nil); ok {
			t.Errorf("%s: expected no health checker", b)
		}
	}
}
