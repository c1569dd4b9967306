// Package provider selects and constructs the chat model that writes
// recommendations. Supported backends: Ollama, OpenAI, Azure OpenAI,
// AWS Bedrock (OpenAI-compatible endpoint), Google Gemini and Volcengine Ark.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock through its OpenAI-compatible runtime endpoint.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL. Env: OLLAMA_HOST.
	Host string
	// Model is the chat model tag. Env: OLLAMA_MODEL.
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the bearer token. Env: OPENAI_API_KEY.
	APIKey string
	// Model is the model name. Env: OPENAI_MODEL.
	Model string
	// BaseURL optionally points at an OpenAI-compatible server. Env: OPENAI_BASE_URL.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the resource key. Env: AZURE_OPENAI_API_KEY.
	APIKey string
	// Endpoint is the resource URL. Env: AZURE_OPENAI_ENDPOINT.
	Endpoint string
	// Deployment is the deployment name. Env: AZURE_OPENAI_DEPLOYMENT.
	Deployment string
	// APIVersion is the REST API version. Env: AZURE_OPENAI_API_VERSION.
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	// AWSRegion selects the runtime endpoint. Env: AWS_REGION.
	AWSRegion string
	// ModelID is the Bedrock model ID. Env: BEDROCK_MODEL_ID.
	ModelID string
	// APIKey is a Bedrock API key. Env: AWS_BEARER_TOKEN_BEDROCK.
	APIKey string
}

// Endpoint returns the OpenAI-compatible runtime URL for the region.
func (b ProviderBedrock) Endpoint() string {
	return "https://bedrock-runtime." + b.AWSRegion + ".amazonaws.com/openai/v1"
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the AI Studio key. Env: GOOGLE_API_KEY.
	APIKey string
	// Model is the model name. Env: GEMINI_MODEL.
	Model string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is the Ark key. Env: ARK_API_KEY.
	APIKey string
	// Model is the endpoint or model ID. Env: ARK_MODEL.
	Model string
	// BaseURL overrides the regional endpoint. Env: ARK_BASE_URL.
	BaseURL string
}

// SharedTuning holds defaults applied at construction. Per-request options
// from the mode's generation parameters override them.
type SharedTuning struct {
	// MaxTokens caps completion length. Env: MODEL_MAX_TOKENS.
	MaxTokens int
	// Temperature controls randomness. Env: MODEL_TEMPERATURE.
	Temperature float32
}

// Config holds the resolved provider configuration. Only the block for
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use. Env: MODEL_PROVIDER.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini
	Ark         ProviderArk

	// Tuning holds construction-time sampling defaults.
	Tuning SharedTuning
}

// Validate reports missing settings for the selected backend, naming the
// environment variable to set.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}

	switch c.Backend {
	case BackendOllama:
		need(c.Ollama.Host, "OLLAMA_HOST")
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendBedrock:
		need(c.Bedrock.AWSRegion, "AWS_REGION")
		need(c.Bedrock.ModelID, "BEDROCK_MODEL_ID")
		need(c.Bedrock.APIKey, "AWS_BEARER_TOKEN_BEDROCK")
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: ollama, openai, azure, bedrock, gemini, ark", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be in [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model identifier for the selected backend, for logs.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// SupportsSampling reports whether the selected model accepts temperature
// and max_tokens. Azure reasoning deployments reject both.
func (c *Config) SupportsSampling() bool {
	return !(c.Backend == BackendAzure && isAzureReasoningModel(c.AzureOpenAI.Deployment))
}

// isAzureReasoningModel reports whether the deployment name looks like an
// o-series or codex reasoning model.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, p := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
