// Package provider constructs the Eino ChatModel backend used for answer
// generation and QA extraction. The backend is selected by configuration;
// each backend uses its own native credential settings.
package provider

import (
	"fmt"
)

// Backend identifies a supported chat-model backend.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendOllama Backend = "ollama"
	BackendAzure  Backend = "azure"
	BackendGemini Backend = "gemini"
	BackendArk    Backend = "ark"
)

// Config selects and configures a chat-model backend.
type Config struct {
	// Backend selects which provider block below is used.
	Backend Backend

	OpenAI ProviderOpenAI
	Ollama ProviderOllama
	Azure  ProviderAzure
	Gemini ProviderGemini
	Ark    ProviderArk

	Tuning SharedTuning
}

// ProviderOpenAI configures the OpenAI API backend.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string
}

// ProviderOllama configures a local or remote Ollama instance.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderAzure configures Azure OpenAI Service.
type ProviderAzure struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini configures Google Gemini via AI Studio.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk configures the ByteDance Ark model runtime, also usable for
// Ark-compatible gateways.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation settings common to all backends.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// Validate checks that the selected backend has its required settings.
// Called at startup so misconfiguration fails fast, not on the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: model name is required for openai backend")
		}
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for ollama backend")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendAzure:
		if c.Azure.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.Azure.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.Azure.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: openai, ollama, azure, gemini, ark", c.Backend)
	}
	return nil
}
