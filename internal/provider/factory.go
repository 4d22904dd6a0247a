package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino/components/model"

	"github.com/qaforge/qaforge/internal/config"
)

// FromModelConfig maps the application model configuration onto a provider
// Config. Ark settings come from env only; it is a gateway escape hatch
// rather than a first-class YAML section.
func FromModelConfig(mc config.ModelConfig) *Config {
	return &Config{
		Backend: Backend(mc.Provider),
		OpenAI: ProviderOpenAI{
			APIKey:  mc.OpenAI.APIKey,
			Model:   mc.OpenAI.Model,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Ollama: ProviderOllama{
			Host:  mc.Ollama.Host,
			Model: mc.Ollama.Model,
		},
		Azure: ProviderAzure{
			APIKey:     mc.Azure.APIKey,
			Endpoint:   mc.Azure.Endpoint,
			Deployment: mc.Azure.Deployment,
			APIVersion: mc.Azure.APIVersion,
		},
		Gemini: ProviderGemini{
			APIKey: mc.Gemini.APIKey,
			Model:  mc.Gemini.Model,
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   mc.MaxTokens,
			Temperature: mc.Temperature,
		},
	}
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend factory. It validates the config first so callers get
// a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
}
