package embedder

import (
	"fmt"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaModel = "nomic-embed-text"

	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with embedding.dimensions.
	defaultOllamaDimensions = 768
)

// DefaultDimensions returns the default embedding vector size for the given
// backend. The Qdrant collection is created with this size when the config
// does not override it.
func DefaultDimensions(cfg config.EmbeddingConfig) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	switch cfg.Provider {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a rag.Embedder from the embedding configuration, falling
// back to the chat model configuration for credentials where the embedding
// section has no override.
func New(cfg config.EmbeddingConfig, mc config.ModelConfig) (rag.Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = mc.OpenAI.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires EMBEDDING_API_KEY or OPENAI_API_KEY")
		}
		baseURL := cfg.Endpoint
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = mc.Azure.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_API_KEY or AZURE_OPENAI_API_KEY")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = mc.Azure.Endpoint
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_ENDPOINT or AZURE_OPENAI_ENDPOINT")
		}
		apiVersion := mc.Azure.APIVersion
		if apiVersion == "" {
			apiVersion = "2024-02-01"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = mc.Ollama.Host
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: model,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: openai, azure, ollama", provider)
	}
}
