package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv builds a Config from the current environment. It is the read-side
// counterpart of Load: Load pushes YAML values into unset env vars, FromEnv
// assembles the effective configuration the commands run with.
// Zero values mean "unset"; each component applies its own defaults.
func FromEnv() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:       os.Getenv("MODEL_PROVIDER"),
			MaxTokens:      envInt("MODEL_MAX_TOKENS"),
			Temperature:    float32(envFloat("MODEL_TEMPERATURE")),
			RetryAttempts:  envInt("MODEL_RETRY_ATTEMPTS"),
			TimeoutSeconds: envInt("MODEL_TIMEOUT_SECONDS"),
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  os.Getenv("OPENAI_MODEL"),
			},
			Ollama: OllamaConfig{
				Host:  os.Getenv("OLLAMA_HOST"),
				Model: os.Getenv("OLLAMA_MODEL"),
			},
			Azure: AzureConfig{
				APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
				Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
				Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
				APIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GOOGLE_API_KEY"),
				Model:  os.Getenv("GEMINI_MODEL"),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   os.Getenv("EMBEDDING_PROVIDER"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			Device:     os.Getenv("EMBEDDING_DEVICE"),
			BatchSize:  envInt("EMBEDDING_BATCH_SIZE"),
			Dimensions: envInt("EMBEDDING_DIMENSIONS"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		},
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       envInt("QDRANT_PORT"),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			TLS:        envBool("QDRANT_TLS", false),
		},
		RAG: RAGConfig{
			TopK:                envInt("RAG_TOP_K"),
			SimilarityThreshold: envFloat("RAG_SIMILARITY_THRESHOLD"),
			Streaming:           envBoolPtr("RAG_STREAMING"),
			ShowSources:         envBoolPtr("RAG_SHOW_SOURCES"),
			IndexAll:            envBoolPtr("RAG_INDEX_ALL"),
			ExcludeIrrelevant:   envBoolPtr("RAG_EXCLUDE_IRRELEVANT"),
		},
		Database: DatabaseConfig{
			Path: os.Getenv("QAFORGE_DB"),
		},
		Server: ServerConfig{
			APIKey: os.Getenv("QAFORGE_API_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
			ExpertUsername: os.Getenv("TELEGRAM_EXPERT_USERNAME"),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
			File:   os.Getenv("LOG_FILE"),
		},
		Tracing: TracingConfig{
			PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
			SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
			Host:      os.Getenv("LANGFUSE_HOST"),
		},
	}
}

// BoolOr dereferences an optional bool, falling back to def when the option
// was never set.
func BoolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

func envBoolPtr(key string) *bool {
	if os.Getenv(key) == "" {
		return nil
	}
	v := envBool(key, false)
	return &v
}
