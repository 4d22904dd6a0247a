package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/embedder"
	"github.com/qaforge/qaforge/internal/llm"
	"github.com/qaforge/qaforge/internal/provider"
	"github.com/qaforge/qaforge/internal/rag"
	"github.com/qaforge/qaforge/internal/store"
)

// defaultCollection is the Qdrant collection used when none is configured.
const defaultCollection = "qa_pairs"

// openStore opens the SQLite record store at the configured path, falling
// back to the default under the user's home directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder for it.
func buildEmbedder(cfg *config.Config, log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(cfg.Embedding, cfg.Model, log); err != nil {
		return nil, err
	}
	return embedder.New(cfg.Embedding, cfg.Model)
}

// buildVectorStore connects to Qdrant with the configured collection and
// vector dimensions.
func buildVectorStore(cfg *config.Config) (*rag.QdrantStore, error) {
	collection := cfg.Qdrant.Collection
	if collection == "" {
		collection = defaultCollection
	}
	return rag.NewQdrantStore(&rag.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: collection,
		VectorSize: uint64(embedder.DefaultDimensions(cfg.Embedding)),
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.TLS,
	})
}

// buildLLMClient constructs the retrying chat-completion client for the
// configured model provider.
func buildLLMClient(ctx context.Context, cfg *config.Config) (*llm.Client, error) {
	chatModel, err := provider.New(ctx, provider.FromModelConfig(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	return llm.NewClient(chatModel, llm.Options{
		Temperature:   cfg.Model.Temperature,
		MaxTokens:     cfg.Model.MaxTokens,
		Timeout:       time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		RetryAttempts: cfg.Model.RetryAttempts,
	}), nil
}

// buildEngine assembles the full retrieval engine: embedder, vector store,
// and generation client. The returned cleanup closes the Qdrant connection.
func buildEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*rag.Engine, *rag.QdrantStore, func(), error) {
	emb, err := buildEmbedder(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	vectors, err := buildVectorStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	// A missing collection is a misconfiguration, not a per-query error.
	if err := vectors.EnsureCollection(ctx); err != nil {
		vectors.Close()
		return nil, nil, nil, err
	}

	client, err := buildLLMClient(ctx, cfg)
	if err != nil {
		vectors.Close()
		return nil, nil, nil, err
	}

	engine, err := rag.NewEngine(rag.EngineConfig{
		Embedder:    emb,
		Store:       vectors,
		Generator:   client,
		TopK:        cfg.RAG.TopK,
		Threshold:   cfg.RAG.SimilarityThreshold,
		Streaming:   config.BoolOr(cfg.RAG.Streaming, true),
		ShowSources: config.BoolOr(cfg.RAG.ShowSources, true),
	})
	if err != nil {
		vectors.Close()
		return nil, nil, nil, err
	}

	return engine, vectors, func() { vectors.Close() }, nil
}
