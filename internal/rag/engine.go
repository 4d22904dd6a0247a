package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/qaforge/qaforge/internal/llm"
	"github.com/qaforge/qaforge/internal/logging"
)

// emptyContext is the sentinel context block used when no pairs were
// retrieved. It only reaches the model when a caller formats an empty
// evidence set explicitly; the engine itself short-circuits before that.
const emptyContext = "Релевантной информации не найдено."

// Generator produces answer text from a system+user prompt pair.
// *llm.Client is the production implementation.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteStream(ctx context.Context, system, user string) (*llm.Stream, error)
}

// EngineConfig holds the collaborators and tuning for an Engine.
type EngineConfig struct {
	Embedder  Embedder
	Store     VectorStore
	Generator Generator

	// TopK is the number of nearest neighbours retrieved per query.
	TopK int
	// Threshold is the minimum similarity (0.0–1.0) a hit must reach.
	Threshold float64
	// Streaming selects incremental generation by default; a per-request
	// override is available on AnswerQuestion.
	Streaming bool
	// ShowSources includes retrieved evidence in results.
	ShowSources bool
}

// Engine runs the full retrieve-and-generate cycle.
type Engine struct {
	embedder    Embedder
	store       VectorStore
	generator   Generator
	topK        int
	threshold   float64
	streaming   bool
	showSources bool
}

// NewEngine constructs an Engine, failing fast on missing collaborators so
// misconfiguration surfaces at startup.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("rag: vector store must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("rag: generator must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("rag: similarity threshold %v outside [0.0, 1.0]", cfg.Threshold)
	}
	return &Engine{
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		generator:   cfg.Generator,
		topK:        cfg.TopK,
		threshold:   cfg.Threshold,
		streaming:   cfg.Streaming,
		showSources: cfg.ShowSources,
	}, nil
}

// SearchSimilarPairs embeds the raw query and returns the retrieved pairs
// that clear the similarity threshold, in descending similarity order.
// The query is embedded without the e5 "query:" prefix; only indexed passages
// carry the asymmetric framing.
func (e *Engine) SearchSimilarPairs(ctx context.Context, query string, k int) ([]Evidence, error) {
	if k <= 0 {
		k = e.topK
	}
	// A blank query has no retrievable meaning; report zero evidence without
	// touching the embedder.
	if strings.TrimSpace(query) == "" {
		return []Evidence{}, nil
	}
	log := logging.FromContext(ctx)
	log.Info("searching similar pairs", slog.String("query", truncate(query, 100)), slog.Int("top_k", k))

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one query", len(vectors))
	}

	hits, err := e.store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	evidence := make([]Evidence, 0, len(hits))
	for _, hit := range hits {
		// The threshold applies to the raw similarity; rounding is for
		// presentation only.
		similarity := 1 - hit.Distance
		if similarity < e.threshold {
			continue
		}
		evidence = append(evidence, Evidence{
			Question:     hit.Question,
			Answer:       hit.Answer,
			Direction:    hit.Direction,
			QuestionType: hit.QuestionType,
			Keywords:     hit.Keywords,
			Similarity:   round4(similarity),
			Meta: EvidenceMeta{
				ID:       hit.ID,
				Filename: hit.Filename,
				CallDate: hit.CallDate,
				CallTime: hit.CallTime,
			},
		})
	}

	log.Info("retrieval complete",
		slog.Int("found", len(evidence)),
		slog.Float64("threshold", e.threshold))

	return evidence, nil
}

// FormatContext renders retrieved pairs into the numbered context block fed
// to the model.
func (e *Engine) FormatContext(pairs []Evidence) string {
	if len(pairs) == 0 {
		return emptyContext
	}
	parts := make([]string, 0, len(pairs))
	for i, p := range pairs {
		parts = append(parts, fmt.Sprintf(
			"--- Пара #%d (релевантность: %.2f%%) ---\nВопрос: %s\nОтвет: %s\n",
			i+1, p.Similarity*100, p.Question, p.Answer))
	}
	return strings.Join(parts, "\n")
}

// AnswerQuestion runs the full cycle: retrieve, assemble context, generate.
// streaming overrides the engine default when non-nil. When retrieval yields
// no evidence the model is never called and the fixed fallback answer is
// returned with Success=false.
func (e *Engine) AnswerQuestion(ctx context.Context, query string, streaming *bool) *Answer {
	useStreaming := e.streaming
	if streaming != nil {
		useStreaming = *streaming
	}
	log := logging.FromContext(ctx)

	evidence, err := e.SearchSimilarPairs(ctx, query, 0)
	if err != nil {
		log.Error("retrieval failed", slog.Any("error", err))
		return e.failure(query, err)
	}

	if len(evidence) == 0 {
		return &Answer{
			Success:  false,
			Text:     NoEvidenceAnswer,
			Evidence: []Evidence{},
			Query:    query,
		}
	}

	contextBlock := e.FormatContext(evidence)
	user := llm.BuildUserPrompt(query, contextBlock)

	shown := evidence
	if !e.showSources {
		shown = []Evidence{}
	}

	if useStreaming {
		stream, err := e.generator.CompleteStream(ctx, llm.SystemPrompt, user)
		if err != nil {
			log.Error("streaming generation failed",
				slog.String("kind", llm.KindOf(err).String()),
				slog.Any("error", err))
			return e.failure(query, err)
		}
		return &Answer{
			Success:   true,
			Stream:    stream,
			Streaming: true,
			Evidence:  shown,
			Query:     query,
		}
	}

	text, err := e.generator.Complete(ctx, llm.SystemPrompt, user)
	if err != nil {
		log.Error("generation failed",
			slog.String("kind", llm.KindOf(err).String()),
			slog.Any("error", err))
		return e.failure(query, err)
	}

	return &Answer{
		Success:  true,
		Text:     text,
		Evidence: shown,
		Query:    query,
	}
}

// ShowSources reports whether results include retrieved evidence.
func (e *Engine) ShowSources() bool { return e.showSources }

// Streaming reports the default generation mode.
func (e *Engine) Streaming() bool { return e.streaming }

// TopK reports the configured retrieval depth.
func (e *Engine) TopK() int { return e.topK }

// Threshold reports the configured similarity cutoff.
func (e *Engine) Threshold() float64 { return e.threshold }

// failure builds the user-facing failure answer for err. The full error stays
// on Err for logging; Text carries only what the user may see.
func (e *Engine) failure(query string, err error) *Answer {
	return &Answer{
		Success:  false,
		Text:     UserErrorMessage(err),
		Evidence: []Evidence{},
		Query:    query,
		Err:      err,
	}
}

// round4 rounds to four decimal places, the precision similarity scores are
// reported at.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// truncate shortens s to at most n runes for log output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
