// Package indexer rebuilds the vector index from the record store. Indexing
// is always a full rebuild: the collection is dropped and repopulated so the
// index exactly mirrors the eligible record set.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/rag"
	"github.com/qaforge/qaforge/internal/store"
)

// defaultBatchSize is the number of texts embedded per request.
const defaultBatchSize = 16

// Config holds indexing options.
type Config struct {
	// IndexAll indexes every eligible pair; when false only audited pairs
	// are indexed.
	IndexAll bool
	// ExcludeIrrelevant skips pairs flagged irrelevant.
	ExcludeIrrelevant bool
	// BatchSize is the embed batch size (default 16).
	BatchSize int
}

// Indexer loads eligible pairs, embeds them, and rebuilds the vector store.
type Indexer struct {
	store    *store.Store
	embedder rag.Embedder
	vectors  rag.VectorStore
	cfg      Config
}

// Result summarises an indexing run.
type Result struct {
	// Loaded is the number of eligible pairs read from the record store.
	Loaded int
	// Indexed is the number of documents written to the vector store.
	Indexed int
}

// New constructs an Indexer.
func New(s *store.Store, e rag.Embedder, v rag.VectorStore, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Indexer{store: s, embedder: e, vectors: v, cfg: cfg}
}

// Run executes a full rebuild. With zero eligible pairs the existing
// collection is left untouched and Result.Indexed is zero.
func (ix *Indexer) Run(ctx context.Context) (*Result, error) {
	log := logging.FromContext(ctx)

	pairs, err := ix.store.ListEligible(ctx, ix.cfg.IndexAll, ix.cfg.ExcludeIrrelevant)
	if err != nil {
		return nil, fmt.Errorf("indexer: load pairs: %w", err)
	}
	log.Info("loaded eligible pairs",
		slog.Int("count", len(pairs)),
		slog.Bool("index_all", ix.cfg.IndexAll),
		slog.Bool("exclude_irrelevant", ix.cfg.ExcludeIrrelevant))

	if len(pairs) == 0 {
		log.Warn("no eligible pairs, skipping rebuild")
		return &Result{}, nil
	}

	docs := prepareDocuments(pairs)

	for start := 0; start < len(docs); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Text)
		}
		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("indexer: embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("indexer: embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i := range vectors {
			docs[start+i].Embedding = vectors[i]
		}
		log.Debug("embedded batch", slog.Int("from", start), slog.Int("to", end))
	}

	if err := ix.vectors.Rebuild(ctx, docs); err != nil {
		return nil, fmt.Errorf("indexer: rebuild: %w", err)
	}

	log.Info("index rebuild complete", slog.Int("indexed", len(docs)))
	return &Result{Loaded: len(pairs), Indexed: len(docs)}, nil
}

// prepareDocuments maps pairs onto index documents. The embedded text uses
// the asymmetric e5 framing; queries are embedded raw at search time.
func prepareDocuments(pairs []store.Pair) []rag.Document {
	docs := make([]rag.Document, 0, len(pairs))
	for _, p := range pairs {
		docs = append(docs, rag.Document{
			ID:            p.ID,
			Text:          EmbedText(p.Question, p.Answer),
			Question:      p.Question,
			Answer:        p.Answer,
			Direction:     p.Direction,
			QuestionType:  p.QuestionType,
			Keywords:      strings.Join(p.Keywords, ", "),
			Filename:      p.Filename,
			DialogID:      p.DialogID,
			CallDirection: p.CallDirection,
			OperatorPhone: p.OperatorPhone,
			ClientPhone:   p.ClientPhone,
			CallDate:      p.CallDate,
			CallTime:      p.CallTime,
		})
	}
	return docs
}

// EmbedText renders the document text that gets embedded for a QA pair.
func EmbedText(question, answer string) string {
	return fmt.Sprintf("query: %s\n\npassage: %s", question, answer)
}
