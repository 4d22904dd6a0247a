// Package rag implements retrieval-augmented answering over a knowledge base
// of question-answer pairs extracted from call-center dialogs. Retrieval runs
// against a vector store; generation runs against a chat model via the llm
// package.
package rag

import "context"

// Document is a single QA pair prepared for indexing. Text carries the
// asymmetric e5-style framing ("query: ...\n\npassage: ...") that is embedded;
// the remaining fields become the point payload.
type Document struct {
	// ID is the QA pair's record store identifier.
	ID int64
	// Text is the content that gets embedded.
	Text string
	// Embedding is the pre-computed vector for Text. The indexer fills it
	// before handing documents to the store.
	Embedding []float32

	Question     string
	Answer       string
	Direction    string
	QuestionType string
	// Keywords is the comma-joined keyword list.
	Keywords string

	Filename      string
	DialogID      string
	CallDirection string
	OperatorPhone string
	ClientPhone   string
	CallDate      string
	CallTime      string
}

// ScoredDocument is a search hit with its raw cosine distance. The engine
// converts distance to similarity; stores must not do that themselves.
type ScoredDocument struct {
	Document
	// Distance is the cosine distance of the hit (0 = identical).
	Distance float64
}

// Evidence is a retrieved QA pair as exposed to API clients, with its
// normalized similarity score.
type Evidence struct {
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Direction    string  `json:"direction"`
	QuestionType string  `json:"question_type"`
	Keywords     string  `json:"keywords"`
	Similarity   float64 `json:"similarity_score"`

	Meta EvidenceMeta `json:"metadata"`
}

// EvidenceMeta identifies the call the pair was extracted from.
type EvidenceMeta struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	CallDate string `json:"call_date"`
	CallTime string `json:"call_time"`
}

// Embedder converts a batch of texts into dense vector embeddings.
// The returned slice is parallel to the input slice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the retrieval backend: a single collection of QA-pair
// points searched by cosine similarity.
type VectorStore interface {
	// Rebuild replaces the collection contents with the given documents.
	// All documents must carry pre-computed embeddings.
	Rebuild(ctx context.Context, docs []Document) error

	// Search returns up to topK nearest documents for the query vector,
	// ordered by ascending distance.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredDocument, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context) (uint64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
