package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore. The collection is not created
// here: Rebuild owns collection lifecycle, and Search against a missing
// collection surfaces a clear store error.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// EnsureCollection verifies the configured collection exists. Serving callers
// run it once at startup so a missing index is a construction failure rather
// than a per-query error.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("qdrant: collection %q does not exist, run `qaforge index` first", s.cfg.Collection)
	}
	return nil
}

// Rebuild drops and recreates the collection, then upserts all documents.
// A full rebuild keeps the index an exact mirror of the eligible record set:
// edited answers are replaced and deleted pairs disappear.
func (s *QdrantStore) Rebuild(ctx context.Context, docs []Document) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to delete collection %q: %w", s.cfg.Collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	// Upsert in batches to keep individual gRPC messages bounded.
	const batchSize = 100
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, doc := range docs[start:end] {
			if len(doc.Embedding) == 0 {
				return fmt.Errorf("qdrant: document %d has no embedding", doc.ID)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(doc.ID)),
				Vectors: qdrant.NewVectors(doc.Embedding...),
				Payload: qdrant.NewValueMap(payloadOf(doc)),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	return nil
}

// payloadOf maps a document onto the point payload stored alongside its vector.
func payloadOf(doc Document) map[string]any {
	return map[string]any{
		"id":             doc.ID,
		"question":       doc.Question,
		"answer":         doc.Answer,
		"direction":      doc.Direction,
		"question_type":  doc.QuestionType,
		"keywords":       doc.Keywords,
		"filename":       doc.Filename,
		"dialog_id":      doc.DialogID,
		"call_direction": doc.CallDirection,
		"operator_phone": doc.OperatorPhone,
		"client_phone":   doc.ClientPhone,
		"call_date":      doc.CallDate,
		"call_time":      doc.CallTime,
	}
}

// Search performs a cosine similarity search and returns the top-k hits
// ordered by ascending distance. Qdrant returns cosine similarity as the
// score; it is converted to distance here so the engine owns the single
// similarity definition.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredDocument, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]ScoredDocument, 0, len(results))
	for _, r := range results {
		doc := ScoredDocument{
			Distance: 1 - float64(r.Score),
		}
		if p := r.Payload; p != nil {
			doc.ID = p["id"].GetIntegerValue()
			doc.Question = p["question"].GetStringValue()
			doc.Answer = p["answer"].GetStringValue()
			doc.Direction = p["direction"].GetStringValue()
			doc.QuestionType = p["question_type"].GetStringValue()
			doc.Keywords = p["keywords"].GetStringValue()
			doc.Filename = p["filename"].GetStringValue()
			doc.DialogID = p["dialog_id"].GetStringValue()
			doc.CallDirection = p["call_direction"].GetStringValue()
			doc.OperatorPhone = p["operator_phone"].GetStringValue()
			doc.ClientPhone = p["client_phone"].GetStringValue()
			doc.CallDate = p["call_date"].GetStringValue()
			doc.CallTime = p["call_time"].GetStringValue()
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Count returns the number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n, nil
}

// Ping verifies the Qdrant instance is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
