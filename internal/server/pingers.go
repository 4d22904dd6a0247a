package server

import (
	"context"
	"fmt"

	"github.com/qaforge/qaforge/internal/rag"
	"github.com/qaforge/qaforge/internal/store"
)

// VectorPinger probes the vector search backend through the store's native
// health check. It satisfies the Pinger interface and is used by GET /api/ready.
type VectorPinger struct {
	vectors rag.VectorStore
}

// NewVectorPinger constructs a VectorPinger for the given vector store.
func NewVectorPinger(vectors rag.VectorStore) *VectorPinger {
	return &VectorPinger{vectors: vectors}
}

// Name returns the dependency label used in readiness responses.
func (p *VectorPinger) Name() string { return "qdrant" }

// Ping checks whether the vector store is reachable.
func (p *VectorPinger) Ping(ctx context.Context) error {
	if err := p.vectors.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes the SQLite record store.
type StorePinger struct {
	store *store.Store
}

// NewStorePinger constructs a StorePinger for the given record store.
func NewStorePinger(st *store.Store) *StorePinger {
	return &StorePinger{store: st}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "database" }

// Ping checks whether the database responds to queries.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
