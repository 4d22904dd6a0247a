package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/qaforge/qaforge/internal/rag"
)

// stubPinger is a Pinger with a fixed result.
type stubPinger struct {
	name string
	err  error
}

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }
func (p *stubPinger) Name() string                   { return p.name }

func TestHandleHealth_EchoesConfiguration(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) {
		cfg.Health = HealthInfo{
			EmbeddingProvider: "openai",
			EmbeddingModel:    "text-embedding-3-small",
			TopK:              8,
			Threshold:         0.35,
			Streaming:         true,
			ShowSources:       true,
		}
	})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", body.Embedding.Model)
	}
	if body.RAG.TopK != 8 || body.RAG.SimilarityThreshold != 0.35 {
		t.Errorf("rag config = %+v", body.RAG)
	}
	if !body.RAG.Streaming || !body.RAG.ShowSources {
		t.Errorf("rag flags = %+v", body.RAG)
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) {
		cfg.Pingers = []Pinger{
			&stubPinger{name: "qdrant"},
			&stubPinger{name: "database"},
		}
	})

	resp, err := http.Get(ts.URL + "/api/ready")
	if err != nil {
		t.Fatalf("GET /api/ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Ready {
		t.Error("ready = false, want true")
	}
	if len(body.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(body.Checks))
	}
}

func TestHandleReady_DependencyDown(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) {
		cfg.Pingers = []Pinger{
			&stubPinger{name: "qdrant", err: errors.New("connection refused")},
			&stubPinger{name: "database"},
		}
	})

	resp, err := http.Get(ts.URL + "/api/ready")
	if err != nil {
		t.Fatalf("GET /api/ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Ready {
		t.Error("ready = true, want false")
	}
	if body.Checks[0].OK || body.Checks[0].Error == "" {
		t.Errorf("qdrant check = %+v, want failure with message", body.Checks[0])
	}
	if !body.Checks[1].OK {
		t.Errorf("database check = %+v, want success", body.Checks[1])
	}
}

func TestMultiPinger_ReturnsFirstFailure(t *testing.T) {
	mp := NewMultiPinger(
		&stubPinger{name: "qdrant"},
		&stubPinger{name: "database", err: errors.New("locked")},
	)
	err := mp.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "database: locked" {
		t.Errorf("error = %q, want %q", got, "database: locked")
	}
}
