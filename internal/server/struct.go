package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qaforge/qaforge/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the ask
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the ask endpoints.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created.
	Registry *prometheus.Registry
	// Health describes the active retrieval configuration echoed by
	// GET /api/health.
	Health HealthInfo
}

// HealthInfo is the configuration snapshot reported by GET /api/health.
type HealthInfo struct {
	// EmbeddingProvider is the embedding backend in use (openai, azure, ollama).
	EmbeddingProvider string
	// EmbeddingModel is the embedding model name.
	EmbeddingModel string
	// EmbeddingDevice is the device hint for self-hosted embedding backends.
	EmbeddingDevice string
	// TopK is the number of nearest neighbours retrieved per query.
	TopK int
	// Threshold is the minimum similarity retained evidence must reach.
	Threshold float64
	// Streaming reports whether streaming generation is the default mode.
	Streaming bool
	// ShowSources reports whether retrieved evidence is included in answers.
	ShowSources bool
}

// answerer is the interface the ask handlers call to produce an answer.
// *rag.Engine satisfies it; tests inject a fake.
type answerer interface {
	// AnswerQuestion runs a full retrieve-and-generate cycle for query.
	// streaming overrides the engine default when non-nil.
	AnswerQuestion(ctx context.Context, query string, streaming *bool) *rag.Answer
}

// Server is the HTTP server that exposes the retrieval engine.
type Server struct {
	// engine produces answers for the ask endpoints.
	engine answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and POST /api/ask_stream.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// streamChunk is the JSON payload of an answer_chunk SSE event.
type streamChunk struct {
	// Text is the next fragment of the generated answer.
	Text string `json:"text"`
}

// streamError is the JSON payload of an error SSE event.
type streamError struct {
	// Error is the user-facing failure message.
	Error string `json:"error"`
}
