package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/rag"
)

// Metric outcome label values for ask requests.
const (
	outcomeOK         = "ok"
	outcomeNoEvidence = "no_evidence"
	outcomeError      = "error"
)

// decodeAsk reads and validates the JSON body shared by both ask endpoints.
func decodeAsk(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return "", false
	}
	return question, true
}

// handleAsk handles POST /api/ask: a blocking retrieve-and-generate cycle
// returning the complete answer as a single JSON document.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	question, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	start := time.Now()
	blocking := false
	answer := s.engine.AnswerQuestion(r.Context(), question, &blocking)
	s.observeAsk(answer, time.Since(start))

	status := http.StatusOK
	if answer.Err != nil {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(answer); err != nil {
		log.Error("ask encode error", slog.Any("error", err))
	}
}

// handleAskStream handles POST /api/ask_stream. The answer is delivered as
// Server-Sent Events:
//
//	event: sources       — JSON array of retrieved evidence, omitted when empty
//	event: answer_start  — generation begins
//	event: answer_chunk  — JSON {"text": "..."} answer fragment
//	event: answer_end    — generation finished
//	event: error         — JSON {"error": "..."} terminal failure
//	event: done          — always last, data is [DONE]
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	question, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sse := &sseEmitter{w: w, flusher: flusher}

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()

	start := time.Now()
	streaming := true
	answer := s.engine.AnswerQuestion(r.Context(), question, &streaming)

	// Any unsuccessful result, including the zero-evidence outcome, is
	// delivered as a single error event in place of the chunk sequence.
	if answer.Err != nil || !answer.Success {
		s.observeAsk(answer, time.Since(start))
		sse.event("error", mustJSON(streamError{Error: answer.Text}))
		sse.event("done", "[DONE]")
		return
	}

	if len(answer.Evidence) > 0 {
		sse.event("sources", mustJSON(answer.Evidence))
	}
	sse.event("answer_start", "{}")

	switch {
	case answer.Stream != nil:
		defer answer.Stream.Close()
		for {
			chunk, err := answer.Stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				answer.Err = err
				s.observeAsk(answer, time.Since(start))
				log.Error("stream interrupted", slog.Any("error", err))
				sse.event("error", mustJSON(streamError{Error: rag.UserErrorMessage(err)}))
				sse.event("done", "[DONE]")
				return
			}
			sse.event("answer_chunk", mustJSON(streamChunk{Text: chunk}))
		}
	default:
		// Successful answer produced in blocking mode: deliver it whole.
		sse.event("answer_chunk", mustJSON(streamChunk{Text: answer.Text}))
	}

	sse.event("answer_end", "{}")
	sse.event("done", "[DONE]")
	s.observeAsk(answer, time.Since(start))
}

// observeAsk records the outcome counter and latency histogram for one
// completed ask request.
func (s *Server) observeAsk(answer *rag.Answer, elapsed time.Duration) {
	outcome := outcomeOK
	switch {
	case answer.Err != nil:
		outcome = outcomeError
	case !answer.Success:
		outcome = outcomeNoEvidence
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// sseEmitter writes named Server-Sent Events and flushes after each one.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// event writes a single SSE frame. data must be a single line; handlers pass
// JSON-encoded payloads, which never contain raw newlines.
func (e *sseEmitter) event(name, data string) {
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data)
	e.flusher.Flush()
}

// mustJSON marshals v, which is always a server-owned type that cannot fail
// to encode.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
