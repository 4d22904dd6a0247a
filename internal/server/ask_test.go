package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qaforge/qaforge/internal/llm"
	"github.com/qaforge/qaforge/internal/rag"
)

// fakeAnswerer returns a scripted answer and records how it was called.
type fakeAnswerer struct {
	answer        *rag.Answer
	lastQuery     string
	lastStreaming *bool
}

func (f *fakeAnswerer) AnswerQuestion(ctx context.Context, query string, streaming *bool) *rag.Answer {
	f.lastQuery = query
	f.lastStreaming = streaming
	return f.answer
}

func newTestServer(t *testing.T, fake *fakeAnswerer, mutate func(*Config)) *httptest.Server {
	t.Helper()
	cfg := &Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(fake, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func textStream(chunks ...string) *llm.Stream {
	msgs := make([]*schema.Message, len(chunks))
	for i, c := range chunks {
		msgs[i] = schema.AssistantMessage(c, nil)
	}
	return llm.NewStream(schema.StreamReaderFromArray(msgs))
}

// sseEvents parses an SSE body into ordered (event, data) pairs.
func sseEvents(t *testing.T, body io.Reader) [][2]string {
	t.Helper()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read SSE body: %v", err)
	}
	var events [][2]string
	for _, frame := range strings.Split(string(raw), "\n\n") {
		var name, data string
		for _, line := range strings.Split(frame, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = v
			}
		}
		if name != "" {
			events = append(events, [2]string{name, data})
		}
	}
	return events
}

func TestHandleAsk_Blocking(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success: true,
		Text:    "Для расторжения договора направьте уведомление за 30 дней.",
		Query:   "Как расторгнуть договор?",
		Evidence: []rag.Evidence{{
			Question:   "Как расторгнуть договор?",
			Answer:     "Направьте уведомление.",
			Similarity: 0.91,
		}},
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask", `{"question":"Как расторгнуть договор?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		Success     bool              `json:"success"`
		Answer      string            `json:"answer"`
		SourcePairs []json.RawMessage `json:"source_pairs"`
		Query       string            `json:"query"`
		Streaming   bool              `json:"streaming"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Error("success = false, want true")
	}
	if body.Answer != fake.answer.Text {
		t.Errorf("answer = %q, want %q", body.Answer, fake.answer.Text)
	}
	if len(body.SourcePairs) != 1 {
		t.Errorf("got %d source pairs, want 1", len(body.SourcePairs))
	}
	if fake.lastStreaming == nil || *fake.lastStreaming {
		t.Error("handler should force blocking mode")
	}
}

func TestHandleAsk_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing question", `{}`},
		{"empty question", `{"question":""}`},
		{"whitespace question", `{"question":"   \t "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
			ts := newTestServer(t, fake, nil)
			resp := postJSON(t, ts.URL+"/api/ask", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleAsk_EngineFailure(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success: false,
		Text:    "Произошла ошибка при обработке запроса: search unavailable",
		Err:     io.ErrUnexpectedEOF,
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask", `{"question":"Как вернуть товар?"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Error == "" {
		t.Error("error field is empty")
	}
}

func TestHandleAskStream_Success(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success:   true,
		Streaming: true,
		Stream:    textStream("Направьте ", "уведомление ", "за 30 дней."),
		Evidence:  []rag.Evidence{{Question: "q", Answer: "a", Similarity: 0.88}},
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask_stream", `{"question":"Как расторгнуть договор?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if fake.lastStreaming == nil || !*fake.lastStreaming {
		t.Error("handler should force streaming mode")
	}

	events := sseEvents(t, resp.Body)
	var order []string
	var answer strings.Builder
	for _, ev := range events {
		order = append(order, ev[0])
		if ev[0] == "answer_chunk" {
			var chunk streamChunk
			if err := json.Unmarshal([]byte(ev[1]), &chunk); err != nil {
				t.Fatalf("bad chunk payload %q: %v", ev[1], err)
			}
			answer.WriteString(chunk.Text)
		}
	}

	want := []string{"sources", "answer_start", "answer_chunk", "answer_chunk", "answer_chunk", "answer_end", "done"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("event order = %v, want %v", order, want)
	}
	if got := answer.String(); got != "Направьте уведомление за 30 дней." {
		t.Errorf("assembled answer = %q", got)
	}
	if events[len(events)-1][1] != "[DONE]" {
		t.Errorf("final data = %q, want [DONE]", events[len(events)-1][1])
	}
}

func TestHandleAskStream_NoEvidence(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success:   false,
		Streaming: true,
		Text:      rag.NoEvidenceAnswer,
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask_stream", `{"question":"Который час?"}`)
	events := sseEvents(t, resp.Body)

	if len(events) != 2 {
		t.Fatalf("got %d events, want error+done: %v", len(events), events)
	}
	if events[0][0] != "error" {
		t.Errorf("first event = %q, want error", events[0][0])
	}
	var payload streamError
	if err := json.Unmarshal([]byte(events[0][1]), &payload); err != nil {
		t.Fatalf("bad error payload %q: %v", events[0][1], err)
	}
	if payload.Error != rag.NoEvidenceAnswer {
		t.Errorf("error payload = %q, want the no-evidence answer", payload.Error)
	}
	if events[1][0] != "done" || events[1][1] != "[DONE]" {
		t.Errorf("final event = %v, want done [DONE]", events[1])
	}
}

func TestHandleAskStream_OmitsEmptySources(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success:   true,
		Streaming: true,
		Stream:    textStream("Ответ."),
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask_stream", `{"question":"Как вернуть товар?"}`)
	events := sseEvents(t, resp.Body)

	var order []string
	for _, ev := range events {
		order = append(order, ev[0])
	}
	want := []string{"answer_start", "answer_chunk", "answer_end", "done"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("event order = %v, want %v (no sources event when evidence is empty)", order, want)
	}
}

func TestHandleAsk_TrimsQuestion(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true, Text: "ок"}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask", `{"question":"  Как вернуть товар?  "}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if fake.lastQuery != "Как вернуть товар?" {
		t.Errorf("query = %q, want it trimmed", fake.lastQuery)
	}
}

func TestHandleAskStream_EngineFailure(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{
		Success: false,
		Text:    "Произошла ошибка при обработке запроса: qdrant unreachable",
		Err:     io.ErrClosedPipe,
	}}
	ts := newTestServer(t, fake, nil)

	resp := postJSON(t, ts.URL+"/api/ask_stream", `{"question":"Как вернуть товар?"}`)
	events := sseEvents(t, resp.Body)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(events), events)
	}
	if events[0][0] != "error" {
		t.Errorf("first event = %q, want error", events[0][0])
	}
	var payload streamError
	if err := json.Unmarshal([]byte(events[0][1]), &payload); err != nil {
		t.Fatalf("bad error payload %q: %v", events[0][1], err)
	}
	if !strings.HasPrefix(payload.Error, "Произошла ошибка при обработке запроса") {
		t.Errorf("error payload = %q", payload.Error)
	}
	if events[1][0] != "done" || events[1][1] != "[DONE]" {
		t.Errorf("final event = %v, want done [DONE]", events[1])
	}
}
