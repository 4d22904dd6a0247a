package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel returns scripted responses and counts calls so tests can
// assert retry behaviour.
type fakeChatModel struct {
	generateCalls int
	streamCalls   int
	// failUntil makes calls fail until the call count reaches this value.
	failUntil int
	failWith  error
	response  string
	chunks    []string
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.generateCalls++
	if f.generateCalls <= f.failUntil {
		return nil, f.failWith
	}
	return schema.AssistantMessage(f.response, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.streamCalls++
	if f.streamCalls <= f.failUntil {
		return nil, f.failWith
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func fastClient(cm model.BaseChatModel, attempts int) *Client {
	c := NewClient(cm, Options{RetryAttempts: attempts})
	c.policy.InitialInterval = time.Millisecond
	c.policy.MaxInterval = time.Millisecond
	return c
}

func TestComplete_Success(t *testing.T) {
	fake := &fakeChatModel{response: "Ответ готов."}
	c := fastClient(fake, 3)

	got, err := c.Complete(context.Background(), SystemPrompt, "вопрос")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Ответ готов." {
		t.Errorf("got %q", got)
	}
	if fake.generateCalls != 1 {
		t.Errorf("generateCalls = %d, want 1", fake.generateCalls)
	}
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	fake := &fakeChatModel{
		response:  "ok",
		failUntil: 2,
		failWith:  errors.New("status code: 429, too many requests"),
	}
	c := fastClient(fake, 3)

	got, err := c.Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
	if fake.generateCalls != 3 {
		t.Errorf("generateCalls = %d, want 3", fake.generateCalls)
	}
}

func TestComplete_AuthFailsWithoutRetry(t *testing.T) {
	fake := &fakeChatModel{
		failUntil: 10,
		failWith:  errors.New("status code: 401, invalid api key"),
	}
	c := fastClient(fake, 3)

	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindAuth {
		t.Errorf("KindOf = %v, want KindAuth", KindOf(err))
	}
	if fake.generateCalls != 1 {
		t.Errorf("generateCalls = %d, want 1 (no retry on auth)", fake.generateCalls)
	}
}

func TestComplete_ExhaustsRetriesOnTransient(t *testing.T) {
	fake := &fakeChatModel{
		failUntil: 10,
		failWith:  errors.New("status code: 503, service unavailable"),
	}
	c := fastClient(fake, 3)

	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("KindOf = %v, want KindTransient", KindOf(err))
	}
	if fake.generateCalls != 3 {
		t.Errorf("generateCalls = %d, want 3", fake.generateCalls)
	}
}

func TestComplete_EmptyResponseIsMalformed(t *testing.T) {
	fake := &fakeChatModel{response: "   "}
	c := fastClient(fake, 3)

	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error for empty completion")
	}
	if KindOf(err) != KindMalformed {
		t.Errorf("KindOf = %v, want KindMalformed", KindOf(err))
	}
	if fake.generateCalls != 1 {
		t.Errorf("generateCalls = %d, want 1 (malformed must not retry)", fake.generateCalls)
	}
}

func TestCompleteStream_DeliversChunks(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Пер", "вый ", "ответ"}}
	c := fastClient(fake, 3)

	stream, err := c.CompleteStream(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv error: %v", err)
		}
		sb.WriteString(chunk)
	}
	if sb.String() != "Первый ответ" {
		t.Errorf("assembled %q", sb.String())
	}
}

func TestCompleteStream_RetriesOpen(t *testing.T) {
	fake := &fakeChatModel{
		chunks:    []string{"ok"},
		failUntil: 1,
		failWith:  errors.New("connection refused"),
	}
	c := fastClient(fake, 3)

	stream, err := c.CompleteStream(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stream.Close()
	if fake.streamCalls != 2 {
		t.Errorf("streamCalls = %d, want 2", fake.streamCalls)
	}
}

// hangingChatModel blocks every call until its context is cancelled.
type hangingChatModel struct{}

func (h *hangingChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hangingChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCompleteStream_OpenTimeout(t *testing.T) {
	c := fastClient(&hangingChatModel{}, 1)
	c.timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := c.CompleteStream(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error for a hung stream open")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("KindOf = %v, want KindTransient", KindOf(err))
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want open timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("open blocked for %s, want it bounded by the call timeout", elapsed)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := BuildUserPrompt("Как продлить договор?", "1. Вопрос: ...")
	if !strings.Contains(got, "Вопрос пользователя: Как продлить договор?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(got, "1. Вопрос: ...") {
		t.Error("prompt missing context block")
	}
}
