// Package llm provides the chat-completion client used for answer generation
// and QA extraction. It wraps an Eino ChatModel with retry, error
// classification, and the support-assistant prompt set.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/retry"
)

// SystemPrompt instructs the model to act as a professional support assistant
// answering strictly from the supplied knowledge-base context.
const SystemPrompt = `Ты — профессиональный ассистент службы поддержки.

Твоя задача: на основе найденных в базе знаний пар вопрос-ответ предоставить пользователю
чёткий, деловой и полезный ответ.

ПРИНЦИПЫ РАБОТЫ:
- Используй информацию из предоставленных пар Q&A как основу для ответа
- Формулируй ответ профессионально и структурированно
- Если найденная информация не полностью отвечает на вопрос, честно об этом сообщи
- Не придумывай информацию, которой нет в предоставленном контексте
- Адаптируй язык ответа под вопрос пользователя (деловой, но понятный)
- Не указывай что данные получены из источников

СТРУКТУРА ОТВЕТА:
1. Прямой ответ на вопрос
2. Дополнительные детали если есть
3. При необходимости — рекомендации или следующие шаги`

// userPromptTemplate frames the user question together with retrieved context.
const userPromptTemplate = `Вопрос пользователя: %s

Релевантная информация из базы знаний:
%s

Сформулируй профессиональный ответ на основе этой информации.`

// BuildUserPrompt renders the answer-generation user message from a question
// and a formatted context block.
func BuildUserPrompt(question, contextBlock string) string {
	return fmt.Sprintf(userPromptTemplate, question, contextBlock)
}

// Options configures a Client.
type Options struct {
	// Temperature for generation. Answer generation uses 0.4 by default.
	Temperature float32
	// MaxTokens caps the completion length.
	MaxTokens int
	// Timeout bounds a single provider call, not the whole retry loop.
	Timeout time.Duration
	// RetryAttempts is the total attempt count for retryable failures.
	RetryAttempts int
}

// Client is a retrying chat-completion client over an Eino ChatModel.
type Client struct {
	chatModel   model.BaseChatModel
	temperature float32
	maxTokens   int
	timeout     time.Duration
	policy      retry.Policy
}

// NewClient constructs a Client. Zero option fields fall back to the standard
// generation settings.
func NewClient(cm model.BaseChatModel, opts Options) *Client {
	if opts.Temperature == 0 {
		opts.Temperature = 0.4
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1000
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	policy := retry.DefaultPolicy(opts.RetryAttempts)
	policy.Retryable = IsRetryable
	return &Client{
		chatModel:   cm,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		policy:      policy,
	}
}

// Complete sends a system+user message pair and returns the full completion
// text. Rate-limited and transient failures are retried; auth and malformed
// failures return immediately, classified.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.CompleteWith(ctx, system, user, c.temperature)
}

// CompleteWith is Complete with an explicit temperature, used by extraction
// and quality scoring which run cooler than answer generation.
func (c *Client) CompleteWith(ctx context.Context, system, user string, temperature float32) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	var out string
	err := c.policy.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.chatModel.Generate(callCtx, messages,
			model.WithTemperature(temperature),
			model.WithMaxTokens(c.maxTokens),
		)
		if err != nil {
			err = Classify(err)
			logging.FromContext(ctx).Warn("model call failed",
				slog.String("kind", KindOf(err).String()),
				slog.Any("error", err))
			return err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return NewError(KindMalformed, fmt.Errorf("empty completion"))
		}
		out = resp.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// CompleteStream opens a streaming completion for the system+user pair.
// Only the stream open is retried and bounded by the per-call timeout;
// chunk delivery errors surface on Recv.
func (c *Client) CompleteStream(ctx context.Context, system, user string) (*Stream, error) {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	var stream *Stream
	err := c.policy.Do(ctx, func() error {
		// The timeout bounds the open only; once the stream is established,
		// chunk delivery is bounded by the caller's context and the open
		// context is released on Stream.Close.
		openCtx, cancel := context.WithCancel(ctx)
		timer := time.AfterFunc(c.timeout, cancel)
		sr, err := c.chatModel.Stream(openCtx, messages,
			model.WithTemperature(c.temperature),
			model.WithMaxTokens(c.maxTokens),
		)
		timedOut := !timer.Stop()
		if err != nil {
			cancel()
			if timedOut {
				err = NewError(KindTransient, fmt.Errorf("stream open timed out after %s", c.timeout))
			} else {
				err = Classify(err)
			}
			logging.FromContext(ctx).Warn("model stream open failed",
				slog.String("kind", KindOf(err).String()),
				slog.Any("error", err))
			return err
		}
		stream = NewStream(sr)
		stream.cancel = cancel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}
