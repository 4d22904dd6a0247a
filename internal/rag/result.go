package rag

import (
	"encoding/json"
	"fmt"

	"github.com/qaforge/qaforge/internal/llm"
)

// NoEvidenceAnswer is returned verbatim when retrieval produced nothing above
// the similarity threshold. Generation is skipped entirely in that case.
const NoEvidenceAnswer = "К сожалению, в базе знаний не найдено релевантной информации для ответа на ваш вопрос."

// genericErrorAnswer is shown when the underlying failure must not reach the
// user.
const genericErrorAnswer = "Произошла ошибка при обработке запроса. Повторите запрос позже."

// UserErrorMessage renders err for API and CLI responses. Authentication,
// rate-limit, and connection failures carry provider detail (keys, endpoints,
// hosts) that stays in logs only; those classes collapse to the fixed
// message. Malformed-response failures keep the detail: it describes the
// response we could not parse, not the credentials.
func UserErrorMessage(err error) string {
	if llm.KindOf(err) == llm.KindMalformed {
		return fmt.Sprintf("Произошла ошибка при обработке запроса: %v", err)
	}
	return genericErrorAnswer
}

// Answer is the outcome of a full retrieve-and-generate cycle.
// Exactly one of Text or Stream is populated on success: Text for blocking
// mode, Stream for streaming mode.
type Answer struct {
	// Success is false when no evidence was found or generation failed.
	Success bool
	// Text is the complete generated answer (blocking mode), or the
	// fallback message on failure.
	Text string
	// Stream delivers the answer incrementally (streaming mode). The
	// caller owns it and must Close it.
	Stream *llm.Stream
	// Streaming records which mode produced this answer.
	Streaming bool
	// Evidence is the retrieved source pairs, empty when show-sources is
	// disabled or nothing was found.
	Evidence []Evidence
	// Query echoes the user's question.
	Query string
	// Err carries the underlying failure for logging; Text already holds
	// the user-facing message.
	Err error
}

// answerJSON is the wire shape of a blocking answer.
type answerJSON struct {
	Success     bool       `json:"success"`
	Answer      string     `json:"answer"`
	SourcePairs []Evidence `json:"source_pairs"`
	Query       string     `json:"query"`
	Streaming   bool       `json:"streaming"`
	Error       string     `json:"error,omitempty"`
}

// MarshalJSON renders the answer for API clients. Streaming answers are
// never marshalled whole; the server emits them as SSE events instead.
func (a *Answer) MarshalJSON() ([]byte, error) {
	out := answerJSON{
		Success:     a.Success,
		Answer:      a.Text,
		SourcePairs: a.Evidence,
		Query:       a.Query,
		Streaming:   a.Streaming,
	}
	if out.SourcePairs == nil {
		out.SourcePairs = []Evidence{}
	}
	if a.Err != nil {
		out.Error = UserErrorMessage(a.Err)
	}
	return json.Marshal(out)
}
