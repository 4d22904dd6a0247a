package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies generation failures so callers can decide whether to retry
// and what to report to the end user.
type Kind int

const (
	// KindUnknown is any failure that does not match a known class.
	KindUnknown Kind = iota
	// KindAuth is an authentication or authorisation failure. Not retryable.
	KindAuth
	// KindRateLimit is a provider rate-limit rejection. Retryable with backoff.
	KindRateLimit
	// KindTransient is a timeout, connection failure, or 5xx. Retryable.
	KindTransient
	// KindMalformed is a well-formed provider response that the caller could
	// not parse or use. Not retryable: the same request would fail again.
	KindMalformed
)

// String returns the classifier name for logging.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error wraps a provider failure with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an explicit classification.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the classification of err, classifying on the fly if err is
// not already an *Error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return classify(err)
}

// IsRetryable reports whether the error class is worth retrying.
// Rate limits and transient failures retry; auth and malformed do not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}

// Classify wraps err in an *Error carrying its detected class. Already
// classified errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: classify(err), Err: err}
}

// classify applies provider-agnostic heuristics over the error chain and
// message. Provider SDKs surface HTTP failures as formatted strings, so the
// status code markers below are the stable signal across backends.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "status code: 401", "status code: 403", "401 unauthorized", "403 forbidden", "invalid api key", "incorrect api key", "authentication", "permission denied"):
		return KindAuth
	case containsAny(msg, "status code: 429", "429 too many requests", "rate limit", "quota exceeded", "resource_exhausted"):
		return KindRateLimit
	case containsAny(msg, "status code: 500", "status code: 502", "status code: 503", "status code: 504", "internal server error", "bad gateway", "service unavailable", "connection refused", "connection reset", "timeout", "deadline exceeded", "eof"):
		return KindTransient
	case containsAny(msg, "unmarshal", "invalid character", "unexpected end of json"):
		return KindMalformed
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
