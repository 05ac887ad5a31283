package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind is the normalized error taxonomy shared by every provider.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindAuthFailed
	KindNotFound
	KindBadRequest
	KindContextWindowExceeded
	KindTransient
	KindProviderInternal
	KindToolsUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "RateLimited"
	case KindAuthFailed:
		return "AuthFailed"
	case KindNotFound:
		return "NotFound"
	case KindBadRequest:
		return "BadRequest"
	case KindContextWindowExceeded:
		return "ContextWindowExceeded"
	case KindTransient:
		return "Transient"
	case KindProviderInternal:
		return "ProviderInternal"
	case KindToolsUnsupported:
		return "ToolsUnsupported"
	default:
		return "Unknown"
	}
}

// Error is the normalized provider error. Every error that escapes an
// adapter is one of these; the turn loop's retry policy keys off Kind and
// Retryable.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	Message    string
	Retryable  bool
	RetryAfter time.Duration // honored hint for RateLimited, zero otherwise
	cause      error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a normalized *Error from err, if present.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether the turn loop may retry after err.
func IsRetryable(err error) bool {
	if pe, ok := AsError(err); ok {
		return pe.Retryable
	}
	return false
}

// RetryAfterHint returns the provider's rate-limit hint, or zero.
func RetryAfterHint(err error) time.Duration {
	if pe, ok := AsError(err); ok {
		return pe.RetryAfter
	}
	return 0
}

// kindFromStatus maps an HTTP status to the taxonomy. Message-level
// refinement (context window detection) happens in the per-family decoders.
func kindFromStatus(status int) (ErrorKind, bool) {
	switch {
	case status == 429:
		return KindRateLimited, true
	case status == 401 || status == 403:
		return KindAuthFailed, false
	case status == 404:
		return KindNotFound, false
	case status == 408:
		return KindTransient, true
	case status >= 500:
		return KindProviderInternal, true
	case status >= 400:
		return KindBadRequest, false
	default:
		return KindUnknown, false
	}
}

// contextWindowMessage recognizes the provider-specific phrasings of a
// context overflow so they all normalize to ContextWindowExceeded.
func contextWindowMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "context window")
}

// decodeAnthropicError is the single decode point for the Anthropic dialect.
// Network and parse failures always map to Transient.
func decodeAnthropicError(err error, model string) *Error {
	if pe, ok := AsError(err); ok {
		return pe
	}
	out := &Error{Provider: "anthropic", Model: model, cause: err}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		out.Kind, out.Retryable = kindFromStatus(apiErr.StatusCode)
		out.Message = apiErr.Error()
		if out.Kind == KindBadRequest && contextWindowMessage(out.Message) {
			out.Kind = KindContextWindowExceeded
			out.Retryable = false
		}
		return out
	}

	return decodeTransportError(err, out)
}

// decodeOpenAIError is the single decode point for the OpenAI dialect.
func decodeOpenAIError(err error, model string) *Error {
	if pe, ok := AsError(err); ok {
		return pe
	}
	out := &Error{Provider: "openai", Model: model, cause: err}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out.Kind, out.Retryable = kindFromStatus(apiErr.HTTPStatusCode)
		out.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			out.Kind = KindContextWindowExceeded
			out.Retryable = false
		} else if out.Kind == KindBadRequest && contextWindowMessage(out.Message) {
			out.Kind = KindContextWindowExceeded
			out.Retryable = false
		}
		return out
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		out.Kind, out.Retryable = kindFromStatus(reqErr.HTTPStatusCode)
		out.Message = reqErr.Error()
		return out
	}

	return decodeTransportError(err, out)
}

// decodeTransportError handles the non-API failure modes shared by every
// family: cancellation and deadline expiry become a non-retryable
// Transient carrying the context error's message; everything else is a
// retryable Transient with a normalized message.
func decodeTransportError(err error, out *Error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		out.Kind = KindTransient
		out.Retryable = false
		out.Message = err.Error()
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Kind = KindTransient
		out.Retryable = true
		out.Message = "request timed out: " + err.Error()
		return out
	}

	out.Kind = KindTransient
	out.Retryable = true
	out.Message = "network or parse failure: " + err.Error()
	return out
}
