package transport

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/anfrage-dev/anfrage/pkg/api"
)

// ValidationError reports a malformed or empty payload detected before
// anything was sent. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// AuthError reports missing or rejected credentials. Never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Message
}

// RateLimitedError reports server-side throttling. Retried with the
// server-supplied delay when one was given, otherwise with exponential
// backoff. Attempts is filled in by the Retrier when retries are
// exhausted.
type RateLimitedError struct {
	Message    string
	RetryAfter time.Duration
	Attempts   int
}

func (e *RateLimitedError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rate limited after %d attempts: %s", e.Attempts, e.Message)
	}
	return "rate limited: " + e.Message
}

// ServerError reports a 5xx-class or provider-reported transient
// failure. Retried with backoff.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// NetworkError reports a connection-level failure (timeout, reset,
// DNS). Retried with backoff.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return "network: " + e.Cause.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// ProtocolError reports a well-formed but semantically invalid response
// stream: missing terminal event, out-of-order frames, unknown status.
// Never retried automatically; LastEvent carries diagnostic context.
type ProtocolError struct {
	Message   string
	LastEvent string
}

func (e *ProtocolError) Error() string {
	if e.LastEvent != "" {
		return fmt.Sprintf("protocol: %s (last event: %s)", e.Message, e.LastEvent)
	}
	return "protocol: " + e.Message
}

// ClientError reports any other 4xx, with the provider's error code and
// message passed through. Never retried.
type ClientError struct {
	Status  int
	Code    string
	Message string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client error (%d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("client error (%d): %s", e.Status, e.Message)
}

// Retryable reports whether the error belongs to a class the Retrier
// may retry: rate limits, transient server failures, and network
// failures. Everything else is surfaced immediately.
func Retryable(err error) bool {
	var (
		rl *RateLimitedError
		se *ServerError
		ne *NetworkError
	)
	return errors.As(err, &rl) || errors.As(err, &se) || errors.As(err, &ne)
}

// Classify maps an HTTP failure status plus headers and body into the
// error taxonomy. The body is consulted for the provider error envelope
// and, on 400s, for chain-break detection so callers can reset their
// chain state instead of treating the turn as fatally malformed.
func Classify(status int, header http.Header, body []byte) error {
	apiErr := api.ParseErrorBody(body)

	message := http.StatusText(status)
	code := ""
	if apiErr != nil {
		message = apiErr.Message
		code = apiErr.Code
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Message: message}

	case status == http.StatusTooManyRequests:
		retryAfter, ok := ParseRetryAfterHeaders(header)
		if !ok {
			retryAfter, _ = ParseRetryAfterMessage(message)
		}
		return &RateLimitedError{Message: message, RetryAfter: retryAfter}

	case status >= 500:
		return &ServerError{Status: status, Message: message}

	case status == http.StatusBadRequest:
		if broken := api.DetectChainBreak(body); broken != nil {
			return broken
		}
		return &ClientError{Status: status, Code: code, Message: message}

	case status >= 400:
		return &ClientError{Status: status, Code: code, Message: message}

	default:
		return &ProtocolError{Message: fmt.Sprintf("unexpected status %d", status)}
	}
}

// ClassifyAPIError maps a provider error envelope into the taxonomy
// when no HTTP status is available, as on the socket protocol.
func ClassifyAPIError(apiErr *api.APIError) error {
	if apiErr == nil {
		return &ProtocolError{Message: "error frame without error envelope"}
	}
	switch apiErr.Type {
	case api.ErrorTypeAuthentication:
		return &AuthError{Message: apiErr.Message}
	case api.ErrorTypeTooManyRequests:
		retryAfter, _ := ParseRetryAfterMessage(apiErr.Message)
		return &RateLimitedError{Message: apiErr.Message, RetryAfter: retryAfter}
	case api.ErrorTypeServerError:
		return &ServerError{Status: http.StatusInternalServerError, Message: apiErr.Message}
	case api.ErrorTypeInvalidRequest:
		if broken := api.DetectChainBreakError(apiErr); broken != nil {
			return broken
		}
		return &ClientError{Status: http.StatusBadRequest, Code: apiErr.Code, Message: apiErr.Message}
	default:
		return &ClientError{Status: http.StatusBadRequest, Code: apiErr.Code, Message: apiErr.Message}
	}
}

// ParseRetryAfterHeaders extracts a server-requested retry delay from
// response headers, in precedence order: retry-after-ms (milliseconds),
// x-ms-retry-after-ms (Azure alternative, milliseconds), retry-after
// (integer or float seconds). Negative, NaN, and infinite values are
// rejected.
func ParseRetryAfterHeaders(h http.Header) (time.Duration, bool) {
	if v := h.Get("retry-after-ms"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond, true
		}
	}

	if v := h.Get("x-ms-retry-after-ms"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond, true
		}
	}

	if v := h.Get("retry-after"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		// Some servers send fractional seconds ("1.5").
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 && !isUnreasonable(secs) {
			return time.Duration(secs * float64(time.Second)), true
		}
	}

	return 0, false
}

// retryAfterMessagePattern matches the "Please try again in 11.054s"
// hints some providers embed in rate-limit error messages.
var retryAfterMessagePattern = regexp.MustCompile(`(?i)(?:retry|try again) in (\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?)?`)

// ParseRetryAfterMessage extracts a retry delay from an error message.
// The unit defaults to seconds when absent.
func ParseRetryAfterMessage(msg string) (time.Duration, bool) {
	m := retryAfterMessagePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value < 0 || isUnreasonable(value) {
		return 0, false
	}

	switch m[2] {
	case "ms", "millisecond", "milliseconds":
		return time.Duration(value * float64(time.Millisecond)), true
	default:
		return time.Duration(value * float64(time.Second)), true
	}
}

// isUnreasonable guards Duration conversion against values that would
// overflow or make no sense as a wait hint.
func isUnreasonable(secs float64) bool {
	return secs != secs || secs > 86400
}
