package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure. The kind decides retry eligibility.
type Kind string

const (
	KindConfig     Kind = "config"
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindServer     Kind = "server"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindParse      Kind = "parse"
	KindTimeout    Kind = "timeout"
	KindUnknown    Kind = "unknown"
)

// Error is the only error shape returned by Client operations.
type Error struct {
	Message    string
	Kind       Kind
	StatusCode int    // 0 when no HTTP response was received
	RequestID  string // empty for errors raised before a request id exists
	Retryable  bool

	// Err is the underlying transport or decode error, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llmclient: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llmclient: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, requestID, msg string, retryable bool, cause error) *Error {
	return &Error{
		Message:   msg,
		Kind:      kind,
		RequestID: requestID,
		Retryable: retryable,
		Err:       cause,
	}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a gateway error worth retrying.
func IsRetryable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Retryable
}

// classifyStatus maps a non-2xx HTTP status to a kind and retry decision.
func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth, false
	case status == http.StatusTooManyRequests:
		return KindRateLimit, true
	case status >= 500 && status <= 599:
		return KindServer, true
	case status >= 400 && status <= 499:
		return KindValidation, false
	default:
		return KindUnknown, false
	}
}

// statusError builds the error for a non-2xx response. The body is kept
// verbatim in the message.
func statusError(status int, body, requestID string) *Error {
	kind, retryable := classifyStatus(status)
	return &Error{
		Message:    fmt.Sprintf("HTTP %d: %s", status, body),
		Kind:       kind,
		StatusCode: status,
		RequestID:  requestID,
		Retryable:  retryable,
	}
}
