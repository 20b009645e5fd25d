package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents a category of delivery error for metrics and for the
// sender's drop-or-requeue decision.
type ErrorType string

const (
	// ErrorTypeBadRequest is a 400: the listener accepted the call but
	// rejected the payload. Never retried.
	ErrorTypeBadRequest ErrorType = "bad_request"
	// ErrorTypeAuth is a 401: the token is wrong. Never retried.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeClientError covers any other 4xx.
	ErrorTypeClientError ErrorType = "client_error"
	// ErrorTypeRateLimit is a 429.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServerError covers 5xx.
	ErrorTypeServerError ErrorType = "server_error"
	// ErrorTypeNetwork covers dial, DNS and connection failures.
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout covers connect and socket timeouts.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown represents unclassified errors.
	ErrorTypeUnknown ErrorType = "unknown"
)

// ErrRetriesExhausted is wrapped by the error returned after the last
// retryable attempt failed.
var ErrRetriesExhausted = errors.New("delivery retries exhausted")

// Error is a structured error returned from Send.
type Error struct {
	// Err is the underlying error.
	Err error
	// Type is the classified error type.
	Type ErrorType
	// StatusCode is the HTTP status code (0 for network errors).
	StatusCode int
	// Message is the response body or status text from the listener.
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("delivery error: type=%s status=%d", e.Type, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the same batch may succeed later. Only 400 and
// 401 are terminal.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeBadRequest, ErrorTypeAuth:
		return false
	default:
		return true
	}
}

// IsTerminal reports whether err is a delivery error that must not be retried.
func IsTerminal(err error) bool {
	var de *Error
	return errors.As(err, &de) && !de.IsRetryable()
}

func classifyStatusCode(code int) ErrorType {
	switch {
	case code == 400:
		return ErrorTypeBadRequest
	case code == 401:
		return ErrorTypeAuth
	case code == 429:
		return ErrorTypeRateLimit
	case code >= 400 && code < 500:
		return ErrorTypeClientError
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// classifyError categorizes a transport error into a low-cardinality type.
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "deadline exceeded") {
		return ErrorTypeTimeout
	}
	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "network is unreachable") ||
		strings.Contains(errLower, "connection reset") ||
		strings.Contains(errLower, "broken pipe") ||
		strings.Contains(errLower, "eof") {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}
