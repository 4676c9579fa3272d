package api

import "fmt"

// ErrorCode identifies a failure class in the backend error envelope.
type ErrorCode string

const (
	// Authentication.
	CodeAuthInvalidToken       ErrorCode = "AUTH_INVALID_TOKEN"
	CodeAuthDomainRejected     ErrorCode = "AUTH_DOMAIN_REJECTED"
	CodeAuthGoogleDisconnected ErrorCode = "AUTH_GOOGLE_DISCONNECTED"

	// Authorization.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// Client input.
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
	CodeQueryTooLong    ErrorCode = "QUERY_TOO_LONG"

	// Throttling.
	CodeRateLimited ErrorCode = "RATE_LIMITED"

	// Timeouts.
	CodeSearchTimeout  ErrorCode = "SEARCH_TIMEOUT"
	CodeRequestTimeout ErrorCode = "REQUEST_TIMEOUT"

	// Upstream/service.
	CodeUpstreamError        ErrorCode = "UPSTREAM_ERROR"
	CodeServiceUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
	CodeDatastoreUnavailable ErrorCode = "DATASTORE_UNAVAILABLE"

	// Catch-all.
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error is the normalized failure shape for every backend call. Status is the
// HTTP status code, or 0 for transport-level failures (connection refused,
// DNS, timeout before a response). Retryable is nil when the server did not
// state an explicit preference; when set it overrides status-code policy.
type Error struct {
	Status            int
	Code              ErrorCode
	Message           string
	RequestID         string
	Retryable         *bool
	RetryAfterSeconds float64
}

func (e *Error) Error() string {
	code := string(e.Code)
	if code == "" {
		code = "NETWORK"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

// RetryHint reports the server's explicit retryable flag, if any. Implements
// resilience.RetryHinter.
func (e *Error) RetryHint() (bool, bool) {
	if e.Retryable == nil {
		return false, false
	}
	return *e.Retryable, true
}

// RetryAfterHint reports the explicit wait time carried in the error payload,
// in seconds. Implements resilience.RetryAfterHinter.
func (e *Error) RetryAfterHint() (float64, bool) {
	return e.RetryAfterSeconds, e.RetryAfterSeconds > 0
}

// UserMessage returns the text a user should see for this error, falling back
// to a generic string when the server provided none. The request ID is kept
// separate for support correlation.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "Something went wrong. Please try again."
}

// errorEnvelope mirrors the wire shape {"error": {...}}.
type errorEnvelope struct {
	Error struct {
		Code              ErrorCode `json:"code"`
		Message           string    `json:"message"`
		RequestID         string    `json:"requestId"`
		Retryable         *bool     `json:"retryable"`
		RetryAfterSeconds float64   `json:"retryAfterSeconds"`
	} `json:"error"`
}
