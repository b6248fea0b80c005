// ABOUTME: Error hierarchy for model provider calls, with retryability on every type.
// ABOUTME: ErrorFromStatusCode maps provider HTTP statuses onto the hierarchy.

package llm

import (
	"encoding/json"
	"errors"
)

// SDKError is the base of every error this package returns.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *SDKError) Unwrap() error { return e.Cause }

// IsRetryable is false for the base type.
func (e *SDKError) IsRetryable() bool { return false }

// ProviderError is an error response from a provider API.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
	Raw        json.RawMessage
}

func (e *ProviderError) Error() string     { return e.SDKError.Error() }
func (e *ProviderError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

// AuthenticationError is a 401 or 403. Not retryable.
type AuthenticationError struct{ ProviderError }

func (e *AuthenticationError) IsRetryable() bool { return false }
func (e *AuthenticationError) Unwrap() error     { return &e.ProviderError }

// InvalidRequestError is a 400, 404, or 422. Not retryable.
type InvalidRequestError struct{ ProviderError }

func (e *InvalidRequestError) IsRetryable() bool { return false }
func (e *InvalidRequestError) Unwrap() error     { return &e.ProviderError }

// ContextLengthError is a 413: the conversation plus current page is too large. Not retryable.
type ContextLengthError struct{ ProviderError }

func (e *ContextLengthError) IsRetryable() bool { return false }
func (e *ContextLengthError) Unwrap() error     { return &e.ProviderError }

// RateLimitError is a 429. Retryable, honoring RetryAfter.
type RateLimitError struct{ ProviderError }

func (e *RateLimitError) IsRetryable() bool { return true }
func (e *RateLimitError) Unwrap() error     { return &e.ProviderError }

// ServerError is a 5xx, including Anthropic's 529 overloaded. Retryable.
type ServerError struct{ ProviderError }

func (e *ServerError) IsRetryable() bool { return true }
func (e *ServerError) Unwrap() error     { return &e.ProviderError }

// RequestTimeoutError is a 408 or a client-side deadline. Retryable.
type RequestTimeoutError struct{ SDKError }

func (e *RequestTimeoutError) IsRetryable() bool { return true }
func (e *RequestTimeoutError) Unwrap() error     { return &e.SDKError }

// NetworkError is a transport failure before any response. Retryable.
type NetworkError struct{ SDKError }

func (e *NetworkError) IsRetryable() bool { return true }
func (e *NetworkError) Unwrap() error     { return &e.SDKError }

// StreamError is a failure while reading an accepted stream. Retryable.
type StreamError struct{ SDKError }

func (e *StreamError) IsRetryable() bool { return true }
func (e *StreamError) Unwrap() error     { return &e.SDKError }

// ConfigurationError is a local setup problem such as a missing key. Not retryable.
type ConfigurationError struct{ SDKError }

func (e *ConfigurationError) IsRetryable() bool { return false }
func (e *ConfigurationError) Unwrap() error     { return &e.SDKError }

// IsRetryable reports whether err, or any error it wraps, is a retryable
// SDK error.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// ErrorFromStatusCode maps a provider HTTP status onto the hierarchy.
// Unknown statuses are treated as transient.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw json.RawMessage, retryAfter *float64) error {
	base := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		return &AuthenticationError{base}
	case statusCode == 400 || statusCode == 404 || statusCode == 422:
		return &InvalidRequestError{base}
	case statusCode == 408:
		return &RequestTimeoutError{SDKError{Message: message}}
	case statusCode == 413:
		return &ContextLengthError{base}
	case statusCode == 429:
		base.Retryable = true
		return &RateLimitError{base}
	case statusCode >= 500 && statusCode <= 599:
		base.Retryable = true
		return &ServerError{base}
	default:
		base.Retryable = true
		return &base
	}
}

// providerError finds the ProviderError inside err, if any.
func providerError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
