package tts

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when a remote provider has no API key.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrEmptyText is returned when asked to synthesize blank text.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrInvalidRate is returned for a non-positive speaking rate.
	ErrInvalidRate = errors.New("tts: rate must be positive")

	// ErrEngineNotFound is returned when the local engine binary is missing.
	ErrEngineNotFound = errors.New("tts: speech engine not found")

	// ErrNoAudio is returned when an engine produced no output.
	ErrNoAudio = errors.New("tts: engine produced no audio")

	// ErrProviderUnavailable is returned when no providers are available.
	ErrProviderUnavailable = errors.New("tts: no providers available")

	// ErrUnknownProvider is returned by New for an unrecognised name.
	ErrUnknownProvider = errors.New("tts: unknown provider")
)

// APIError is an error response from a remote speech API.
type APIError struct {
	StatusCode int
	Message    string

	// Code is the API's error code, if provided.
	Code string

	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized reports HTTP 401.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError reports HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
