package llm

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("deepseek API key is not configured")
	ErrEmptyResponse = errors.New("no choices in chat completion response")
)

// ErrUnauthorized indicates the API key was rejected (401).
type ErrUnauthorized struct {
	Err error
}

func (e *ErrUnauthorized) Error() string { return fmt.Sprintf("unauthorized: %v", e.Err) }

func (e *ErrUnauthorized) Unwrap() error { return e.Err }

// ErrRateLimit indicates the provider returned 429. Attempts is set by
// Client.Ask to the number of requests made before giving up.
type ErrRateLimit struct {
	Attempts int
	Err      error
}

func (e *ErrRateLimit) Error() string { return fmt.Sprintf("rate limited: %v", e.Err) }

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrStatus is any other non-2xx answer from the provider.
type ErrStatus struct {
	StatusCode int
	Err        error
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("provider returned status %d: %v", e.StatusCode, e.Err)
}

func (e *ErrStatus) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider could not be reached.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider unavailable: %v", e.Err)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }
