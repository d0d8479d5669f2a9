package model

import "fmt"

// ProviderError normalizes vendor SDK failures so the pipeline can classify
// them without importing provider packages. StatusCode is the HTTP status
// when known, zero otherwise.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying SDK error.
func (e *ProviderError) Unwrap() error { return e.Cause }
