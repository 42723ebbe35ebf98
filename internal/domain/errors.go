package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateVector is returned when a vector has zero norm.
	ErrDegenerateVector = errors.New("degenerate vector: zero norm")
	// ErrDimensionMismatch is returned when two vectors of different length are compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// ConfigurationError reports a missing or invalid setting detected at startup.
type ConfigurationError struct {
	Setting string
	Path    string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Setting != "" {
		msg += ": " + e.Setting
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderError reports a failed call to an embedding, generation or index
// backend. StatusCode is zero when the endpoint could not be reached.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError.
func NewProviderError(provider, op string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, StatusCode: status, Err: err}
}
