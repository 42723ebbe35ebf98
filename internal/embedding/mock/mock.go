// Package mock provides a test double for domain.Embedder.
//
// Vectors are looked up by exact input text in Vectors; unknown texts fall
// back to Default. Every call is recorded.
package mock

import (
	"context"
	"sync"

	"teabot/internal/domain"
)

// Embedder is a mock implementation of domain.Embedder.
type Embedder struct {
	mu sync.Mutex

	// Vectors maps input text to the vector returned for it.
	Vectors map[string]domain.Vector
	// Default is returned for texts missing from Vectors.
	Default domain.Vector
	// Err, if non-nil, is returned from every Embed call.
	Err error
	// Model is returned by ModelID.
	Model string

	// Calls records every text passed to Embed in order.
	Calls []string
}

var _ domain.Embedder = (*Embedder)(nil)

// ModelID returns Model, or "mock-embed" when unset.
func (e *Embedder) ModelID() string {
	if e.Model == "" {
		return "mock-embed"
	}
	return e.Model
}

// Embed records the call and returns the configured vector.
func (e *Embedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, text)
	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	return e.Default, nil
}

// CallCount returns the number of Embed calls.
func (e *Embedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
