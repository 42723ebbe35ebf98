// Package mock provides a scripted domain.Generator for tests.
package mock

import (
	"context"
	"sync"

	"teabot/internal/domain"
)

// Call records the arguments of one Generate invocation.
type Call struct {
	Prompt  string
	System  string
	Options domain.GenerateOptions
}

// Generator returns Reply, or a per-prompt reply from Replies when the
// prompt matches exactly. Err, when set, is returned instead.
type Generator struct {
	Reply   string
	Replies map[string]string
	Err     error
	Model   string

	mu    sync.Mutex
	calls []Call
}

var _ domain.Generator = (*Generator)(nil)

// ModelID returns Model or "mock-llm".
func (g *Generator) ModelID() string {
	if g.Model == "" {
		return "mock-llm"
	}
	return g.Model
}

// Generate records the call and returns the scripted reply.
func (g *Generator) Generate(_ context.Context, prompt, system string, opts domain.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Prompt: prompt, System: system, Options: opts})
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	if r, ok := g.Replies[prompt]; ok {
		return r, nil
	}
	return g.Reply, nil
}

// Calls returns a copy of the recorded calls.
func (g *Generator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// LastCall returns the most recent call, or the zero Call.
func (g *Generator) LastCall() Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return Call{}
	}
	return g.calls[len(g.calls)-1]
}
