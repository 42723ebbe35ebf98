// Package generation holds helpers shared by the language-model providers in
// its subpackages.
package generation

import "context"

// Pinger is implemented by generators that can report whether their backend
// is reachable without running a completion.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks g when it implements Pinger. Generators without a cheap probe
// are assumed ready.
func Ping(ctx context.Context, g any) error {
	p, ok := g.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
