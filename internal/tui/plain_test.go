package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/domain"
)

func TestRunPlainChat(t *testing.T) {
	p := &fakePipeline{reply: "Try the Jasmine Bloom."}
	var out strings.Builder

	err := RunPlain(strings.NewReader("something floral\n\n  \nquit\nignored\n"), &out, p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"something floral"}, p.queries)
	assert.Contains(t, out.String(), "TeaBot: Try the Jasmine Bloom.\n")
	assert.Contains(t, out.String(), "TeaBot: Goodbye!")
}

func TestRunPlainKeepsGoingAfterErrors(t *testing.T) {
	p := &fakePipeline{err: errors.New("ollama generate: connection refused")}
	var out strings.Builder

	err := RunPlain(strings.NewReader("floral\nsmoky\n"), &out, p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"floral", "smoky"}, p.queries)
	assert.Equal(t, 2, strings.Count(out.String(), "TeaBot: Error: ollama generate: connection refused"))
}

func TestRunPlainSearch(t *testing.T) {
	p := &fakePipeline{items: []domain.ScoredItem{
		{Item: domain.Item{Name: "Smoky Lapsang", Type: "Black", Flavors: []string{"smoky", "bold"}, Description: "Pine smoked."}, Score: 0.91},
	}}
	var out strings.Builder

	err := RunPlain(strings.NewReader("smoky\nexit\n"), &out, p, Options{Mode: ModeSearch, TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.k)
	assert.Contains(t, out.String(), "1. Smoky Lapsang (Black) score=0.910\n   Flavors: smoky, bold\n   Pine smoked.\n")
}
