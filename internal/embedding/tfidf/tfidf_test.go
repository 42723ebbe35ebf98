package tfidf

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/domain"
)

var corpus = []string{
	"Name: Jasmine Bloom. Type: Green. Flavors: floral, light. Description: Delicate jasmine petals.",
	"Name: Smoky Lapsang. Type: Black. Flavors: smoky, bold. Description: Pine smoked leaves.",
	"Name: Citrus Mint. Type: Herbal. Flavors: citrus, mint. Description: Bright and refreshing.",
}

func TestEmbedBeforePrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "floral")
	var pe *domain.ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestPrepareEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}

func TestEmbedIsNormalised(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	assert.Positive(t, e.Dimension())

	v, err := e.Embed(context.Background(), "something floral and light")
	require.NoError(t, err)
	require.Len(t, v, e.Dimension())

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedUnknownWordsGiveZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	v, err := e.Embed(context.Background(), "xylophone")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestSharedTermsScoreHigher(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	q, err := e.Embed(context.Background(), "smoky and bold")
	require.NoError(t, err)
	smoky, err := e.Embed(context.Background(), corpus[1])
	require.NoError(t, err)
	floral, err := e.Embed(context.Background(), corpus[0])
	require.NoError(t, err)

	assert.Greater(t, dot(q, smoky), dot(q, floral))
}

func dot(a, b domain.Vector) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
