package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/catalog"
	"teabot/internal/domain"
)

func TestCosineIdentities(t *testing.T) {
	vectors := []domain.Vector{
		{1, 2, 3},
		{0.3, -0.7, 12.5, 4},
		{1e-3, 5e3},
	}
	for _, v := range vectors {
		neg := make(domain.Vector, len(v))
		for i := range v {
			neg[i] = -v[i]
		}
		same, err := Cosine(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, same, 1e-12)

		opposite, err := Cosine(v, neg)
		require.NoError(t, err)
		assert.InDelta(t, -1.0, opposite, 1e-12)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	sim, err := Cosine(domain.Vector{1, 0}, domain.Vector{0, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-12)
}

func TestCosineDegenerateAndMismatch(t *testing.T) {
	_, err := Cosine(domain.Vector{0, 0}, domain.Vector{1, 1})
	assert.ErrorIs(t, err, domain.ErrDegenerateVector)

	_, err = Cosine(domain.Vector{1, 0}, domain.Vector{1, 0, 0})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func candidates(vectors ...domain.Vector) []Candidate {
	out := make([]Candidate, len(vectors))
	for i, v := range vectors {
		name := string(rune('A' + i))
		out[i] = Candidate{Item: domain.Item{ID: domain.ItemID(name), Name: name}, Vector: v}
	}
	return out
}

func names(res []domain.ScoredItem) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.Item.Name
	}
	return out
}

func TestRankOrdersDescending(t *testing.T) {
	cs := candidates(
		domain.Vector{0, 1},
		domain.Vector{1, 0},
		domain.Vector{1, 1},
		domain.Vector{-1, 0},
	)
	res, err := Rank(domain.Vector{1, 0}, cs, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A", "D"}, names(res))
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	cs := candidates(
		domain.Vector{0, 1},
		domain.Vector{2, 0},
		domain.Vector{1, 0},
		domain.Vector{3, 0},
	)
	res, err := Rank(domain.Vector{1, 0}, cs, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D"}, names(res))
}

func TestRankTruncation(t *testing.T) {
	cs := candidates(domain.Vector{1, 0}, domain.Vector{0, 1}, domain.Vector{1, 1})
	for k, want := range map[int]int{0: 0, 1: 1, 2: 2, 3: 3, 10: 3, -1: 0} {
		res, err := Rank(domain.Vector{1, 1}, cs, k)
		require.NoError(t, err)
		assert.Len(t, res, want, "k=%d", k)
	}
}

func TestRankDegenerateInput(t *testing.T) {
	cs := candidates(domain.Vector{1, 0}, domain.Vector{0, 0}, domain.Vector{0, 1})

	res, err := Rank(domain.Vector{0, 0}, cs, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(res))
	for _, r := range res {
		assert.Zero(t, r.Score)
	}

	res, err = Rank(domain.Vector{1, 0}, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRankDimensionMismatch(t *testing.T) {
	_, err := Rank(domain.Vector{1, 0}, candidates(domain.Vector{1, 0, 0}), 1)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestCatalogRetriever(t *testing.T) {
	c, err := catalog.New([]domain.Item{
		{ID: "1", Name: "Jasmine Bloom", Embedding: domain.Vector{1, 0}},
		{ID: "2", Name: "Smoky Lapsang", Embedding: domain.Vector{0, 1}},
	})
	require.NoError(t, err)

	r, err := NewCatalogRetriever(c)
	require.NoError(t, err)
	res, err := r.Retrieve(context.Background(), domain.Vector{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Jasmine Bloom", res[0].Item.Name)

	first, err := r.Retrieve(context.Background(), domain.Vector{0.5, 0.5}, 2)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), domain.Vector{0.5, 0.5}, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCatalogRetrieverRequiresEmbeddings(t *testing.T) {
	c, err := catalog.New([]domain.Item{{ID: "1", Name: "Bare"}})
	require.NoError(t, err)
	_, err = NewCatalogRetriever(c)
	assert.Error(t, err)
}
