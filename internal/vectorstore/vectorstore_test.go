package vectorstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/catalog"
	"teabot/internal/domain"
	"teabot/internal/embedding"
	"teabot/internal/embedding/mock"
	"teabot/internal/vectorstore"
	"teabot/internal/vectorstore/memory"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]domain.Item{
		{ID: "1", Name: "Jasmine Bloom", Type: "Green", Flavors: []string{"floral"}, Description: "Jasmine petals."},
		{ID: "2", Name: "Smoky Lapsang", Type: "Black", Flavors: []string{"smoky"}, Description: "Pine smoked."},
		{ID: "3", Name: "Citrus Mint", Type: "Herbal", Flavors: []string{"citrus", "mint"}, Description: "Bright."},
	})
	require.NoError(t, err)
	return c
}

func docVectors(c *catalog.Catalog, prefix string, vecs ...domain.Vector) map[string]domain.Vector {
	out := make(map[string]domain.Vector)
	for i, it := range c.Items() {
		out[prefix+embedding.DocumentText(it, embedding.StyleLabeled)] = vecs[i]
	}
	return out
}

func TestBuildAndRetrieve(t *testing.T) {
	ctx := context.Background()
	c := testCatalog(t)
	emb := &mock.Embedder{Vectors: docVectors(c, "search_document: ",
		domain.Vector{1, 0, 0},
		domain.Vector{0, 1, 0},
		domain.Vector{0.6, 0, 0.8},
	)}
	enc := embedding.NewEncoder(emb, "search_query: ", "search_document: ")

	idx := memory.NewIndex()
	require.NoError(t, vectorstore.Build(ctx, idx, c, enc, embedding.StyleLabeled))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, emb.CallCount())

	r := vectorstore.NewRetriever(idx, c)
	got, err := r.Retrieve(ctx, domain.Vector{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Jasmine Bloom", got[0].Item.Name)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "Citrus Mint", got[1].Item.Name)
	assert.InDelta(t, 0.6, got[1].Score, 1e-9)

	none, err := r.Retrieve(ctx, domain.Vector{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type recordingIndex struct {
	vectorstore.Index
	records []vectorstore.Record
}

func (r *recordingIndex) Upsert(ctx context.Context, records ...vectorstore.Record) error {
	r.records = append(r.records, records...)
	return r.Index.Upsert(ctx, records...)
}

func TestBuildRecordsCatalogPosition(t *testing.T) {
	c := testCatalog(t)
	emb := &mock.Embedder{Default: domain.Vector{1, 0}}
	idx := &recordingIndex{Index: memory.NewIndex()}

	require.NoError(t, vectorstore.Build(context.Background(), idx, c, embedding.NewEncoder(emb, "", ""), embedding.StyleLabeled))
	require.Len(t, idx.records, 3)
	for i, r := range idx.records {
		assert.Equal(t, i, r.Position)
		assert.Equal(t, string(c.Items()[i].ID), r.ID)
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	c := testCatalog(t)
	emb := &mock.Embedder{Vectors: docVectors(c, "",
		domain.Vector{1, 0},
		domain.Vector{1, 0, 0},
		domain.Vector{1, 0},
	)}
	err := vectorstore.Build(context.Background(), memory.NewIndex(), c, embedding.NewEncoder(emb, "", ""), embedding.StyleLabeled)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestBuildProviderError(t *testing.T) {
	c := testCatalog(t)
	emb := &mock.Embedder{Err: domain.NewProviderError("ollama", "embed", 0, errors.New("connection refused"))}
	err := vectorstore.Build(context.Background(), memory.NewIndex(), c, embedding.NewEncoder(emb, "", ""), embedding.StyleLabeled)
	var pe *domain.ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestMetadata(t *testing.T) {
	md := vectorstore.Metadata(domain.Item{Name: "Citrus Mint", Type: "Herbal", Flavors: []string{"citrus", "mint"}, Description: "Bright."})
	assert.Equal(t, map[string]string{
		"name":        "Citrus Mint",
		"type":        "Herbal",
		"flavors":     "citrus, mint",
		"description": "Bright.",
	}, md)
}

func TestMatchSimilarity(t *testing.T) {
	assert.InDelta(t, 0.75, vectorstore.Match{Distance: 0.25}.Similarity(), 1e-12)
}
