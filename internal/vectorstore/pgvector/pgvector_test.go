package pgvector

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/domain"
	"teabot/internal/vectorstore"
)

// testDSN returns the test database DSN or skips the test when
// TEABOT_TEST_POSTGRES_DSN is unset.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEABOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEABOT_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestNewIndexConfigErrors(t *testing.T) {
	ctx := context.Background()
	var cfgErr *domain.ConfigurationError

	_, err := NewIndex(ctx, Config{})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "vector_store.pgvector.dsn", cfgErr.Setting)

	_, err = NewIndex(ctx, Config{DSN: "postgres://localhost/db", Table: "items; DROP TABLE x"})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "vector_store.pgvector.table", cfgErr.Setting)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 0}, toFloat32(domain.Vector{0.5, -1, 0}))
}

func TestQuerySQLOrdersByPosition(t *testing.T) {
	q := querySQL(`"teabot_items"`)
	assert.Contains(t, q, "ORDER  BY embedding <=> $1, position")
	assert.NotContains(t, q, ", id")
}

func TestQueryTiesFollowCatalogOrder(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, Config{DSN: testDSN(t), Table: "teabot_test_ties"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Init(ctx, 2))
	// "10" sorts before "2" as text but comes later in the catalog
	require.NoError(t, idx.Upsert(ctx,
		vectorstore.Record{ID: "2", Position: 1, Vector: domain.Vector{1, 0}},
		vectorstore.Record{ID: "10", Position: 9, Vector: domain.Vector{2, 0}},
		vectorstore.Record{ID: "5", Position: 4, Vector: domain.Vector{0, 1}},
	))

	got, err := idx.Query(ctx, domain.Vector{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2", "10", "5"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, Config{DSN: testDSN(t), Table: "teabot_test_items"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Init(ctx, 3))
	require.NoError(t, idx.Upsert(ctx,
		vectorstore.Record{ID: "1", Position: 0, Vector: domain.Vector{1, 0, 0}, Metadata: map[string]string{"name": "Jasmine Bloom"}},
		vectorstore.Record{ID: "2", Position: 1, Vector: domain.Vector{0, 1, 0}, Metadata: map[string]string{"name": "Smoky Lapsang"}},
		vectorstore.Record{ID: "3", Position: 2, Vector: domain.Vector{0.6, 0.8, 0}, Metadata: map[string]string{"name": "Citrus Mint"}},
	))

	got, err := idx.Query(ctx, domain.Vector{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.Equal(t, "Jasmine Bloom", got[0].Metadata["name"])
	assert.Equal(t, "3", got[1].ID)
	assert.InDelta(t, 0.6, got[1].Similarity(), 1e-6)

	// Init drops previous rows.
	require.NoError(t, idx.Init(ctx, 3))
	got, err = idx.Query(ctx, domain.Vector{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}
