package pgvectordb

import (
	"context"
	"os"
	"testing"

	"study-planner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set PGVECTOR_TEST_DSN to a database with the vector extension available to run these.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 0))
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, `DELETE FROM syllabus_chunks WHERE source LIKE 'test-%'`)
		s.Close()
	})
	return s
}

func TestPostgresStore_ReplaceAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []models.IndexedChunk{
		{Chunk: models.Chunk{Text: "algebra", Position: 0}, Vector: []float32{1, 0, 0}},
		{Chunk: models.Chunk{Text: "geometry", Position: 1}, Vector: []float32{0, 1, 0}},
		{Chunk: models.Chunk{Text: "geometry again", Position: 2}, Vector: []float32{0, 1, 0}},
	}
	require.NoError(t, s.Replace(ctx, "test-a", chunks))

	hits, err := s.Search(ctx, "test-a", []float32{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)

	require.NoError(t, s.Replace(ctx, "test-a", chunks[:1]))
	all, err := s.All(ctx, "test-a")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPostgresStore_UnknownSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Search(context.Background(), "test-missing", []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, models.ErrIndexNotFound)
}
