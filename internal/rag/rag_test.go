package rag

import (
	"context"
	"errors"
	"testing"

	"study-planner/internal/chromemdb"
	"study-planner/internal/chunker"
	"study-planner/internal/embedding"
	"study-planner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syllabus = `Unit 1: Algebra. Linear equations and quadratic equations.
Unit 2: Geometry. Triangles, circles and coordinate geometry.
Unit 3: Calculus. Limits, derivatives and integrals.
Unit 4: Statistics. Mean, median, mode and probability.`

type failingEmbedder struct{ err error }

func (f failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

func (f failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, f.err
}

type raggedEmbedder struct{}

func (raggedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 4+i)
		out[i][0] = 1
	}
	return out, nil
}

func (raggedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func newPipeline(t *testing.T) (*Indexer, *Retriever, *chromemdb.VectorDBManager) {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	emb := embedding.NewFakeEmbedder(128)
	splitter := chunker.NewWindow(chunker.WithChunkSize(80), chunker.WithOverlap(10))
	return NewIndexer(splitter, emb, store, 128), NewRetriever(emb, store, 3), store
}

func TestIngestRetrieve_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ix, r, _ := newPipeline(t)

	chunks, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		hits, err := r.Retrieve(ctx, "s1", c.Text, 3)
		require.NoError(t, err)
		require.NotEmpty(t, hits)

		var found bool
		for _, h := range hits {
			if h.Position == c.Position {
				found = true
			}
		}
		assert.True(t, found, "chunk %d not in its own top-k", c.Position)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	ix, r, _ := newPipeline(t)

	first, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)
	second, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := r.Dump(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, len(first))
}

func TestIngest_ReplacesPreviousSyllabus(t *testing.T) {
	ctx := context.Background()
	ix, r, _ := newPipeline(t)

	_, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)
	_, err = ix.Ingest(ctx, "s1", "Unit 9: Astronomy")
	require.NoError(t, err)

	all, err := r.Dump(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Unit 9: Astronomy", all[0].Text)
}

func TestIngest_EmptyText(t *testing.T) {
	ix, _, _ := newPipeline(t)
	_, err := ix.Ingest(context.Background(), "s1", "  \n\t ")
	assert.ErrorIs(t, err, models.ErrInput)
}

func TestIngest_EmbedderFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	ix, r, store := newPipeline(t)
	_, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)

	broken := NewIndexer(chunker.NewWindow(), failingEmbedder{err: errors.New("model offline")}, store, 128)
	_, err = broken.Ingest(ctx, "s1", "Unit 9: Astronomy")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)

	all, err := r.Dump(ctx, "s1")
	require.NoError(t, err)
	assert.Greater(t, len(all), 1)
}

func TestIngest_DimensionMismatch(t *testing.T) {
	store, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	ix := NewIndexer(chunker.NewWindow(chunker.WithChunkSize(30), chunker.WithOverlap(5)), raggedEmbedder{}, store, 0)

	_, err = ix.Ingest(context.Background(), "s1", syllabus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
	assert.Empty(t, store.Sources())
}

func TestRetrieve_OneEntryIndex(t *testing.T) {
	ctx := context.Background()
	ix, r, _ := newPipeline(t)
	_, err := ix.Ingest(ctx, "s1", "Unit 1: Algebra")
	require.NoError(t, err)

	hits, err := r.Retrieve(ctx, "s1", "algebra", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRetrieve_DefaultK(t *testing.T) {
	ctx := context.Background()
	ix, r, _ := newPipeline(t)
	chunks, err := ix.Ingest(ctx, "s1", syllabus)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	hits, err := r.Retrieve(ctx, "s1", "derivatives", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()
	_, r, _ := newPipeline(t)

	_, err := r.Retrieve(ctx, "never-indexed", "algebra", 3)
	assert.ErrorIs(t, err, models.ErrIndexNotFound)

	_, err = r.Retrieve(ctx, "never-indexed", "   ", 3)
	assert.ErrorIs(t, err, models.ErrInput)
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	store, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	r := NewRetriever(failingEmbedder{err: errors.New("down")}, store, 3)

	_, err = r.Retrieve(context.Background(), "s1", "algebra", 3)
	assert.ErrorIs(t, err, models.ErrUpstream)
	assert.True(t, models.IsRetryable(err))
}
