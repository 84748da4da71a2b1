package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"study-planner/internal/chunker"
	"study-planner/internal/embedding"
	"study-planner/internal/helper"
	"study-planner/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

const DefaultTopK = 3

// VectorStore holds one flat index per source.
type VectorStore interface {
	// Replace atomically swaps the whole index of source.
	Replace(ctx context.Context, source string, chunks []models.IndexedChunk) error
	Search(ctx context.Context, source string, vector []float32, k int) ([]models.ScoredChunk, error)
	All(ctx context.Context, source string) ([]models.Chunk, error)
}

// Indexer splits, embeds and stores syllabus text.
type Indexer struct {
	splitter  chunker.Splitter
	embedder  embeddings.Embedder
	store     VectorStore
	dimension int
	locks     *helper.KeyedMutex
}

// NewIndexer builds an Indexer. dimension 0 accepts whatever length the embedder returns,
// as long as every vector agrees.
func NewIndexer(splitter chunker.Splitter, embedder embeddings.Embedder, store VectorStore, dimension int) *Indexer {
	return &Indexer{
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		locks:     helper.NewKeyedMutex(),
	}
}

// Ingest replaces the index of source with the chunks of text and returns them.
func (ix *Indexer) Ingest(ctx context.Context, source, text string) ([]models.Chunk, error) {
	if strings.TrimSpace(source) == "" {
		return nil, models.InputError("source")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.InputError("syllabus_text")
	}

	start := time.Now()
	chunks, err := ix.splitter.Split(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, models.InputError("syllabus_text")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedChunks(ctx, ix.embedder, texts)
	if err != nil {
		return nil, &models.UpstreamError{Op: "embed chunks", Retryable: !errors.Is(err, context.Canceled), Err: err}
	}

	dim := ix.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	indexed := make([]models.IndexedChunk, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("chunk %d: embedding has %d dimensions, index expects %d", i, len(vectors[i]), dim)
		}
		indexed[i] = models.IndexedChunk{Chunk: c, Vector: vectors[i]}
	}

	unlock := ix.locks.Lock(source)
	defer unlock()
	if err := ix.store.Replace(ctx, source, indexed); err != nil {
		return nil, fmt.Errorf("failed to replace index: %w", err)
	}

	log.Info().Str("source", source).Int("chunks", len(chunks)).Dur("took", time.Since(start)).Msg("syllabus indexed")
	return chunks, nil
}

// Retriever answers top-k similarity queries against an index.
type Retriever struct {
	embedder embeddings.Embedder
	store    VectorStore
	topK     int
}

func NewRetriever(embedder embeddings.Embedder, store VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns the k chunks of source most similar to query. k <= 0 uses the default.
func (r *Retriever) Retrieve(ctx context.Context, source, query string, k int) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.InputError("query")
	}
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.UpstreamError{Op: "embed query", Retryable: !errors.Is(err, context.Canceled), Err: err}
	}
	hits, err := r.store.Search(ctx, source, vector, k)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("source", source).Int("k", k).Int("hits", len(hits)).Msg("retrieved context")
	return hits, nil
}

// Dump returns every chunk of source in position order.
func (r *Retriever) Dump(ctx context.Context, source string) ([]models.Chunk, error) {
	return r.store.All(ctx, source)
}
