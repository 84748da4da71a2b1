// Package pgvectordb stores the syllabus index in PostgreSQL with the pgvector extension.
package pgvectordb

import (
	"context"
	"fmt"

	"study-planner/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

// Init creates the extension and table. dimension 0 leaves the vector column untyped.
func (p *PostgresStore) Init(ctx context.Context, dimension int) error {
	column := "vector"
	if dimension > 0 {
		column = fmt.Sprintf("vector(%d)", dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS syllabus_chunks (
			source     TEXT NOT NULL,
			position   INTEGER NOT NULL,
			content    TEXT NOT NULL,
			embedding  %s NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (source, position)
		)`, column),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init pgvector schema: %v", err)
		}
	}
	return nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Replace swaps the chunks of source inside one transaction, so readers see either the old
// set or the new one.
func (p *PostgresStore) Replace(ctx context.Context, source string, chunks []models.IndexedChunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM syllabus_chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("error deleting old chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO syllabus_chunks (source, position, content, embedding) VALUES ($1, $2, $3, $4)`,
			source, c.Position, c.Text, pgvector.NewVector(c.Vector),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("error inserting chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Debug().Str("source", source).Int("chunks", len(chunks)).Msg("pgvector index replaced")
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, source string, vector []float32, k int) ([]models.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", models.ErrInput)
	}
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	query := `
		SELECT position, content, 1 - (embedding <=> $2) AS similarity
		FROM syllabus_chunks
		WHERE source = $1
		ORDER BY embedding <=> $2, position
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, source, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []models.ScoredChunk{}
	for rows.Next() {
		var (
			hit   models.ScoredChunk
			score float64
		)
		if err := rows.Scan(&hit.Position, &hit.Text, &score); err != nil {
			return nil, err
		}
		hit.Score = float32(score)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, notFound(source)
	}
	return hits, nil
}

func (p *PostgresStore) All(ctx context.Context, source string) ([]models.Chunk, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT position, content FROM syllabus_chunks WHERE source = $1 ORDER BY position`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.Position, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, notFound(source)
	}
	return chunks, nil
}

// notFound reports ErrIndexNotFound. An empty table for source means it was never indexed,
// since the indexer refuses to write empty sets.
func notFound(source string) error {
	return fmt.Errorf("%w: %s", models.ErrIndexNotFound, source)
}
