// Package app wires configuration into a running study planner.
package app

import (
	"context"
	"fmt"

	"study-planner/internal/chromemdb"
	"study-planner/internal/chunker"
	"study-planner/internal/config"
	"study-planner/internal/db"
	"study-planner/internal/embedding"
	"study-planner/internal/generator"
	"study-planner/internal/helper"
	"study-planner/internal/llmservice"
	"study-planner/internal/pgvectordb"
	"study-planner/internal/rag"
	"study-planner/internal/server"
	"study-planner/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config  *config.Config
	Store   *db.Store
	Vectors rag.VectorStore
	Service *workflow.Service
	HTTP    *fiber.App

	// Chromem is set when the chromem backend is selected.
	Chromem  *chromemdb.VectorDBManager
	postgres *pgvectordb.PostgresStore
}

// New builds every component named by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := db.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.Store = store

	if err := a.openVectors(ctx); err != nil {
		a.Close()
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	splitter, err := chunker.New(cfg.RAG.Splitter,
		chunker.WithChunkSize(cfg.RAG.ChunkSize),
		chunker.WithOverlap(cfg.RAG.ChunkOverlap),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	model, err := llmservice.NewModel(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}

	gen := generator.New(model, helper.NewTokenCounter(cfg.LLM.CountTokens), cfg.RAG.MaxContextTokens)
	a.Service = workflow.NewService(
		rag.NewIndexer(splitter, embedder, a.Vectors, cfg.EmbedLLM.Dimension),
		rag.NewRetriever(embedder, a.Vectors, cfg.RAG.TopK),
		store,
		gen,
		cfg.RAG,
		cfg.Planner,
	)
	a.HTTP = server.NewApp(server.NewHandler(a.Service, store), cfg.Server)

	log.Info().
		Str("database", cfg.Database.Driver).
		Str("vector_store", cfg.VectorStore.Type).
		Str("embedder", cfg.EmbedLLM.Provider).
		Str("llm", cfg.LLM.Provider).
		Msg("study planner ready")
	return a, nil
}

func (a *App) openVectors(ctx context.Context) error {
	vs := a.Config.VectorStore
	switch vs.Type {
	case "pgvector":
		pg, err := pgvectordb.NewPostgresStore(ctx, vs.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to pgvector: %w", err)
		}
		a.postgres = pg
		if err := pg.Init(ctx, a.Config.EmbedLLM.Dimension); err != nil {
			return err
		}
		a.Vectors = pg
	case "chromem":
		if !vs.InMemory {
			if err := helper.CreateFolder(vs.Path); err != nil {
				return err
			}
		}
		mgr, err := chromemdb.NewVectorDBManager(vs.Path, vs.InMemory, vs.Compress, config.Secret(vs.EncryptionKeyEnv))
		if err != nil {
			return fmt.Errorf("failed to open chromem: %w", err)
		}
		a.Chromem = mgr
		a.Vectors = mgr
	default:
		return fmt.Errorf("unsupported vector store: %s", vs.Type)
	}
	return nil
}

// Close releases the database and any vector store connection. The HTTP app is stopped by
// whoever runs it.
func (a *App) Close() error {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
