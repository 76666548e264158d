package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/option"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/pkg/channel"
	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/config"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/export"
	"github.com/mpislabs/draftflow/pkg/generate"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/llm"
	"github.com/mpislabs/draftflow/pkg/logging"
	"github.com/mpislabs/draftflow/pkg/memory"
	"github.com/mpislabs/draftflow/pkg/storage"
)

// AppContext holds what every command needs.
type AppContext struct {
	Config *config.Config
	Store  *draftflow.GormStorage
	Engine *draftflow.Engine
	Logger *slog.Logger
}

// NewAppContext loads configuration, opens the database and wires an engine.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	var poolOpts []draftflow.PoolOption
	if storage.IsPostgresDSN(cfg.Database.URL) {
		poolOpts = append(poolOpts,
			draftflow.MaxOpenConns(cfg.Database.MaxOpenConns),
			draftflow.MaxIdleConns(cfg.Database.MaxIdleConns),
			draftflow.ConnMaxLifetime(cfg.Database.ConnMaxLifetime),
		)
	}
	store, err := draftflow.Open(cfg.Database.URL, poolOpts...)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(ctx, cfg, store)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return &AppContext{Config: cfg, Store: store, Engine: engine, Logger: logger}, nil
}

// Close releases the database connection.
func (ac *AppContext) Close() {
	closeStore(ac.Store)
}

func closeStore(store *draftflow.GormStorage) {
	if sqlDB, err := store.DB().DB(); err == nil {
		sqlDB.Close()
	}
}

func newEngine(ctx context.Context, cfg *config.Config, store *draftflow.GormStorage) (*draftflow.Engine, error) {
	backend, err := llm.New(ctx, llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey(),
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if errors.Is(err, llm.ErrAPIKeyNotSet) {
		// Review commands work without a backend; jobs fail at generation.
		slog.Warn("generative backend not configured", "provider", cfg.LLM.Provider)
		missing := core.NoRetry(err)
		backend = llm.BackendFunc(func(context.Context, llm.Prompt) (string, error) {
			return "", missing
		})
	} else if err != nil {
		return nil, err
	}

	index, err := newIndex(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	adapters, err := newAdapters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chunker := ingest.NewChunker(ingest.DefaultCounter())
	chunker.MinTokens = cfg.Chunking.MinTokens
	chunker.MaxTokens = cfg.Chunking.MaxTokens
	chunker.OverlapTokens = cfg.Chunking.OverlapTokens

	opts := []draftflow.Option{
		draftflow.WithIndex(index),
		draftflow.WithAdapters(adapters...),
		draftflow.WithIngestOptions(
			ingest.WithChunker(chunker),
			ingest.WithSourceTimeout(cfg.Sources.SourceTimeout),
			ingest.WithConcurrency(cfg.Sources.Concurrency),
		),
		draftflow.WithGenerateOptions(
			generate.WithAttempts(cfg.LLM.MaxAttempts),
			generate.WithTimeout(cfg.LLM.Timeout),
		),
		draftflow.WithCommitOptions(commit.WithIndexTimeout(cfg.CommitIndexTimeout)),
		draftflow.WithRunTimeout(cfg.RunDefaultTimeout),
	}
	if cfg.ExportDir != "" {
		opts = append(opts, draftflow.WithExporter(export.NewFileExporter(cfg.ExportDir)))
	}
	return draftflow.New(store, backend, opts...), nil
}

// newIndex returns the pgvector index when enabled on PostgreSQL, and the
// unavailable index otherwise, which makes every commit degraded.
func newIndex(ctx context.Context, cfg *config.Config, store *draftflow.GormStorage) (memory.Index, error) {
	if !cfg.Embedding.Enabled {
		return memory.Unavailable{}, nil
	}
	if store.IsSQLite() {
		slog.Warn("memory index needs PostgreSQL, commits will be degraded")
		return memory.Unavailable{}, nil
	}
	embedder, err := llm.NewOpenAIEmbedder(cfg.LLM.OpenAIKey,
		llm.WithEmbeddingModel(cfg.Embedding.Model),
		llm.WithEmbeddingDimension(cfg.Embedding.Dimension),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	index := memory.NewPGVectorIndex(store.DB(), embedder)
	if err := index.Migrate(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func newAdapters(ctx context.Context, cfg *config.Config) ([]ingest.Adapter, error) {
	adapters := []ingest.Adapter{
		channel.NewWeb(
			channel.WithAllowedDomains(cfg.Sources.WebAllowedDomains...),
			channel.WithDeniedDomains(cfg.Sources.WebDeniedDomains...),
			channel.WithWebTimeout(cfg.Sources.WebTimeout),
		),
	}
	if cfg.Sources.TranscriptServiceURL != "" {
		client := &http.Client{Timeout: cfg.Sources.SourceTimeout}
		adapters = append(adapters, channel.NewTranscript(cfg.Sources.TranscriptServiceURL, cfg.Sources.TranscriptLanguage, client))
	}
	if cfg.Sources.DriveCredentialsFile != "" {
		drive, err := channel.NewDrive(ctx, option.WithCredentialsFile(cfg.Sources.DriveCredentialsFile))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, drive)
	}
	return adapters, nil
}
