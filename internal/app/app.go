// Package app wires configuration, storage, queue, providers and the HTTP
// server into a runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paul268484/document-mining/internal/config"
	db "github.com/paul268484/document-mining/internal/core/database"
	"github.com/paul268484/document-mining/internal/core/ingestion_engine"
	"github.com/paul268484/document-mining/internal/core/llm"
	"github.com/paul268484/document-mining/internal/core/queue"
	"github.com/paul268484/document-mining/internal/core/retrieval"
)

type App struct {
	Store   *db.Store
	Queue   *queue.RedisQueue
	Pool    *ingestion_engine.Pool
	Monitor *ingestion_engine.Monitor
	Server  *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	store, err := db.NewStore(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	slog.Info("database initialized and bootstrapped")

	jobQueue, err := queue.NewRedisQueue(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("queue init: %w", err)
	}
	if err := jobQueue.Ping(initCtx); err != nil {
		store.Close()
		jobQueue.Close()
		return nil, fmt.Errorf("queue ping: %w", err)
	}
	slog.Info("job queue connected", slog.String("queue", cfg.QueueName))

	embedder := llm.NewOllamaEmbedder(llm.EmbedConfig{
		BaseURL:    cfg.OllamaURL,
		Model:      cfg.EmbedModel,
		Timeout:    cfg.EmbedTimeout,
		MaxRetries: cfg.EmbedMaxRetries,
		RetryDelay: cfg.EmbedRetryDelay,
	})
	generator := llm.NewOllamaLLM(llm.GenConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.GenModel,
	})

	extractor := ingestion_engine.NewDocconvExtractor()
	chunker := ingestion_engine.NewDefaultChunker()
	retryPolicy := ingestion_engine.RetryPolicy{
		MaxAttempts: cfg.MaxJobRetries,
		Backoff:     ingestion_engine.DefaultRetryPolicy().Backoff,
	}

	pool := ingestion_engine.NewPool(store, jobQueue, embedder, extractor, chunker, retryPolicy, cfg.MaxConcurrentJobs)
	monitor := ingestion_engine.NewMonitor(store, jobQueue, cfg.MonitorInterval, cfg.StuckThreshold, retryPolicy)

	engine := retrieval.NewEngine(store, embedder)
	assembler := retrieval.NewAssembler(engine)

	server := NewServer(cfg, store, jobQueue, engine, assembler, generator)

	return &App{
		Store:   store,
		Queue:   jobQueue,
		Pool:    pool,
		Monitor: monitor,
		Server:  server,
	}, nil
}

// Run starts the worker pool, the stuck-document monitor and the HTTP server,
// and blocks until the context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Pool.Run(ctx)
	})
	g.Go(func() error {
		a.Monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.Server.Start(ctx)
	})

	return g.Wait()
}

func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
