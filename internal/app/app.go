package app

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/docingest/internal/config"
	db "github.com/markdave123-py/docingest/internal/core/database"
	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/docingest/internal/core/llm"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/services"
)

type App struct {
	Log     logger.Logger
	Stats   *metrics.Registry
	Service *services.IngestService
	Server  *Server

	closers []func()
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg.LoggerConfig())
	a := &App{Log: log, Stats: metrics.NewRegistry()}

	svc, err := a.NewIngestService(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	a.Server = NewServer(cfg, svc, log)
	return a, nil
}

// NewIngestService wires the pipeline with whichever optional collaborators
// the configuration enables: a chunk store when DATABASE_URL is set and an
// embedder when GEMINI_API_KEY is set.
func (a *App) NewIngestService(ctx context.Context, cfg *config.Config) (*services.IngestService, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	pipeline := ingestion_engine.NewPipeline(
		ingestion_engine.WithStats(a.Stats),
		ingestion_engine.WithLogger(a.Log.With("component", "pipeline")),
		ingestion_engine.WithDocconv(ingestion_engine.DocconvConfig{
			UseReadability: cfg.UseReadability,
			NativePDF:      cfg.NativePDF,
		}),
	)

	opts := []services.Option{
		services.WithLogger(a.Log.With("component", "ingest")),
		services.WithDefaults(cfg.IngestOptions()),
		services.WithBatchSize(cfg.EmbedBatchSize),
		services.WithWorkers(cfg.Workers),
		services.WithQueueSize(cfg.JobQueueSize),
	}

	if cfg.DatabaseURL != "" {
		store, err := db.NewChunkStore(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		opts = append(opts, services.WithStore(store))
		a.Log.Info("database initialized and ready")
	} else {
		a.Log.Info("DATABASE_URL not set; chunks will not be persisted")
	}

	if cfg.AIAPIKey != "" {
		embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, func() { _ = embedder.Close() })
		opts = append(opts, services.WithEmbedder(embedder))
		a.Log.Info("embedder initialized", "model", cfg.EmbedModel)
	}

	return services.NewIngestService(pipeline, opts...), nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
