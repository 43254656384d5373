package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
)

var (
	ErrNoPaths     = errors.New("no paths given")
	ErrNoFiles     = errors.New("no supported files found")
	ErrUnknownMode = errors.New("unknown pipeline mode")

	ErrEmptyQuery        = errors.New("empty search query")
	ErrSearchUnavailable = errors.New("search needs both an embedder and a chunk store")
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// IngestRequest is one ingestion run. Paths may be files or directories.
type IngestRequest struct {
	Paths   []string             `json:"paths"`
	Mode    string               `json:"mode"`
	Workers int                  `json:"workers"`
	Options models.IngestOptions `json:"options"`
}

type IngestReport struct {
	Files  int              `json:"files"`
	Chunks []models.Chunk   `json:"chunks"`
	Count  int              `json:"count"`
	Stored int              `json:"stored"`
	Stats  metrics.Snapshot `json:"stats"`
}

// IngestService runs the pipeline and hands its chunks to the embedder and
// the chunk store, both optional.
//
// pipeline:  turns files into chunks.
// embedder:  embedding provider; skipped when nil.
// store:     chunk persistence; skipped when nil.
// batchSize: chunks per embed + insert round trip.
// workers:   default worker count for parallel runs.
// jobs:      in-memory job registry fed by a bounded queue.
type IngestService struct {
	pipeline  *ingestion_engine.Pipeline
	embedder  core.EmbeddingProvider
	store     core.ChunkStore
	defaults  models.IngestOptions
	batchSize int
	workers   int
	log       logger.Logger

	mu    sync.RWMutex
	jobs  map[string]*jobState
	order []string
	queue chan string
}

type Option func(*IngestService)

func WithEmbedder(e core.EmbeddingProvider) Option {
	return func(s *IngestService) { s.embedder = e }
}

func WithStore(st core.ChunkStore) Option {
	return func(s *IngestService) { s.store = st }
}

func WithLogger(l logger.Logger) Option {
	return func(s *IngestService) { s.log = l }
}

func WithBatchSize(n int) Option {
	return func(s *IngestService) { s.batchSize = n }
}

// WithWorkers sets the worker count used when a parallel request names none.
func WithWorkers(n int) Option {
	return func(s *IngestService) { s.workers = n }
}

func WithDefaults(opt models.IngestOptions) Option {
	return func(s *IngestService) { s.defaults = opt }
}

// WithQueueSize bounds the number of jobs waiting for a worker.
func WithQueueSize(n int) Option {
	return func(s *IngestService) { s.queue = make(chan string, max(1, n)) }
}

func NewIngestService(p *ingestion_engine.Pipeline, opts ...Option) *IngestService {
	s := &IngestService{
		pipeline:  p,
		defaults:  models.DefaultIngestOptions(),
		batchSize: 16,
		workers:   4,
		jobs:      make(map[string]*jobState),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.batchSize <= 0 {
		s.batchSize = 16
	}
	if s.queue == nil {
		s.queue = make(chan string, 64)
	}
	return s
}

// Defaults returns the options applied to requests that do not set their own.
func (s *IngestService) Defaults() models.IngestOptions { return s.defaults }

func (s *IngestService) Stats() *metrics.Registry { return s.pipeline.Stats() }

// Persists reports whether Run embeds or stores chunks.
func (s *IngestService) Persists() bool { return s.embedder != nil || s.store != nil }

// NewRequest returns a request for paths carrying the service defaults.
func (s *IngestService) NewRequest(paths ...string) IngestRequest {
	return IngestRequest{Paths: paths, Mode: string(ingestion_engine.ModeEager), Options: s.defaults}
}

func (s *IngestService) expand(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	files, err := ingestion_engine.ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return files, nil
}

// Run executes one request to completion: pipeline, then embed and persist in
// batches of batchSize.
func (s *IngestService) Run(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	mode, ok := ingestion_engine.ParseMode(req.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	files, err := s.expand(req.Paths)
	if err != nil {
		return nil, err
	}

	rep := &IngestReport{Files: len(files)}
	switch mode {
	case ingestion_engine.ModeStream:
		g, gctx := errgroup.WithContext(ctx)
		chunks := s.pipeline.Stream(gctx, g, files, req.Options)
		g.Go(func() error {
			stored, err := s.embedAndPersist(gctx, chunks, func(c models.Chunk) {
				rep.Chunks = append(rep.Chunks, c)
			})
			rep.Stored = stored
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	default:
		var chunks []models.Chunk
		if mode == ingestion_engine.ModeParallel {
			workers := req.Workers
			if workers <= 0 {
				workers = s.workers
			}
			chunks, err = s.pipeline.ConvertPathsParallel(ctx, files, req.Options, workers)
		} else {
			chunks, err = s.pipeline.ConvertPaths(ctx, files, req.Options)
		}
		if err != nil {
			return nil, err
		}
		rep.Chunks = chunks
		if rep.Stored, err = s.persistAll(ctx, chunks); err != nil {
			return nil, err
		}
	}

	rep.Count = len(rep.Chunks)
	rep.Stats = s.pipeline.Stats().Snapshot()
	s.log.Info("ingest run done", "mode", string(mode), "files", rep.Files, "chunks", rep.Count, "stored", rep.Stored)
	return rep, nil
}

// Stream expands paths and streams their chunks without persisting them.
func (s *IngestService) Stream(ctx context.Context, g *errgroup.Group, paths []string, opt models.IngestOptions) (<-chan models.Chunk, error) {
	files, err := s.expand(paths)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Stream(ctx, g, files, opt), nil
}

func (s *IngestService) persistAll(ctx context.Context, chunks []models.Chunk) (int, error) {
	if !s.Persists() {
		return 0, nil
	}
	stored := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		n, err := s.flush(ctx, chunks[start:min(len(chunks), start+s.batchSize)])
		if err != nil {
			return stored, err
		}
		stored += n
	}
	return stored, nil
}

// embedAndPersist drains in, flushing every batchSize chunks. seen is called
// for each chunk as it arrives.
func (s *IngestService) embedAndPersist(ctx context.Context, in <-chan models.Chunk, seen func(models.Chunk)) (int, error) {
	batch := make([]models.Chunk, 0, s.batchSize)
	stored := 0
	for c := range in {
		seen(c)
		if !s.Persists() {
			continue
		}
		batch = append(batch, c)
		if len(batch) == s.batchSize {
			n, err := s.flush(ctx, batch)
			if err != nil {
				return stored, err
			}
			stored += n
			batch = batch[:0]
		}
	}
	n, err := s.flush(ctx, batch)
	return stored + n, err
}

// flush embeds one batch and inserts it. It returns the rows inserted, or the
// batch size when no store is configured.
func (s *IngestService) flush(ctx context.Context, items []models.Chunk) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	var vecs [][]float32
	if s.embedder != nil {
		texts := make([]string, len(items))
		for i := range items {
			texts[i] = items[i].Text
		}
		var err error
		vecs, err = s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return 0, fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}
	}

	if s.store == nil {
		return len(items), nil
	}
	now := time.Now().UTC()
	rows := make([]models.ChunkRecord, len(items))
	for i := range items {
		rows[i] = models.ChunkRecord{
			ID:        uuid.NewString(),
			StableID:  items[i].StableID(),
			Source:    items[i].Meta.Value(models.MetaSource),
			Text:      items[i].Text,
			Meta:      items[i].Meta,
			CreatedAt: now,
		}
		if vecs != nil {
			rows[i].Embedding = vecs[i]
		}
	}
	n, err := s.store.InsertChunks(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("insert chunks: %w", err)
	}
	return n, nil
}

// Searchable reports whether Search can run.
func (s *IngestService) Searchable() bool { return s.embedder != nil && s.store != nil }

// Search embeds query and returns the stored chunks closest to it. limit
// defaults to 5 and is capped at 50.
func (s *IngestService) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if !s.Searchable() {
		return nil, ErrSearchUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	hits, err := s.store.SearchChunks(ctx, vecs[0], limit)
	if err != nil {
		return nil, err
	}
	s.log.Debug("search done", "limit", limit, "hits", len(hits))
	return hits, nil
}
