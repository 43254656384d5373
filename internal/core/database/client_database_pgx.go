package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/models"
)

type ChunkStore struct {
	pool Pool
}

var _ core.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore connects to DATABASE_URL, pings and bootstraps the schema.
func NewChunkStore(ctx context.Context, cfg *config.Config) (*ChunkStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	store, err := NewChunkStoreWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewChunkStoreWithPool bootstraps the schema on an existing pool.
func NewChunkStoreWithPool(ctx context.Context, pool Pool) (*ChunkStore, error) {
	if err := EnsureBootstrapped(ctx, pool); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &ChunkStore{pool: pool}, nil
}

func (s *ChunkStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const insertChunk = `
	INSERT INTO ingest_chunks (id, stable_id, source, text, meta, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (stable_id) DO NOTHING
`

// InsertChunks writes records in one transaction. Records whose stable id is
// already stored are skipped; the number actually inserted is returned.
func (s *ChunkStore) InsertChunks(ctx context.Context, records []models.ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	inserted := 0
	for i := range records {
		rec := &records[i]
		meta, err := json.Marshal(rec.Meta)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("encode meta for %s: %w", rec.StableID, err)
		}
		var vec any
		if len(rec.Embedding) > 0 {
			vec = pgvector.NewVector(rec.Embedding)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		tag, err := tx.Exec(ctx, insertChunk,
			rec.ID, rec.StableID, rec.Source, rec.Text, string(meta), vec, createdAt,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("insert chunk %s: %w", rec.StableID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit chunks: %w", err)
	}
	return inserted, nil
}

func (s *ChunkStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ingest_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

const searchChunks = `
	SELECT id::text, source, text, meta, 1 - (embedding <=> $1) AS score
	FROM ingest_chunks
	WHERE embedding IS NOT NULL
	ORDER BY embedding <=> $1
	LIMIT $2
`

// SearchChunks finds the limit chunks closest to vec by cosine distance.
func (s *ChunkStore) SearchChunks(ctx context.Context, vec []float32, limit int) ([]models.SearchHit, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("search: empty query vector")
	}
	rows, err := s.pool.Query(ctx, searchChunks, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := []models.SearchHit{}
	for rows.Next() {
		var (
			hit  models.SearchHit
			meta []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Source, &hit.Text, &meta, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &hit.Meta); err != nil {
				return nil, fmt.Errorf("decode meta for %s: %w", hit.ID, err)
			}
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return out, nil
}
