package core

import (
	"context"

	"github.com/markdave123-py/docingest/internal/models"
)

// ChunkStore persists embedded chunks.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type ChunkStore interface {
	InsertChunks(ctx context.Context, records []models.ChunkRecord) (int, error)
	CountChunks(ctx context.Context) (int64, error)
	// SearchChunks returns up to limit embedded chunks nearest to vec.
	SearchChunks(ctx context.Context, vec []float32, limit int) ([]models.SearchHit, error)
	Close()
}

// SyncReport summarizes one object storage mirror run.
type SyncReport struct {
	Transferred int   `json:"transferred"`
	Skipped     int   `json:"skipped"`
	Bytes       int64 `json:"bytes"`
}

// ObjectClient mirrors a bucket prefix with a local directory.
type ObjectClient interface {
	DownloadPrefix(ctx context.Context, prefix, dir string) (SyncReport, error)
	UploadDir(ctx context.Context, dir, prefix string) (SyncReport, error)
}
