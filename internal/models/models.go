package models

import (
	"time"
)

// IngestOptions tunes one pipeline invocation.
//
// ChunkSize:      target characters per chunk (floor 32, applied at chunking time).
// Overlap:        characters re-read from the end of the previous chunk (floor 0).
// OCR:            process image formats through the converter.
// LanguageDetect: stamp a detected language onto chunks.
// Dedupe:         drop chunks whose content signature was already seen.
// MinChars:       chunks shorter than this after trimming are dropped.
type IngestOptions struct {
	ChunkSize      int  `json:"chunk_size"`
	Overlap        int  `json:"overlap"`
	OCR            bool `json:"ocr"`
	LanguageDetect bool `json:"language_detect"`
	Dedupe         bool `json:"dedupe"`
	MinChars       int  `json:"min_chars"`
}

func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		ChunkSize:      512,
		Overlap:        64,
		OCR:            false,
		LanguageDetect: true,
		Dedupe:         true,
		MinChars:       12,
	}
}

// Meta keys stamped on chunks.
const (
	MetaSource   = "source"
	MetaFilename = "filename"
	MetaExt      = "ext"
	MetaSection  = "section"
	MetaPage     = "page"
	MetaLang     = "lang"
	MetaOCR      = "ocr"
	MetaTitle    = "title"
)

// ChunkRecord is one persisted chunk row.
type ChunkRecord struct {
	ID        string    `db:"id" json:"id"`
	StableID  string    `db:"stable_id" json:"stable_id"`
	Source    string    `db:"source" json:"source"`
	Text      string    `db:"text" json:"text"`
	Meta      Meta      `db:"meta" json:"meta"`
	Embedding []float32 `db:"embedding" json:"embedding,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SearchHit is a stored chunk matched by vector similarity. Score is the
// cosine similarity to the query, higher is closer.
type SearchHit struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Meta   Meta    `json:"meta"`
	Score  float64 `json:"score"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobReady      JobStatus = "ready"
	JobFailed     JobStatus = "failed"
)

// Job is an asynchronous ingestion request tracked in memory.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Mode       string        `json:"mode"`
	Paths      []string      `json:"paths"`
	Options    IngestOptions `json:"options"`
	Chunks     int           `json:"chunks"`
	Stored     int           `json:"stored"`
	Error      string        `json:"error,omitempty"`
	Logs       []string      `json:"logs"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
