package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/docingest/internal/models"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
)

// jobLogCap is how many log lines a job keeps.
const jobLogCap = 200

type jobState struct {
	mu  sync.Mutex
	job models.Job
	req IngestRequest
}

func (j *jobState) snapshot() models.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.job
	out.Paths = slices.Clone(j.job.Paths)
	out.Logs = slices.Clone(j.job.Logs)
	return out
}

func (j *jobState) logf(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	line := time.Now().UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	j.job.Logs = append(j.job.Logs, line)
	if over := len(j.job.Logs) - jobLogCap; over > 0 {
		j.job.Logs = slices.Delete(j.job.Logs, 0, over)
	}
}

func (j *jobState) update(fn func(*models.Job)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.job)
}

// Submit registers a job in status queued and enqueues it. It never blocks;
// a full queue returns ErrQueueFull and the job is not kept.
func (s *IngestService) Submit(req IngestRequest) (models.Job, error) {
	if _, ok := ingestion_engine.ParseMode(req.Mode); !ok {
		return models.Job{}, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	if len(req.Paths) == 0 {
		return models.Job{}, ErrNoPaths
	}
	if req.Mode == "" {
		req.Mode = string(ingestion_engine.ModeEager)
	}

	st := &jobState{
		req: req,
		job: models.Job{
			ID:        uuid.NewString(),
			Status:    models.JobQueued,
			Mode:      req.Mode,
			Paths:     slices.Clone(req.Paths),
			Options:   req.Options,
			Logs:      []string{},
			CreatedAt: time.Now().UTC(),
		},
	}

	s.mu.Lock()
	select {
	case s.queue <- st.job.ID:
	default:
		s.mu.Unlock()
		return models.Job{}, ErrQueueFull
	}
	s.jobs[st.job.ID] = st
	s.order = append(s.order, st.job.ID)
	s.mu.Unlock()

	st.logf("queued %d path(s) in %s mode", len(req.Paths), req.Mode)
	return st.snapshot(), nil
}

func (s *IngestService) Job(id string) (models.Job, error) {
	s.mu.RLock()
	st, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return st.snapshot(), nil
}

// Jobs lists every job in submission order.
func (s *IngestService) Jobs() []models.Job {
	s.mu.RLock()
	states := make([]*jobState, 0, len(s.order))
	for _, id := range s.order {
		states = append(states, s.jobs[id])
	}
	s.mu.RUnlock()

	out := make([]models.Job, len(states))
	for i, st := range states {
		out[i] = st.snapshot()
	}
	return out
}

// Start runs workers goroutines consuming the job queue until ctx is done.
func (s *IngestService) Start(ctx context.Context, workers int) {
	for range max(1, workers) {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					s.processJob(ctx, id)
				}
			}
		}()
	}
}

func (s *IngestService) processJob(ctx context.Context, id string) {
	s.mu.RLock()
	st, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	started := time.Now().UTC()
	st.update(func(j *models.Job) {
		j.Status = models.JobProcessing
		j.StartedAt = &started
	})
	st.logf("processing")
	s.log.Info("job started", "job", id, "mode", st.req.Mode)

	rep, err := s.Run(ctx, st.req)
	finished := time.Now().UTC()
	if err != nil {
		st.update(func(j *models.Job) {
			j.Status = models.JobFailed
			j.Error = err.Error()
			j.FinishedAt = &finished
		})
		st.logf("failed: %v", err)
		s.log.Error("job failed", "job", id, "err", err)
		return
	}

	st.update(func(j *models.Job) {
		j.Status = models.JobReady
		j.Chunks = rep.Count
		j.Stored = rep.Stored
		j.FinishedAt = &finished
	})
	st.logf("done: %d file(s), %d chunk(s), %d stored in %s", rep.Files, rep.Count, rep.Stored, finished.Sub(started).Round(time.Millisecond))
	s.log.Info("job done", "job", id, "chunks", rep.Count, "stored", rep.Stored)
}
