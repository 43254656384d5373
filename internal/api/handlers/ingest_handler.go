package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
	"github.com/markdave123-py/docingest/internal/services"
)

const maxUploadMemory = 64 << 20

type IngestHandler struct {
	svc       *services.IngestService
	uploadDir string
	log       logger.Logger
}

func NewIngestHandler(svc *services.IngestService, uploadDir string, log logger.Logger) *IngestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestHandler{svc: svc, uploadDir: uploadDir, log: log}
}

// decodeRequest reads an ingest request whose options default to the
// service defaults; fields present in the body override them.
func (h *IngestHandler) decodeRequest(r *http.Request) (services.IngestRequest, error) {
	req := h.svc.NewRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

func requestStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNoPaths),
		errors.Is(err, services.ErrNoFiles),
		errors.Is(err, services.ErrUnknownMode),
		errors.Is(err, os.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Ingest runs a request synchronously and returns the report.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rep, err := h.svc.Run(r.Context(), req)
	if err != nil {
		h.log.Error("ingest failed", "err", err)
		http.Error(w, err.Error(), requestStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// IngestStream writes one JSON chunk per line as the pipeline produces them.
func (h *IngestHandler) IngestStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	chunks, err := h.svc.Stream(ctx, g, req.Paths, req.Options)
	if err != nil {
		http.Error(w, err.Error(), requestStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for c := range chunks {
		if err := enc.Encode(c); err != nil {
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := g.Wait(); err != nil {
		// headers are gone; the error ends the stream as its last line
		h.log.Error("ingest stream failed", "err", err)
		_ = enc.Encode(map[string]string{"error": err.Error()})
	}
}

type uploadResponse struct {
	Job      *models.Job `json:"job,omitempty"`
	Dir      string      `json:"dir"`
	Saved    []string    `json:"saved"`
	Rejected []string    `json:"rejected"`
}

// Upload saves multipart files under a fresh directory and submits a job
// ingesting it. Unsupported files are rejected individually.
func (h *IngestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	var files []*multipart.FileHeader
	for _, field := range []string{"file", "files"} {
		files = append(files, r.MultipartForm.File[field]...)
	}
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	dir := filepath.Join(h.uploadDir, fmt.Sprintf("%d_%s", time.Now().Unix(), uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, fmt.Sprintf("create upload dir: %v", err), http.StatusInternalServerError)
		return
	}

	resp := uploadResponse{Dir: dir, Saved: []string{}, Rejected: []string{}}
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !ingestion_engine.IsSupported(name) {
			resp.Rejected = append(resp.Rejected, name)
			continue
		}
		if err := saveUpload(fh, filepath.Join(dir, name)); err != nil {
			h.log.Error("save upload failed", "file", name, "err", err)
			resp.Rejected = append(resp.Rejected, name)
			continue
		}
		resp.Saved = append(resp.Saved, name)
	}
	if len(resp.Saved) == 0 {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	req, err := h.formRequest(r, dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.svc.Submit(req)
	if err != nil {
		http.Error(w, err.Error(), requestStatus(err))
		return
	}
	resp.Job = &job
	writeJSON(w, http.StatusAccepted, resp)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// formRequest reads mode, workers and option overrides from form values.
func (h *IngestHandler) formRequest(r *http.Request, dir string) (services.IngestRequest, error) {
	req := h.svc.NewRequest(dir)
	if v := r.FormValue("mode"); v != "" {
		req.Mode = v
	}
	ints := map[string]*int{
		"workers":    &req.Workers,
		"chunk_size": &req.Options.ChunkSize,
		"overlap":    &req.Options.Overlap,
		"min_chars":  &req.Options.MinChars,
	}
	for key, dst := range ints {
		if v := r.FormValue(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return req, fmt.Errorf("invalid %s: %q", key, v)
			}
			*dst = n
		}
	}
	bools := map[string]*bool{
		"ocr":             &req.Options.OCR,
		"language_detect": &req.Options.LanguageDetect,
		"dedupe":          &req.Options.Dedupe,
	}
	for key, dst := range bools {
		if v := r.FormValue(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, fmt.Errorf("invalid %s: %q", key, v)
			}
			*dst = b
		}
	}
	return req, nil
}

func (h *IngestHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Jobs())
}

func (h *IngestHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
