package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/docingest/internal/core/metrics"
)

type StatsHandler struct {
	stats *metrics.Registry
}

func NewStatsHandler(stats *metrics.Registry) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *StatsHandler) Extensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ingestion_engine.SupportedExtensions())
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// ResetStats zeroes the registry and returns the zeroed snapshot.
func (h *StatsHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.stats.Reset()
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
