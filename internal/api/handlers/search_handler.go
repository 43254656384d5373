package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
	"github.com/markdave123-py/docingest/internal/services"
)

type SearchHandler struct {
	svc *services.IngestService
	log logger.Logger
}

func NewSearchHandler(svc *services.IngestService, log logger.Logger) *SearchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SearchHandler{svc: svc, log: log}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topk"`
}

type searchResponse struct {
	OK    bool               `json:"ok"`
	Count int                `json:"count"`
	Hits  []models.SearchHit `json:"hits"`
}

// Search returns the stored chunks most similar to the query text.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	hits, err := h.svc.Search(r.Context(), req.Query, req.TopK)
	switch {
	case errors.Is(err, services.ErrEmptyQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, services.ErrSearchUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.log.Error("search failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{OK: true, Count: len(hits), Hits: hits})
}
