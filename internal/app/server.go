package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/docingest/internal/api/handlers"
	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, svc *services.IngestService, log logger.Logger) *Server {
	statsHandler := handlers.NewStatsHandler(svc.Stats())
	ingestHandler := handlers.NewIngestHandler(svc, cfg.UploadDir, log.With("component", "api"))
	searchHandler := handlers.NewSearchHandler(svc, log.With("component", "search"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Handle("/metrics", metrics.Handler(svc.Stats()))

	r.Route("/api", func(api chi.Router) {
		api.Get("/ping", statsHandler.Ping)
		api.Get("/extensions", statsHandler.Extensions)
		api.Get("/stats", statsHandler.GetStats)
		api.Post("/stats/reset", statsHandler.ResetStats)

		api.Post("/ingest", ingestHandler.Ingest)
		api.Post("/ingest/stream", ingestHandler.IngestStream)
		api.Post("/ingest/upload", ingestHandler.Upload)

		api.Get("/jobs", ingestHandler.ListJobs)
		api.Get("/jobs/{id}", ingestHandler.GetJob)

		api.Post("/rag/search", searchHandler.Search)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
