// Package server provides the HTTP API for uploads, comparisons and history.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"oscheck/internal/catalog"
	"oscheck/internal/config"
	"oscheck/internal/pipeline"
	"oscheck/internal/storage"
)

type Server struct {
	db          *storage.DB
	cfg         config.Config
	comparisons *pipeline.ComparisonService
	imports     *catalog.ImportService
	logger      *zap.Logger
	server      *http.Server
}

func New(db *storage.DB, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		db:          db,
		cfg:         cfg,
		comparisons: pipeline.NewComparisonService(db, cfg, logger),
		imports:     catalog.NewImportService(db, cfg),
		logger:      logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sheets", func(r chi.Router) {
			r.Post("/", s.handleImportSheet)
			r.Post("/gsheet", s.handleImportGoogleSheet)
			r.Get("/", s.handleListSheets)
			r.Get("/{id}", s.handleGetSheet)
			r.Delete("/{id}", s.handleDeleteSheet)
		})
		r.Post("/extract", s.handleExtract)
		r.Route("/comparisons", func(r chi.Router) {
			r.Post("/", s.handleCompare)
			r.Get("/", s.handleListComparisons)
			r.Get("/{id}", s.handleGetComparison)
			r.Delete("/{id}", s.handleDeleteComparison)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start serves on cfg.HTTPAddr and blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.HTTPAddr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
