package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/codec"
	"github.com/JakeFAU/realtime-chart-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// Banner is the body served on the root route.
const Banner = "API de Filmes"

// RecordReader is the read side of the queryable store.
type RecordReader interface {
	List(ctx context.Context) ([]scraper.StoredRecord, error)
	Count(ctx context.Context) (int64, error)
}

// Server wires HTTP handlers to the record store and the encoded cache.
type Server struct {
	router chi.Router
	store  RecordReader
	cache  scraper.EncodedCache
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store RecordReader, cache scraper.EncodedCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		store:  store,
		cache:  cache,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/", s.index)
	r.Get("/movies", s.listMovies)
	r.Get("/movies/base64", s.latestMovies)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(Banner)); err != nil {
		s.logger.Error("write banner failed", zap.Error(err))
	}
}

func (s *Server) listMovies(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list movies failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read movies")
		return
	}
	if rows == nil {
		rows = []scraper.StoredRecord{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// latestMovies serves the cached document decoded back to its original bytes.
func (s *Server) latestMovies(w http.ResponseWriter, r *http.Request) {
	encoded, err := s.cache.Load(r.Context())
	if errors.Is(err, scraper.ErrNotReady) {
		s.writeError(w, http.StatusServiceUnavailable, scraper.ErrNotReady.Error())
		return
	}
	if err != nil {
		s.logger.Error("load cached movies failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read cached movies")
		return
	}
	document, err := codec.Decode(encoded)
	if err != nil {
		s.logger.Error("decode cached movies failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "cached movies are corrupt")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(document); err != nil {
		s.logger.Error("write cached movies failed", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "rows": n})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
