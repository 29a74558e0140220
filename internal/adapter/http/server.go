package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 1000
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Archive reads archived run summaries.
type Archive interface {
	Stations(ctx context.Context) ([]string, error)
	Latest(ctx context.Context, station string) (domain.ReportSummary, error)
	History(ctx context.Context, station string, limit int) ([]domain.ReportSummary, error)
}

// Server exposes health, readiness, metrics, and archived station summaries.
type Server struct {
	httpServer *http.Server
	archive    Archive
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics
// routes. When archive is non-nil the /stations routes are added.
func NewServer(addr string, ready ReadinessChecker, archive Archive, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		archive: archive,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if archive != nil {
		mux.HandleFunc("GET /stations", s.handleStations)
		mux.HandleFunc("GET /stations/{code}/latest", s.handleLatest)
		mux.HandleFunc("GET /stations/{code}/history", s.handleHistory)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	codes, err := s.archive.Stations(r.Context())
	if err != nil {
		s.internalError(w, "list stations", err)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stations": codes})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	sum, err := s.archive.Latest(r.Context(), code)
	switch {
	case errors.Is(err, domain.ErrNotArchived):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no summary for station " + code})
	case err != nil:
		s.internalError(w, "latest summary", err)
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	sums, err := s.archive.History(r.Context(), code, limit)
	if err != nil {
		s.internalError(w, "summary history", err)
		return
	}
	if sums == nil {
		sums = []domain.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"station": code, "summaries": sums})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("archive query failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
