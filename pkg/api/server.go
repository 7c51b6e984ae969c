// Package api pkg/api/server.go exposes the status HTTP surface: a health
// probe and the pipeline counters.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/ingest"
)

const (
	healthTimeout   = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves /api/health and /api/stats.
type Server struct {
	store db.Store
	stats *ingest.Stats
	log   *logrus.Entry
	srv   *http.Server
}

// New builds the server; Run starts it.
func New(cfg config.APIConfig, store db.Store, stats *ingest.Stats, log *logrus.Entry) *Server {
	s := &Server{
		store: store,
		stats: stats,
		log:   log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	s.log.WithField("addr", s.srv.Addr).Info("Status API listening")

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Status API failed")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("Status API shutdown failed")
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body = map[string]string{"status": "degraded", "store": err.Error()}
	}

	s.writeJSON(w, status, body)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}
