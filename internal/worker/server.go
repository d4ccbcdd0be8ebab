// Package worker provides the forgecalc HTTP API: valuation endpoints,
// game-event ingestion, session inspection, and a live SSE stream.
package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/internal/gamedata"
	"github.com/thebtf/forgecalc/internal/pool"
	"github.com/thebtf/forgecalc/internal/session"
	"github.com/thebtf/forgecalc/internal/worker/sse"
	"github.com/thebtf/forgecalc/pkg/models"
)

// Server wires the engine components behind HTTP handlers. Shared state
// (sessions, caches) is only ever mutated on the request path; the compute
// pool works on copies of its inputs.
type Server struct {
	router      *chi.Mux
	tracker     *session.Tracker
	data        *gamedata.Store
	prices      models.PriceSource
	pool        *pool.Pool
	broadcaster *sse.Broadcaster
	version     string
}

// NewServer creates the API server.
func NewServer(tracker *session.Tracker, data *gamedata.Store, prices models.PriceSource, p *pool.Pool, version string) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		tracker:     tracker,
		data:        data,
		prices:      prices,
		pool:        p,
		broadcaster: sse.NewBroadcaster(),
		version:     version,
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)

		r.Post("/valuate", s.handleValuate)
		r.Post("/valuate/batch", s.handleValuateBatch)

		r.Post("/events/attempt", s.handleAttemptEvent)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/current", s.handleCurrentSession)
		r.Post("/sessions/current/stop", s.handleStopSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/resume", s.handleResumeSession)
		r.Post("/sessions/{id}/extend", s.handleExtendSession)

		r.Get("/stream", s.handleStream)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleStream serves the SSE session-update stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := s.broadcaster.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.broadcaster.RemoveClient(client)

	client.Flusher.Flush()
	select {
	case <-r.Context().Done():
	case <-client.Done:
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
