// Package api exposes the matching engine over HTTP for the web layer:
// questionnaire reads and writes, match listings, accept/reject actions,
// and the manual pass trigger. Notification delivery and rendering live
// elsewhere; every handler speaks JSON.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
	"github.com/counterpoint/match-service/internal/metrics"
	"github.com/counterpoint/match-service/internal/ratelimit"
	"github.com/counterpoint/match-service/internal/store"
)

// Directory is the questionnaire and profile surface the handlers read
// and write. *store.Store satisfies it.
type Directory interface {
	ListDimensions(ctx context.Context, activeOnly bool) ([]*store.Dimension, error)
	ListResponses(ctx context.Context, participantID string) ([]*store.Response, error)
	SaveResponses(ctx context.Context, participantID string, inputs []store.ResponseInput) (*store.QuestionnaireResult, error)
	GetProfile(ctx context.Context, id string) (*matching.Profile, error)
	ListMatchesForParticipant(ctx context.Context, participantID string, status matching.Status) ([]*matching.Match, error)
	ListRecentPasses(ctx context.Context, limit int) ([]*matching.PassStats, error)
	ListIncompleteEligible(ctx context.Context) ([]*store.IncompleteParticipant, error)
}

// Config holds tunable parameters for the HTTP API server.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server routes HTTP requests to the engine. The limiter and cache may be
// nil, disabling throttling and pair-cache invalidation respectively.
type Server struct {
	config     Config
	dir        Directory
	pairer     *matching.Pairer
	lifecycle  *matching.Lifecycle
	scheduler  *matching.Scheduler
	cache      matching.PairCache
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer wires the handlers over the engine components.
func NewServer(config Config, dir Directory, pairer *matching.Pairer, lifecycle *matching.Lifecycle, scheduler *matching.Scheduler, cache matching.PairCache, limiter *ratelimit.Limiter) *Server {
	return &Server{
		config:    config,
		dir:       dir,
		pairer:    pairer,
		lifecycle: lifecycle,
		scheduler: scheduler,
		cache:     cache,
		limiter:   limiter,
		startedAt: time.Now(),
	}
}

// Handler returns the route table. Exported so tests can drive it with
// httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/matching/dimensions", s.handleListDimensions)
	mux.HandleFunc("GET /api/participants/{id}/opinions", s.handleGetOpinions)
	mux.HandleFunc("POST /api/participants/{id}/opinions", s.handleSaveOpinions)
	mux.HandleFunc("GET /api/participants/{id}/matches", s.handleListMatches)
	mux.HandleFunc("GET /api/participants/{id}/best-match", s.handleBestMatch)
	mux.HandleFunc("POST /api/matches/{id}/accept", s.handleAccept)
	mux.HandleFunc("POST /api/matches/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /api/matching/compatibility", s.handleCompatibility)
	mux.HandleFunc("GET /api/matching/passes", s.handleListPasses)
	mux.HandleFunc("GET /api/matching/incomplete", s.handleListIncomplete)
	mux.HandleFunc("POST /api/matching/run", s.handleRunPass)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("[api] listening on %s", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: http server error: %w", err)
	}
	return nil
}

// Shutdown stops the listener, allowing in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}
