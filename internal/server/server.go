// Package server exposes the aggregate statistics of a chat
// database as a read-only JSON API, plus the first-run setup
// flow used before a database is configured.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatstats/chatstats/internal/config"
	"github.com/chatstats/chatstats/internal/db"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server for the stats API. In setup mode
// (no store) it serves only the setup endpoints and answers
// every /api/ request with 503.
type Server struct {
	mu      sync.RWMutex
	cfg     config.Config
	store   *db.Store
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo

	// restartFn is invoked after POST /setup/restart has
	// written its response. Production exits the process so a
	// supervisor restarts it against the new configuration.
	restartFn func()

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a Server. A nil store puts the server in setup
// mode.
func New(cfg config.Config, store *db.Store, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.setupRoutes()
	} else {
		s.routes()
	}
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithRestartFunc sets the callback run after a setup-mode
// restart request. Nil is ignored.
func WithRestartFunc(f func()) Option {
	return func(s *Server) {
		if f != nil {
			s.restartFn = f
		}
	}
}

// withHandlerDelay injects latency ahead of every
// timeout-wrapped handler. Test-only.
func withHandlerDelay(d time.Duration) Option {
	return func(s *Server) { s.handlerDelay = d }
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/stats/overview", s.withTimeout(s.handleOverview))
	s.mux.Handle("GET /api/stats/models", s.withTimeout(s.handleModelUsage))
	s.mux.Handle("GET /api/stats/activity", s.withTimeout(s.handleActivity))
	s.mux.Handle("GET /api/stats/users", s.withTimeout(s.handleUserLeaderboard))
	s.mux.Handle("GET /api/stats/tools", s.withTimeout(s.handleToolUsage))
	s.mux.Handle("GET /api/version", s.withTimeout(s.handleGetVersion))
}

func (s *Server) setupRoutes() {
	s.mux.Handle("GET /setup", s.withTimeout(s.handleSetupStatus))
	s.mux.Handle("POST /setup/test-sqlite", s.withTimeout(s.handleSetupTestSQLite))
	s.mux.Handle("POST /setup/configure", s.withTimeout(s.handleSetupConfigure))
	s.mux.HandleFunc("POST /setup/restart", s.handleSetupRestart)

	// Everything else answers "setup required" until a
	// database is configured.
	s.mux.HandleFunc("/", s.handleSetupFallback)
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	if s.store == nil {
		log.Printf("Starting in setup mode at http://%s/setup", addr)
	} else {
		log.Printf("Starting stats API at http://%s (%s backend)",
			addr, s.store.Dialect())
	}
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		w.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type",
		)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") ||
			strings.HasPrefix(r.URL.Path, "/setup") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
