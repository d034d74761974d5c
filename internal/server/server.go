// Package server exposes the preview pipeline over HTTP.
//
// GET / serves the playground page, GET /healthz reports status and
// /ws upgrades to a websocket session. Each session owns one
// preview.Pipeline and, when enabled, one sandbox; both are released when
// the socket closes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/tsxlive/internal/cache"
	"github.com/conneroisu/tsxlive/internal/config"
	"github.com/conneroisu/tsxlive/internal/errors"
	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/middleware"
	"github.com/conneroisu/tsxlive/internal/transform"
	"github.com/conneroisu/tsxlive/internal/types"
	"github.com/conneroisu/tsxlive/internal/version"
	"github.com/conneroisu/tsxlive/internal/worker"
)

// maxCompileBody bounds /api/compile request bodies.
const maxCompileBody = 1 << 20

// PreviewServer serves the playground and its websocket sessions.
type PreviewServer struct {
	config  *config.Config
	engine  *transform.Engine
	cache   *cache.Cache
	metrics *worker.Metrics
	logger  logging.Logger
	started time.Time

	httpServer  *http.Server
	serverMutex sync.RWMutex

	sessions      map[string]*Session
	sessionsMutex sync.RWMutex

	shutdownOnce sync.Once
}

// New creates a preview server. The engine is shared by every session.
func New(cfg *config.Config, engine *transform.Engine, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.NewNop()
	}

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c = cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}

	return &PreviewServer{
		config:   cfg,
		engine:   engine,
		cache:    c,
		metrics:  worker.NewMetrics(),
		logger:   logger.WithComponent("server"),
		started:  time.Now(),
		sessions: make(map[string]*Session),
	}
}

// Handler returns the HTTP routes.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", templ.Handler(s.page()))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/compile", s.handleCompile)
	mux.HandleFunc("/ws", s.handleWebSocket)

	chain := middleware.NewChain(
		middleware.Recovery(s.logger),
		middleware.Logging(s.logger),
		middleware.SecurityHeaders(),
		middleware.CORS(s.allowedCrossOrigin),
	)
	return chain.Apply(mux)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Preview server listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the HTTP server and closes every session. Safe to call
// more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			err = server.Shutdown(ctx)
		}

		s.sessionsMutex.Lock()
		sessions := make([]*Session, 0, len(s.sessions))
		for _, session := range s.sessions {
			sessions = append(sessions, session)
		}
		s.sessionsMutex.Unlock()

		for _, session := range sessions {
			session.Close()
		}
		s.logger.Info(ctx, "Preview server stopped", "sessions_closed", len(sessions))
	})
	return err
}

// SessionCount reports the number of open websocket sessions.
func (s *PreviewServer) SessionCount() int {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()
	return len(s.sessions)
}

func (s *PreviewServer) addSession(session *Session) {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()
	s.sessions[session.ID()] = session
}

func (s *PreviewServer) removeSession(id string) {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()
	delete(s.sessions, id)
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Sessions int             `json:"sessions"`
	Compiles *worker.Metrics `json:"compiles"`
	Cache    *cache.Stats    `json:"cache,omitempty"`
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	compiles := s.metrics.Snapshot()
	health := &HealthResponse{
		Status:   "healthy",
		Version:  version.Get().Short(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: s.SessionCount(),
		Compiles: &compiles,
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		health.Cache = &stats
	}

	writeJSON(w, http.StatusOK, health)
}

// CompileRequest is the /api/compile body.
type CompileRequest struct {
	Source   string `json:"source"`
	Language string `json:"language"`
}

// CompileResponse carries either Code or Diagnostic.
type CompileResponse struct {
	Code       string            `json:"code,omitempty"`
	Diagnostic *types.Diagnostic `json:"diagnostic,omitempty"`
}

// handleCompile is a one-shot compile for tooling that does not need a
// live session.
func (s *PreviewServer) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompileBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	lang, err := types.ParseLanguage(req.Language)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	code, err := s.engine.Compile(req.Source, lang)
	if err != nil {
		errors.Report(r.Context(), s.logger, err)
		diag := errors.DiagnosticFrom(err)
		writeJSON(w, http.StatusUnprocessableEntity, CompileResponse{Diagnostic: &diag})
		return
	}
	writeJSON(w, http.StatusOK, CompileResponse{Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
