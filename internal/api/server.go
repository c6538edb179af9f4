// Package api provides the REST and WebSocket surface of the meditation
// service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
	"github.com/FocuswithJustin/SacredPsalms/internal/server"
	"github.com/FocuswithJustin/SacredPsalms/internal/session"
)

// Server serves the API for one session manager.
type Server struct {
	cfg      Config
	sessions *session.Manager
	hub      *Hub
	limiter  *RateLimiter
	started  time.Time

	mu   sync.Mutex
	base context.Context
}

// New creates a server and subscribes its WebSocket hub to session changes.
func New(cfg Config, sessions *session.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		hub:      NewHub(),
		started:  time.Now(),
		base:     context.Background(),
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	sessions.SetOnChange(s.hub.Publish)
	return s
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /sessions", s.listSessions)
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/scripture", s.loadScripture)
	mux.HandleFunc("GET /sessions/{id}/tokens", s.getTokens)
	mux.HandleFunc("GET /sessions/{id}/highlights", s.getHighlights)
	mux.HandleFunc("POST /sessions/{id}/highlights", s.addHighlight)
	mux.HandleFunc("DELETE /sessions/{id}/highlights/{index}", s.removeHighlight)
	mux.HandleFunc("GET /sessions/{id}/phrases", s.getPhrases)
	mux.HandleFunc("POST /sessions/{id}/gestures", s.postGesture)
	mux.HandleFunc("POST /sessions/{id}/reset", s.resetSession)
	mux.HandleFunc("POST /sessions/{id}/step", s.advanceStep)
	mux.HandleFunc("POST /sessions/{id}/breath", s.breath)
	mux.HandleFunc("GET /sessions/{id}/preferences", s.getPreferences)
	mux.HandleFunc("PUT /sessions/{id}/preferences", s.putPreferences)
	mux.HandleFunc("PUT /sessions/{id}/journal", s.putJournal)
	mux.HandleFunc("GET /sessions/{id}/recap", s.getRecap)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleWebSocket)

	return mux
}

// Handler returns the routes wrapped in the middleware chain, outermost
// first: request logging, CORS, timing, rate limiting, authentication,
// security headers.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), s.routes())

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
	}
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = server.TimingMiddleware(handler)
	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)
	return logging.CombinedMiddleware(handler)
}

// Start validates the configuration and serves until ctx is cancelled, then
// shuts down gracefully within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.logConfiguration()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	go s.hub.Run(ctx)
	if s.limiter != nil {
		defer s.limiter.Close()
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			errCh <- srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "timeout", s.cfg.ShutdownTimeout.String())
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) logConfiguration() {
	protocol, wsProtocol := "http", "ws"
	if s.cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
		logging.Info("TLS enabled", "cert_file", s.cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}

	logging.SecurityEvent("authentication_configured", "api", "enabled", s.cfg.Auth.Enabled)
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.cfg.RateLimitBurst)
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}

	logging.ServerStartup("rest_api", protocol, s.cfg.Port, "websocket_protocol", wsProtocol)
}
