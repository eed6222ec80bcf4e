// Package api provides the gateway HTTP API used by the storefront backend.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/session"
)

// SessionService is the slice of the supervisor the API needs.
type SessionService interface {
	RequestPairing(ctx context.Context, tenantID string) (string, error)
	Status(tenantID string) session.StatusRecord
	Disconnect(ctx context.Context, tenantID string) error
	Send(ctx context.Context, tenantID, to, text string) (string, error)
}

// Server is the gateway HTTP server.
type Server struct {
	server      *http.Server
	sessions    SessionService
	secret      []byte
	rateLimiter *RateLimiter
	wg          sync.WaitGroup
}

// ServerConfig holds gateway server configuration.
type ServerConfig struct {
	Listen string // address to listen on, e.g. "127.0.0.1:8471"
	Secret string // shared secret for request authentication
}

// NewServer creates a gateway server around the given session service.
func NewServer(cfg *ServerConfig, sessions SessionService) *Server {
	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:8471"
	}

	s := &Server{
		sessions:    sessions,
		secret:      []byte(cfg.Secret),
		rateLimiter: NewRateLimiter(10 * time.Second),
	}

	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped route handler (exposed for tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Middleware chain: logging -> strip headers -> auth (which also rate
	// limits failed attempts). Auth runs before any session lookup.
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(s.secretAuth(h)))
	}

	mux.HandleFunc("POST /api/pair", wrap(s.handlePair))
	mux.HandleFunc("GET /api/status", wrap(s.handleStatus))
	mux.HandleFunc("POST /api/disconnect", wrap(s.handleDisconnect))
	mux.HandleFunc("POST /api/send", wrap(s.handleSend))

	return mux
}

// Start starts the server in the background.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("api: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("api: server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("api: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("api: server stopped")
	return nil
}

// logRequest wraps a handler to log requests.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// stripHeaders removes fingerprinting headers.
func (s *Server) stripHeaders(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")

		handler(w, r)
	}
}
