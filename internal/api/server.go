// Package api provides the HTTP REST API.
//
// Endpoints:
//
//	POST   /api/v1/chat/message             - synchronous chat turn
//	POST   /api/v1/chat/stream              - streaming chat turn (SSE)
//	GET    /api/v1/chat/conversations       - list conversations
//	POST   /api/v1/chat/conversations       - create an empty conversation
//	GET    /api/v1/chat/conversations/{id}  - conversation messages
//	DELETE /api/v1/chat/conversations/{id}  - delete a conversation
//	POST   /api/v1/documents/upload         - upload and process a document
//	GET    /api/v1/documents                - list documents
//	GET    /api/v1/documents/{id}           - document record
//	DELETE /api/v1/documents/{id}           - delete a document
//	GET    /health                          - liveness probe
//	GET    /ready                           - readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging, recovery, rate limiting
//   - health.go: health check endpoints
//   - chat.go: chat and conversation endpoints
//   - documents.go: document endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docsage/docsage/internal/chat"
	"github.com/docsage/docsage/internal/document"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to block Slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Pinger is the readiness slice of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the server's tunables.
type Config struct {
	Addr           string
	RateLimitRPS   int
	RateLimitBurst int
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	cfg    Config
	logger *slog.Logger

	health    *HealthHandler
	chat      *ChatHandler
	documents *DocumentHandler
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, chatSvc *chat.Service, docSvc *document.Service, db Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:       mux,
		cfg:       cfg,
		logger:    logger,
		health:    NewHealthHandler(db, logger),
		chat:      NewChatHandler(chatSvc, logger),
		documents: NewDocumentHandler(docSvc, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, rate limiting, logging, then the handler.
func (s *Server) Handler() http.Handler {
	limit := rateLimitMiddleware(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)
	return chain(s.mux, recoveryMiddleware, limit, loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
//
// Streaming responses preclude a server-level WriteTimeout; handlers rely
// on request contexts instead.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
