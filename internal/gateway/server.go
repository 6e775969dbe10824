// Package gateway is the HTTP and WebSocket transport over the chat
// facade. It stays thin: request decoding, error mapping, and event
// bridging; all conversation logic lives behind chat.Service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strandlabs/loom/internal/chat"
	"github.com/strandlabs/loom/internal/config"
	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/internal/notify"
	"github.com/strandlabs/loom/internal/observability"
)

// Server serves the public API.
type Server struct {
	chat     *chat.Service
	notifier *notify.Notifier
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	config   config.ServerConfig

	httpServer *http.Server
	listener   net.Listener
}

// Config wires the server's collaborators.
type Config struct {
	Chat     *chat.Service
	Notifier *notify.Notifier
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Server   config.ServerConfig
}

// NewServer creates the gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "chat service is required")
	}
	if cfg.Notifier == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "notifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Server{
		chat:     cfg.Chat,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		config:   cfg.Server,
	}, nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /v1/sessions/{id}/abort", s.handleAbort)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/providers", s.handleListProviders)

	return s.withMiddleware(mux)
}

// Start begins serving. It returns once the listener is bound; serving
// continues in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeNetworkError, "http listen", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "http server error", "error", err)
		}
	}()

	s.logger.Info(ctx, "gateway listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
