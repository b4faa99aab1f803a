// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package httpapi exposes the authentication flows over a JSON HTTP
// API.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/internal/monitor"
	"github.com/codewatch/codewatch/internal/observability"
)

// Server serves the /api/v1 authentication endpoints.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	service    *auth.Service
	events     monitor.EventSource
	metrics    *observability.Metrics
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a new API server. metrics may be nil, in which
// case no counters are recorded.
func NewServer(addr string, service *auth.Service, events monitor.EventSource, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		service: service,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the API route handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.requirePrincipal(s.handleLogout))
	mux.HandleFunc("GET /api/v1/auth/me", s.requirePrincipal(s.handleMe))
	mux.HandleFunc("GET /api/v1/sessions/{session_id}/events",
		s.requirePrincipal(s.requireRole(auth.RoleProctor, s.handleSessionEvents)))
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	return mux
}

// Start begins serving API requests. It returns an error channel that
// receives any error from the HTTP server after it starts; the channel
// is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown api server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
