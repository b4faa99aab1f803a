// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package stream provides the TCP gateway participants' clients use to
// submit session events. Connections authenticate with a bearer token
// on the first line before any events are accepted.
package stream

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/internal/monitor"
	"github.com/codewatch/codewatch/internal/observability"
)

// Server is the session event stream gateway.
type Server struct {
	addr     string
	listener net.Listener
	service  *auth.Service
	sink     monitor.EventSink
	metrics  *observability.Metrics
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewServer creates a new stream gateway. metrics may be nil.
func NewServer(addr string, service *auth.Service, sink monitor.EventSink, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		service: service,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the gateway and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("stream gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}
		handler := NewConnectionHandler(conn, s.service, s.sink, s.metrics, s.logger)
		go handler.Handle(ctx)
	}
}
