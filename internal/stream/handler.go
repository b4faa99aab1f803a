// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/internal/monitor"
	"github.com/codewatch/codewatch/internal/observability"
	"github.com/codewatch/codewatch/pkg/errutil"
)

const (
	// handshakeTimeout bounds how long a connection may idle before
	// presenting its token.
	handshakeTimeout = 10 * time.Second

	// appendTimeout bounds each event store write.
	appendTimeout = 5 * time.Second
)

// eventSubmission is the wire format for one event line sent after the
// handshake.
type eventSubmission struct {
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConnectionHandler handles a single stream connection.
type ConnectionHandler struct {
	conn      net.Conn
	reader    *bufio.Reader
	service   *auth.Service
	sink      monitor.EventSink
	metrics   *observability.Metrics
	logger    *slog.Logger
	connID    ulid.ULID
	principal auth.Principal
	authed    bool
}

// NewConnectionHandler creates a new handler.
func NewConnectionHandler(conn net.Conn, service *auth.Service, sink monitor.EventSink, metrics *observability.Metrics, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		service: service,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		connID:  ulid.Make(),
	}
}

// Handle processes the connection until closed. An authentication
// failure closes the connection without writing anything back; the
// rejection is only logged locally.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	defer func() {
		if err := h.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			h.logger.Debug("error closing connection", "error", err)
		}
		if h.authed && h.metrics != nil {
			h.metrics.StreamConnections.Dec()
		}
	}()

	if !h.handshake(ctx) {
		return
	}

	h.authed = true
	if h.metrics != nil {
		h.metrics.StreamConnections.Inc()
	}
	h.send("OK")

	lineCh := make(chan string)
	errCh := make(chan error)

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("connection read error",
					"conn_id", h.connID.String(),
					"error", err,
				)
			}
			return

		case line := <-lineCh:
			if line == "" {
				continue
			}
			h.processEvent(ctx, line)
		}
	}
}

// handshake reads the first line, which must be "AUTH <token>", and
// authenticates it against the credential store. Only participants may
// stream events.
func (h *ConnectionHandler) handshake(ctx context.Context) bool {
	if err := h.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		h.logger.Debug("failed to set handshake deadline", "error", err)
		return false
	}

	line, err := h.reader.ReadString('\n')
	if err != nil {
		h.rejectHandshake("handshake read failed", err)
		return false
	}
	if err := h.conn.SetReadDeadline(time.Time{}); err != nil {
		h.logger.Debug("failed to clear read deadline", "error", err)
		return false
	}

	token, ok := strings.CutPrefix(strings.TrimSpace(line), "AUTH ")
	if !ok || token == "" {
		h.rejectHandshake("malformed handshake line", nil)
		return false
	}

	principal, err := h.service.AuthenticateToken(ctx, token)
	if err != nil {
		h.rejectHandshake("token rejected", err)
		return false
	}

	if _, err := auth.RequireRole(principal, auth.RoleParticipant); err != nil {
		h.rejectHandshake("role rejected", err)
		return false
	}

	h.principal = principal
	if h.metrics != nil {
		h.metrics.AuthAttemptsTotal.WithLabelValues("stream_handshake", "success").Inc()
	}
	h.logger.Info("stream connection authenticated",
		"conn_id", h.connID.String(),
		"username", principal.Username,
	)
	return true
}

func (h *ConnectionHandler) rejectHandshake(reason string, err error) {
	if h.metrics != nil {
		h.metrics.AuthAttemptsTotal.WithLabelValues("stream_handshake", "rejected").Inc()
	}
	attrs := []any{
		"conn_id", h.connID.String(),
		"remote_addr", h.conn.RemoteAddr().String(),
		"reason", reason,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	h.logger.Info("stream handshake rejected", attrs...)
}

func (h *ConnectionHandler) processEvent(ctx context.Context, line string) {
	var sub eventSubmission
	if err := json.Unmarshal([]byte(line), &sub); err != nil {
		h.logger.Debug("malformed event line",
			"conn_id", h.connID.String(),
			"error", err,
		)
		h.send("ERR malformed event")
		return
	}

	event, err := monitor.NewEvent(sub.SessionID, h.principal.ID, h.principal.Username, monitor.EventType(sub.Type), sub.Payload)
	if err != nil {
		h.logger.Debug("invalid event",
			"conn_id", h.connID.String(),
			"error", err,
		)
		h.send("ERR invalid event")
		return
	}

	appendCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	if err := h.sink.Append(appendCtx, event); err != nil {
		errutil.LogError(h.logger, "event append failed", err)
		h.send("ERR event not recorded")
		return
	}

	if h.metrics != nil {
		h.metrics.SessionEventsTotal.WithLabelValues(string(event.Type)).Inc()
	}
}

func (h *ConnectionHandler) send(msg string) {
	if _, err := fmt.Fprintln(h.conn, msg); err != nil {
		h.logger.Debug("failed to send message to client",
			"conn_id", h.connID.String(),
			"error", err,
		)
	}
}
