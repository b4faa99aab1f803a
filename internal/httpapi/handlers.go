// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/pkg/errutil"
)

// envelope is the uniform JSON response shape for all API endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// registerRequest is the JSON request body for POST /api/v1/auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// loginRequest is the JSON request body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// userView is the principal representation embedded in token and /me
// responses.
type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// tokenResponse is the JSON data payload for endpoints that issue a
// token.
type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	User        userView `json:"user"`
}

// statusForCode maps auth error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case "AUTH_VALIDATION_FAILED", "AUTH_INVALID_ROLE":
		return http.StatusBadRequest
	case "AUTH_INVALID_CREDENTIALS", "AUTH_UNAUTHORIZED",
		"AUTH_TOKEN_SIGNATURE", "AUTH_TOKEN_EXPIRED",
		"AUTH_TOKEN_MALFORMED", "AUTH_TOKEN_ROLE", "AUTH_TOKEN_INVALID":
		return http.StatusUnauthorized
	case "AUTH_FORBIDDEN":
		return http.StatusForbidden
	case "AUTH_CONFLICT":
		return http.StatusConflict
	case "AUTH_RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// clientIP extracts the caller address used for per-IP rate limiting.
// The first entry of X-Forwarded-For wins when present so limits apply
// to the original client behind a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("api response encoding failed", "error", err)
	}
}

// writeError renders err through the envelope, translating oops codes
// to HTTP statuses. Internal errors are logged but never echoed to the
// client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := "AUTH_INTERNAL"
	message := "internal error"
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != "" {
		code = oopsErr.Code()
	}

	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		errutil.LogError(s.logger, "api request failed", err)
	} else {
		message = err.Error()
	}

	s.writeJSON(w, status, envelope{Success: false, Message: message, Code: code})
}

func (s *Server) recordAttempt(flow string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "rejected"
		if oopsErr, ok := oops.AsOops(err); ok {
			switch oopsErr.Code() {
			case "AUTH_RATE_LIMITED":
				outcome = "rate_limited"
			case "AUTH_INTERNAL":
				outcome = "error"
			}
		}
	}
	s.metrics.AuthAttemptsTotal.WithLabelValues(flow, outcome).Inc()
}

func tokenData(result *auth.TokenResult) tokenResponse {
	return tokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(result.ExpiresIn.Seconds()),
		User: userView{
			ID:       result.Principal.ID.String(),
			Username: result.Principal.Username,
			Role:     string(result.Principal.Role),
		},
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "invalid request body",
			Code:    "AUTH_VALIDATION_FAILED",
		})
		return
	}

	result, err := s.service.Register(r.Context(), req.Username, req.Password, auth.Role(req.Role), clientIP(r))
	s.recordAttempt("register", err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "registered",
		Data:    tokenData(result),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "invalid request body",
			Code:    "AUTH_VALIDATION_FAILED",
		})
		return
	}

	result, err := s.service.Login(r.Context(), req.Username, req.Password, auth.Role(req.Role), clientIP(r))
	s.recordAttempt("login", err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "authenticated",
		Data:    tokenData(result),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		s.writeJSON(w, http.StatusUnauthorized, envelope{
			Success: false,
			Message: errMsg,
			Code:    "AUTH_UNAUTHORIZED",
		})
		return
	}

	principal, err := s.service.PrincipalFromToken(token)
	if err != nil {
		s.recordAttempt("refresh", err)
		s.writeError(w, err)
		return
	}

	result, err := s.service.Refresh(r.Context(), principal)
	s.recordAttempt("refresh", err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "token refreshed",
		Data:    tokenData(result),
	})
}

// handleLogout acknowledges the logout. Tokens are self-contained and
// expire on their own, so there is no server-side state to discard.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	s.logger.Info("logout", "username", principal.Username, "role", principal.Role)
	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "logged out",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, envelope{
			Success: false,
			Message: "not authenticated",
			Code:    "AUTH_UNAUTHORIZED",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: userView{
			ID:       principal.ID.String(),
			Username: principal.Username,
			Role:     string(principal.Role),
		},
	})
}

// eventView is the JSON representation of one recorded session event.
type eventView struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	CredentialID string          `json:"credential_id"`
	Username     string          `json:"username"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// handleSessionEvents lists recent events for one session. Proctors
// only.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "session id is required",
			Code:    "AUTH_VALIDATION_FAILED",
		})
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxEventLimit {
			s.writeJSON(w, http.StatusBadRequest, envelope{
				Success: false,
				Message: "limit must be an integer between 1 and 1000",
				Code:    "AUTH_VALIDATION_FAILED",
			})
			return
		}
		limit = parsed
	}

	events, err := s.events.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, eventView{
			ID:           event.ID.String(),
			SessionID:    event.SessionID,
			CredentialID: event.CredentialID.String(),
			Username:     event.Username,
			Type:         string(event.Type),
			Payload:      json.RawMessage(event.Payload),
			ReceivedAt:   event.ReceivedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
