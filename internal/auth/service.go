// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default orchestration policies, matching the platform's production
// settings.
const (
	DefaultTokenTTL     = 30 * time.Minute
	DefaultStoreTimeout = 5 * time.Second
)

// DefaultRateLimits returns the default per-flow attempt policies.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		RegisterPerIP: RateLimitPolicy{Max: 3, Window: time.Hour},
		LoginPerIP:    RateLimitPolicy{Max: 5, Window: 15 * time.Minute},
		LoginPerUser:  RateLimitPolicy{Max: 3, Window: 15 * time.Minute},
	}
}

// RateLimitPolicy caps attempts at Max per trailing Window.
type RateLimitPolicy struct {
	Max    int
	Window time.Duration
}

// RateLimits holds the per-flow policies. Registration is throttled per
// caller IP; login is throttled per caller IP first and, once the IP
// passes, per target username.
type RateLimits struct {
	RegisterPerIP RateLimitPolicy
	LoginPerIP    RateLimitPolicy
	LoginPerUser  RateLimitPolicy
}

// ServiceConfig tunes the orchestrator. Zero values select defaults.
type ServiceConfig struct {
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	// StoreTimeout bounds each credential-store round trip.
	StoreTimeout time.Duration

	// HashWorkers bounds concurrent password hashing.
	HashWorkers int

	// Limits are the per-flow rate-limit policies.
	Limits RateLimits

	// PasswordRules are optional checks beyond the length bounds.
	PasswordRules []PasswordRule
}

// TokenResult is the outcome of a flow that minted a token.
type TokenResult struct {
	Token     string
	ExpiresIn time.Duration
	Principal Principal

	// Credential is set for register and login, where the flow touched
	// the store; refresh issues from claims alone and leaves it nil.
	Credential *Credential
}

// dummyPasswordHash is verified against when a credential doesn't
// exist, so a lookup miss costs the same as a wrong password and
// usernames cannot be enumerated by timing. It can never match any
// password.
//
//nolint:gosec // G101: intentionally fake hash for timing consistency, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service composes the hasher, rate limiter, and token codec with the
// external credential store into the four user-facing flows: register,
// login, refresh, and token authentication. Flows share no state with
// each other except through the limiter and the store.
type Service struct {
	creds   CredentialRepository
	hasher  PasswordHasher
	limiter Limiter
	codec   *TokenCodec
	gate    *hashGate
	logger  *slog.Logger

	tokenTTL      time.Duration
	storeTimeout  time.Duration
	limits        RateLimits
	passwordRules []PasswordRule
}

// NewService creates a Service logging through slog.Default().
func NewService(creds CredentialRepository, hasher PasswordHasher, limiter Limiter, codec *TokenCodec, cfg ServiceConfig) (*Service, error) {
	return NewServiceWithLogger(creds, hasher, limiter, codec, cfg, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
// Returns an error if any required dependency is nil.
func NewServiceWithLogger(creds CredentialRepository, hasher PasswordHasher, limiter Limiter, codec *TokenCodec, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if creds == nil {
		return nil, oops.Errorf("credential repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("rate limiter is required")
	}
	if codec == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}

	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	limits := cfg.Limits
	if limits == (RateLimits{}) {
		limits = DefaultRateLimits()
	}

	return &Service{
		creds:         creds,
		hasher:        hasher,
		limiter:       limiter,
		codec:         codec,
		gate:          newHashGate(cfg.HashWorkers),
		logger:        logger,
		tokenTTL:      tokenTTL,
		storeTimeout:  storeTimeout,
		limits:        limits,
		passwordRules: cfg.PasswordRules,
	}, nil
}

// TokenTTL returns the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Register creates a new credential and returns its first token.
// Registration either fully creates the credential and returns a token,
// or leaves no trace.
func (s *Service) Register(ctx context.Context, username, password string, role Role, callerIP string) (*TokenResult, error) {
	if !s.limiter.CheckAndRecord("register:"+callerIP, s.limits.RegisterPerIP.Max, s.limits.RegisterPerIP.Window) {
		return nil, oops.Code("AUTH_RATE_LIMITED").
			With("flow", "register").
			Errorf("too many registration attempts, try again later")
	}

	if err := ValidatePassword(password, s.passwordRules...); err != nil {
		return nil, err
	}

	username = NormalizeUsername(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	// Reject early when the pair is already taken. The store's
	// uniqueness constraint still backstops a racing registration.
	_, err := s.getByUsernameRole(ctx, username, role)
	switch {
	case err == nil:
		return nil, s.conflictError(username, role)
	case errors.Is(err, ErrNotFound):
		// Free to register.
	default:
		return nil, err
	}

	var hash string
	hashErr := s.gate.run(ctx, func() error {
		var err error
		hash, err = s.hasher.Hash(password)
		return err
	})
	if hashErr != nil {
		return nil, oops.Code("AUTH_INTERNAL").
			With("operation", "hash password").
			Wrap(hashErr)
	}

	cred, err := NewCredential(username, role, hash)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.creds.Create(storeCtx, cred); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race to a concurrent registration.
			return nil, s.conflictError(username, role)
		}
		return nil, oops.Code("AUTH_INTERNAL").
			With("operation", "create credential").
			Wrap(err)
	}

	s.logger.Info("credential registered",
		"username", cred.Username,
		"role", string(cred.Role),
	)

	return s.issueFor(cred)
}

// Login authenticates a credential and returns a fresh token. A missing
// credential and a wrong password are deliberately indistinguishable.
func (s *Service) Login(ctx context.Context, username, password string, role Role, callerIP string) (*TokenResult, error) {
	username = NormalizeUsername(username)

	// The IP window is probed first and short-circuits: an IP-blocked
	// caller never consumes the per-username window, so a blocked
	// attacker cannot keep a victim's window full.
	if !s.limiter.CheckAndRecord("login:"+callerIP, s.limits.LoginPerIP.Max, s.limits.LoginPerIP.Window) {
		return nil, oops.Code("AUTH_RATE_LIMITED").
			With("flow", "login").
			Errorf("too many login attempts, try again later")
	}
	if !s.limiter.CheckAndRecord("login:user:"+username, s.limits.LoginPerUser.Max, s.limits.LoginPerUser.Window) {
		return nil, oops.Code("AUTH_RATE_LIMITED").
			With("flow", "login").
			Errorf("too many login attempts, try again later")
	}

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	cred, lookupErr := s.getByUsernameRole(ctx, username, role)

	// Verify against the dummy hash on a lookup miss so response time
	// stays consistent whether or not the credential exists.
	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = cred.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
	default:
		return nil, lookupErr
	}

	var valid bool
	verifyErr := s.gate.run(ctx, func() error {
		var err error
		valid, err = s.hasher.Verify(password, targetHash)
		return err
	})
	if verifyErr != nil {
		return nil, oops.Code("AUTH_INTERNAL").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !exists || !valid {
		s.logger.Warn("login failed",
			"username", username,
			"role", string(role),
			"caller_ip", callerIP,
		)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Errorf("invalid username, password, or role")
	}

	s.logger.Info("login succeeded",
		"username", cred.Username,
		"role", string(cred.Role),
	)

	return s.issueFor(cred)
}

// Refresh issues a new token with a fresh expiry for an
// already-authenticated principal. The password is not re-verified and
// the store is not consulted.
func (s *Service) Refresh(_ context.Context, p Principal) (*TokenResult, error) {
	token, err := s.codec.Issue(Claims{
		Subject:      p.Username,
		CredentialID: p.ID.String(),
		Role:         p.Role,
	}, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		Token:     token,
		ExpiresIn: s.tokenTTL,
		Principal: p,
	}, nil
}

// PrincipalFromToken verifies a bearer token and derives a Principal
// from its claims alone, without consulting the store. This is the
// request-path check: a credential deleted after issuance still passes
// until the token expires.
func (s *Service) PrincipalFromToken(tokenString string) (Principal, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return Principal{}, err
	}
	return principalFromClaims(claims)
}

// AuthenticateToken verifies a bearer token and loads the credential it
// names, rejecting tokens whose account no longer exists. Both the
// stream handshake and any caller needing a store-backed principal use
// this one function; transports differ only in how they report the
// rejection.
func (s *Service) AuthenticateToken(ctx context.Context, tokenString string) (Principal, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return Principal{}, err
	}

	id, err := ulid.Parse(claims.CredentialID)
	if err != nil {
		return Principal{}, oops.Code("AUTH_TOKEN_MALFORMED").
			With("credential_id", claims.CredentialID).
			Wrap(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	cred, err := s.creds.GetByID(storeCtx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, oops.Code("AUTH_UNAUTHORIZED").
				Errorf("credential no longer exists")
		}
		return Principal{}, oops.Code("AUTH_INTERNAL").
			With("operation", "get credential by id").
			Wrap(err)
	}

	return Principal{ID: cred.ID, Username: cred.Username, Role: cred.Role}, nil
}

// getByUsernameRole wraps the store lookup with the configured timeout.
// ErrNotFound passes through; anything else becomes AUTH_INTERNAL.
func (s *Service) getByUsernameRole(ctx context.Context, username string, role Role) (*Credential, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	cred, err := s.creds.GetByUsernameRole(storeCtx, username, role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("AUTH_INTERNAL").
			With("operation", "get credential by username and role").
			Wrap(err)
	}
	return cred, nil
}

func (s *Service) conflictError(username string, role Role) error {
	return oops.Code("AUTH_CONFLICT").
		With("username", username).
		With("role", string(role)).
		Errorf("credential with username %q and role %q already exists", username, role)
}

// issueFor mints a token for a stored credential.
func (s *Service) issueFor(cred *Credential) (*TokenResult, error) {
	token, err := s.codec.Issue(Claims{
		Subject:      cred.Username,
		CredentialID: cred.ID.String(),
		Role:         cred.Role,
	}, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenResult{
		Token:      token,
		ExpiresIn:  s.tokenTTL,
		Principal:  Principal{ID: cred.ID, Username: cred.Username, Role: cred.Role},
		Credential: cred,
	}, nil
}

func principalFromClaims(claims Claims) (Principal, error) {
	id, err := ulid.Parse(claims.CredentialID)
	if err != nil {
		return Principal{}, oops.Code("AUTH_TOKEN_MALFORMED").
			With("credential_id", claims.CredentialID).
			Wrap(err)
	}
	return Principal{ID: id, Username: claims.Subject, Role: claims.Role}, nil
}
