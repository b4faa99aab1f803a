// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the closed set of account kinds.
type Role string

// Known roles.
const (
	RoleProctor     Role = "proctor"
	RoleParticipant Role = "participant"
)

// ParseRole converts a string to a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleProctor:
		return RoleProctor, nil
	case RoleParticipant:
		return RoleParticipant, nil
	default:
		return "", oops.Code("AUTH_INVALID_ROLE").
			With("role", s).
			Errorf("unknown role %q", s)
	}
}

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// Password policy bounds.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 100
)

// usernameRegex matches usernames that start with a letter and contain
// only letters, numbers, and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Credential is a stored (username, role, password hash) record
// identifying one account. (Username, Role) is unique; the store
// enforces the constraint.
type Credential struct {
	ID           ulid.ULID
	Username     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCredential creates a validated Credential with a fresh ID.
// The username must already be normalized (see NormalizeUsername).
func NewCredential(username string, role Role, passwordHash string) (*Credential, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Credential{
		ID:           ulid.Make(),
		Username:     username,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeUsername trims surrounding whitespace and lowercases the
// submitted username so lookups and uniqueness are case-insensitive.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates a normalized username against rules:
// MinUsernameLength to MaxUsernameLength characters, starting with a
// letter, containing only letters, numbers, and underscores.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_VALIDATION_FAILED").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_VALIDATION_FAILED").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// PasswordRule is an optional additional check applied on top of the
// length bounds, e.g. character-class requirements. It returns a
// human-readable description of the violation, or "" when satisfied.
type PasswordRule func(password string) string

// ValidatePassword checks the password against the length policy and
// any extra rules.
func ValidatePassword(password string, rules ...PasswordRule) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	for _, rule := range rules {
		if msg := rule(password); msg != "" {
			return oops.Code("AUTH_VALIDATION_FAILED").Errorf("%s", msg)
		}
	}
	return nil
}

// CredentialRepository manages credential persistence. The store must
// enforce uniqueness on (username, role); Create returns ErrDuplicate
// (possibly wrapped) when the constraint is violated.
type CredentialRepository interface {
	// Create stores a new credential.
	Create(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Credential, error)

	// GetByUsernameRole retrieves a credential by its unique
	// (username, role) pair. Username matching is case-insensitive.
	GetByUsernameRole(ctx context.Context, username string, role Role) (*Credential, error)

	// Delete removes a credential.
	Delete(ctx context.Context, id ulid.ULID) error
}
