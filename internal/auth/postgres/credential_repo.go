// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package postgres implements auth repositories using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codewatch/codewatch/internal/auth"
)

// poolIface abstracts the pgx pool so repositories accept either a
// *pgxpool.Pool or a pgxmock pool in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepository implements auth.CredentialRepository using
// PostgreSQL. The credentials table carries a UNIQUE constraint on
// (username, role); Create maps its violation to auth.ErrDuplicate so
// racing registrations surface as conflicts, not internal failures.
type CredentialRepository struct {
	pool poolIface
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Create stores a new credential.
func (r *CredentialRepository) Create(ctx context.Context, cred *auth.Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (id, username, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		cred.ID.String(),
		cred.Username,
		string(cred.Role),
		cred.PasswordHash,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("AUTH_CONFLICT").
				With("username", cred.Username).
				With("role", string(cred.Role)).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "insert credential").
			With("username", cred.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a credential by ID.
func (r *CredentialRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, role, password_hash, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`, id.String())

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_BY_ID_FAILED").
			With("operation", "get credential by id").
			With("id", id.String()).
			Wrap(err)
	}
	return cred, nil
}

// GetByUsernameRole retrieves a credential by its unique (username,
// role) pair. Username matching is case-insensitive.
func (r *CredentialRepository) GetByUsernameRole(ctx context.Context, username string, role auth.Role) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, role, password_hash, created_at, updated_at
		FROM credentials
		WHERE LOWER(username) = LOWER($1) AND role = $2
	`, username, string(role))

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("username", username).
			With("role", string(role)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_BY_USERNAME_FAILED").
			With("operation", "get credential by username and role").
			With("username", username).
			Wrap(err)
	}
	return cred, nil
}

// Delete removes a credential.
func (r *CredentialRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM credentials WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("CREDENTIAL_DELETE_FAILED").
			With("operation", "delete credential").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanCredential scans a single row into a Credential. Callers are
// responsible for handling pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var (
		idStr        string
		username     string
		roleStr      string
		passwordHash string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&idStr, &username, &roleStr, &passwordHash, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("CREDENTIAL_SCAN_FAILED").
			With("operation", "scan credential").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").
			With("operation", "parse credential id").
			With("id", idStr).
			Wrap(err)
	}

	role, err := auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ROLE").
			With("operation", "parse credential role").
			With("role", roleStr).
			Wrap(err)
	}

	return &auth.Credential{
		ID:           id,
		Username:     username,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.CredentialRepository = (*CredentialRepository)(nil)
