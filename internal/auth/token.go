// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Claims is the decoded payload of an identity token: subject
// (username), credential ID, role, and absolute expiry.
type Claims struct {
	Subject      string
	CredentialID string
	Role         Role
	ExpiresAt    time.Time
}

// tokenClaims is the JWT wire shape. Role rides in a private claim;
// subject and expiry use the registered ones.
type tokenClaims struct {
	jwt.RegisteredClaims
	CredentialID string `json:"uid"`
	Role         string `json:"role,omitempty"`
}

// signingMethods maps configured algorithm names to JWT methods. Only
// symmetric HMAC variants are accepted.
var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// TokenCodec issues and verifies signed, time-bounded identity tokens.
type TokenCodec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewTokenCodec creates a TokenCodec signing with the given symmetric
// secret and algorithm ("HS256", "HS384", or "HS512").
func NewTokenCodec(secret []byte, algorithm string) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_INTERNAL").Errorf("signing secret cannot be empty")
	}
	method, ok := signingMethods[algorithm]
	if !ok {
		return nil, oops.Code("AUTH_INTERNAL").
			With("algorithm", algorithm).
			Errorf("unsupported signing algorithm %q", algorithm)
	}
	return &TokenCodec{secret: secret, method: method}, nil
}

// Issue signs claims with exp = now + ttl and returns the opaque,
// URL-safe token string.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(c.method, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		CredentialID: claims.CredentialID,
		Role:         string(claims.Role),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", oops.Code("AUTH_INTERNAL").
			With("operation", "sign token").
			Wrap(err)
	}
	return signed, nil
}

// Verify checks the token's signature, expiry, and claim shape, in that
// order. Each rejection carries a distinct code:
//
//	AUTH_TOKEN_SIGNATURE - signature mismatch, corruption, or wrong alg
//	AUTH_TOKEN_EXPIRED   - expiry not strictly in the future
//	AUTH_TOKEN_MALFORMED - missing subject or credential ID
//	AUTH_TOKEN_ROLE      - role claim present but unknown
//	AUTH_TOKEN_INVALID   - any other decode failure
func (c *TokenCodec) Verify(tokenString string) (Claims, error) {
	var tc tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &tc, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, oops.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, oops.Code("AUTH_TOKEN_EXPIRED").Wrap(err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, oops.Code("AUTH_TOKEN_SIGNATURE").Wrap(err)
		default:
			return Claims{}, oops.Code("AUTH_TOKEN_INVALID").Wrap(err)
		}
	}
	if !token.Valid {
		return Claims{}, oops.Code("AUTH_TOKEN_INVALID").Errorf("invalid token")
	}

	if tc.Subject == "" || tc.CredentialID == "" {
		return Claims{}, oops.Code("AUTH_TOKEN_MALFORMED").
			Errorf("token missing subject or credential id")
	}

	var role Role
	if tc.Role != "" {
		parsed, roleErr := ParseRole(tc.Role)
		if roleErr != nil {
			return Claims{}, oops.Code("AUTH_TOKEN_ROLE").
				With("role", tc.Role).
				Errorf("token carries unknown role %q", tc.Role)
		}
		role = parsed
	}

	return Claims{
		Subject:      tc.Subject,
		CredentialID: tc.CredentialID,
		Role:         role,
		ExpiresAt:    tc.ExpiresAt.Time,
	}, nil
}
