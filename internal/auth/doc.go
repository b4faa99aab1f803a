// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package auth is the identity and access-control core of CodeWatch.
//
// # Components
//
// The package is built from small, independently testable pieces:
//   - Argon2idHasher - salted, adaptive password hashing and verification
//   - SlidingWindowLimiter - per-identifier attempt throttling
//   - TokenCodec - signed, time-bounded identity tokens (JWT, HMAC)
//   - RequireRole - pure role guard over an authenticated Principal
//   - Service - composes the above for register, login, refresh, and
//     token authentication
//
// Credentials are persisted through the CredentialRepository interface;
// the postgres subpackage provides the production implementation. All
// other state (rate-limit windows, principals) is ephemeral and
// in-process.
//
// Failures carry oops error codes. Client-facing codes
// (AUTH_VALIDATION_FAILED, AUTH_CONFLICT, AUTH_INVALID_CREDENTIALS,
// AUTH_RATE_LIMITED, AUTH_UNAUTHORIZED, AUTH_FORBIDDEN) are safe to
// surface; AUTH_INTERNAL hides infrastructure detail from callers.
package auth
