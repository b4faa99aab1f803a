// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters. A single hash costs on the
// order of tens of milliseconds, which is the point.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password. Each call
	// generates a fresh salt, so two hashes of the same password differ.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash. A malformed or
	// foreign hash is a mismatch, not an error: the only error case is
	// unexpected internal failure.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_INTERNAL").
			With("operation", "generate salt").
			Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify recomputes the hash using the salt and parameters embedded in
// encodedHash and compares in constant time. Any malformed input yields
// (false, nil) so callers cannot distinguish a corrupt stored hash from
// a wrong password.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	salt, expectedHash, timeParam, memory, threads, ok := parsePHC(encodedHash)
	if !ok {
		return false, nil
	}

	computedHash := argon2.IDKey([]byte(password), salt, timeParam, memory, threads, uint32(len(expectedHash)))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// parsePHC decodes a $argon2id$ PHC string. Returns ok=false for any
// input that does not decode to usable parameters.
func parsePHC(encodedHash string) (salt, hash []byte, timeParam, memory uint32, threads uint8, ok bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, false
	}

	var threads32 uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeParam, &threads32); err != nil {
		return nil, nil, 0, 0, 0, false
	}
	// Threads must fit in uint8 and the remaining parameters must be
	// non-zero to avoid argon2 panics on degenerate input.
	if threads32 == 0 || threads32 > 255 || memory == 0 || timeParam == 0 {
		return nil, nil, 0, 0, 0, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 || len(hash) > 1<<10 {
		return nil, nil, 0, 0, 0, false
	}

	return salt, hash, timeParam, memory, uint8(threads32), true
}
