// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(testSecret, "HS256")
	require.NoError(t, err)
	return codec
}

func testClaims() auth.Claims {
	return auth.Claims{
		Subject:      "alice",
		CredentialID: "01JF8Y2K3MN4P5Q6R7S8T9V0WX",
		Role:         auth.RoleParticipant,
	}
}

func TestNewTokenCodec(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := auth.NewTokenCodec(nil, "HS256")
		assert.Error(t, err)
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		_, err := auth.NewTokenCodec(testSecret, "RS256")
		assert.Error(t, err)
	})

	t.Run("accepts all HMAC variants", func(t *testing.T) {
		for _, alg := range []string{"HS256", "HS384", "HS512"} {
			_, err := auth.NewTokenCodec(testSecret, alg)
			assert.NoError(t, err, alg)
		}
	})
}

func TestIssueAndVerify(t *testing.T) {
	codec := newTestCodec(t)

	t.Run("round trip preserves claims", func(t *testing.T) {
		token, err := codec.Issue(testClaims(), time.Hour)
		require.NoError(t, err)

		claims, err := codec.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, "01JF8Y2K3MN4P5Q6R7S8T9V0WX", claims.CredentialID)
		assert.Equal(t, auth.RoleParticipant, claims.Role)
		assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
	})

	t.Run("HS384 and HS512 round trip", func(t *testing.T) {
		for _, alg := range []string{"HS384", "HS512"} {
			c, err := auth.NewTokenCodec(testSecret, alg)
			require.NoError(t, err)

			token, err := c.Issue(testClaims(), time.Hour)
			require.NoError(t, err)
			_, err = c.Verify(token)
			assert.NoError(t, err, alg)
		}
	})
}

func TestVerifyRejections(t *testing.T) {
	codec := newTestCodec(t)

	t.Run("expired token", func(t *testing.T) {
		token, err := codec.Issue(testClaims(), -time.Minute)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_EXPIRED")
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := auth.NewTokenCodec([]byte("ffffffffffffffffffffffffffffffff"), "HS256")
		require.NoError(t, err)

		token, err := other.Issue(testClaims(), time.Hour)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_SIGNATURE")
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		hs512, err := auth.NewTokenCodec(testSecret, "HS512")
		require.NoError(t, err)

		token, err := hs512.Issue(testClaims(), time.Hour)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_SIGNATURE")
	})

	t.Run("alg none token", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub":  "alice",
			"uid":  "01JF8Y2K3MN4P5Q6R7S8T9V0WX",
			"role": "participant",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_SIGNATURE")
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := codec.Verify("not.a.token")
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_INVALID")
	})

	t.Run("missing expiry claim", func(t *testing.T) {
		noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "alice",
			"uid":  "01JF8Y2K3MN4P5Q6R7S8T9V0WX",
			"role": "participant",
		})
		token, err := noExp.SignedString(testSecret)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := codec.Issue(auth.Claims{
			CredentialID: "01JF8Y2K3MN4P5Q6R7S8T9V0WX",
			Role:         auth.RoleParticipant,
		}, time.Hour)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_MALFORMED")
	})

	t.Run("missing credential id", func(t *testing.T) {
		token, err := codec.Issue(auth.Claims{
			Subject: "alice",
			Role:    auth.RoleParticipant,
		}, time.Hour)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_MALFORMED")
	})

	t.Run("unknown role claim", func(t *testing.T) {
		bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "alice",
			"uid":  "01JF8Y2K3MN4P5Q6R7S8T9V0WX",
			"role": "superuser",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		token, err := bad.SignedString(testSecret)
		require.NoError(t, err)

		_, err = codec.Verify(token)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_ROLE")
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := codec.Issue(testClaims(), time.Hour)
		require.NoError(t, err)

		tampered := token[:len(token)-4] + "AAAA"
		_, err = codec.Verify(tampered)
		assert.Error(t, err)
	})
}
