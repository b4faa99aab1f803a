// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/auth"
	"github.com/codewatch/codewatch/pkg/errutil"
)

func TestRequireRole(t *testing.T) {
	proctor := auth.Principal{
		ID:       ulid.Make(),
		Username: "eve",
		Role:     auth.RoleProctor,
	}

	t.Run("passes matching role through unchanged", func(t *testing.T) {
		got, err := auth.RequireRole(proctor, auth.RoleProctor)
		require.NoError(t, err)
		assert.Equal(t, proctor, got)
	})

	t.Run("rejects mismatched role", func(t *testing.T) {
		_, err := auth.RequireRole(proctor, auth.RoleParticipant)
		errutil.AssertErrorCode(t, err, "AUTH_FORBIDDEN")
		errutil.AssertErrorContext(t, err, "required_role", "participant")
	})

	t.Run("rejects zero principal", func(t *testing.T) {
		_, err := auth.RequireRole(auth.Principal{}, auth.RoleProctor)
		assert.Error(t, err)
	})
}
