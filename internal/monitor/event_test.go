// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package monitor_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/monitor"
	"github.com/codewatch/codewatch/pkg/errutil"
)

func TestValidEventType(t *testing.T) {
	assert.True(t, monitor.ValidEventType(monitor.EventTypeKeypress))
	assert.True(t, monitor.ValidEventType(monitor.EventTypePaste))
	assert.True(t, monitor.ValidEventType(monitor.EventTypeUndo))
	assert.False(t, monitor.ValidEventType("screenshot"))
	assert.False(t, monitor.ValidEventType(""))
	assert.False(t, monitor.ValidEventType("Keypress"), "event types are case-sensitive")
}

func TestNewEvent(t *testing.T) {
	credID := ulid.Make()

	t.Run("creates validated event", func(t *testing.T) {
		event, err := monitor.NewEvent("sess-42", credID, "alice", monitor.EventTypePaste, []byte(`{"chars":120}`))
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, event.ID)
		assert.Equal(t, "sess-42", event.SessionID)
		assert.Equal(t, credID, event.CredentialID)
		assert.Equal(t, "alice", event.Username)
		assert.Equal(t, monitor.EventTypePaste, event.Type)
		assert.JSONEq(t, `{"chars":120}`, string(event.Payload))
		assert.False(t, event.ReceivedAt.IsZero())
	})

	t.Run("generates unique ids", func(t *testing.T) {
		a, err := monitor.NewEvent("sess-42", credID, "alice", monitor.EventTypeFocus, nil)
		require.NoError(t, err)
		b, err := monitor.NewEvent("sess-42", credID, "alice", monitor.EventTypeFocus, nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("rejects empty session id", func(t *testing.T) {
		_, err := monitor.NewEvent("", credID, "alice", monitor.EventTypeKeypress, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MONITOR_INVALID_EVENT")
	})

	t.Run("rejects zero credential id", func(t *testing.T) {
		_, err := monitor.NewEvent("sess-42", ulid.ULID{}, "alice", monitor.EventTypeKeypress, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MONITOR_INVALID_EVENT")
	})

	t.Run("rejects unknown event type", func(t *testing.T) {
		_, err := monitor.NewEvent("sess-42", credID, "alice", "screenshot", nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MONITOR_INVALID_EVENT")
		assert.Contains(t, err.Error(), "screenshot")
	})
}
