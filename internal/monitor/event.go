// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package monitor contains the coding-session event model consumed by
// the stream gateway. Analytics over recorded events is out of scope
// here; the sink only records.
package monitor

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// EventType identifies the kind of editor event a participant's client
// reports.
type EventType string

// Known session event types.
const (
	EventTypeKeypress  EventType = "keypress"
	EventTypePaste     EventType = "paste"
	EventTypeFocus     EventType = "focus"
	EventTypeBlur      EventType = "blur"
	EventTypeSave      EventType = "save"
	EventTypeSelection EventType = "selection"
	EventTypeScroll    EventType = "scroll"
	EventTypeCopy      EventType = "copy"
	EventTypeCut       EventType = "cut"
	EventTypeUndo      EventType = "undo"
	EventTypeRedo      EventType = "redo"
)

var knownEventTypes = map[EventType]struct{}{
	EventTypeKeypress:  {},
	EventTypePaste:     {},
	EventTypeFocus:     {},
	EventTypeBlur:      {},
	EventTypeSave:      {},
	EventTypeSelection: {},
	EventTypeScroll:    {},
	EventTypeCopy:      {},
	EventTypeCut:       {},
	EventTypeUndo:      {},
	EventTypeRedo:      {},
}

// ValidEventType reports whether t is a known session event type.
func ValidEventType(t EventType) bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Event is one recorded editor event, stamped with the authenticated
// identity that produced it.
type Event struct {
	ID           ulid.ULID
	SessionID    string
	CredentialID ulid.ULID
	Username     string
	Type         EventType
	Payload      []byte // JSON, opaque to this layer
	ReceivedAt   time.Time
}

// NewEvent creates a validated Event with a fresh ID.
func NewEvent(sessionID string, credentialID ulid.ULID, username string, eventType EventType, payload []byte) (*Event, error) {
	if sessionID == "" {
		return nil, oops.Code("MONITOR_INVALID_EVENT").Errorf("session id cannot be empty")
	}
	if credentialID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("MONITOR_INVALID_EVENT").Errorf("credential id cannot be zero")
	}
	if !ValidEventType(eventType) {
		return nil, oops.Code("MONITOR_INVALID_EVENT").
			With("type", string(eventType)).
			Errorf("unknown event type %q", eventType)
	}

	return &Event{
		ID:           ulid.Make(),
		SessionID:    sessionID,
		CredentialID: credentialID,
		Username:     username,
		Type:         eventType,
		Payload:      payload,
		ReceivedAt:   time.Now(),
	}, nil
}

// EventSink records session events. Implementations must be safe for
// concurrent use by multiple stream connections.
type EventSink interface {
	// Append persists one event.
	Append(ctx context.Context, event *Event) error
}

// EventSource lists recorded session events, newest first.
type EventSource interface {
	// ListBySession returns up to limit events for a session.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error)
}
