// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package monitor

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// poolIface abstracts the pgx pool so the store accepts either a
// *pgxpool.Pool or a pgxmock pool in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresEventStore implements EventSink and EventSource using
// PostgreSQL.
type PostgresEventStore struct {
	pool poolIface
}

// NewPostgresEventStore creates a new PostgresEventStore.
func NewPostgresEventStore(pool poolIface) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// Append persists one session event.
func (s *PostgresEventStore) Append(ctx context.Context, event *Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_events (id, session_id, credential_id, username, type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID.String(),
		event.SessionID,
		event.CredentialID.String(),
		event.Username,
		string(event.Type),
		event.Payload,
		event.ReceivedAt,
	)
	if err != nil {
		return oops.Code("MONITOR_APPEND_FAILED").
			With("operation", "insert session event").
			With("session_id", event.SessionID).
			Wrap(err)
	}
	return nil
}

// ListBySession returns up to limit events for a session, newest
// first.
func (s *PostgresEventStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, credential_id, username, type, payload, received_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, oops.Code("MONITOR_LIST_FAILED").
			With("operation", "list session events").
			With("session_id", sessionID).
			Wrap(err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MONITOR_LIST_FAILED").
			With("operation", "iterate session events").
			With("session_id", sessionID).
			Wrap(err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		event        Event
		id           string
		credentialID string
		eventType    string
		receivedAt   time.Time
	)
	if err := row.Scan(&id, &event.SessionID, &credentialID, &event.Username, &eventType, &event.Payload, &receivedAt); err != nil {
		return nil, oops.Code("MONITOR_LIST_FAILED").
			With("operation", "scan session event").
			Wrap(err)
	}

	parsedID, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("MONITOR_LIST_FAILED").
			With("event_id", id).
			Wrap(err)
	}
	parsedCredID, err := ulid.Parse(credentialID)
	if err != nil {
		return nil, oops.Code("MONITOR_LIST_FAILED").
			With("credential_id", credentialID).
			Wrap(err)
	}

	event.ID = parsedID
	event.CredentialID = parsedCredID
	event.Type = EventType(eventType)
	event.ReceivedAt = receivedAt
	return &event, nil
}

// Compile-time interface checks.
var (
	_ EventSink   = (*PostgresEventStore)(nil)
	_ EventSource = (*PostgresEventStore)(nil)
)
