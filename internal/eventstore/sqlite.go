package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// SQLiteStore persists event logs in a SQLite database, one table shared
// by all conversations, keyed by conversation id. Suitable for server
// deployments that want a single durable file instead of per-
// conversation NDJSON logs.
type SQLiteStore struct {
	db             *sql.DB
	conversationID string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	event_id        TEXT NOT NULL UNIQUE,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_conversation ON events(conversation_id, seq);
`

// OpenSQLiteStore opens the database at path and scopes the store to one
// conversation.
func OpenSQLiteStore(path, conversationID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	return &SQLiteStore{db: db, conversationID: conversationID}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, event events.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (conversation_id, event_id, payload) VALUES (?, ?, ?)`,
		s.conversationID, event.ID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE conversation_id = ? ORDER BY seq`,
		s.conversationID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var log []events.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := events.Unmarshal([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("corrupt event row: %w", err)
		}
		log = append(log, event)
	}
	return log, rows.Err()
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE conversation_id = ?`,
		s.conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
