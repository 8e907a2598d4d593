package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/tidemark-io/tidemark/telemetry"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq          INTEGER PRIMARY KEY,
	stream       TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	payload      BLOB,
	committed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream, seq);
`

// EventStore is the append-only event log backing the high-water detector.
// Sequence numbers are append-ordered; gaps appear when a writer reserves a
// position and never commits it.
type EventStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*EventStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap event store schema: %w", err)
	}
	return &EventStore{db: db, logger: logger.Named("store")}, nil
}

// Append commits an event at the next sequence position and returns it.
func (s *EventStore) Append(ctx context.Context, stream, eventType string, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (stream, event_type, payload) VALUES (?, ?, ?)`,
		stream, eventType, payload)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	telemetry.EventsAppended.Inc()
	return seq, nil
}

// AppendAt commits an event at an explicit sequence position. Writers that
// pre-allocate sequence ranges use this; a reserved position that is never
// committed becomes a gap in the log.
func (s *EventStore) AppendAt(ctx context.Context, seq int64, stream, eventType string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (seq, stream, event_type, payload) VALUES (?, ?, ?, ?)`,
		seq, stream, eventType, payload)
	if err != nil {
		return fmt.Errorf("append event at %d: %w", seq, err)
	}
	telemetry.EventsAppended.Inc()
	return nil
}

// HighestSequence returns the highest committed position regardless of
// contiguity, 0 when the log is empty.
func (s *EventStore) HighestSequence(ctx context.Context) (int64, error) {
	var highest int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("highest sequence: %w", err)
	}
	return highest, nil
}

func (s *EventStore) Close() error {
	return s.db.Close()
}
