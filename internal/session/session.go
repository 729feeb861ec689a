// ABOUTME: Append-only, sequence-numbered event log backing one job's conversation
// ABOUTME: SQLite-backed; history is re-read from storage on every model call

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskhand/deskhand/pkg/ai"
)

// EventType labels what produced an event. It is metadata only and never
// drives control flow.
type EventType string

const (
	EventMessage    EventType = "message"
	EventToolResult EventType = "tool_result"
)

// Event is the persisted unit: one canonical message plus its metadata.
type Event struct {
	Sequence  int
	Role      ai.Role
	Type      EventType
	Content   []ai.Content
	CreatedAt time.Time
}

// Store owns the database connection shared by all sessions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the event log database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases shared instead of per-connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS job_events (
			job_id     TEXT NOT NULL,
			sequence   INTEGER NOT NULL,
			role       TEXT NOT NULL,
			event_type TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (job_id, sequence)
		);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session returns the event log view for one job. A session is exclusively
// owned by one agent loop; there are no concurrent writers per job.
func (s *Store) Session(jobID string) *Session {
	return &Session{store: s, jobID: jobID}
}

// Session is the per-job append-only log. Past events are never mutated or
// deleted; resuming a job means constructing a fresh loop over the same
// session.
type Session struct {
	store *Store
	jobID string
}

// JobID returns the job this session belongs to.
func (s *Session) JobID() string {
	return s.jobID
}

// AddEvent assigns the next sequence number (max existing + 1, starting at 1)
// and appends the event durably.
func (s *Session) AddEvent(ctx context.Context, role ai.Role, eventType EventType, content []ai.Content) error {
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode event content: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM job_events WHERE job_id = ?`,
		s.jobID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_events (job_id, sequence, role, event_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.jobID, next, string(role), string(eventType), string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	return tx.Commit()
}

// HistoryForAPI replays all events as canonical messages in sequence order.
// It re-reads storage on every call so a resumed loop always sees the full
// persisted history.
func (s *Session) HistoryForAPI(ctx context.Context) ([]ai.Message, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT role, content FROM job_events WHERE job_id = ? ORDER BY sequence`,
		s.jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var history []ai.Message
	for rows.Next() {
		var role, encoded string
		if err := rows.Scan(&role, &encoded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var content []ai.Content
		if err := json.Unmarshal([]byte(encoded), &content); err != nil {
			return nil, fmt.Errorf("decode event content: %w", err)
		}
		history = append(history, ai.Message{Role: ai.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return history, nil
}

// Events returns the raw event rows for a job in sequence order. Used for
// audit and status queries, not by the loop itself.
func (s *Session) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT sequence, role, event_type, content, created_at
		 FROM job_events WHERE job_id = ? ORDER BY sequence`,
		s.jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			role      string
			eventType string
			encoded   string
			createdAt string
		)
		if err := rows.Scan(&ev.Sequence, &role, &eventType, &encoded, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &ev.Content); err != nil {
			return nil, fmt.Errorf("decode event content: %w", err)
		}
		ev.Role = ai.Role(role)
		ev.Type = EventType(eventType)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
