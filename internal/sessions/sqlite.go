package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers anyway; a single pooled connection avoids
	// SQLITE_BUSY under concurrent sessions and keeps PRAGMAs applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// Open returns a SQLite-backed store at path, or the in-memory store when
// path is empty or the database cannot be opened. Startup never fails on a
// missing or broken store; persistence just degrades.
func Open(path string) Store {
	if path == "" {
		slog.Warn("no store path configured, sessions will not survive restarts")
		return NewMemStore()
	}
	store, err := NewSQLiteStore(path)
	if err != nil {
		slog.Warn("session store unavailable, falling back to in-memory", "path", path, "error", err)
		return NewMemStore()
	}
	slog.Info("session store opened", "path", path)
	return store
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			duration_seconds INTEGER,
			summary TEXT,
			title TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, start_time, end_time, duration_seconds, summary, title)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, string(sess.Status), formatTime(sess.StartTime),
		nullableTime(sess.EndTime), nullableInt(sess.DurationSeconds), sess.Summary, sess.Title)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, start_time, end_time, duration_seconds, summary, title
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, status, start_time, end_time, duration_seconds, summary, title
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = ?, status = ?, start_time = ?, end_time = ?,
		 duration_seconds = ?, summary = ?, title = ? WHERE id = ?`,
		sess.UserID, string(sess.Status), formatTime(sess.StartTime),
		nullableTime(sess.EndTime), nullableInt(sess.DurationSeconds),
		sess.Summary, sess.Title, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	// Events cascade via the foreign key.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UnendedSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, status, start_time, end_time, duration_seconds, summary, title
		 FROM sessions WHERE end_time IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("unended sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *Event) error {
	var metadata any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = string(data)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, content, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Type), e.Content, metadata, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (s *SQLiteStore) Events(ctx context.Context, sessionID string, types ...EventType) ([]*Event, error) {
	query := `SELECT id, session_id, event_type, content, metadata, timestamp
		 FROM events WHERE session_id = ?`
	args := []any{sessionID}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` AND event_type IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e        Event
			typ      string
			metadata sql.NullString
			ts       string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.Content, &metadata, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.Timestamp = parseTime(ts)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				slog.Warn("unreadable event metadata", "event_id", e.ID, "error", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, sessionID string, typ EventType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE session_id = ? AND event_type = ?`,
		sessionID, string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess     Session
		status   string
		start    string
		end      sql.NullString
		duration sql.NullInt64
		summary  sql.NullString
		title    sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.UserID, &status, &start, &end, &duration, &summary, &title)
	if err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	// A malformed stored timestamp becomes the zero time; Lifecycle.Resume
	// treats that as "now".
	sess.StartTime = parseTime(start)
	if end.Valid {
		t := parseTime(end.String)
		sess.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		sess.DurationSeconds = &d
	}
	sess.Summary = summary.String
	sess.Title = title.String
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var list []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

// timeLayout is RFC 3339 with fixed nanosecond width so that lexicographic
// order of stored values matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

var _ Store = (*SQLiteStore)(nil)
