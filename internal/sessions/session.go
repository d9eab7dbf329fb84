// Package sessions provides session and event persistence for Parley.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// EventType classifies entries in a session's audit trail.
type EventType string

const (
	EventUserMessage EventType = "user_message"
	EventAiResponse  EventType = "ai_response"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventSystem      EventType = "system"
	EventError       EventType = "error"
)

// Session holds metadata about one conversation.
// EndTime and DurationSeconds are both set or both absent.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          Status     `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Title           string     `json:"title,omitempty"`
}

// Event is one immutable, timestamped entry in a session's audit trail.
// Ordering is by Timestamp ascending; ties break by insertion order (ID).
type Event struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store defines the persistence interface for sessions and events.
// Implementations serialize access internally and are shared across
// connections.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	// DeleteSession removes a session and cascades to its events.
	DeleteSession(ctx context.Context, id string) error
	// UnendedSessions returns sessions whose end time is absent.
	UnendedSessions(ctx context.Context) ([]*Session, error)

	// AppendEvent stores an event; the store assigns Event.ID.
	AppendEvent(ctx context.Context, e *Event) error
	// Events returns a session's events ordered by timestamp ascending,
	// insertion order on ties, optionally filtered by type set.
	Events(ctx context.Context, sessionID string, types ...EventType) ([]*Event, error)
	CountEvents(ctx context.Context, sessionID string, typ EventType) (int, error)

	Close() error
}
