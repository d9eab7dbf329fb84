package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Lifecycle tracks one live conversation from connect to disconnect and
// records its events. It is the only writer of a session's end markers
// during the connection; summarization happens elsewhere, after End.
type Lifecycle struct {
	store     Store
	id        string
	userID    string
	startTime time.Time

	mu    sync.Mutex
	ended bool
}

// Start creates a new active session and returns its lifecycle.
func Start(ctx context.Context, store Store, id, userID string) (*Lifecycle, error) {
	now := time.Now()
	sess := &Session{
		ID:        id,
		UserID:    userID,
		Status:    StatusActive,
		StartTime: now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &Lifecycle{store: store, id: id, userID: userID, startTime: now}, nil
}

// Resume reattaches to an existing session, reactivating it if a previous
// connection already ended it. Returns ErrNotFound when no such session
// exists.
func Resume(ctx context.Context, store Store, id string) (*Lifecycle, error) {
	sess, err := store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	start := sess.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	sess.Status = StatusActive
	sess.StartTime = start
	sess.EndTime = nil
	sess.DurationSeconds = nil
	if err := store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return &Lifecycle{store: store, id: id, userID: sess.UserID, startTime: start}, nil
}

// ID returns the session identifier.
func (l *Lifecycle) ID() string { return l.id }

// UserID returns the owning user.
func (l *Lifecycle) UserID() string { return l.userID }

// End stamps the session with its end time and duration and records a
// closing system event. Calling End again is a no-op.
func (l *Lifecycle) End(ctx context.Context) error {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return nil
	}
	l.ended = true
	l.mu.Unlock()

	sess, err := l.store.GetSession(ctx, l.id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	now := time.Now()
	duration := int64(now.Sub(l.startTime).Seconds())
	if duration < 0 {
		duration = 0
	}
	sess.Status = StatusCompleted
	sess.EndTime = &now
	sess.DurationSeconds = &duration
	if err := l.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	return l.append(ctx, EventSystem, "Session ended", nil)
}

// LogUserInput records an incoming user message.
func (l *Lifecycle) LogUserInput(ctx context.Context, content string) error {
	return l.append(ctx, EventUserMessage, content, nil)
}

// LogAiOutput records a completed assistant reply.
func (l *Lifecycle) LogAiOutput(ctx context.Context, content string) error {
	return l.append(ctx, EventAiResponse, content, nil)
}

// LogToolCall records a tool invocation with its arguments.
func (l *Lifecycle) LogToolCall(ctx context.Context, name string, args map[string]any) error {
	return l.append(ctx, EventToolCall, name, args)
}

// LogToolResult records a tool's outcome.
func (l *Lifecycle) LogToolResult(ctx context.Context, name string, result any) error {
	return l.append(ctx, EventToolResult, name, map[string]any{"result": result})
}

// LogError records a user-facing error raised during the conversation.
func (l *Lifecycle) LogError(ctx context.Context, message string) error {
	return l.append(ctx, EventError, message, nil)
}

func (l *Lifecycle) append(ctx context.Context, typ EventType, content string, metadata map[string]any) error {
	err := l.store.AppendEvent(ctx, &Event{
		SessionID: l.id,
		Type:      typ,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("append %s event: %w", typ, err)
	}
	return nil
}
