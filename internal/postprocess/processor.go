// Package postprocess finalizes sessions after their connection is gone.
// Abandoned sessions with no user messages are deleted; everything else gets
// a model-written summary and title before the record is closed out.
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/sessions"
)

// Outcome reports how a finalization run ended.
type Outcome string

const (
	OutcomeDeleted   Outcome = "deleted"
	OutcomeCompleted Outcome = "completed"
	OutcomeError     Outcome = "error"
)

const defaultTimeout = 2 * time.Minute

const summaryInstruction = `You summarize conversations. Given a conversation transcript, write a concise summary that captures the main topics discussed, the key questions the user asked, any tools that were used, and the important outcomes. Keep it brief, 2-4 sentences, formatted as a single readable paragraph.`

const titleInstruction = `You create short, descriptive titles for chat conversations. Given a conversation summary, reply with only the title: 3-5 words maximum, no quotes or special characters, capitalized like a title, focused on the main topic.`

// Completer is the one-shot model surface used for summaries and titles.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Processor runs detached finalization tasks. A nil Completer disables
// summaries and titles; sessions still get deleted or finalized.
type Processor struct {
	store   sessions.Store
	model   Completer
	timeout time.Duration

	wg sync.WaitGroup
}

// New builds a processor over the store and the summarization model.
func New(store sessions.Store, model Completer, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if model == nil {
		slog.Warn("no summarization model, sessions will finalize without summaries")
	}
	return &Processor{store: store, model: model, timeout: timeout}
}

// Schedule launches a detached finalization run for the session and returns
// immediately. The run is bound to its own background context so connection
// teardown cannot cancel it.
func (p *Processor) Schedule(sessionID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		outcome := p.run(ctx, sessionID)
		slog.Info("session post-processing finished", "session_id", sessionID, "outcome", outcome)
	}()
}

// Close waits for in-flight runs to finish.
func (p *Processor) Close() {
	p.wg.Wait()
}

// run executes the finalization algorithm. Failures are terminal to this run
// only; there is no caller left to observe them synchronously.
func (p *Processor) run(ctx context.Context, sessionID string) Outcome {
	count, err := p.store.CountEvents(ctx, sessionID, sessions.EventUserMessage)
	if err != nil {
		slog.Error("count user messages failed", "session_id", sessionID, "error", err)
		p.markError(ctx, sessionID)
		return OutcomeError
	}

	if count == 0 {
		if err := p.store.DeleteSession(ctx, sessionID); err != nil {
			slog.Error("delete empty session failed", "session_id", sessionID, "error", err)
			return OutcomeError
		}
		slog.Info("deleted empty session", "session_id", sessionID)
		return OutcomeDeleted
	}

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("load session failed", "session_id", sessionID, "error", err)
		return OutcomeError
	}

	if p.model != nil {
		summary, err := p.summarize(ctx, sessionID)
		if err != nil {
			slog.Error("summarize session failed", "session_id", sessionID, "error", err)
			p.markError(ctx, sessionID)
			return OutcomeError
		}
		sess.Summary = summary
		sess.Title = p.title(ctx, summary)
	}

	sess.Status = sessions.StatusCompleted
	if sess.EndTime == nil {
		now := time.Now()
		duration := int64(now.Sub(sess.StartTime).Seconds())
		if duration < 0 {
			duration = 0
		}
		sess.EndTime = &now
		sess.DurationSeconds = &duration
	}

	if err := p.store.UpdateSession(ctx, sess); err != nil {
		slog.Error("finalize session failed", "session_id", sessionID, "error", err)
		return OutcomeError
	}
	slog.Info("session finalized", "session_id", sessionID, "title", sess.Title)
	return OutcomeCompleted
}

// summarize feeds the ordered conversation transcript to the model.
func (p *Processor) summarize(ctx context.Context, sessionID string) (string, error) {
	events, err := p.store.Events(ctx, sessionID,
		sessions.EventUserMessage, sessions.EventAiResponse)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	if len(events) == 0 {
		return "No conversation took place in this session.", nil
	}

	var b strings.Builder
	for _, e := range events {
		role := "User"
		if e.Type == sessions.EventAiResponse {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, e.Content)
	}

	summary, err := p.model.Complete(ctx,
		summaryInstruction+"\n\nPlease summarize this conversation:\n\n"+b.String())
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return summary, nil
}

// title derives a short name from the summary. A failed title call falls
// back to the summary's leading characters rather than failing the run.
func (p *Processor) title(ctx context.Context, summary string) string {
	name, err := p.model.Complete(ctx,
		titleInstruction+"\n\nCreate a short title for this conversation summary:\n\n"+summary)
	if err != nil {
		slog.Warn("title generation failed, using summary prefix", "error", err)
		if r := []rune(summary); len(r) > 30 {
			return string(r[:30]) + "..."
		}
		return summary
	}

	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if r := []rune(name); len(r) > 50 {
		name = string(r[:47]) + "..."
	}
	return name
}

// markError is best-effort: the session may already be gone or the store
// unreachable, and there is nobody to report that to.
func (p *Processor) markError(ctx context.Context, sessionID string) {
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	sess.Status = sessions.StatusError
	if err := p.store.UpdateSession(ctx, sess); err != nil {
		slog.Warn("mark session error failed", "session_id", sessionID, "error", err)
	}
}
