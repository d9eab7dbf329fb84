// Package agent drives one conversation: it owns the per-session history,
// runs the bounded tool-calling loop against the model, and yields each
// turn's outcome as an ordered event stream.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/parleyhq/parley/internal/models"
	"github.com/parleyhq/parley/internal/sessions"
)

// DefaultSystemPrompt sets the assistant's voice when the configuration
// provides none.
const DefaultSystemPrompt = `You are Parley, a helpful conversational assistant.

Answer naturally and concisely. When a question calls for a calculation, a fact lookup, the weather, or the current time, use the matching tool instead of guessing. After a tool returns, weave its result into a plain-language answer; if a tool reports an error, say what went wrong and continue the conversation.`

const (
	defaultMaxIterations = 8
	defaultStreamDelay   = 20 * time.Millisecond
)

// EventType discriminates the events of a turn.
type EventType string

const (
	EventToken      EventType = "token"
	EventComplete   EventType = "complete"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
)

// Event is one step of a turn's outbound sequence. Exactly one payload group
// is set, selected by Type.
type Event struct {
	Type EventType

	Token     string         // token
	Content   string         // complete
	ToolName  string         // tool_call, tool_result
	ToolInput map[string]any // tool_call
	Result    any            // tool_result
	Message   string         // error
}

// ToolExecutor is the registry surface the engine needs.
type ToolExecutor interface {
	Infos(ctx context.Context) []*schema.ToolInfo
	Execute(ctx context.Context, name, argsJSON string) string
}

// HistorySource replays a session's prior conversation events.
type HistorySource interface {
	Events(ctx context.Context, sessionID string, types ...sessions.EventType) ([]*sessions.Event, error)
}

// Config assembles an engine for one session.
type Config struct {
	SessionID     string
	SystemPrompt  string
	MaxIterations int
	StreamDelay   time.Duration
	Model         model.ToolCallingChatModel
	Tools         ToolExecutor
	History       HistorySource
}

// Agent is the conversation engine for a single session. It is owned by that
// session's connection task: ProcessMessage calls must not overlap.
type Agent struct {
	sessionID     string
	model         model.ToolCallingChatModel
	tools         ToolExecutor
	historySource HistorySource
	maxIterations int
	streamDelay   time.Duration

	history       []*schema.Message
	historyLoaded bool

	// disabled records a construction failure; every turn then answers
	// with a single error event instead of retrying the backend.
	disabled error
}

// New builds the engine. A nil model or a failed tool binding downgrades the
// engine to disabled mode rather than returning an error: the connection
// stays usable and every turn reports the configuration problem.
func New(cfg Config) *Agent {
	a := &Agent{
		sessionID:     cfg.SessionID,
		tools:         cfg.Tools,
		historySource: cfg.History,
		maxIterations: cfg.MaxIterations,
		streamDelay:   cfg.StreamDelay,
	}
	if a.maxIterations <= 0 {
		a.maxIterations = defaultMaxIterations
	}
	if a.streamDelay <= 0 {
		a.streamDelay = defaultStreamDelay
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	a.history = []*schema.Message{{Role: schema.System, Content: prompt}}

	if cfg.Model == nil {
		a.disabled = fmt.Errorf("no model backend configured: api key missing or invalid")
		return a
	}
	a.model = cfg.Model

	if a.tools != nil {
		if infos := a.tools.Infos(context.Background()); len(infos) > 0 {
			bound, err := cfg.Model.WithTools(infos)
			if err != nil {
				a.disabled = fmt.Errorf("bind tools: %w", err)
				return a
			}
			a.model = bound
		}
	}
	return a
}

// Disabled returns an engine that answers every turn with a single error
// event derived from cause. Used when model construction fails at connect
// time.
func Disabled(cause error) *Agent {
	a := New(Config{})
	a.disabled = cause
	return a
}

// ProcessMessage runs one turn for an inbound user message. The returned
// channel yields the turn's events in order and is closed when the turn
// reaches a terminal event. Canceling ctx stops the delivery of further
// events; a model or tool call already in flight still completes.
func (a *Agent) ProcessMessage(ctx context.Context, content string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		a.run(ctx, out, content)
	}()
	return out
}

func (a *Agent) run(ctx context.Context, out chan<- Event, content string) {
	if a.disabled != nil {
		a.emit(ctx, out, Event{Type: EventError, Message: models.UserMessage(a.disabled)})
		return
	}

	a.loadHistory(ctx)
	a.history = append(a.history, &schema.Message{Role: schema.User, Content: content})

	// Backend and tool calls run to completion even when the client goes
	// away mid-turn; only event delivery observes ctx.
	callCtx := context.WithoutCancel(ctx)

	for iter := 0; iter < a.maxIterations; iter++ {
		reply, err := a.model.Generate(callCtx, a.history)
		if err != nil {
			slog.Warn("model call failed", "session_id", a.sessionID, "error", err)
			a.emit(ctx, out, Event{Type: EventError, Message: models.UserMessage(err)})
			return
		}

		if reply != nil && len(reply.ToolCalls) > 0 {
			if !a.runToolCall(ctx, callCtx, out, reply) {
				return
			}
			continue
		}

		text := ""
		if reply != nil {
			text = strings.TrimSpace(reply.Content)
		}
		if text == "" {
			// Assistant side of history stays untouched.
			a.emit(ctx, out, Event{Type: EventError, Message: models.EmptyReplyMessage})
			return
		}

		a.history = append(a.history, &schema.Message{Role: schema.Assistant, Content: text})
		a.streamText(ctx, out, text)
		return
	}

	slog.Warn("tool loop exhausted", "session_id", a.sessionID, "iterations", a.maxIterations)
	a.emit(ctx, out, Event{Type: EventError,
		Message: fmt.Sprintf("AI error: gave up after %d tool calls without an answer. Please try again.", a.maxIterations)})
}

// runToolCall executes the first requested tool and appends the synthetic
// function-response turn. Extra parallel tool calls in the same reply are
// dropped so each loop iteration stays one call, one result.
func (a *Agent) runToolCall(ctx, callCtx context.Context, out chan<- Event, reply *schema.Message) bool {
	tc := reply.ToolCalls[0]

	if !a.emit(ctx, out, Event{
		Type:      EventToolCall,
		ToolName:  tc.Function.Name,
		ToolInput: parseArgs(tc.Function.Arguments),
	}) {
		return false
	}

	resultJSON := a.tools.Execute(callCtx, tc.Function.Name, tc.Function.Arguments)

	if !a.emit(ctx, out, Event{
		Type:     EventToolResult,
		ToolName: tc.Function.Name,
		Result:   parseResult(resultJSON),
	}) {
		return false
	}

	a.history = append(a.history,
		&schema.Message{Role: schema.Assistant, Content: reply.Content, ToolCalls: reply.ToolCalls[:1]},
		&schema.Message{Role: schema.Tool, Content: resultJSON, ToolCallID: tc.ID},
	)
	return true
}

// streamText emits the reply as word-boundary tokens with a typing cadence,
// then the terminal complete event carrying the full text.
func (a *Agent) streamText(ctx context.Context, out chan<- Event, text string) {
	for _, token := range splitTokens(text) {
		if !a.emit(ctx, out, Event{Type: EventToken, Token: token}) {
			return
		}
		select {
		case <-time.After(a.streamDelay):
		case <-ctx.Done():
			return
		}
	}
	a.emit(ctx, out, Event{Type: EventComplete, Content: text})
}

// loadHistory replays prior conversation events once per engine. Fail-open:
// a degraded store logs a warning and the conversation continues fresh
// rather than retrying on every turn.
func (a *Agent) loadHistory(ctx context.Context) {
	if a.historyLoaded {
		return
	}
	a.historyLoaded = true

	if a.historySource == nil || a.sessionID == "" {
		return
	}
	events, err := a.historySource.Events(ctx, a.sessionID,
		sessions.EventUserMessage, sessions.EventAiResponse)
	if err != nil {
		slog.Warn("history load failed, starting fresh", "session_id", a.sessionID, "error", err)
		return
	}
	for _, e := range events {
		switch e.Type {
		case sessions.EventUserMessage:
			a.history = append(a.history, &schema.Message{Role: schema.User, Content: e.Content})
		case sessions.EventAiResponse:
			a.history = append(a.history, &schema.Message{Role: schema.Assistant, Content: e.Content})
		}
	}
	if len(events) > 0 {
		slog.Debug("history replayed", "session_id", a.sessionID, "events", len(events))
	}
}

func (a *Agent) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func parseArgs(argsJSON string) map[string]any {
	if strings.TrimSpace(argsJSON) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return map[string]any{"raw": argsJSON}
	}
	return args
}

func parseResult(resultJSON string) any {
	var result any
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return resultJSON
	}
	return result
}

// splitTokens cuts text at word boundaries, keeping trailing whitespace
// attached so the concatenation of all tokens reproduces the text exactly.
func splitTokens(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if inSpace && !isSpace {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
