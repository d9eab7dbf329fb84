package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/sessions"
)

// invalidFormatMessage is reported inline for unparseable inbound frames.
const invalidFormatMessage = "Invalid message format"

// endTimeout bounds the post-disconnect bookkeeping.
const endTimeout = 10 * time.Second

// EngineFactory builds the conversation engine for a session at connect
// time. Construction failures surface as a disabled engine, not an error.
type EngineFactory func(ctx context.Context, sessionID string) *agent.Agent

// Scheduler queues a session for background finalization after the
// connection is gone.
type Scheduler interface {
	Schedule(sessionID string)
}

// Handler runs the websocket protocol for one session per connection.
type Handler struct {
	store  sessions.Store
	engine EngineFactory
	post   Scheduler
	active atomic.Int64
}

// NewHandler wires the connection loop to its collaborators.
func NewHandler(store sessions.Store, engine EngineFactory, post Scheduler) *Handler {
	return &Handler{store: store, engine: engine, post: post}
}

// ActiveSessions reports the number of currently connected sessions.
func (h *Handler) ActiveSessions() int64 {
	return h.active.Load()
}

// Serve upgrades the request and runs the session until the peer disconnects.
// Leaving by any path ends the session, schedules post-processing, and then
// closes the socket.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // browser clients connect from any origin
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}

	ctx := r.Context()

	lc, err := h.attach(ctx, sessionID)
	if err != nil {
		slog.Error("session attach failed", "session_id", sessionID, "error", err)
		c.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	eng := h.engine(ctx, sessionID)
	h.active.Add(1)
	slog.Info("session connected", "session_id", sessionID, "user_id", lc.UserID())

	defer func() {
		h.active.Add(-1)
		// The request context is already dead when the client disconnected.
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
		defer cancel()
		if err := lc.End(endCtx); err != nil {
			slog.Warn("end session failed", "session_id", sessionID, "error", err)
		}
		if h.post != nil {
			h.post.Schedule(sessionID)
		}
		c.Close(websocket.StatusNormalClosure, "")
		slog.Info("session disconnected", "session_id", sessionID)
	}()

	h.readLoop(ctx, c, lc, eng)
}

// attach resumes the session or, when the id is unknown, synthesizes a fresh
// anonymous one under that id.
func (h *Handler) attach(ctx context.Context, sessionID string) (*sessions.Lifecycle, error) {
	lc, err := sessions.Resume(ctx, h.store, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return sessions.Start(ctx, h.store, sessionID, "anonymous")
	}
	return lc, err
}

// readLoop processes inbound frames strictly one at a time; a turn finishes
// before the next frame is read.
func (h *Handler) readLoop(ctx context.Context, c *websocket.Conn, lc *sessions.Lifecycle, eng *agent.Agent) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("websocket read ended", "session_id", lc.ID(), "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		in, err := ParseInbound(data)
		if err != nil {
			h.send(ctx, c, ErrorFrame(invalidFormatMessage))
			continue
		}

		if in.Type == "ping" {
			h.send(ctx, c, PongFrame())
			continue
		}

		content := strings.TrimSpace(in.Content)
		if content == "" {
			continue
		}

		h.dispatch(ctx, c, lc, eng, content)
	}
}

// dispatch runs one turn: the user message is persisted first, then every
// engine event is persisted before it is sent so storage order matches wire
// order. A failed send cancels the turn; events already persisted stay.
func (h *Handler) dispatch(ctx context.Context, c *websocket.Conn, lc *sessions.Lifecycle, eng *agent.Agent, content string) {
	persistCtx := context.WithoutCancel(ctx)

	if err := lc.LogUserInput(persistCtx, content); err != nil {
		slog.Warn("persist user message failed", "session_id", lc.ID(), "error", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for ev := range eng.ProcessMessage(turnCtx, content) {
		h.persist(persistCtx, lc, ev)
		if err := h.send(turnCtx, c, frameFromEvent(ev)); err != nil {
			// Dead connection: stop sending, drain the engine.
			cancel()
		}
	}
}

func (h *Handler) persist(ctx context.Context, lc *sessions.Lifecycle, ev agent.Event) {
	var err error
	switch ev.Type {
	case agent.EventComplete:
		err = lc.LogAiOutput(ctx, ev.Content)
	case agent.EventToolCall:
		err = lc.LogToolCall(ctx, ev.ToolName, ev.ToolInput)
	case agent.EventToolResult:
		err = lc.LogToolResult(ctx, ev.ToolName, ev.Result)
	case agent.EventError:
		err = lc.LogError(ctx, ev.Message)
	default:
		// Tokens are transient; the complete event carries the full text.
		return
	}
	if err != nil {
		slog.Warn("persist event failed", "session_id", lc.ID(), "type", ev.Type, "error", err)
	}
}

func (h *Handler) send(ctx context.Context, c *websocket.Conn, f Frame) error {
	data, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

func frameFromEvent(ev agent.Event) Frame {
	switch ev.Type {
	case agent.EventToken:
		return TokenFrame(ev.Token)
	case agent.EventComplete:
		return CompleteFrame(ev.Content)
	case agent.EventToolCall:
		return ToolCallFrame(ev.ToolName, ev.ToolInput)
	case agent.EventToolResult:
		return ToolResultFrame(ev.ToolName, ev.Result)
	default:
		return ErrorFrame(ev.Message)
	}
}
