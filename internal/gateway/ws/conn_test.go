package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/coder/websocket"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/models"
	"github.com/parleyhq/parley/internal/sessions"
	"github.com/parleyhq/parley/internal/tools"
)

// scriptedModel replays canned replies in call order.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   int
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.replies) {
		return nil, fmt.Errorf("unexpected model call %d", m.calls+1)
	}
	reply := m.replies[m.calls]
	m.calls++
	return reply, nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("stream not supported")
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type recordingScheduler struct {
	ch chan string
}

func (s *recordingScheduler) Schedule(id string) { s.ch <- id }

func engineWith(store sessions.Store, m model.ToolCallingChatModel) EngineFactory {
	return func(_ context.Context, sessionID string) *agent.Agent {
		return agent.New(agent.Config{
			SessionID:   sessionID,
			Model:       m,
			Tools:       tools.NewRegistry(),
			History:     store,
			StreamDelay: time.Millisecond,
		})
	}
}

func newTestServer(t *testing.T, h *Handler) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/ws/session/"))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func dial(t *testing.T, ctx context.Context, srvURL, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws/session/" + sessionID
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func sendText(t *testing.T, ctx context.Context, c *websocket.Conn, payload string) {
	t.Helper()
	if err := c.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write %q: %v", payload, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, c *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f map[string]any
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return f
}

// readTurn collects frames until the terminal one of a turn.
func readTurn(t *testing.T, ctx context.Context, c *websocket.Conn) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		f := readFrame(t, ctx, c)
		frames = append(frames, f)
		if f["type"] == FrameComplete || f["type"] == FrameError {
			return frames
		}
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	h := NewHandler(store, engineWith(store, &scriptedModel{}), nil)
	c := dial(t, ctx, newTestServer(t, h), "sess-bad-frame")

	sendText(t, ctx, c, "not-json")
	f := readFrame(t, ctx, c)
	if f["type"] != FrameError {
		t.Fatalf("frame type = %q, want %q", f["type"], FrameError)
	}
	if f["message"] != invalidFormatMessage {
		t.Fatalf("message = %q, want %q", f["message"], invalidFormatMessage)
	}

	// Still open: a ping round-trips.
	sendText(t, ctx, c, `{"type":"ping"}`)
	if f := readFrame(t, ctx, c); f["type"] != FramePong {
		t.Fatalf("frame type = %q, want %q", f["type"], FramePong)
	}

	events, err := store.Events(ctx, "sess-bad-frame")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d persisted events, want 0", len(events))
	}
}

func TestUnknownSessionCreatesAnonymous(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	m := &scriptedModel{replies: []*schema.Message{
		{Role: schema.Assistant, Content: "Hello there."},
	}}
	h := NewHandler(store, engineWith(store, m), nil)
	c := dial(t, ctx, newTestServer(t, h), "sess-fresh")

	// The pong guarantees attach has finished.
	sendText(t, ctx, c, `{"type":"ping"}`)
	if f := readFrame(t, ctx, c); f["type"] != FramePong {
		t.Fatalf("frame type = %q, want %q", f["type"], FramePong)
	}

	sess, err := store.GetSession(ctx, "sess-fresh")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.UserID != "anonymous" {
		t.Fatalf("UserID = %q, want %q", sess.UserID, "anonymous")
	}
	if sess.Status != sessions.StatusActive {
		t.Fatalf("Status = %q, want %q", sess.Status, sessions.StatusActive)
	}

	sendText(t, ctx, c, `{"type":"message","content":"hi"}`)
	frames := readTurn(t, ctx, c)

	last := frames[len(frames)-1]
	if last["type"] != FrameComplete {
		t.Fatalf("terminal frame type = %q, want %q", last["type"], FrameComplete)
	}
	if last["content"] != "Hello there." {
		t.Fatalf("content = %q, want %q", last["content"], "Hello there.")
	}

	var streamed string
	for _, f := range frames[:len(frames)-1] {
		if f["type"] != FrameToken {
			t.Fatalf("mid-turn frame type = %q, want %q", f["type"], FrameToken)
		}
		streamed += f["token"].(string)
	}
	if streamed != "Hello there." {
		t.Fatalf("concatenated tokens = %q, want %q", streamed, "Hello there.")
	}
}

func TestToolCallFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	m := &scriptedModel{replies: []*schema.Message{
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{
			ID:       "call-1",
			Function: schema.FunctionCall{Name: "calculate", Arguments: `{"expression":"2+2"}`},
		}}},
		{Role: schema.Assistant, Content: "2 + 2 equals 4."},
	}}
	h := NewHandler(store, engineWith(store, m), nil)
	c := dial(t, ctx, newTestServer(t, h), "sess-tool")

	sendText(t, ctx, c, `{"type":"message","content":"what is 2+2?"}`)
	frames := readTurn(t, ctx, c)

	if frames[0]["type"] != FrameToolCall {
		t.Fatalf("frame 0 type = %q, want %q", frames[0]["type"], FrameToolCall)
	}
	if frames[0]["tool_name"] != "calculate" {
		t.Fatalf("tool_name = %q, want %q", frames[0]["tool_name"], "calculate")
	}
	input, ok := frames[0]["tool_input"].(map[string]any)
	if !ok || input["expression"] != "2+2" {
		t.Fatalf("tool_input = %v, want expression 2+2", frames[0]["tool_input"])
	}

	if frames[1]["type"] != FrameToolResult {
		t.Fatalf("frame 1 type = %q, want %q", frames[1]["type"], FrameToolResult)
	}
	result, ok := frames[1]["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v, want object", frames[1]["result"])
	}
	if result["success"] != true {
		t.Fatalf("result.success = %v, want true", result["success"])
	}
	if result["result"] != float64(4) {
		t.Fatalf("result.result = %v, want 4", result["result"])
	}

	last := frames[len(frames)-1]
	if last["type"] != FrameComplete || last["content"] != "2 + 2 equals 4." {
		t.Fatalf("terminal frame = %v, want complete with answer", last)
	}

	// Storage order matches wire order; the reply row is written before the
	// complete frame is sent, so it is visible here.
	events, err := store.Events(ctx, "sess-tool")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	wantTypes := []sessions.EventType{
		sessions.EventUserMessage,
		sessions.EventToolCall,
		sessions.EventToolResult,
		sessions.EventAiResponse,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Fatalf("event %d type = %q, want %q", i, events[i].Type, want)
		}
	}
	if events[0].Content != "what is 2+2?" {
		t.Fatalf("user event content = %q", events[0].Content)
	}
	if events[1].Content != "calculate" || events[1].Metadata["expression"] != "2+2" {
		t.Fatalf("tool call event = %q %v", events[1].Content, events[1].Metadata)
	}
	if events[3].Content != "2 + 2 equals 4." {
		t.Fatalf("reply event content = %q", events[3].Content)
	}
}

func TestEmptyReplyReportsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	m := &scriptedModel{replies: []*schema.Message{
		{Role: schema.Assistant, Content: "   "},
	}}
	h := NewHandler(store, engineWith(store, m), nil)
	c := dial(t, ctx, newTestServer(t, h), "sess-empty")

	sendText(t, ctx, c, `{"type":"message","content":"hello?"}`)
	frames := readTurn(t, ctx, c)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0]["type"] != FrameError {
		t.Fatalf("frame type = %q, want %q", frames[0]["type"], FrameError)
	}
	if frames[0]["message"] != models.EmptyReplyMessage {
		t.Fatalf("message = %q, want %q", frames[0]["message"], models.EmptyReplyMessage)
	}

	events, err := store.Events(ctx, "sess-empty")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var types []sessions.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	if len(types) != 2 || types[0] != sessions.EventUserMessage || types[1] != sessions.EventError {
		t.Fatalf("event types = %v, want [user_message error]", types)
	}
}

func TestWhitespaceContentIgnored(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	h := NewHandler(store, engineWith(store, &scriptedModel{}), nil)
	c := dial(t, ctx, newTestServer(t, h), "sess-blank")

	sendText(t, ctx, c, `{"type":"message","content":"   \n  "}`)

	// No turn ran: the next frame is the pong, and nothing was persisted.
	sendText(t, ctx, c, `{"type":"ping"}`)
	if f := readFrame(t, ctx, c); f["type"] != FramePong {
		t.Fatalf("frame type = %q, want %q", f["type"], FramePong)
	}

	events, err := store.Events(ctx, "sess-blank")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d persisted events, want 0", len(events))
	}
}

func TestDisconnectFinalizesSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	sched := &recordingScheduler{ch: make(chan string, 1)}
	h := NewHandler(store, engineWith(store, &scriptedModel{}), sched)
	c := dial(t, ctx, newTestServer(t, h), "sess-gone")

	sendText(t, ctx, c, `{"type":"ping"}`)
	if f := readFrame(t, ctx, c); f["type"] != FramePong {
		t.Fatalf("frame type = %q, want %q", f["type"], FramePong)
	}

	c.Close(websocket.StatusNormalClosure, "")

	select {
	case id := <-sched.ch:
		if id != "sess-gone" {
			t.Fatalf("scheduled id = %q, want %q", id, "sess-gone")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("post-processing was not scheduled after disconnect")
	}

	// Schedule runs after End, so the end markers are already visible.
	sess, err := store.GetSession(ctx, "sess-gone")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != sessions.StatusCompleted {
		t.Fatalf("Status = %q, want %q", sess.Status, sessions.StatusCompleted)
	}
	if sess.EndTime == nil || sess.DurationSeconds == nil {
		t.Fatal("end markers not set after disconnect")
	}

	events, err := store.Events(ctx, "sess-gone", sessions.EventSystem)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Content != "Session ended" {
		t.Fatalf("system events = %v, want one %q", events, "Session ended")
	}
}
