package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	wsprotocol "github.com/parleyhq/parley/internal/gateway/ws"
	"github.com/parleyhq/parley/internal/sessions"
)

func TestClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := sessions.NewMemStore()
	factory := func(_ context.Context, _ string) *agent.Agent {
		return agent.Disabled(fmt.Errorf("no backend in tests"))
	}
	h := wsprotocol.NewHandler(store, factory, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "sess-client")
	}))
	t.Cleanup(srv.Close)

	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	f, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != wsprotocol.FramePong {
		t.Fatalf("frame type = %q, want %q", f.Type, wsprotocol.FramePong)
	}

	// The engine is disabled, so a message comes back as one error frame.
	if err := c.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	f, err = c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != wsprotocol.FrameError {
		t.Fatalf("frame type = %q, want %q", f.Type, wsprotocol.FrameError)
	}
	if f.Message == "" {
		t.Fatal("expected an error message in the frame")
	}
}
