package postprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/sessions"
)

// scriptedCompleter replays canned completions and records the prompts.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
	calls   int
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i >= len(c.replies) {
		return "", fmt.Errorf("unexpected completion call %d", i+1)
	}
	return c.replies[i], nil
}

func seedConversation(t *testing.T, store sessions.Store, id string) *sessions.Lifecycle {
	t.Helper()
	ctx := context.Background()
	lc, err := sessions.Start(ctx, store, id, "anonymous")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := lc.LogUserInput(ctx, "what is the capital of France?"); err != nil {
		t.Fatalf("LogUserInput: %v", err)
	}
	if err := lc.LogAiOutput(ctx, "The capital of France is Paris."); err != nil {
		t.Fatalf("LogAiOutput: %v", err)
	}
	return lc
}

func TestEmptySessionDeleted(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	if _, err := sessions.Start(ctx, store, "sess-empty", "anonymous"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p := New(store, &scriptedCompleter{}, 0)
	if got := p.run(ctx, "sess-empty"); got != OutcomeDeleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeDeleted)
	}

	if _, err := store.GetSession(ctx, "sess-empty"); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("GetSession after delete = %v, want ErrNotFound", err)
	}
}

func TestSummaryAndTitle(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-chat")

	c := &scriptedCompleter{replies: []string{
		"User asked about the capital of France and learned it is Paris.",
		"France Capital Question",
	}}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-chat"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	sess, err := store.GetSession(ctx, "sess-chat")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Summary != "User asked about the capital of France and learned it is Paris." {
		t.Fatalf("Summary = %q", sess.Summary)
	}
	if sess.Title != "France Capital Question" {
		t.Fatalf("Title = %q", sess.Title)
	}
	if sess.Status != sessions.StatusCompleted {
		t.Fatalf("Status = %q, want %q", sess.Status, sessions.StatusCompleted)
	}
	if sess.EndTime == nil || sess.DurationSeconds == nil {
		t.Fatal("end markers not set by finalization")
	}

	if len(c.prompts) != 2 {
		t.Fatalf("got %d completion calls, want 2", len(c.prompts))
	}
	if !strings.Contains(c.prompts[0], "User: what is the capital of France?") ||
		!strings.Contains(c.prompts[0], "Assistant: The capital of France is Paris.") {
		t.Fatalf("summary prompt missing transcript:\n%s", c.prompts[0])
	}
	if !strings.Contains(c.prompts[1], "User asked about the capital of France") {
		t.Fatalf("title prompt missing summary:\n%s", c.prompts[1])
	}
}

func TestTitleStripsQuotes(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-quotes")

	c := &scriptedCompleter{replies: []string{
		"A short summary.",
		`"Quoted Title"`,
	}}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-quotes"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	sess, err := store.GetSession(ctx, "sess-quotes")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Title != "Quoted Title" {
		t.Fatalf("Title = %q, want %q", sess.Title, "Quoted Title")
	}
}

func TestTitleTruncated(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-long-title")

	long := strings.Repeat("x", 60)
	c := &scriptedCompleter{replies: []string{"A short summary.", long}}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-long-title"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	sess, err := store.GetSession(ctx, "sess-long-title")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	want := strings.Repeat("x", 47) + "..."
	if sess.Title != want {
		t.Fatalf("Title = %q, want %q", sess.Title, want)
	}
}

func TestTitleFailureFallsBackToSummaryPrefix(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-title-err")

	summary := "This summary is definitely longer than thirty characters."
	c := &scriptedCompleter{
		replies: []string{summary},
		errs:    []error{nil, fmt.Errorf("title backend down")},
	}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-title-err"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	sess, err := store.GetSession(ctx, "sess-title-err")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	want := summary[:30] + "..."
	if sess.Title != want {
		t.Fatalf("Title = %q, want %q", sess.Title, want)
	}
	if sess.Summary != summary {
		t.Fatalf("Summary = %q, want %q", sess.Summary, summary)
	}
}

func TestSummaryFailureMarksError(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-sum-err")

	c := &scriptedCompleter{errs: []error{fmt.Errorf("model down")}}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-sum-err"); got != OutcomeError {
		t.Fatalf("outcome = %q, want %q", got, OutcomeError)
	}

	sess, err := store.GetSession(ctx, "sess-sum-err")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != sessions.StatusError {
		t.Fatalf("Status = %q, want %q", sess.Status, sessions.StatusError)
	}
	if sess.Summary != "" {
		t.Fatalf("Summary = %q, want empty", sess.Summary)
	}
}

func TestNoModelFinalizesWithoutSummary(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	seedConversation(t, store, "sess-no-model")

	p := New(store, nil, 0)
	if got := p.run(ctx, "sess-no-model"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	sess, err := store.GetSession(ctx, "sess-no-model")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Summary != "" || sess.Title != "" {
		t.Fatalf("Summary/Title = %q/%q, want empty", sess.Summary, sess.Title)
	}
	if sess.Status != sessions.StatusCompleted {
		t.Fatalf("Status = %q, want %q", sess.Status, sessions.StatusCompleted)
	}
}

func TestFinalizePreservesEndMarkers(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	lc := seedConversation(t, store, "sess-ended")
	if err := lc.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}

	before, err := store.GetSession(ctx, "sess-ended")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	c := &scriptedCompleter{replies: []string{"Summary.", "Title"}}
	p := New(store, c, 0)
	if got := p.run(ctx, "sess-ended"); got != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", got, OutcomeCompleted)
	}

	after, err := store.GetSession(ctx, "sess-ended")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if after.EndTime == nil || !after.EndTime.Equal(*before.EndTime) {
		t.Fatalf("EndTime changed: %v -> %v", before.EndTime, after.EndTime)
	}
	if after.DurationSeconds == nil || *after.DurationSeconds != *before.DurationSeconds {
		t.Fatalf("DurationSeconds changed: %v -> %v", before.DurationSeconds, after.DurationSeconds)
	}
}

func TestScheduleRunsDetached(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemStore()
	if _, err := sessions.Start(ctx, store, "sess-detached", "anonymous"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p := New(store, &scriptedCompleter{}, time.Minute)
	p.Schedule("sess-detached")
	p.Close()

	if _, err := store.GetSession(ctx, "sess-detached"); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("GetSession after scheduled delete = %v, want ErrNotFound", err)
	}
}
