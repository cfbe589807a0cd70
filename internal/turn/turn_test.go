package turn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codeturn/core/internal/journal"
	"github.com/codeturn/core/internal/ptysession"
	"github.com/codeturn/core/internal/session"
)

// fakeProvider is a scripted ModelProvider: each call to Chat pops the next
// queued Response (or the last one, if the queue is exhausted).
type fakeProvider struct {
	responses []Response
	calls     int
	healthErr error
}

func (f *fakeProvider) Chat(ctx context.Context, items []session.Item) (Response, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return f.responses[i], nil
}

func (f *fakeProvider) Health(ctx context.Context) error {
	return f.healthErr
}

func newHandle(t *testing.T) *journal.Handle {
	t.Helper()
	sess := session.New("test", t.TempDir())
	h, err := journal.Open(t.TempDir(), sess, nil)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(h.Shutdown)
	return h
}

func TestRunTurnFinishesWithoutToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []Response{
		{Content: "done", Finished: true},
	}}
	events := make(chan Event, 16)
	c := &Controller{
		Session:  session.New("test", t.TempDir()),
		Journal:  newHandle(t),
		Provider: provider,
		Events:   events,
	}

	if err := c.RunTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	items := c.Items()
	if len(items) != 2 {
		t.Fatalf("want 2 items (user + assistant), got %d: %+v", len(items), items)
	}
	if items[0].Kind != session.KindUserMessage || items[0].Content != "hello" {
		t.Fatalf("items[0] = %+v, want user message", items[0])
	}
	if items[1].Kind != session.KindAssistantMessage || items[1].Content != "done" {
		t.Fatalf("items[1] = %+v, want assistant message", items[1])
	}

	var sawFinal bool
	close(events)
	for e := range events {
		if e.Kind == EventFinal {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Fatalf("expected an EventFinal event")
	}
}

func TestRunTurnUnfinishedWithoutToolCallsIsError(t *testing.T) {
	provider := &fakeProvider{responses: []Response{
		{Content: "thinking", Finished: false},
	}}
	c := &Controller{
		Session:  session.New("test", t.TempDir()),
		Journal:  newHandle(t),
		Provider: provider,
	}

	if err := c.RunTurn(context.Background(), "hello"); err == nil {
		t.Fatalf("expected an error for an unfinished response with no tool calls")
	}
}

func TestRunTurnUnhealthyProviderStopsImmediately(t *testing.T) {
	provider := &fakeProvider{healthErr: errors.New("boom")}
	c := &Controller{
		Session:  session.New("test", t.TempDir()),
		Journal:  newHandle(t),
		Provider: provider,
	}

	err := c.RunTurn(context.Background(), "hello")
	if !errors.Is(err, errProviderUnhealthy) {
		t.Fatalf("err = %v, want errProviderUnhealthy", err)
	}
	// Only the user message should have been appended; Chat was never reached.
	items := c.Items()
	if len(items) != 1 || items[0].Kind != session.KindUserMessage {
		t.Fatalf("items = %+v, want just the user message", items)
	}
}

func TestCheckHealthCachesResultWithinTTL(t *testing.T) {
	provider := &fakeProvider{}
	c := &Controller{Provider: provider}

	if !c.CheckHealth(context.Background()) {
		t.Fatalf("expected healthy on first check")
	}
	if c.healthCache.checkedAt.IsZero() {
		t.Fatalf("expected CheckHealth to stamp the cache")
	}

	provider.healthErr = errors.New("now failing")
	if !c.CheckHealth(context.Background()) {
		t.Fatalf("expected the cached healthy result within the TTL, got unhealthy")
	}

	c.healthCache.checkedAt = time.Now().Add(-2 * healthCacheTTL)
	if c.CheckHealth(context.Background()) {
		t.Fatalf("expected a fresh probe once the cache entry expired")
	}
}

func TestHandleToolCallsPausesForUnsafeShellCall(t *testing.T) {
	events := make(chan Event, 16)
	c := &Controller{
		Session: session.New("test", t.TempDir()),
		Journal: newHandle(t),
		Events:  events,
	}

	calls := []ToolCall{{
		ID:   "call-1",
		Name: ToolExecCommand,
		Shell: &ShellCall{
			Argv: []string{"rm", "-rf", "/tmp/whatever"},
		},
	}}

	done, err := c.handleToolCalls(context.Background(), calls)
	if err != nil {
		t.Fatalf("handleToolCalls: %v", err)
	}
	if done {
		t.Fatalf("expected handleToolCalls to pause for an unsafe call")
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil || pending.ID != "call-1" {
		t.Fatalf("expected call-1 stashed as pending, got %+v", pending)
	}

	close(events)
	var sawPermission bool
	for e := range events {
		if e.Kind == EventPermissionRequest && e.CallID == "call-1" {
			sawPermission = true
		}
	}
	if !sawPermission {
		t.Fatalf("expected an EventPermissionRequest for call-1")
	}
}

func TestHandleToolCallsRunsSafeShellCallAndAppendsOutput(t *testing.T) {
	c := &Controller{
		Session: session.New("test", t.TempDir()),
		Journal: newHandle(t),
		PtyMgr:  ptysession.NewManager(),
	}

	calls := []ToolCall{{
		ID:   "call-2",
		Name: ToolExecCommand,
		Shell: &ShellCall{
			Argv: []string{"echo", "hello"},
		},
	}}

	// echo is an unconditionally-safe read command; it should run through
	// the dispatcher rather than pausing for permission.
	done, err := c.handleToolCalls(context.Background(), calls)
	if err != nil {
		t.Fatalf("handleToolCalls: %v", err)
	}
	if !done {
		t.Fatalf("expected a known-safe call to run rather than pause")
	}

	items := c.Items()
	var sawOutput bool
	for _, it := range items {
		if it.Kind == session.KindLocalShellOutput && it.CallID == "call-2" {
			sawOutput = true
			if !it.Success {
				t.Fatalf("expected echo to succeed, got failed output: %+v", it)
			}
		}
	}
	if !sawOutput {
		t.Fatalf("expected a local_shell_call_output item for call-2, got %+v", items)
	}
}

func TestApprovePendingResumesAfterApproval(t *testing.T) {
	provider := &fakeProvider{responses: []Response{
		{Content: "all done", Finished: true},
	}}
	c := &Controller{
		Session:  session.New("test", t.TempDir()),
		Journal:  newHandle(t),
		Provider: provider,
		PtyMgr:   ptysession.NewManager(),
	}

	c.mu.Lock()
	c.pending = &ToolCall{
		ID:   "call-3",
		Name: ToolExecCommand,
		Shell: &ShellCall{
			Argv: []string{"echo", "risky"},
		},
	}
	c.mu.Unlock()

	if err := c.ApprovePending(context.Background()); err != nil {
		t.Fatalf("ApprovePending: %v", err)
	}

	items := c.Items()
	var sawShellOutput, sawFinal bool
	for _, it := range items {
		if it.Kind == session.KindLocalShellOutput && it.CallID == "call-3" {
			sawShellOutput = true
		}
		if it.Kind == session.KindAssistantMessage && it.Content == "all done" {
			sawFinal = true
		}
	}
	if !sawShellOutput {
		t.Fatalf("expected call-3's output appended, got %+v", items)
	}
	if !sawFinal {
		t.Fatalf("expected the resumed turn to reach the model's final message, got %+v", items)
	}
}

func TestShellJoinQuotesMetacharacters(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"echo", "hello"}, "echo hello"},
		{[]string{"echo", "hi; rm -rf /tmp"}, `echo 'hi; rm -rf /tmp'`},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"printf", "%s\n", "$HOME"}, `printf '%s\n' '$HOME'`},
	}
	for _, tt := range tests {
		if got := shellJoin(tt.argv); got != tt.want {
			t.Fatalf("shellJoin(%v) = %q, want %q", tt.argv, got, tt.want)
		}
	}
}

// TestRunOneQuotesShellMetacharactersInArgv proves the exec_command path
// doesn't let a shell metacharacter inside one argv element spill out into
// a second command: classifier.IsKnownSafe only inspects argv[0] ("echo"),
// so if runOne joined argv without quoting, this argv would execute a
// second "rm" command inside bash -lc instead of printing the literal
// string.
func TestRunOneQuotesShellMetacharactersInArgv(t *testing.T) {
	c := &Controller{
		Session: session.New("test", t.TempDir()),
		Journal: newHandle(t),
		PtyMgr:  ptysession.NewManager(),
	}

	calls := []ToolCall{{
		ID:   "call-4",
		Name: ToolExecCommand,
		Shell: &ShellCall{
			Argv: []string{"echo", "hi; echo injected"},
		},
	}}

	done, err := c.handleToolCalls(context.Background(), calls)
	if err != nil {
		t.Fatalf("handleToolCalls: %v", err)
	}
	if !done {
		t.Fatalf("expected a known-safe call to run rather than pause")
	}

	var out string
	for _, it := range c.Items() {
		if it.Kind == session.KindLocalShellOutput && it.CallID == "call-4" {
			out = it.Content
		}
	}
	if !strings.Contains(out, "hi; echo injected") {
		t.Fatalf("expected the literal argument echoed back verbatim, got %q", out)
	}
	if strings.Count(out, "injected") != 1 {
		t.Fatalf("expected \"injected\" to appear exactly once (as literal text, not a re-executed command), got %q", out)
	}
}

func TestApprovePendingWithNothingPendingIsError(t *testing.T) {
	c := &Controller{Session: session.New("test", t.TempDir()), Journal: newHandle(t)}
	if err := c.ApprovePending(context.Background()); err == nil {
		t.Fatalf("expected an error when nothing is pending")
	}
}
