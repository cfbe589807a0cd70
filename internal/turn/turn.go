// Package turn drives the conversation loop: it takes user input, calls
// the injected model provider, routes any tool calls through the safety
// classifier and parallel dispatcher, executes shell calls against the
// PTY session manager, and shadows every item it appends to the rollout
// journal. The model HTTP client itself is out of scope here — it is an
// injected ModelProvider, the same seam internal/agent/orchestrator.go
// uses for its LLMProvider.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeturn/core/internal/classifier"
	"github.com/codeturn/core/internal/dispatch"
	"github.com/codeturn/core/internal/journal"
	"github.com/codeturn/core/internal/ptysession"
	"github.com/codeturn/core/internal/ratelimit"
	"github.com/codeturn/core/internal/session"
)

// ToolCall is one function call the model asked to make.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Shell     *ShellCall
}

// ShellCall carries the local_shell_call payload when ToolCall.Name
// names the local shell tool rather than an opaque function the caller
// resolves itself.
type ShellCall struct {
	Argv                []string
	Cwd                 string
	TimeoutMs           int64
	EscalatedPermission bool
}

// Response is one model turn's output.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Finished  bool
}

// ModelProvider is the injected model client seam. The HTTP client that
// implements it is out of this module's scope.
type ModelProvider interface {
	Chat(ctx context.Context, items []session.Item) (Response, error)
	Health(ctx context.Context) error
}

// ExtraToolRunner resolves a tool call this controller doesn't know how
// to run natively (anything other than exec_command/write_stdin/local_shell).
// Implementations are injected; a nil ExtraToolRunner makes every
// unrecognized tool name fail closed.
type ExtraToolRunner func(ctx context.Context, name, arguments string) (content string, success bool, err error)

const (
	ToolExecCommand = "exec_command"
	ToolWriteStdin  = "write_stdin"
	ToolLocalShell  = "local_shell"

	healthCacheTTL = 60 * time.Second
)

type healthEntry struct {
	healthy   bool
	checkedAt time.Time
}

// EventKind discriminates Event: the dispatcher's parallel-execution
// progress events generalized to cover the whole turn.
type EventKind string

const (
	EventPlan              EventKind = "plan"
	EventToolCall          EventKind = "tool_call"
	EventToolOutput        EventKind = "tool_output"
	EventPermissionRequest EventKind = "permission_request"
	EventFinal             EventKind = "final"
	EventError             EventKind = "error"
)

// Event is emitted to the caller's channel as the turn progresses.
type Event struct {
	Kind     EventKind
	Content  string
	CallID   string
	ToolName string
}

// Controller drives one session's conversation loop.
type Controller struct {
	Session     *session.Session
	Journal     *journal.Handle
	Provider    ModelProvider
	PtyMgr      *ptysession.Manager
	Limiter     *ratelimit.Limiter
	Trusted     []classifier.TrustedPattern
	ExtraTools  ExtraToolRunner
	AutoAccept  bool
	Logger      *slog.Logger

	Events chan<- Event

	mu    sync.Mutex
	items []session.Item

	healthMu    sync.Mutex
	healthCache healthEntry

	pending *ToolCall
}

// Items returns a copy of the conversation items accumulated so far.
func (c *Controller) Items() []session.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Item(nil), c.items...)
}

// LoadItems seeds the controller's in-memory conversation from a resumed
// or forked journal (journal.Resume / journal.Fork's Items field).
func (c *Controller) LoadItems(items []session.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]session.Item(nil), items...)
}

func (c *Controller) append(item session.Item) {
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()
	c.Journal.Append([]session.Item{item})
}

func (c *Controller) emit(e Event) {
	if c.Events == nil {
		return
	}
	c.Events <- e
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// CheckHealth probes the model provider's health, reusing the result for
// healthCacheTTL so a flapping provider isn't re-checked on every turn
// (the same cache-then-probe shape as internal/timeline's health cache).
func (c *Controller) CheckHealth(ctx context.Context) bool {
	c.healthMu.Lock()
	if time.Since(c.healthCache.checkedAt) < healthCacheTTL {
		healthy := c.healthCache.healthy
		c.healthMu.Unlock()
		return healthy
	}
	c.healthMu.Unlock()

	healthy := c.Provider.Health(ctx) == nil
	now := time.Now()

	c.healthMu.Lock()
	c.healthCache = healthEntry{healthy: healthy, checkedAt: now}
	c.healthMu.Unlock()
	return healthy
}

var errProviderUnhealthy = errors.New("turn: model provider failed health check")

// RunTurn appends userInput (if non-empty — a resumed turn may already
// have a pending tool-call round to finish) and drives the conversation
// loop until the model finishes, a tool call needs permission, or ctx is
// cancelled.
func (c *Controller) RunTurn(ctx context.Context, userInput string) error {
	if userInput != "" {
		c.append(session.UserMessage(userInput))
	}

	for {
		if !c.CheckHealth(ctx) {
			c.emit(Event{Kind: EventError, Content: "model provider failed health check"})
			return errProviderUnhealthy
		}

		c.emit(Event{Kind: EventPlan, Content: "waiting on model response"})

		resp, err := c.Provider.Chat(ctx, c.Items())
		if err != nil {
			c.emit(Event{Kind: EventError, Content: err.Error()})
			return fmt.Errorf("turn: model chat: %w", err)
		}

		if resp.Reasoning != "" {
			c.append(session.ReasoningItem(resp.Reasoning))
		}
		if resp.Content != "" {
			c.append(session.AssistantMessage(resp.Content))
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Finished {
				c.emit(Event{Kind: EventFinal, Content: resp.Content})
				return nil
			}
			err := fmt.Errorf("turn: model response was not finished but contained no tool calls")
			c.emit(Event{Kind: EventError, Content: err.Error()})
			return err
		}

		done, err := c.handleToolCalls(ctx, resp.ToolCalls)
		if err != nil {
			return err
		}
		if !done {
			// A tool call is awaiting permission; pause the loop here.
			return nil
		}
	}
}

// ApprovePending re-submits a tool call that was paused by
// EventPermissionRequest, then resumes the conversation loop.
func (c *Controller) ApprovePending(ctx context.Context) error {
	c.mu.Lock()
	pc := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("turn: no tool call is pending approval")
	}
	if pc.Shell != nil {
		escalated := *pc.Shell
		escalated.EscalatedPermission = true
		pc.Shell = &escalated
	}
	done, err := c.handleToolCalls(ctx, []ToolCall{*pc})
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	return c.RunTurn(ctx, "")
}

func (c *Controller) handleToolCalls(ctx context.Context, calls []ToolCall) (done bool, err error) {
	for i := range calls {
		tc := calls[i]
		if tc.Shell != nil && !c.AutoAccept && !classifier.IsKnownSafe(tc.Shell.Argv, c.Trusted) && !tc.Shell.EscalatedPermission {
			c.append(session.LocalShellCall(tc.ID, tc.Shell.Argv, tc.Shell.Cwd, tc.Shell.TimeoutMs, false))
			c.mu.Lock()
			c.pending = &tc
			c.mu.Unlock()
			c.emit(Event{Kind: EventPermissionRequest, CallID: tc.ID, ToolName: tc.Name, Content: fmt.Sprintf("%v", tc.Shell.Argv)})
			return false, nil
		}
	}

	dcalls := make([]dispatch.Call, len(calls))
	for i, tc := range calls {
		dc := dispatch.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
		if tc.Shell != nil {
			dc.IsShell = true
			if len(tc.Shell.Argv) > 0 {
				dc.ShellArgv0 = tc.Shell.Argv[0]
			}
			c.append(session.LocalShellCall(tc.ID, tc.Shell.Argv, tc.Shell.Cwd, tc.Shell.TimeoutMs, tc.Shell.EscalatedPermission))
		} else {
			c.append(session.FunctionCall(tc.ID, tc.Name, tc.Arguments))
		}
		dcalls[i] = dc
		c.emit(Event{Kind: EventToolCall, CallID: tc.ID, ToolName: tc.Name})
	}

	byID := make(map[string]ToolCall, len(calls))
	for _, tc := range calls {
		byID[tc.ID] = tc
	}

	groups := dispatch.IdentifyGroups(dcalls)
	results, err := dispatch.Run(ctx, groups, c.Limiter, func(ctx context.Context, dc dispatch.Call) dispatch.Result {
		return c.runOne(ctx, byID[dc.ID])
	}, func(dispatch.Event) {})
	if err != nil {
		c.emit(Event{Kind: EventError, Content: err.Error()})
		return false, fmt.Errorf("turn: dispatch: %w", err)
	}

	for _, r := range results {
		tc := byID[r.ID]
		success := r.Success
		content := r.Content
		if r.Err != nil {
			success = false
			content = r.Err.Error()
		}
		if tc.Shell != nil {
			c.append(session.LocalShellCallOutput(r.ID, content, success))
		} else {
			c.append(session.FunctionCallOutput(r.ID, content, success))
		}
		c.emit(Event{Kind: EventToolOutput, CallID: r.ID, Content: content})
	}

	return true, nil
}

// runOne executes a single tool call: exec_command/write_stdin/local_shell
// go straight to the PTY manager; anything else is delegated to the
// injected ExtraTools hook, the same dispatch-by-name shape
// internal/tools/runner.go's MultiRunner.Run uses.
func (c *Controller) runOne(ctx context.Context, tc ToolCall) dispatch.Result {
	switch tc.Name {
	case ToolExecCommand, ToolLocalShell:
		var p ptysession.ExecParams
		if tc.Shell != nil {
			p.Cmd = shellJoin(tc.Shell.Argv)
		} else if err := json.Unmarshal([]byte(tc.Arguments), &p); err != nil {
			return dispatch.Result{ID: tc.ID, Err: fmt.Errorf("turn: bad exec_command arguments: %w", err)}
		}
		out, err := c.PtyMgr.ExecCommand(ctx, p)
		if err != nil {
			return dispatch.Result{ID: tc.ID, Err: err}
		}
		return dispatch.Result{ID: tc.ID, Success: out.ExitCode == 0 || out.Ongoing, Content: out.Render()}

	case ToolWriteStdin:
		var p ptysession.WriteStdinParams
		if err := json.Unmarshal([]byte(tc.Arguments), &p); err != nil {
			return dispatch.Result{ID: tc.ID, Err: fmt.Errorf("turn: bad write_stdin arguments: %w", err)}
		}
		out, err := c.PtyMgr.WriteStdin(ctx, p)
		if err != nil {
			return dispatch.Result{ID: tc.ID, Err: err}
		}
		return dispatch.Result{ID: tc.ID, Success: out.ExitCode == 0 || out.Ongoing, Content: out.Render()}

	default:
		if c.ExtraTools == nil {
			return dispatch.Result{ID: tc.ID, Err: fmt.Errorf("turn: no runner registered for tool %q", tc.Name)}
		}
		content, success, err := c.ExtraTools(ctx, tc.Name, tc.Arguments)
		if err != nil {
			return dispatch.Result{ID: tc.ID, Err: err}
		}
		return dispatch.Result{ID: tc.ID, Success: success, Content: content}
	}
}

// shellJoin renders argv into a single shell command string, quoting each
// token that needs it so exec_command's bash -lc re-parse sees the same
// argument boundaries the classifier approved — the same quoting rule
// internal/summarize/shlex.go's shlexJoin uses for the reverse direction
// (rendering parsed argv back into a display string).
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	needsQuote := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_-./,:@%+=", r):
		default:
			needsQuote = true
		}
		if needsQuote {
			break
		}
	}
	if !needsQuote {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
