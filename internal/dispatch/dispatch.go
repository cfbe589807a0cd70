// Package dispatch groups a turn's tool calls into parallel-safe batches
// and runs each batch concurrently against the configured rate limiter.
// It generalizes internal/timeline/dispatch.go's task-fan-out loop
// (itself an errgroup-shaped concurrent dispatcher) to the coding
// agent's read-only-tool grouping rule, and its DAG wave resolver
// mirrors the same file's retry/scheduling shape applied to
// custom_command's depends_on graph instead of task retries.
package dispatch

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codeturn/core/internal/ratelimit"
)

// Call is one pending tool invocation within a turn.
type Call struct {
	ID         string
	Name       string
	Arguments  string // raw JSON arguments
	IsShell    bool
	ShellArgv0 string // first word of the shell command, if IsShell
}

// Result is a Call's outcome.
type Result struct {
	ID      string
	Content string
	Success bool
	Err     error
}

// Runner executes a single Call. The turn controller supplies the actual
// tool routing (ptysession, read_file, MCP, ...); dispatch only decides
// grouping and concurrency.
type Runner func(ctx context.Context, call Call) Result

var readOnlyToolNames = map[string]bool{
	"read_file":    true,
	"list_files":   true,
	"search_files": true,
	"glob_files":   true,
}

// unconditionallyParallelShellCmds mirrors is_safe_shell_command: a shell
// call is parallel-safe only when its first word is one of these
// read-only utilities, regardless of its remaining arguments.
var unconditionallyParallelShellCmds = map[string]bool{
	"cat": true, "ls": true, "grep": true, "head": true,
	"tail": true, "wc": true, "find": true, "pwd": true, "echo": true,
}

// IsParallelSafe reports whether a single call is safe to run alongside
// other parallel-safe calls: file-system read tools, MCP tools whose name
// contains a read/get/list/search/status marker, or shell calls whose argv[0] is
// one of the always-safe read utilities.
func IsParallelSafe(c Call) bool {
	if c.IsShell {
		return unconditionallyParallelShellCmds[c.ShellArgv0]
	}
	if readOnlyToolNames[c.Name] {
		return true
	}
	if strings.HasPrefix(c.Name, "mcp__") {
		return strings.Contains(c.Name, "_read") ||
			strings.Contains(c.Name, "_get") ||
			strings.Contains(c.Name, "_list") ||
			strings.Contains(c.Name, "_search") ||
			strings.Contains(c.Name, "_status")
	}
	return false
}

// Group is a batch of calls to run together: len(Calls) > 1 only when
// every member is parallel-safe.
type Group struct {
	Calls []Call
}

// IdentifyGroups partitions calls into sequential runs of consecutive
// parallel-safe calls and singleton groups for everything else,
// preserving input order (mirrors identify_parallel_groups).
func IdentifyGroups(calls []Call) []Group {
	var groups []Group
	var current []Call

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, Group{Calls: current})
			current = nil
		}
	}

	for _, c := range calls {
		if IsParallelSafe(c) {
			current = append(current, c)
			continue
		}
		flush()
		groups = append(groups, Group{Calls: []Call{c}})
	}
	flush()
	return groups
}

// Event is emitted around a group's execution for progress reporting:
// start, per-call progress, and end.
type Event struct {
	Kind      string // "start", "progress", "end"
	GroupSize int
	CallID    string
	Done      int
}

// Run executes groups in order; within a group of size > 1 calls run
// concurrently (bounded by lim), errors from one call never cancel its
// siblings. emit may be nil.
func Run(ctx context.Context, groups []Group, lim *ratelimit.Limiter, run Runner, emit func(Event)) ([]Result, error) {
	var all []Result
	for _, g := range groups {
		if emit != nil {
			emit(Event{Kind: "start", GroupSize: len(g.Calls)})
		}

		if len(g.Calls) == 1 {
			res := runOne(ctx, g.Calls[0], lim, run)
			all = append(all, res)
			if emit != nil {
				emit(Event{Kind: "progress", CallID: res.ID, Done: 1})
			}
		} else {
			results := make([]Result, len(g.Calls))
			eg, egCtx := errgroup.WithContext(ctx)
			for i, c := range g.Calls {
				i, c := i, c
				eg.Go(func() error {
					results[i] = runOne(egCtx, c, lim, run)
					if emit != nil {
						emit(Event{Kind: "progress", CallID: c.ID, Done: i + 1})
					}
					return nil
				})
			}
			_ = eg.Wait() // per-call errors live in Result.Err, not propagated
			all = append(all, results...)
		}

		if emit != nil {
			emit(Event{Kind: "end", GroupSize: len(g.Calls)})
		}
	}
	return all, nil
}

func runOne(ctx context.Context, c Call, lim *ratelimit.Limiter, run Runner) Result {
	if lim != nil {
		permit, err := lim.Acquire(ctx)
		if err != nil {
			return Result{ID: c.ID, Err: err}
		}
		defer permit.Release()
	}
	return run(ctx, c)
}
