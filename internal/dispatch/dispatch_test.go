package dispatch

import (
	"context"
	"testing"

	"github.com/codeturn/core/internal/ratelimit"
)

func TestIsParallelSafe(t *testing.T) {
	cases := []struct {
		call Call
		want bool
	}{
		{Call{Name: "read_file"}, true},
		{Call{Name: "list_files"}, true},
		{Call{Name: "search_files"}, true},
		{Call{Name: "glob_files"}, true},
		{Call{Name: "mcp__tool_read"}, true},
		{Call{Name: "mcp__tool_get"}, true},
		{Call{Name: "mcp__tool_list"}, true},
		{Call{Name: "mcp__tool_search"}, true},
		{Call{Name: "mcp__tool_status"}, true},
		{Call{Name: "shell", IsShell: true, ShellArgv0: "ls"}, true},
		{Call{Name: "shell", IsShell: true, ShellArgv0: "cat"}, true},
		{Call{Name: "shell", IsShell: true, ShellArgv0: "rm"}, false},
		{Call{Name: "shell"}, false},
		{Call{Name: "container.exec"}, false},
		{Call{Name: "apply_patch"}, false},
		{Call{Name: "update_plan"}, false},
	}
	for _, tt := range cases {
		if got := IsParallelSafe(tt.call); got != tt.want {
			t.Errorf("IsParallelSafe(%+v) = %v, want %v", tt.call, got, tt.want)
		}
	}
}

func TestIdentifyGroupsMergesConsecutiveReads(t *testing.T) {
	calls := []Call{
		{ID: "1", Name: "read_file"},
		{ID: "2", Name: "list_files"},
	}
	groups := IdentifyGroups(calls)
	if len(groups) != 1 || len(groups[0].Calls) != 2 {
		t.Fatalf("expected one group of 2, got %+v", groups)
	}
}

func TestIdentifyGroupsSplitsOnUnsafeCall(t *testing.T) {
	calls := []Call{
		{ID: "1", Name: "read_file"},
		{ID: "2", Name: "shell", IsShell: true, ShellArgv0: "rm"},
		{ID: "3", Name: "list_files"},
	}
	groups := IdentifyGroups(calls)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d: %+v", len(groups), groups)
	}
	if len(groups[0].Calls) != 1 || len(groups[1].Calls) != 1 || len(groups[2].Calls) != 1 {
		t.Fatalf("expected singleton groups around the unsafe call, got %+v", groups)
	}
}

func TestRunExecutesGroupsConcurrentlyAndReportsErrors(t *testing.T) {
	calls := []Call{
		{ID: "a", Name: "read_file"},
		{ID: "b", Name: "list_files"},
		{ID: "c", Name: "shell", IsShell: true, ShellArgv0: "rm"},
	}
	groups := IdentifyGroups(calls)

	lim := ratelimit.New(ratelimit.Config{MaxConcurrentCalls: 2})
	run := func(ctx context.Context, c Call) Result {
		if c.ID == "c" {
			return Result{ID: c.ID, Success: false, Err: errTest}
		}
		return Result{ID: c.ID, Success: true, Content: "ok:" + c.ID}
	}

	var events []Event
	results, err := Run(context.Background(), groups, lim, run, func(e Event) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ID] = r
	}
	if !byID["a"].Success || !byID["b"].Success {
		t.Fatalf("expected a and b to succeed: %+v", byID)
	}
	if byID["c"].Success || byID["c"].Err == nil {
		t.Fatalf("expected c to fail without affecting siblings: %+v", byID["c"])
	}
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
