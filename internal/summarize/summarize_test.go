package summarize

import "testing"

func TestParseCommandSimpleTools(t *testing.T) {
	cases := []struct {
		name     string
		argv     []string
		wantKind Kind
		wantName string
	}{
		{"cat file", []string{"cat", "README.md"}, KindRead, "README.md"},
		{"cat dash dash file", []string{"cat", "--", "README.md"}, KindRead, "README.md"},
		{"head with n file", []string{"head", "-n", "40", "main.go"}, KindRead, "main.go"},
		{"tail glued n file", []string{"tail", "-n+10", "main.go"}, KindRead, "main.go"},
		{"sed n range file", []string{"sed", "-n", "1,5p", "main.go"}, KindRead, "main.go"},
		{"ls plain", []string{"ls", "internal/"}, KindListFiles, ""},
		{"rg query", []string{"rg", "TODO", "internal"}, KindSearch, ""},
		{"cargo test", []string{"cargo", "test"}, KindTest, ""},
		{"pytest", []string{"pytest", "-k", "foo"}, KindTest, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseCommand(c.argv)
			if len(got) != 1 {
				t.Fatalf("got %d parsed commands, want 1: %+v", len(got), got)
			}
			if got[0].Kind != c.wantKind {
				t.Fatalf("kind = %v, want %v (%+v)", got[0].Kind, c.wantKind, got[0])
			}
			if c.wantName != "" && got[0].Name != c.wantName {
				t.Fatalf("name = %q, want %q", got[0].Name, c.wantName)
			}
		})
	}
}

func TestParseCommandHeadWithoutExplicitSizeIsUnknown(t *testing.T) {
	got := ParseCommand([]string{"head", "main.go"})
	if len(got) != 1 || got[0].Kind != KindUnknown {
		t.Fatalf("expected Unknown for head without -n, got %+v", got)
	}
}

func TestParseCommandFormatAndLintTargets(t *testing.T) {
	got := ParseCommand([]string{"cargo", "fmt", "--", "src/main.rs"})
	if len(got) != 1 || got[0].Kind != KindFormat {
		t.Fatalf("expected a single Format command, got %+v", got)
	}
	if got[0].Tool == nil || *got[0].Tool != "cargo fmt" {
		t.Fatalf("tool = %v, want cargo fmt", got[0].Tool)
	}

	lint := ParseCommand([]string{"eslint", "-c", ".eslintrc", "src/"})
	if len(lint) != 1 || lint[0].Kind != KindLint {
		t.Fatalf("expected a single Lint command, got %+v", lint)
	}
	if len(lint[0].Targets) != 1 || lint[0].Targets[0] != "src/" {
		t.Fatalf("targets = %+v, want [src/]", lint[0].Targets)
	}
}

func TestParseCommandNpmScripts(t *testing.T) {
	cases := []struct {
		argv     []string
		wantKind Kind
	}{
		{[]string{"npm", "run", "test"}, KindTest},
		{[]string{"npm", "t"}, KindTest},
		{[]string{"pnpm", "run", "lint"}, KindLint},
		{[]string{"yarn", "run", "fmt"}, KindFormat},
		{[]string{"npm", "run", "build"}, KindUnknown},
	}
	for _, c := range cases {
		got := ParseCommand(c.argv)
		if len(got) != 1 || got[0].Kind != c.wantKind {
			t.Fatalf("argv %v => %+v, want kind %v", c.argv, got, c.wantKind)
		}
	}
}

func TestParseCommandConnectorsProduceMultipleSegments(t *testing.T) {
	got := ParseCommand([]string{"mkdir", "foo", "&&", "cargo", "test"})
	if len(got) != 2 {
		t.Fatalf("got %d commands, want 2: %+v", len(got), got)
	}
	if got[0].Kind != KindUnknown {
		t.Fatalf("first = %v, want Unknown", got[0].Kind)
	}
	if got[1].Kind != KindTest {
		t.Fatalf("second = %v, want Test", got[1].Kind)
	}
}

func TestSimplifyDropsEchoBeforeRest(t *testing.T) {
	got := ParseCommand([]string{"echo", "running", "&&", "cargo", "test"})
	if len(got) != 1 || got[0].Kind != KindTest {
		t.Fatalf("expected echo to be dropped leaving just Test, got %+v", got)
	}
}

func TestSimplifyDropsCdBeforeTest(t *testing.T) {
	got := ParseCommand([]string{"cd", "subdir", "&&", "cargo", "test"})
	if len(got) != 1 || got[0].Kind != KindTest {
		t.Fatalf("expected cd to be dropped leaving just Test, got %+v", got)
	}
}

func TestSimplifyDropsTrailingOrTrue(t *testing.T) {
	got := ParseCommand([]string{"cargo", "test", "||", "true"})
	if len(got) != 1 || got[0].Kind != KindTest {
		t.Fatalf("expected `|| true` to be dropped, got %+v", got)
	}
}

func TestParseCommandDedupesConsecutiveDuplicates(t *testing.T) {
	got := ParseCommand([]string{"cargo", "test", ";", "cargo", "test"})
	if len(got) != 1 || got[0].Kind != KindTest {
		t.Fatalf("expected consecutive identical Test commands to collapse, got %+v", got)
	}
}

func TestBashLcRedirectFallsBackToSingleSummary(t *testing.T) {
	got := ParseCommand([]string{"bash", "-lc", "cargo test 2>&1 | wc -l"})
	// The redirection makes this not word-only, so it falls back to a
	// single Unknown summary of the whole script rather than a pipeline walk.
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1: %+v", len(got), got)
	}
}

func TestBashLcWordOnlyPipelineWithoutRedirect(t *testing.T) {
	got := ParseCommand([]string{"bash", "-lc", "cargo test | wc -l"})
	if len(got) != 1 || got[0].Kind != KindTest {
		t.Fatalf("expected the wc helper dropped and Test kept, got %+v", got)
	}
	if got[0].Cmd != "cargo test" {
		t.Fatalf("cmd = %q, want the sub-command text, not the full script", got[0].Cmd)
	}
}

func TestBashLcSingleCommandNoConnectorsShowsFullScript(t *testing.T) {
	got := ParseCommand([]string{"bash", "-lc", "cat README.md"})
	if len(got) != 1 || got[0].Kind != KindRead {
		t.Fatalf("expected a single Read command, got %+v", got)
	}
	if got[0].Name != "README.md" {
		t.Fatalf("name = %q, want README.md", got[0].Name)
	}
	if got[0].Cmd != "cat README.md" {
		t.Fatalf("cmd = %q, want cat README.md", got[0].Cmd)
	}
}

func TestBashLcSedPipelineKeepsFullScript(t *testing.T) {
	got := ParseCommand([]string{"bash", "-lc", "cat file.txt | sed -n 1,5p"})
	if len(got) != 1 || got[0].Kind != KindRead {
		t.Fatalf("expected a single Read command, got %+v", got)
	}
	if got[0].Cmd != "cat file.txt | sed -n 1,5p" {
		t.Fatalf("cmd = %q, want full pipeline since it has a pipe + sed -n", got[0].Cmd)
	}
}

func TestShortDisplayPath(t *testing.T) {
	cases := map[string]string{
		"webview/src":             "webview",
		"foo/src/":                "foo",
		"packages/app/node_modules/": "app",
		"main.go":                 "main.go",
	}
	for in, want := range cases {
		if got := shortDisplayPath(in); got != want {
			t.Errorf("shortDisplayPath(%q) = %q, want %q", in, got, want)
		}
	}
}
