// Package summarize turns an arbitrary shell command into a short, typed
// gist of what it does: reading a file, listing a directory, searching,
// formatting, linting, running tests, or nothing in particular. Commands
// are model-driven and can be almost anything, so the parsing here is
// intentionally lossy — the goal is a human-readable summary for transcript
// display, not a faithful AST of the shell.
package summarize

import (
	"strings"
)

type Kind string

const (
	KindRead      Kind = "read"
	KindListFiles Kind = "list_files"
	KindSearch    Kind = "search"
	KindFormat    Kind = "format"
	KindTest      Kind = "test"
	KindLint      Kind = "lint"
	KindNoop      Kind = "noop"
	KindUnknown   Kind = "unknown"
)

// ParsedCommand is a single summarized segment of a command. Only the
// fields relevant to Kind are populated; the rest are zero values.
type ParsedCommand struct {
	Kind    Kind
	Cmd     string
	Name    string
	Path    *string
	Query   *string
	Tool    *string
	Targets []string
}

func (p ParsedCommand) equal(o ParsedCommand) bool {
	if p.Kind != o.Kind || p.Cmd != o.Cmd || p.Name != o.Name {
		return false
	}
	if !strPtrEqual(p.Path, o.Path) || !strPtrEqual(p.Query, o.Query) || !strPtrEqual(p.Tool, o.Tool) {
		return false
	}
	if len(p.Targets) != len(o.Targets) {
		return false
	}
	for i := range p.Targets {
		if p.Targets[i] != o.Targets[i] {
			return false
		}
	}
	return true
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strp(s string) *string { return &s }

// ParseCommand parses argv into a sequence of ParsedCommand summaries,
// collapsing consecutive duplicates so a command that resolves to the
// same summary twice in a row (e.g. a trivial pipeline) isn't shown twice.
func ParseCommand(command []string) []ParsedCommand {
	parsed := parseCommandImpl(command)
	deduped := make([]ParsedCommand, 0, len(parsed))
	for _, c := range parsed {
		if n := len(deduped); n > 0 && deduped[n-1].equal(c) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

func parseCommandImpl(command []string) []ParsedCommand {
	if commands, ok := parseBashLcCommands(command); ok {
		return commands
	}

	normalized := normalizeTokens(command)

	var parts [][]string
	if containsConnectors(normalized) {
		parts = splitOnConnectors(normalized)
	} else {
		parts = [][]string{normalized}
	}

	commands := make([]ParsedCommand, len(parts))
	for i, tokens := range parts {
		commands[i] = summarizeMainTokens(tokens)
	}

	for {
		next, changed := simplifyOnce(commands)
		if !changed {
			break
		}
		commands = next
	}

	return commands
}

func simplifyOnce(commands []ParsedCommand) ([]ParsedCommand, bool) {
	if len(commands) <= 1 {
		return commands, false
	}

	// echo ... && ...rest => ...rest
	if commands[0].Kind == KindUnknown {
		if toks := shlexSplit(commands[0].Cmd); len(toks) > 0 && toks[0] == "echo" {
			return append([]ParsedCommand(nil), commands[1:]...), true
		}
	}

	// cd foo && [any Test command] => [any Test command]
	for idx, pc := range commands {
		if pc.Kind != KindUnknown {
			continue
		}
		toks := shlexSplit(pc.Cmd)
		if len(toks) == 0 || toks[0] != "cd" {
			continue
		}
		hasTestAfter := false
		for _, rest := range commands[idx+1:] {
			if rest.Kind == KindTest {
				hasTestAfter = true
				break
			}
		}
		if hasTestAfter {
			out := make([]ParsedCommand, 0, len(commands)-1)
			out = append(out, commands[:idx]...)
			out = append(out, commands[idx+1:]...)
			return out, true
		}
		break
	}

	// cmd || true => cmd
	for idx, pc := range commands {
		if pc.Kind == KindNoop && pc.Cmd == "true" {
			out := make([]ParsedCommand, 0, len(commands)-1)
			out = append(out, commands[:idx]...)
			out = append(out, commands[idx+1:]...)
			return out, true
		}
	}

	// nl -[any flags] && ...rest => ...rest
	for idx, pc := range commands {
		if pc.Kind != KindUnknown {
			continue
		}
		toks := shlexSplit(pc.Cmd)
		if len(toks) == 0 || toks[0] != "nl" {
			continue
		}
		allFlags := true
		for _, t := range toks[1:] {
			if !strings.HasPrefix(t, "-") {
				allFlags = false
				break
			}
		}
		if allFlags {
			out := make([]ParsedCommand, 0, len(commands)-1)
			out = append(out, commands[:idx]...)
			out = append(out, commands[idx+1:]...)
			return out, true
		}
	}

	return commands, false
}

func normalizeTokens(cmd []string) []string {
	if len(cmd) >= 2 && (cmd[0] == "yes" || cmd[0] == "y") && cmd[1] == "|" {
		return append([]string(nil), cmd[2:]...)
	}
	if len(cmd) >= 2 && (cmd[0] == "no" || cmd[0] == "n") && cmd[1] == "|" {
		return append([]string(nil), cmd[2:]...)
	}
	if len(cmd) == 3 && cmd[0] == "bash" && (cmd[1] == "-c" || cmd[1] == "-lc") {
		if toks := shlexSplit(cmd[2]); toks != nil {
			return toks
		}
		return append([]string(nil), cmd...)
	}
	return append([]string(nil), cmd...)
}

func isConnector(t string) bool {
	return t == "&&" || t == "||" || t == "|" || t == ";"
}

func containsConnectors(tokens []string) bool {
	for _, t := range tokens {
		if isConnector(t) {
			return true
		}
	}
	return false
}

func splitOnConnectors(tokens []string) [][]string {
	var out [][]string
	var cur []string
	for _, t := range tokens {
		if isConnector(t) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func trimAtConnector(tokens []string) []string {
	for i, t := range tokens {
		if isConnector(t) {
			return tokens[:i]
		}
	}
	return tokens
}

// shortDisplayPath shortens a path to its last meaningful component,
// skipping trailing build/dist/node_modules/src segments — e.g.
// "webview/src" -> "webview", "packages/app/node_modules/" -> "app".
func shortDisplayPath(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	trimmed := strings.TrimRight(normalized, "/")
	parts := strings.Split(trimmed, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p == "" || p == "build" || p == "dist" || p == "node_modules" || p == "src" {
			continue
		}
		return p
	}
	return trimmed
}

// skipFlagValues drops the argument following any flag in flagsWithVals,
// treats "--flag=value" as self-contained, and stops filtering entirely
// once a bare "--" marks the rest as positional.
func skipFlagValues(args []string, flagsWithVals []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for i, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if a == "--" {
			out = append(out, args[i+1:]...)
			break
		}
		if strings.HasPrefix(a, "--") && strings.Contains(a, "=") {
			continue
		}
		if contains(flagsWithVals, a) {
			if i+1 < len(args) {
				skipNext = true
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var eslintFlagsWithValues = []string{
	"-c", "--config", "--parser", "--parser-options", "--rulesdir",
	"--plugin", "--max-warnings", "--format",
}

func collectNonFlagTargets(args []string) []string {
	skipValueFlags := []string{
		"-p", "--package", "--features", "-C", "--config", "--config-path",
		"--out-dir", "-o", "--run", "--max-warnings", "--format",
	}
	var targets []string
	skipNext := false
	for i, a := range args {
		if a == "--" {
			break
		}
		if skipNext {
			skipNext = false
			continue
		}
		if contains(skipValueFlags, a) {
			if i+1 < len(args) {
				skipNext = true
			}
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		targets = append(targets, a)
	}
	return targets
}

func collectNonFlagTargetsWithFlags(args []string, flagsWithVals []string) []string {
	var targets []string
	for _, a := range skipFlagValues(args, flagsWithVals) {
		if !strings.HasPrefix(a, "-") {
			targets = append(targets, a)
		}
	}
	return targets
}

func isPathish(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") ||
		strings.Contains(s, "/") || strings.Contains(s, "\\")
}

func parseFdQueryAndPath(tail []string) (query, path *string) {
	noConnector := trimAtConnector(tail)
	candidates := skipFlagValues(noConnector, []string{"-t", "--type", "-e", "--extension", "-E", "--exclude", "--search-path"})
	var nonFlags []string
	for _, p := range candidates {
		if !strings.HasPrefix(p, "-") {
			nonFlags = append(nonFlags, p)
		}
	}
	switch len(nonFlags) {
	case 0:
		return nil, nil
	case 1:
		if isPathish(nonFlags[0]) {
			return nil, strp(shortDisplayPath(nonFlags[0]))
		}
		return strp(nonFlags[0]), nil
	default:
		return strp(nonFlags[0]), strp(shortDisplayPath(nonFlags[1]))
	}
}

func parseFindQueryAndPath(tail []string) (query, path *string) {
	noConnector := trimAtConnector(tail)
	for _, a := range noConnector {
		if !strings.HasPrefix(a, "-") && a != "!" && a != "(" && a != ")" {
			path = strp(shortDisplayPath(a))
			break
		}
	}
	for i, a := range noConnector {
		if a == "-name" || a == "-iname" || a == "-path" || a == "-regex" {
			if i+1 < len(noConnector) {
				query = strp(noConnector[i+1])
			}
			break
		}
	}
	return query, path
}

func classifyNpmLike(tool string, tail, fullCmd []string) (ParsedCommand, bool) {
	r := tail
	if tool == "pnpm" && len(r) > 0 && r[0] == "-r" {
		r = r[1:]
	}
	var scriptName string
	hasScript := false
	if len(r) > 0 && r[0] == "run" {
		if len(r) > 1 {
			scriptName = r[1]
			hasScript = true
		}
	} else {
		isTest := (tool == "npm" && len(r) > 0 && r[0] == "t") ||
			((tool == "npm" || tool == "pnpm" || tool == "yarn") && len(r) > 0 && r[0] == "test")
		if isTest {
			scriptName, hasScript = "test", true
		}
	}
	if !hasScript {
		return ParsedCommand{}, false
	}
	lname := strings.ToLower(scriptName)
	switch lname {
	case "test", "unit", "jest", "vitest":
		return ParsedCommand{Kind: KindTest, Cmd: shlexJoin(fullCmd)}, true
	case "lint", "eslint":
		return ParsedCommand{Kind: KindLint, Cmd: shlexJoin(fullCmd), Tool: strp(tool + "-script:" + scriptName)}, true
	case "format", "fmt", "prettier":
		return ParsedCommand{Kind: KindFormat, Cmd: shlexJoin(fullCmd), Tool: strp(tool + "-script:" + scriptName)}, true
	}
	return ParsedCommand{}, false
}

// isValidSedNArg validates a `sed -n RANGEp` range argument such as "5p"
// or "3,10p".
func isValidSedNArg(arg string) bool {
	core, ok := strings.CutSuffix(arg, "p")
	if !ok {
		return false
	}
	parts := strings.Split(core, ",")
	switch len(parts) {
	case 1:
		return isASCIIDigits(parts[0])
	case 2:
		return isASCIIDigits(parts[0]) && isASCIIDigits(parts[1])
	default:
		return false
	}
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

