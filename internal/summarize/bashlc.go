package summarize

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// parseBashLcCommands handles the common `["bash", "-lc", "<script>"]`
// shape: it decomposes the script into its word-only sub-commands (reusing
// the same restricted-grammar walk the safety classifier uses), strips
// small formatting helpers from pipelines, and re-attributes the original
// script text to the summary when the pipeline collapses to one command.
func parseBashLcCommands(original []string) ([]ParsedCommand, bool) {
	if len(original) != 3 || original[0] != "bash" || original[1] != "-lc" {
		return nil, false
	}
	script := original[2]

	allCommands, ok := extractWordOnlyCommands(script)
	if !ok || len(allCommands) == 0 {
		return []ParsedCommand{{Kind: KindUnknown, Cmd: script}}, true
	}

	scriptTokens := shlexSplit(script)
	if scriptTokens == nil {
		scriptTokens = original
	}

	hadMultiple := len(allCommands) > 1
	filtered := dropSmallFormattingCommands(allCommands)
	if len(filtered) == 0 {
		return []ParsedCommand{{Kind: KindUnknown, Cmd: script}}, true
	}

	commands := make([]ParsedCommand, len(filtered))
	for i, tokens := range filtered {
		commands[i] = summarizeMainTokens(tokens)
	}

	if len(commands) > 1 {
		kept := commands[:0:0]
		for _, c := range commands {
			if c.Kind != KindNoop {
				kept = append(kept, c)
			}
		}
		commands = kept
	}

	if len(commands) == 1 {
		hadConnectors := hadMultiple || containsConnectors(scriptTokens)
		commands[0] = reattributeSingleCommand(commands[0], script, scriptTokens, hadConnectors)
	}

	return commands, true
}

// reattributeSingleCommand decides, once a bash -lc pipeline has collapsed
// to a single summarized command, whether its Cmd field should show the
// full original script (no connectors were present) or just the primary
// sub-command (a pipeline reduced cleanly to one meaningful step) — except
// for a Read that came from a `... | sed -n` pipeline, where the full
// script is kept so the filter isn't lost from the display.
func reattributeSingleCommand(pc ParsedCommand, script string, scriptTokens []string, hadConnectors bool) ParsedCommand {
	switch pc.Kind {
	case KindRead, KindListFiles, KindSearch:
		if !hadConnectors {
			pc.Cmd = shlexJoin(scriptTokens)
			return pc
		}
		if pc.Kind == KindRead {
			hasPipe := contains(scriptTokens, "|")
			hasSedN := false
			for i := 0; i+1 < len(scriptTokens); i++ {
				if scriptTokens[i] == "sed" && scriptTokens[i+1] == "-n" {
					hasSedN = true
					break
				}
			}
			if hasPipe && hasSedN {
				pc.Cmd = script
			}
		}
		return pc
	case KindUnknown, KindNoop:
		pc.Cmd = script
		return pc
	default:
		// Format, Test, and Lint keep their own sub-command text regardless
		// of whether the script had connectors.
		return pc
	}
}

// extractWordOnlyCommands parses script with the bash dialect and, if it
// is entirely word-only commands joined by &&, ||, ;, or | (no subshells,
// redirections, substitutions, or control flow), returns each leaf
// command's argv in left-to-right execution order.
func extractWordOnlyCommands(script string) ([][]string, bool) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, false
	}

	var out [][]string
	for _, stmt := range file.Stmts {
		cmds, ok := walkStmtTokens(stmt)
		if !ok {
			return nil, false
		}
		out = append(out, cmds...)
	}
	return out, true
}

func walkStmtTokens(stmt *syntax.Stmt) ([][]string, bool) {
	if stmt == nil || len(stmt.Redirs) > 0 || stmt.Background || stmt.Coprocess {
		return nil, false
	}
	return walkCmdTokens(stmt.Cmd)
}

func walkCmdTokens(cmd syntax.Command) ([][]string, bool) {
	switch c := cmd.(type) {
	case *syntax.CallExpr:
		argv, ok := callExprTokens(c)
		if !ok {
			return nil, false
		}
		return [][]string{argv}, true
	case *syntax.BinaryCmd:
		switch c.Op {
		case syntax.AndStmt, syntax.OrStmt, syntax.Pipe:
			left, ok := walkStmtTokens(c.X)
			if !ok {
				return nil, false
			}
			right, ok := walkStmtTokens(c.Y)
			if !ok {
				return nil, false
			}
			return append(left, right...), true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}

func callExprTokens(call *syntax.CallExpr) ([]string, bool) {
	if call == nil || len(call.Args) == 0 || len(call.Assigns) > 0 {
		return nil, false
	}
	argv := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		lit, ok := literalWord(w)
		if !ok {
			return nil, false
		}
		argv = append(argv, lit)
	}
	return argv, true
}

func literalWord(w *syntax.Word) (string, bool) {
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				b.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return b.String(), true
}

func isSmallFormattingCommand(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	switch tokens[0] {
	case "wc", "tr", "cut", "sort", "uniq", "xargs", "tee", "column", "awk", "yes", "printf":
		return true
	case "head", "tail":
		return len(tokens) < 3
	case "sed":
		return len(tokens) < 4 || !(tokens[1] == "-n" && isValidSedNArg(tokens[2]))
	default:
		return false
	}
}

func dropSmallFormattingCommands(commands [][]string) [][]string {
	out := commands[:0:0]
	for _, tokens := range commands {
		if !isSmallFormattingCommand(tokens) {
			out = append(out, tokens)
		}
	}
	return out
}
