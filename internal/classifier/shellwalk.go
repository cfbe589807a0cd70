package classifier

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// walkBashScript parses SCRIPT with the bash dialect and returns true only
// if it is a sequence of simple word-only commands combined by &&, ||, ;,
// or | — no subshells, redirections, or command substitutions — and every
// sub-command is itself classified safe, either by a userTrusted pattern
// or by the allow-list rules.
func walkBashScript(script string, userTrusted []TrustedPattern) bool {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return false
	}
	for _, stmt := range file.Stmts {
		if !walkStmt(stmt, userTrusted) {
			return false
		}
	}
	return true
}

func walkStmt(stmt *syntax.Stmt, userTrusted []TrustedPattern) bool {
	if stmt == nil {
		return false
	}
	if len(stmt.Redirs) > 0 {
		return false
	}
	// Background ("&") statements are not part of the restricted grammar.
	if stmt.Background || stmt.Coprocess {
		return false
	}
	return walkCmd(stmt.Cmd, userTrusted)
}

func walkCmd(cmd syntax.Command, userTrusted []TrustedPattern) bool {
	switch c := cmd.(type) {
	case *syntax.CallExpr:
		return walkCallExpr(c, userTrusted)
	case *syntax.BinaryCmd:
		// &&, ||, | are the only connectors the grammar allows.
		switch c.Op {
		case syntax.AndStmt, syntax.OrStmt, syntax.Pipe:
			return walkStmt(c.X, userTrusted) && walkStmt(c.Y, userTrusted)
		default:
			return false
		}
	default:
		// Subshell, block, if/for/while/case, command substitution hosts,
		// function declarations, etc. all fail closed.
		return false
	}
}

func walkCallExpr(call *syntax.CallExpr, userTrusted []TrustedPattern) bool {
	if call == nil || len(call.Args) == 0 {
		return false
	}
	if len(call.Assigns) > 0 {
		// Inline env assignments ("FOO=bar cmd") change semantics in ways
		// this restricted word-only grammar doesn't reason about.
		return false
	}
	argv := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		lit, ok := literalWord(w)
		if !ok {
			return false
		}
		argv = append(argv, lit)
	}
	for _, p := range userTrusted {
		if p.matches(argv) {
			return true
		}
	}
	return isAllowListed(argv, userTrusted)
}

// literalWord extracts a word's literal text, failing for anything that
// isn't a plain literal/quoted-literal — in particular it rejects
// parameter expansion, command substitution, and arithmetic expansion.
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
