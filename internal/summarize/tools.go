package summarize

import "strings"

// summarizeMainTokens classifies a single, connector-free command segment
// by its leading tool name.
func summarizeMainTokens(mainCmd []string) ParsedCommand {
	if len(mainCmd) == 0 {
		return ParsedCommand{Kind: KindUnknown, Cmd: shlexJoin(mainCmd)}
	}
	head, tail := mainCmd[0], mainCmd[1:]
	cmd := shlexJoin(mainCmd)

	switch {
	case head == "true" && len(tail) == 0:
		return ParsedCommand{Kind: KindNoop, Cmd: cmd}

	case head == "cargo" && first(tail) == "fmt":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("cargo fmt"), Targets: collectNonFlagTargets(tail[1:])}
	case head == "cargo" && first(tail) == "clippy":
		return ParsedCommand{Kind: KindLint, Cmd: cmd, Tool: strp("cargo clippy"), Targets: collectNonFlagTargets(tail[1:])}
	case head == "cargo" && first(tail) == "test":
		return ParsedCommand{Kind: KindTest, Cmd: cmd}

	case head == "rustfmt":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("rustfmt"), Targets: collectNonFlagTargets(tail)}

	case head == "go" && first(tail) == "fmt":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("go fmt"), Targets: collectNonFlagTargets(tail[1:])}
	case head == "go" && first(tail) == "test":
		return ParsedCommand{Kind: KindTest, Cmd: cmd}

	case head == "pytest":
		return ParsedCommand{Kind: KindTest, Cmd: cmd}

	case head == "eslint":
		return ParsedCommand{Kind: KindLint, Cmd: cmd, Tool: strp("eslint"), Targets: collectNonFlagTargetsWithFlags(tail, eslintFlagsWithValues)}

	case head == "prettier":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("prettier"), Targets: collectNonFlagTargets(tail)}

	case head == "black":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("black"), Targets: collectNonFlagTargets(tail)}

	case head == "ruff" && first(tail) == "check":
		return ParsedCommand{Kind: KindLint, Cmd: cmd, Tool: strp("ruff"), Targets: collectNonFlagTargets(tail[1:])}
	case head == "ruff" && first(tail) == "format":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("ruff"), Targets: collectNonFlagTargets(tail[1:])}

	case head == "jest" || head == "vitest":
		return ParsedCommand{Kind: KindTest, Cmd: cmd}

	case head == "npx" && first(tail) == "eslint":
		return ParsedCommand{Kind: KindLint, Cmd: cmd, Tool: strp("eslint"), Targets: collectNonFlagTargetsWithFlags(tail[1:], eslintFlagsWithValues)}
	case head == "npx" && first(tail) == "prettier":
		return ParsedCommand{Kind: KindFormat, Cmd: cmd, Tool: strp("prettier"), Targets: collectNonFlagTargets(tail[1:])}

	case head == "pnpm" || head == "npm" || head == "yarn":
		if pc, ok := classifyNpmLike(head, tail, mainCmd); ok {
			return pc
		}
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}

	case head == "ls":
		candidates := skipFlagValues(tail, []string{"-I", "-w", "--block-size", "--format", "--time-style", "--color", "--quoting-style"})
		var path *string
		for _, p := range candidates {
			if !strings.HasPrefix(p, "-") {
				path = strp(shortDisplayPath(p))
				break
			}
		}
		return ParsedCommand{Kind: KindListFiles, Cmd: cmd, Path: path}

	case head == "rg":
		noConnector := trimAtConnector(tail)
		hasFiles := contains(noConnector, "--files")
		var nonFlags []string
		for _, p := range noConnector {
			if !strings.HasPrefix(p, "-") {
				nonFlags = append(nonFlags, p)
			}
		}
		var query, path *string
		if hasFiles {
			if len(nonFlags) > 0 {
				path = strp(shortDisplayPath(nonFlags[0]))
			}
		} else {
			if len(nonFlags) > 0 {
				query = strp(nonFlags[0])
			}
			if len(nonFlags) > 1 {
				path = strp(shortDisplayPath(nonFlags[1]))
			}
		}
		return ParsedCommand{Kind: KindSearch, Cmd: cmd, Query: query, Path: path}

	case head == "fd":
		query, path := parseFdQueryAndPath(tail)
		return ParsedCommand{Kind: KindSearch, Cmd: cmd, Query: query, Path: path}

	case head == "find":
		query, path := parseFindQueryAndPath(tail)
		return ParsedCommand{Kind: KindSearch, Cmd: cmd, Query: query, Path: path}

	case head == "grep":
		noConnector := trimAtConnector(tail)
		var nonFlags []string
		for _, p := range noConnector {
			if !strings.HasPrefix(p, "-") {
				nonFlags = append(nonFlags, p)
			}
		}
		var query, path *string
		if len(nonFlags) > 0 {
			query = strp(nonFlags[0])
		}
		if len(nonFlags) > 1 {
			path = strp(shortDisplayPath(nonFlags[1]))
		}
		return ParsedCommand{Kind: KindSearch, Cmd: cmd, Query: query, Path: path}

	case head == "cat":
		effective := tail
		if len(effective) > 0 && effective[0] == "--" {
			effective = effective[1:]
		}
		if len(effective) == 1 {
			return ParsedCommand{Kind: KindRead, Cmd: cmd, Name: shortDisplayPath(effective[0])}
		}
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}

	case head == "head":
		if p, ok := headTailTarget(tail, false); ok {
			return ParsedCommand{Kind: KindRead, Cmd: cmd, Name: shortDisplayPath(p)}
		}
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}

	case head == "tail":
		if p, ok := headTailTarget(tail, true); ok {
			return ParsedCommand{Kind: KindRead, Cmd: cmd, Name: shortDisplayPath(p)}
		}
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}

	case head == "nl":
		candidates := skipFlagValues(tail, []string{"-s", "-w", "-v", "-i", "-b"})
		for _, p := range candidates {
			if !strings.HasPrefix(p, "-") {
				return ParsedCommand{Kind: KindRead, Cmd: cmd, Name: shortDisplayPath(p)}
			}
		}
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}

	case head == "sed" && len(tail) >= 3 && tail[0] == "-n" && isValidSedNArg(tail[1]):
		return ParsedCommand{Kind: KindRead, Cmd: cmd, Name: shortDisplayPath(tail[2])}

	default:
		return ParsedCommand{Kind: KindUnknown, Cmd: cmd}
	}
}

func first(tail []string) string {
	if len(tail) == 0 {
		return ""
	}
	return tail[0]
}

// headTailTarget finds the file operand of `head -n N file` / `tail -n +N
// file` (and their "-nN" glued forms), skipping the numeric value consumed
// by -n. allowSigned permits a leading "+" on the numeric value, as in
// tail's "-n +10".
func headTailTarget(tail []string, allowSigned bool) (string, bool) {
	validNum := func(s string) bool {
		if allowSigned {
			s = strings.TrimPrefix(s, "+")
		}
		return isASCIIDigits(s)
	}

	hasValidN := false
	if len(tail) > 0 {
		if tail[0] == "-n" {
			hasValidN = len(tail) > 1 && validNum(tail[1])
		} else if strings.HasPrefix(tail[0], "-n") {
			hasValidN = validNum(tail[0][2:])
		}
	}
	if !hasValidN {
		return "", false
	}

	var candidates []string
	i := 0
	for i < len(tail) {
		if i == 0 && tail[i] == "-n" && i+1 < len(tail) && validNum(tail[i+1]) {
			i += 2
			continue
		}
		candidates = append(candidates, tail[i])
		i++
	}
	for _, p := range candidates {
		if !strings.HasPrefix(p, "-") {
			return p, true
		}
	}
	return "", false
}
