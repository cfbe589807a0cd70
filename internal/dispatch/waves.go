package dispatch

import "log/slog"

// CustomCommand mirrors the config schema's custom_commands entries,
// enough of it for dependency resolution.
type CustomCommand struct {
	Name      string
	DependsOn []string
}

// ResolveWaves groups custom commands into dependency-ordered waves: a
// command joins the earliest wave in which every entry in DependsOn has
// already appeared in a prior wave. If the remaining commands ever form a
// cycle (no command in the remaining set has all its dependencies
// satisfied, yet commands remain), every remaining command is emitted as
// its own singleton wave, in input order, resolution stops — it does not
// keep hunting for a break in the cycle — and the fallback is logged. A
// nil logger falls back to slog.Default(), the same convention
// internal/journal.Open/Resume use.
func ResolveWaves(commands []CustomCommand, logger *slog.Logger) [][]CustomCommand {
	if logger == nil {
		logger = slog.Default()
	}

	var waves [][]CustomCommand
	executed := map[string]bool{}
	remaining := commands

	for len(remaining) > 0 {
		var current, next []CustomCommand
		for _, cmd := range remaining {
			if dependenciesSatisfied(cmd, executed) {
				current = append(current, cmd)
			} else {
				next = append(next, cmd)
			}
		}

		if len(current) == 0 {
			names := make([]string, len(next))
			for i, cmd := range next {
				names[i] = cmd.Name
			}
			logger.Warn("dispatch: custom_commands dependency cycle detected, falling back to singleton waves", "remaining", names)
			for _, cmd := range next {
				waves = append(waves, []CustomCommand{cmd})
			}
			break
		}

		for _, cmd := range current {
			executed[cmd.Name] = true
		}
		waves = append(waves, current)
		remaining = next
	}

	return waves
}

func dependenciesSatisfied(cmd CustomCommand, executed map[string]bool) bool {
	for _, dep := range cmd.DependsOn {
		if !executed[dep] {
			return false
		}
	}
	return true
}
