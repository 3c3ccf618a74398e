package permission

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Asker prompts the interactive user for a yes/no decision on an `ask`
// result. Separated from Gate so tests and non-interactive CLI paths
// (--yes) can substitute a no-op implementation.
type Asker interface {
	Ask(class, tool, detail string) bool
}

// StdioAsker reads a single line from in and treats "y"/"yes" (case
// insensitive) as approval; anything else denies.
type StdioAsker struct {
	In  io.Reader
	Out io.Writer
}

func (a StdioAsker) Ask(class, tool, detail string) bool {
	fmt.Fprintf(a.Out, "Allow %s (%s)? %s [y/N] ", tool, class, detail)
	scanner := bufio.NewScanner(a.In)
	if !scanner.Scan() {
		return false
	}
	ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return ans == "y" || ans == "yes"
}

// Gate wraps an Engine with the interactive-ask step and the CLI-flag /
// agent-profile override layering: config rules are
// evaluated first, then agent-profile overrides, then CLI flags, in that
// order — each layer is just more rules appended after the previous one,
// since last-match-wins makes append order equivalent to priority.
type Gate struct {
	engine      *Engine
	autoApprove bool
	asker       Asker
}

func NewGate(engine *Engine, autoApprove bool, asker Asker) *Gate {
	return &Gate{engine: engine, autoApprove: autoApprove, asker: asker}
}

// ApplyAgentOverrides appends one rule per permission-class override in an
// agent profile, applied after config rules but before CLI flags.
func (g *Gate) ApplyAgentOverrides(overrides map[string]Decision) {
	for class, decision := range overrides {
		g.engine.AddRule(Rule{Match: class, Decision: decision})
	}
}

// ApplyCLIFlags implements --yes / --allow-edit / --no-bash: imperative
// rule appends evaluated after every other layer.
func (g *Gate) ApplyCLIFlags(yes, allowEdit, noBash bool) {
	if allowEdit {
		g.engine.AddRule(Rule{Match: "edit", Decision: Allow})
	}
	if noBash {
		g.engine.AddRule(Rule{Match: "bash", Decision: Deny})
	}
	if yes {
		g.autoApprove = true
	}
}

// Check resolves whether a tool call may proceed. detail is a short
// human-readable description of the call shown to the interactive asker.
func (g *Gate) Check(class, tool, detail string) bool {
	switch g.engine.Decide(class, tool) {
	case Allow:
		return true
	case Deny:
		return false
	default: // Ask
		if g.autoApprove {
			return true
		}
		if g.asker == nil {
			return false
		}
		return g.asker.Ask(class, tool, detail)
	}
}
