// Package permission implements the allow/ask/deny decision engine for
// tool invocations. Rule matching is grounded on the ordered, composable
// matcher style of internal/shell's command blocker (a sequence of
// predicates evaluated in order), adapted here to a last-match-wins
// priority scheme over (permission-class, tool-name) rules instead of a
// single "blocked or not" predicate.
package permission

import (
	"path/filepath"
	"strings"
)

// Decision is the result of evaluating a rule set against a call.
type Decision string

const (
	Allow Decision = "allow"
	Ask   Decision = "ask"
	Deny  Decision = "deny"
)

// Rule is one configured permission rule. Match is either "tool:<glob>"
// (matches tool name only) or a bare glob (matches either the permission
// class or the tool name).
type Rule struct {
	Match    string
	Decision Decision
}

// defaults applies when no rule matches a call's permission class.
var defaults = map[string]Decision{
	"read": Allow,
	"edit": Ask,
	"bash": Ask,
	"mcp":  Ask,
}

// Engine evaluates decide(class, tool) against a rule list plus defaults.
type Engine struct {
	rules []Rule
}

func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Decide returns the decision for a (permission-class, tool-name) pair.
// Rules are evaluated in order; the last matching rule wins. Falls back to
// the default for the class when nothing matches.
func (e *Engine) Decide(class, tool string) Decision {
	decision, matched := Allow, false
	for _, r := range e.rules {
		if ruleMatches(r.Match, class, tool) {
			decision = r.Decision
			matched = true
		}
	}
	if matched {
		return decision
	}
	if d, ok := defaults[class]; ok {
		return d
	}
	return Ask
}

func ruleMatches(match, class, tool string) bool {
	if strings.HasPrefix(match, "tool:") {
		glob := strings.TrimPrefix(match, "tool:")
		ok, _ := filepath.Match(glob, tool)
		return ok
	}
	if ok, _ := filepath.Match(match, class); ok {
		return true
	}
	ok, _ := filepath.Match(match, tool)
	return ok
}

// AddRule appends a rule, taking effect after every rule currently present
// (used by CLI-flag and agent-profile override layering, which must apply
// after config rules but respect relative ordering among themselves).
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
}

// Rules returns a defensive copy of the current rule list, in evaluation
// order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
