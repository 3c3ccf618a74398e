// Package agent holds the named behavior profiles (built-in and
// config-defined) and the project rules resolver.
package agent

import (
	"sort"

	"github.com/waysongjiang/pyopencode/internal/config"
	"github.com/waysongjiang/pyopencode/internal/permission"
)

// Profile is one named behavior profile. It is constructed at turn start
// from defaults + config and not mutated mid-turn; per-command overrides
// are applied to a local copy.
type Profile struct {
	Name                string
	Description         string
	SystemPrompt        string
	MaxSteps            int    // 0 means "use the caller's default"
	Model               string // empty means "use the provider's model"
	PermissionOverrides map[string]permission.Decision
}

const basePrompt = "You are a local coding agent. Use tools to read files and run commands; don't fabricate outputs."

func builtinProfiles() []Profile {
	return []Profile{
		{
			Name:                "general",
			Description:         "General assistant (balanced).",
			SystemPrompt:        basePrompt,
			PermissionOverrides: map[string]permission.Decision{},
		},
		{
			Name:         "plan",
			Description:  "Read-only planning: produce a step-by-step plan without editing or running commands.",
			SystemPrompt: basePrompt + "\n\nMode: PLAN ONLY. Do not call edit/write/patch/bash. If needed, ask the user for confirmation to switch to build/run.",
			PermissionOverrides: map[string]permission.Decision{
				"edit": permission.Deny,
				"bash": permission.Deny,
			},
		},
		{
			Name:         "explore",
			Description:  "Read-only exploration: inspect the repository, locate relevant code, summarize findings.",
			SystemPrompt: basePrompt + "\n\nMode: EXPLORE. Prefer list/glob/grep/read. Do not edit files or run bash unless explicitly allowed.",
			PermissionOverrides: map[string]permission.Decision{
				"edit": permission.Deny,
				"bash": permission.Deny,
			},
		},
		{
			Name:         "build",
			Description:  "Implement changes (edit/patch allowed) but avoid running shell commands unless necessary.",
			SystemPrompt: basePrompt + "\n\nMode: BUILD. You may edit files when necessary. Prefer deterministic edits (edit/multiedit/patch). Use bash only when explicitly required.",
			PermissionOverrides: map[string]permission.Decision{
				"edit": permission.Allow,
				"bash": permission.Ask,
			},
		},
		{
			Name:         "run",
			Description:  "Execute tests/build steps (bash allowed) and implement fixes.",
			SystemPrompt: basePrompt + "\n\nMode: RUN. You may use bash to run tests and commands. Be safe: show the exact command; avoid destructive actions.",
			PermissionOverrides: map[string]permission.Decision{
				"edit": permission.Allow,
				"bash": permission.Allow,
			},
		},
	}
}

// Registry maps profile names to profiles. Config-defined agents merge
// over the builtins by name.
type Registry struct {
	profiles     map[string]Profile
	defaultAgent string
}

// NewRegistry builds the registry from the builtins plus any behavior
// config agents.
func NewRegistry(behavior *config.Behavior) *Registry {
	r := &Registry{profiles: make(map[string]Profile), defaultAgent: "general"}
	for _, p := range builtinProfiles() {
		r.profiles[p.Name] = p
	}
	if behavior == nil {
		return r
	}
	if behavior.DefaultAgent != "" {
		r.defaultAgent = behavior.DefaultAgent
	}
	for name, ac := range behavior.Agents {
		overrides := make(map[string]permission.Decision, len(ac.PermissionOverrides))
		for class, d := range ac.PermissionOverrides {
			switch permission.Decision(d) {
			case permission.Allow, permission.Ask, permission.Deny:
				overrides[class] = permission.Decision(d)
			}
		}
		desc := ac.Description
		if desc == "" {
			desc = "Custom agent: " + name
		}
		r.profiles[name] = Profile{
			Name:                name,
			Description:         desc,
			SystemPrompt:        ac.SystemPrompt,
			MaxSteps:            ac.MaxSteps,
			Model:               ac.Model,
			PermissionOverrides: overrides,
		}
	}
	return r
}

// Get resolves a profile by name, falling back to the default agent, then
// to "general".
func (r *Registry) Get(name string) Profile {
	if p, ok := r.profiles[name]; ok {
		return p
	}
	if p, ok := r.profiles[r.defaultAgent]; ok {
		return p
	}
	return r.profiles["general"]
}

// Names returns all profile names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
