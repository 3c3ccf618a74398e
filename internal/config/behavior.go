package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PermissionRuleConfig is one configured permission rule: a match pattern
// ("tool:<glob>" or a bare glob) and a decision (allow/ask/deny).
type PermissionRuleConfig struct {
	Match    string `json:"match"`
	Decision string `json:"decision"`
}

// AgentConfig is a config-defined agent profile, merged over the builtins
// by name.
type AgentConfig struct {
	Description         string            `json:"description"`
	SystemPrompt        string            `json:"system_prompt"`
	MaxSteps            int               `json:"max_steps"`
	Model               string            `json:"model"`
	PermissionOverrides map[string]string `json:"permission_overrides"`
}

// CommandConfig is an inline prompt template defined directly in the
// behavior config (as opposed to a markdown file in a commands/ dir).
type CommandConfig struct {
	Description string `json:"description"`
	Agent       string `json:"agent"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	MaxSteps    int    `json:"max_steps"`
}

// MCPServerConfig describes one external tool server to spawn.
type MCPServerConfig struct {
	Command []string          `json:"command"`
	Env     map[string]string `json:"env"`
	Cwd     string            `json:"cwd"`
	Prefix  string            `json:"prefix"`
}

// Behavior is the merged behavior config.
type Behavior struct {
	DefaultAgent string                     `json:"default_agent"`
	Permissions  []PermissionRuleConfig     `json:"permissions"`
	Agents       map[string]AgentConfig     `json:"agents"`
	Commands     map[string]CommandConfig   `json:"commands"`
	MCPServers   map[string]MCPServerConfig `json:"mcp_servers"`
	RulesFiles   []string                   `json:"rules_files"`
	CacheTTL     int                        `json:"cache_ttl_hours"`

	// LoadedFrom is the highest-priority file that contributed, for
	// diagnostics only.
	LoadedFrom string `json:"-"`
}

// CacheTTLOrDefault returns the web cache TTL in hours, defaulting to 24.
func (b *Behavior) CacheTTLOrDefault() int {
	if b.CacheTTL <= 0 {
		return 24
	}
	return b.CacheTTL
}

func globalBehaviorCandidates() []string {
	dir, err := DataDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "pyopencode.json")}
}

func projectBehaviorCandidates(cwd string) []string {
	return []string{
		filepath.Join(cwd, ".pyopencode.json"),
		filepath.Join(cwd, "pyopencode.json"),
	}
}

// LoadBehavior merges the behavior config in order global < project <
// explicit path. A missing global or project file is fine; a missing
// explicit path, or any present but malformed file, is a fatal config error.
func LoadBehavior(cwd, explicitPath string) (*Behavior, error) {
	merged := map[string]json.RawMessage{}
	loadedFrom := ""

	mergeFile := func(path string, required bool) error {
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			if required {
				return fmt.Errorf("behavior config %s: %w", path, err)
			}
			return nil
		} else if err != nil {
			return fmt.Errorf("behavior config %s: %w", path, err)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("behavior config %s: %w", path, err)
		}
		for k, v := range obj {
			merged[k] = mergeValue(merged[k], v)
		}
		loadedFrom = path
		return nil
	}

	for _, p := range globalBehaviorCandidates() {
		if err := mergeFile(p, false); err != nil {
			return nil, err
		}
	}
	for _, p := range projectBehaviorCandidates(cwd) {
		if _, err := os.Stat(p); err == nil {
			if err := mergeFile(p, false); err != nil {
				return nil, err
			}
			break // first project-level match wins
		}
	}
	if explicitPath != "" {
		if err := mergeFile(explicitPath, true); err != nil {
			return nil, err
		}
	}

	combined, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("behavior config: %w", err)
	}
	b := &Behavior{DefaultAgent: "general"}
	if err := json.Unmarshal(combined, b); err != nil {
		return nil, fmt.Errorf("behavior config: %w", err)
	}
	if b.DefaultAgent == "" {
		b.DefaultAgent = "general"
	}
	b.LoadedFrom = loadedFrom

	// Resolve rules_files relative to the project root.
	for i, f := range b.RulesFiles {
		if !filepath.IsAbs(f) {
			b.RulesFiles[i] = filepath.Join(cwd, f)
		}
	}
	return b, nil
}

// mergeValue deep-merges override into base when both are JSON objects;
// otherwise the override replaces the base wholesale.
func mergeValue(base, override json.RawMessage) json.RawMessage {
	if len(base) == 0 {
		return override
	}
	var baseObj, overObj map[string]json.RawMessage
	if json.Unmarshal(base, &baseObj) != nil || json.Unmarshal(override, &overObj) != nil {
		return override
	}
	for k, v := range overObj {
		baseObj[k] = mergeValue(baseObj[k], v)
	}
	out, err := json.Marshal(baseObj)
	if err != nil {
		return override
	}
	return out
}
