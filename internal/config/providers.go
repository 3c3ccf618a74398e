package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is one named entry of the providers: map. BaseURL, Model
// and APIKey are required; the key may contain ${VAR} placeholders resolved
// from the environment at load time. The reasoning flags control whether
// assistant reasoning text is echoed back on subsequent requests, which
// some OpenAI-compatible providers require in thinking mode.
type ProviderConfig struct {
	Name             string
	BaseURL          string
	Model            string
	APIKey           string
	Temperature      float64
	IncludeReasoning bool
	ForceReasoning   bool
}

// ProviderRegistry is the set of providers parsed from the YAML config,
// keyed by lowercased name.
type ProviderRegistry struct {
	items map[string]ProviderConfig
}

// Get resolves a provider by name (case-insensitive).
func (r *ProviderRegistry) Get(name string) (ProviderConfig, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ProviderConfig{}, fmt.Errorf("missing provider name")
	}
	cfg, ok := r.items[key]
	if !ok {
		known := strings.Join(r.Names(), ", ")
		if known == "" {
			known = "(none)"
		}
		return ProviderConfig{}, fmt.Errorf("unknown provider %q (known: %s)", name, known)
	}
	return cfg, nil
}

// Names returns the registered provider names, sorted.
func (r *ProviderRegistry) Names() []string {
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type providersFile struct {
	Providers map[string]providerEntry `yaml:"providers"`
}

type providerEntry struct {
	BaseURL          string  `yaml:"PYOPENCODE_BASE_URL"`
	Model            string  `yaml:"PYOPENCODE_MODEL"`
	APIKey           string  `yaml:"PYOPENCODE_API_KEY"`
	Temperature      float64 `yaml:"PYOPENCODE_TEMPERATURE"`
	IncludeReasoning bool    `yaml:"PYOPENCODE_INCLUDE_REASONING"`
	ForceReasoning   bool    `yaml:"PYOPENCODE_FORCE_REASONING"`
}

var envPlaceholder = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnvPlaceholders substitutes ${VAR} from the environment. An unset
// or empty variable is a fatal config error, never a silent empty key.
func expandEnvPlaceholders(s string) (string, error) {
	var expandErr error
	out := envPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		name := envPlaceholder.FindStringSubmatch(m)[1]
		val := os.Getenv(name)
		if val == "" && expandErr == nil {
			expandErr = fmt.Errorf("placeholder ${%s} not found in environment or is empty", name)
		}
		return val
	})
	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

const defaultTemperature = 0.2

// LoadProviders reads and validates the YAML provider config.
func LoadProviders(path string) (*ProviderRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provider config %s: %w", path, err)
	}

	var file providersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("provider config %s: %w", path, err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("provider config %s: must contain a non-empty 'providers:' mapping", path)
	}

	reg := &ProviderRegistry{items: make(map[string]ProviderConfig, len(file.Providers))}
	for name, entry := range file.Providers {
		baseURL := strings.TrimSpace(entry.BaseURL)
		model := strings.TrimSpace(entry.Model)
		apiKey := strings.TrimSpace(entry.APIKey)

		var missing []string
		if baseURL == "" {
			missing = append(missing, "PYOPENCODE_BASE_URL")
		}
		if model == "" {
			missing = append(missing, "PYOPENCODE_MODEL")
		}
		if apiKey == "" {
			missing = append(missing, "PYOPENCODE_API_KEY")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("providers.%s: missing required field(s): %s", name, strings.Join(missing, ", "))
		}

		apiKey, err := expandEnvPlaceholders(apiKey)
		if err != nil {
			return nil, fmt.Errorf("providers.%s: PYOPENCODE_API_KEY: %w", name, err)
		}

		temp := entry.Temperature
		if temp == 0 {
			temp = defaultTemperature
		}

		reg.items[strings.ToLower(strings.TrimSpace(name))] = ProviderConfig{
			Name:             name,
			BaseURL:          baseURL,
			Model:            model,
			APIKey:           apiKey,
			Temperature:      temp,
			IncludeReasoning: entry.IncludeReasoning,
			ForceReasoning:   entry.ForceReasoning,
		}
	}
	return reg, nil
}
