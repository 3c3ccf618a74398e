package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Credentials holds API keys for auxiliary services (e.g. web search).
// LLM provider keys live in the YAML provider config instead.
type Credentials struct {
	Services map[string]ServiceCredentials `json:"services"`
}

// ServiceCredentials holds authentication for a single service.
type ServiceCredentials struct {
	APIKey string `json:"api_key"`
}

// LoadCredentials reads credentials from <data-dir>/credentials.json. A
// missing file yields an empty credential set, not an error.
func LoadCredentials() (*Credentials, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, err
	}

	creds := &Credentials{Services: make(map[string]ServiceCredentials)}

	data, err := os.ReadFile(filepath.Join(dir, "credentials.json"))
	if os.IsNotExist(err) {
		return creds, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// SaveCredentials writes credentials with 0600 permissions.
func SaveCredentials(creds *Credentials) error {
	dir, err := EnsureDataDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "credentials.json"), data, 0o600)
}

// GetAPIKey returns the API key for a service, or empty string if not set.
func (c *Credentials) GetAPIKey(service string) string {
	if c == nil || c.Services == nil {
		return ""
	}
	return c.Services[service].APIKey
}

// SetAPIKey sets the API key for a service.
func (c *Credentials) SetAPIKey(service, apiKey string) {
	if c.Services == nil {
		c.Services = make(map[string]ServiceCredentials)
	}
	c.Services[service] = ServiceCredentials{APIKey: apiKey}
}
