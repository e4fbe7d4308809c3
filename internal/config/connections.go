package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig describes one tenant connection: the migration
// source or one of possibly several targets.
type ConnectionConfig struct {
	Name            string `yaml:"name"`
	URL             string `yaml:"url"`
	TenantID        string `yaml:"tenant-id"`
	ClientID        string `yaml:"client-id"`
	ClientSecretEnv string `yaml:"client-secret-env"`
}

// ClientSecret resolves the connection's client secret from its
// configured environment variable. Secrets are never stored in the
// connections file itself.
func (c ConnectionConfig) ClientSecret() string {
	if c.ClientSecretEnv == "" {
		return ""
	}
	return os.Getenv(c.ClientSecretEnv)
}

// ConnectionsFile is the on-disk shape of a connections config file:
// one source and a named list of targets.
type ConnectionsFile struct {
	Source  ConnectionConfig   `yaml:"source"`
	Targets []ConnectionConfig `yaml:"targets"`
}

// Target looks up a target connection by name.
func (cf *ConnectionsFile) Target(name string) (ConnectionConfig, bool) {
	for _, t := range cf.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return ConnectionConfig{}, false
}

// LoadConnections reads and parses a connections file directly,
// bypassing the viper singleton — useful for a CLI subcommand that
// needs connection details before the rest of Initialize has run.
func LoadConnections(path string) (*ConnectionsFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("config: read connections file %s: %w", path, err)
	}
	var cf ConnectionsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("config: parse connections file %s: %w", path, err)
	}
	return &cf, nil
}
