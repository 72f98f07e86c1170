package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save persists the given key/value updates to the runtime configuration file.
// Existing values are preserved; updates win on conflict. It returns the path
// that was written.
func Save(updates map[string]any, opts ...Option) (string, error) {
	options := loadOptions{
		readFile: os.ReadFile,
		homeDir:  os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	configPath := options.configPath
	if configPath == "" {
		home, err := options.homeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigFileName)
	}

	var existing map[string]any
	if options.readFile != nil {
		if data, err := options.readFile(configPath); err == nil {
			if len(data) > 0 {
				if err := yaml.Unmarshal(data, &existing); err != nil {
					return "", fmt.Errorf("parse config file: %w", err)
				}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read config file: %w", err)
		}
	}
	if existing == nil {
		existing = map[string]any{}
	}

	for key, value := range updates {
		existing[key] = value
	}

	encoded, err := yaml.Marshal(existing)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure config directory: %w", err)
	}
	// 0600: the file may carry an API key.
	if err := os.WriteFile(configPath, encoded, 0o600); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}

	return configPath, nil
}
