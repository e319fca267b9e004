package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL   = "http://localhost:3333"
	ConfigFileName     = "config.yaml"
	SessionFileName    = "session.json"
	ServerURLEnvVarKey = "NOTES_SERVER_URL"
)

// settings is the on-disk CLI configuration (~/.notes/config.yaml).
type settings struct {
	Server string `yaml:"server"`
}

func loadSettings(dir string) (*settings, error) {
	s := &settings{}
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return s, nil
}

func saveSettings(dir string, s *settings) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error encoding config file: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0600)
}

// resolveServer picks the API URL: flag, then environment, then config file,
// then the default.
func resolveServer(flagValue string, getenv func(string) string, s *settings) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(getenv(ServerURLEnvVarKey)); v != "" {
		return v
	}
	if s != nil && strings.TrimSpace(s.Server) != "" {
		return strings.TrimSpace(s.Server)
	}
	return DefaultServerURL
}
