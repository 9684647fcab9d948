package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tssh/internal/knownhosts"
	"tssh/internal/status"
)

// DefaultFile is the config location relative to the user's home.
const DefaultFile = ".config/tssh/config.yaml"

// Config holds the settings every tssh command needs.
type Config struct {
	KnownHostsFile string `yaml:"known_hosts_file"`
	Tailscale      string `yaml:"tailscale"`
}

// DefaultPath returns the config file path under home.
func DefaultPath(home string) string {
	return filepath.Join(home, DefaultFile)
}

// DefaultKnownHostsFile returns the known_hosts path under home.
func DefaultKnownHostsFile(home string) string {
	return filepath.Join(home, knownhosts.DefaultFile)
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load for the default location: a missing file yields an
// empty Config.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.KnownHostsFile == "" {
		return fmt.Errorf("known_hosts_file is required")
	}
	if cfg.Tailscale == "" {
		return fmt.Errorf("tailscale is required")
	}
	return nil
}

// ApplyDefaults fills in default values when empty. A leading "~/" in
// KnownHostsFile is expanded against home.
func ApplyDefaults(cfg *Config, home string) {
	if cfg.KnownHostsFile == "" {
		cfg.KnownHostsFile = DefaultKnownHostsFile(home)
	} else if rest, ok := strings.CutPrefix(cfg.KnownHostsFile, "~/"); ok {
		cfg.KnownHostsFile = filepath.Join(home, rest)
	}
	if cfg.Tailscale == "" {
		cfg.Tailscale = status.DefaultBinary
	}
}
