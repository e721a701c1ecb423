// Package config loads the optional .lockmender.yml run configuration.
// Command-line flags override anything set here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hannajonsd/lockmender/advisory"
)

// FileName is the config file looked up in the project directory.
const FileName = ".lockmender.yml"

// Config is the recognized run configuration.
type Config struct {
	// Concurrency bounds the advisory lookup pool.
	Concurrency int `yaml:"concurrency"`

	// SeverityFloor drops findings below this severity. Empty keeps all.
	SeverityFloor string `yaml:"severity_floor"`

	// AllowPositionalOverrides permits parent-scoped fixes when a
	// package-wide override would break a manifest range.
	AllowPositionalOverrides bool `yaml:"allow_positional_overrides"`

	// Advisories is the path of a JSON advisory database file.
	Advisories string `yaml:"advisories"`

	// OSVURL is an OSV-style advisory query endpoint, used when no file
	// database is configured.
	OSVURL string `yaml:"osv_url"`

	// SourceDir enables the source usage scan when set.
	SourceDir string `yaml:"source_dir"`

	// Partial tolerates advisory lookup failures instead of aborting.
	Partial bool `yaml:"partial"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{Concurrency: 8}
}

// Load reads a config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.validate(path)
}

// LoadDir loads .lockmender.yml from dir if present, defaults otherwise.
func LoadDir(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c Config) validate(path string) error {
	if c.Concurrency < 1 {
		return fmt.Errorf("config: %s: concurrency must be at least 1", path)
	}
	if c.SeverityFloor != "" {
		if _, err := advisory.ParseSeverity(c.SeverityFloor); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return nil
}

// Floor returns the parsed severity floor, or empty when none is set.
func (c Config) Floor() advisory.Severity {
	if c.SeverityFloor == "" {
		return ""
	}
	s, err := advisory.ParseSeverity(c.SeverityFloor)
	if err != nil {
		return ""
	}
	return s
}
