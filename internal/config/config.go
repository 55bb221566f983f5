// Package config handles tracexec settings from ~/.config/tracexec/config.yaml.
// The file provides defaults; command-line flags always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/orhun/tracexec/internal/event"
)

// Config holds the persistent defaults.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Filter FilterConfig `yaml:"filter"`

	// SeccompBPF selects the optimization filter mode: auto, on or off.
	SeccompBPF string `yaml:"seccomp_bpf"`
}

// LogConfig holds defaults for the line-oriented logging front end.
type LogConfig struct {
	Color            string `yaml:"color"` // auto, always or never
	JSON             bool   `yaml:"json"`
	ShowCwd          bool   `yaml:"show_cwd"`
	ShowInterpreters bool   `yaml:"show_interpreters"`
	// File, if set, receives the structured debug log.
	File string `yaml:"file"`
}

// FilterConfig holds the default event category selection.
type FilterConfig struct {
	ShowAll bool     `yaml:"show_all"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:        LogConfig{Color: "auto"},
		SeccompBPF: "auto",
	}
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error; the defaults apply.
func Load() (*Config, error) {
	cfg := Default()

	path := filepath.Join(Dir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if mode := os.Getenv("TRACEXEC_SECCOMP_BPF"); mode != "" {
		cfg.SeccompBPF = mode
	}
	if color := os.Getenv("TRACEXEC_COLOR"); color != "" {
		cfg.Log.Color = color
	}
	return cfg, nil
}

// Dir returns the configuration directory, honoring XDG_CONFIG_HOME.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tracexec")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tracexec")
	}
	return filepath.Join(homeDir, ".config", "tracexec")
}

// Rules converts the filter section into event rules.
func (c *Config) Rules() (event.Rules, error) {
	include, err := parseCategories(c.Filter.Include)
	if err != nil {
		return event.Rules{}, err
	}
	exclude, err := parseCategories(c.Filter.Exclude)
	if err != nil {
		return event.Rules{}, err
	}
	return event.NewRules(c.Filter.ShowAll, include, exclude), nil
}

func parseCategories(names []string) ([]event.Category, error) {
	var out []event.Category
	for _, name := range names {
		c, ok := event.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown event category %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}
