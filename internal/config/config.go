// Package config loads sortwatch configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AIConfig configures the classification capability.
type AIConfig struct {
	APIKey string `yaml:"api_key"`
	// Model tiers, cheapest to strongest. The router picks between them;
	// the rule evaluator always uses the minimal tier.
	MinimalModel  string `yaml:"minimal_model"`
	BalancedModel string `yaml:"balanced_model"`
	MaximumModel  string `yaml:"maximum_model"`
}

// LimitsConfig bounds the watcher engines.
type LimitsConfig struct {
	MaxMailWatchers int `yaml:"max_mail_watchers"`
	MinPollSeconds  int `yaml:"min_poll_seconds"`
	ProcessedIDCap  int `yaml:"processed_id_cap"`
	ActivityCap     int `yaml:"activity_cap"`
	MatchCap        int `yaml:"match_cap"`
	DebounceSeconds int `yaml:"debounce_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
	AI       AIConfig     `yaml:"ai"`
	Limits   LimitsConfig `yaml:"limits"`
}

// Default returns the baseline configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:  filepath.Join(home, ".sortwatch"),
		LogLevel: "info",
		AI: AIConfig{
			MinimalModel:  "gemini-2.0-flash-lite",
			BalancedModel: "gemini-2.0-flash",
			MaximumModel:  "gemini-2.5-pro",
		},
		Limits: LimitsConfig{
			MaxMailWatchers: 5,
			MinPollSeconds:  60,
			ProcessedIDCap:  200,
			ActivityCap:     100,
			MatchCap:        50,
			DebounceSeconds: 2,
		},
	}
}

// Load reads the config file at path (or the default location when path is
// empty), applies env overrides, and clamps limits. A missing file is not an
// error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("SORTWATCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SORTWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) clamp() {
	d := Default().Limits
	if c.Limits.MaxMailWatchers <= 0 {
		c.Limits.MaxMailWatchers = d.MaxMailWatchers
	}
	if c.Limits.MinPollSeconds < 10 {
		c.Limits.MinPollSeconds = d.MinPollSeconds
	}
	if c.Limits.ProcessedIDCap <= 0 {
		c.Limits.ProcessedIDCap = d.ProcessedIDCap
	}
	if c.Limits.ActivityCap <= 0 {
		c.Limits.ActivityCap = d.ActivityCap
	}
	if c.Limits.MatchCap <= 0 {
		c.Limits.MatchCap = d.MatchCap
	}
	if c.Limits.DebounceSeconds <= 0 {
		c.Limits.DebounceSeconds = d.DebounceSeconds
	}
}

// Debounce returns the filesystem stability window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Limits.DebounceSeconds) * time.Second
}

// MinPoll returns the minimum mail poll interval as a duration.
func (c *Config) MinPoll() time.Duration {
	return time.Duration(c.Limits.MinPollSeconds) * time.Second
}

// DBPath returns the sqlite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "sortwatch.db")
}

// TrashDir returns the recoverable trash directory under the data directory.
func (c *Config) TrashDir() string {
	return filepath.Join(c.DataDir, "trash")
}
