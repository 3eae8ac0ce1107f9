package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the static process configuration. Runtime tunables (quotas,
// cooldown, channel IDs) live in the database config table instead, so that
// admin commands can change them without a restart.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	LogLevel      string `yaml:"log_level"`
	MaxConcurrent int64  `yaml:"max_concurrent"`

	Upstream struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		GitHubToken    string `yaml:"github_token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"upstream"`

	Telegram struct {
		Token   string `yaml:"token"`
		OwnerID string `yaml:"owner_id"`
	} `yaml:"telegram"`

	Indexer struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		AdvisoryAfterHours  int `yaml:"advisory_after_hours"`
	} `yaml:"indexer"`
}

// Load reads the YAML config at path, writing a default file if none exists.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".greptbot"),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Upstream.BaseURL = "https://api.greptile.com/v2"
	cfg.Upstream.TimeoutSeconds = 60
	cfg.Indexer.PollIntervalSeconds = 60
	cfg.Indexer.AdvisoryAfterHours = 2

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides (highest precedence)
	if key := os.Getenv("GREPTILE_API_KEY"); key != "" {
		cfg.Upstream.APIKey = key
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.Upstream.GitHubToken = token
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if owner := os.Getenv("BOT_OWNER_ID"); owner != "" {
		cfg.Telegram.OwnerID = owner
	}

	return cfg, nil
}

// Validate checks that every required secret is present. A failure here is
// fatal at startup: the process has no partial-degraded mode.
func (c *Config) Validate() error {
	var missing []string
	if c.Upstream.APIKey == "" {
		missing = append(missing, "upstream.api_key (GREPTILE_API_KEY)")
	}
	if c.Upstream.GitHubToken == "" {
		missing = append(missing, "upstream.github_token (GITHUB_TOKEN)")
	}
	if c.Telegram.Token == "" {
		missing = append(missing, "telegram.token (TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.OwnerID == "" {
		missing = append(missing, "telegram.owner_id (BOT_OWNER_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Save writes the config atomically: marshal, write to a temp file, rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
