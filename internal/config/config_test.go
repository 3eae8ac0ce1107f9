package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GREPTILE_API_KEY", "GITHUB_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_OWNER_ID"} {
		t.Setenv(key, "")
	}
}

func TestLoadWritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://api.greptile.com/v2" {
		t.Errorf("unexpected base URL: %s", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("unexpected timeout: %d", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Indexer.PollIntervalSeconds != 60 {
		t.Errorf("unexpected poll interval: %d", cfg.Indexer.PollIntervalSeconds)
	}
}

func TestSaveReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := &Config{
		DataDir:       "/tmp/greptbot-test",
		LogLevel:      "debug",
		MaxConcurrent: 4,
	}
	original.Upstream.BaseURL = "https://upstream.example/v2"
	original.Upstream.APIKey = "key-round-trip"
	original.Upstream.GitHubToken = "gh-token"
	original.Upstream.TimeoutSeconds = 30
	original.Telegram.Token = "bot-token"
	original.Telegram.OwnerID = "12345"
	original.Indexer.PollIntervalSeconds = 10
	original.Indexer.AdvisoryAfterHours = 1

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.Upstream.APIKey != original.Upstream.APIKey {
		t.Errorf("APIKey mismatch: %v != %v", loaded.Upstream.APIKey, original.Upstream.APIKey)
	}
	if loaded.Telegram.OwnerID != original.Telegram.OwnerID {
		t.Errorf("OwnerID mismatch: %v != %v", loaded.Telegram.OwnerID, original.Telegram.OwnerID)
	}
	if loaded.Indexer.PollIntervalSeconds != original.Indexer.PollIntervalSeconds {
		t.Errorf("PollIntervalSeconds mismatch: %v != %v", loaded.Indexer.PollIntervalSeconds, original.Indexer.PollIntervalSeconds)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Upstream.APIKey = "from-file"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("GREPTILE_API_KEY", "from-env")
	t.Setenv("BOT_OWNER_ID", "99")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Upstream.APIKey != "from-env" {
		t.Errorf("env should override file, got %s", loaded.Upstream.APIKey)
	}
	if loaded.Telegram.OwnerID != "99" {
		t.Errorf("owner ID not taken from env, got %s", loaded.Telegram.OwnerID)
	}
}

func TestValidateMissingSecrets(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	for _, want := range []string{"upstream.api_key", "upstream.github_token", "telegram.token", "telegram.owner_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}

	cfg.Upstream.APIKey = "k"
	cfg.Upstream.GitHubToken = "g"
	cfg.Telegram.Token = "t"
	cfg.Telegram.OwnerID = "1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestListValuesMasksSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Upstream.APIKey = "supersecretkey"
	cfg.Upstream.BaseURL = "https://upstream.example/v2"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["upstream.api_key"] != "***tkey" {
		t.Errorf("secret not masked: %v", flat["upstream.api_key"])
	}
	if flat["upstream.base_url"] != "https://upstream.example/v2" {
		t.Errorf("non-secret altered: %v", flat["upstream.base_url"])
	}
}

func TestSetValueUnknownKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetValueRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("log_level not persisted, got %s", loaded.LogLevel)
	}
}
