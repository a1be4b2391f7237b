// Package config provides configuration management for coursebot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/lukaszraczylo/coursebot/pkg/fuzzy"
)

const (
	// DefaultPollTimeoutSec is the Telegram getUpdates long-poll timeout.
	DefaultPollTimeoutSec = 30

	// DefaultMaxConns is the SQLite connection pool size.
	DefaultMaxConns = 4

	// DefaultSessionIdleMin is how long an incomplete dialogue survives
	// without input before the janitor discards it.
	DefaultSessionIdleMin = 15

	// DefaultNotifyBuffer is the announcement queue depth.
	DefaultNotifyBuffer = 64
)

// Config holds the runtime configuration, loaded from settings.json with
// environment overrides.
type Config struct {
	BotToken       string `json:"bot_token"`
	WebhookAddr    string `json:"webhook_addr"` // empty means long polling
	PollTimeoutSec int    `json:"poll_timeout_sec"`
	DBPath         string `json:"db_path"`
	MaxConns       int    `json:"max_conns"`
	MatchTopN      int    `json:"match_top_n"`
	MatchThreshold int    `json:"match_threshold"`
	SessionIdleMin int    `json:"session_idle_min"`
	NotifyBuffer   int    `json:"notify_buffer"`
	CategoriesPath string `json:"categories_path"`
}

var (
	cached   *Config
	cachedMu sync.Mutex
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		PollTimeoutSec: DefaultPollTimeoutSec,
		DBPath:         DBPath(),
		MaxConns:       DefaultMaxConns,
		MatchTopN:      fuzzy.DefaultTopN,
		MatchThreshold: fuzzy.DefaultThreshold,
		SessionIdleMin: DefaultSessionIdleMin,
		NotifyBuffer:   DefaultNotifyBuffer,
		CategoriesPath: CategoriesPath(),
	}
}

// DataDir returns the coursebot data directory (~/.coursebot).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".coursebot")
}

// DBPath returns the catalog database path.
func DBPath() string {
	return filepath.Join(DataDir(), "coursebot.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// CategoriesPath returns the category override file path.
func CategoriesPath() string {
	return filepath.Join(DataDir(), "categories.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll creates the data directory and the default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// Load reads settings.json, fills gaps with defaults, and applies environment
// overrides. A missing settings file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse settings: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// Get returns the cached configuration, loading it on first use. Load errors
// fall back to defaults.
func Get() *Config {
	cachedMu.Lock()
	defer cachedMu.Unlock()
	if cached == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		cached = cfg
	}
	return cached
}

// IdleTimeout returns the session idle expiry as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMin) * time.Minute
}

// applyDefaults backfills zero values a hand-edited settings file may have
// left out.
func applyDefaults(cfg *Config) {
	if cfg.PollTimeoutSec <= 0 {
		cfg.PollTimeoutSec = DefaultPollTimeoutSec
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DBPath()
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.MatchTopN <= 0 {
		cfg.MatchTopN = fuzzy.DefaultTopN
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = fuzzy.DefaultThreshold
	}
	if cfg.SessionIdleMin <= 0 {
		cfg.SessionIdleMin = DefaultSessionIdleMin
	}
	if cfg.NotifyBuffer <= 0 {
		cfg.NotifyBuffer = DefaultNotifyBuffer
	}
	if cfg.CategoriesPath == "" {
		cfg.CategoriesPath = CategoriesPath()
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COURSEBOT_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := os.Getenv("COURSEBOT_WEBHOOK_ADDR"); v != "" {
		cfg.WebhookAddr = v
	}
	if v := os.Getenv("COURSEBOT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COURSEBOT_CATEGORIES_PATH"); v != "" {
		cfg.CategoriesPath = v
	}
	if v, ok := envInt("COURSEBOT_POLL_TIMEOUT_SEC"); ok {
		cfg.PollTimeoutSec = v
	}
	if v, ok := envInt("COURSEBOT_MATCH_THRESHOLD"); ok {
		cfg.MatchThreshold = v
	}
	if v, ok := envInt("COURSEBOT_MATCH_TOP_N"); ok {
		cfg.MatchTopN = v
	}
	if v, ok := envInt("COURSEBOT_SESSION_IDLE_MIN"); ok {
		cfg.SessionIdleMin = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
