package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version"`
	Agent     AgentConfig     `toml:"agent"`
	Cycle     CycleConfig     `toml:"cycle"`
	Budget    BudgetConfig    `toml:"budget"`
	Health    HealthConfig    `toml:"health"`
	Generator GeneratorConfig `toml:"generator"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

type AgentConfig struct {
	// Name is our own handle on the platform; used to skip self-authored content.
	Name        string `toml:"name"`
	HomeSubmolt string `toml:"home_submolt"`
	PersonaDir  string `toml:"persona_dir"`
}

type CycleConfig struct {
	IntervalSeconds      int `toml:"interval_seconds"`
	MaxPostsPerDay       int `toml:"max_posts_per_day"`
	PostCooldownMinutes  int `toml:"post_cooldown_minutes"`
	RecentPostsToCheck   int `toml:"recent_posts_to_check"`
	UnreadConversations  int `toml:"unread_conversations"`
	LockStaleSeconds     int `toml:"lock_stale_seconds"`
	FeedFetchLimit       int `toml:"feed_fetch_limit"`
	ProfileLookupsPerRun int `toml:"profile_lookups_per_run"`
}

type BudgetConfig struct {
	CommentsPerHour int `toml:"comments_per_hour"`
	CyclesPerHour   int `toml:"cycles_per_hour"`
}

type HealthConfig struct {
	FailureThreshold     int `toml:"failure_threshold"`
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
}

type GeneratorConfig struct {
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type DashboardConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Agent: AgentConfig{
			Name:        "autonet",
			HomeSubmolt: "autonet",
			PersonaDir:  "persona",
		},
		Cycle: CycleConfig{
			IntervalSeconds:      1800,
			MaxPostsPerDay:       4,
			PostCooldownMinutes:  30,
			RecentPostsToCheck:   8,
			UnreadConversations:  5,
			LockStaleSeconds:     600,
			FeedFetchLimit:       20,
			ProfileLookupsPerRun: 5,
		},
		Budget: BudgetConfig{
			CommentsPerHour: 50,
			CyclesPerHour:   2,
		},
		Health: HealthConfig{
			FailureThreshold:     1,
			ProbeIntervalSeconds: 300,
		},
		Generator: GeneratorConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    8420,
		},
	}
}

// Interval returns the cycle interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Cycle.IntervalSeconds) * time.Second
}

// PostCooldown returns the minimum time between new posts.
func (c *Config) PostCooldown() time.Duration {
	return time.Duration(c.Cycle.PostCooldownMinutes) * time.Minute
}

// ProbeInterval returns how often to probe the write API while down.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Health.ProbeIntervalSeconds) * time.Second
}

// LockStale returns the age after which a lock file is reclaimed.
func (c *Config) LockStale() time.Duration {
	return time.Duration(c.Cycle.LockStaleSeconds) * time.Second
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "moltd"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory for state, lock, queue, and database files.
func DataDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// Load reads config from disk, applying env overrides afterward.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// LoadOrDefault reads config from disk, falling back to defaults when
// no config file exists yet.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Default()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MOLTD_AGENT_NAME"); v != "" {
		c.Agent.Name = v
	}
	if v := getEnvInt("MOLTD_DASHBOARD_PORT"); v > 0 {
		c.Dashboard.Port = v
	}
	if v := getEnvInt("MOLTD_COMMENTS_PER_HOUR"); v > 0 {
		c.Budget.CommentsPerHour = v
	}
	if v := getEnvInt("MOLTD_FAILURE_THRESHOLD"); v > 0 {
		c.Health.FailureThreshold = v
	}
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
