package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultThresholdKB is the change threshold applied when the config omits one.
const DefaultThresholdKB = 10

// DefaultIntervalSeconds is the poll interval applied when the config omits one.
const DefaultIntervalSeconds = 30

// DefaultFallbackBranch is the branch the push ladder falls back to when the
// attempted branch is absent on the remote.
const DefaultFallbackBranch = "master"

// DefaultCommitMessage is used when no commit message template is configured.
// The {timestamp} placeholder is expanded at commit time.
const DefaultCommitMessage = "autopushd: periodic snapshot {timestamp}"

// Config represents the complete autopushd configuration
type Config struct {
	Watch  WatchConfig  `yaml:"watch"`
	Repo   RepoConfig   `yaml:"repo"`
	Paths  PathsConfig  `yaml:"paths"`
	Serve  ServeConfig  `yaml:"serve"`
	Notify NotifyConfig `yaml:"notify"`
}

// WatchConfig configures the change detection loop
type WatchConfig struct {
	Dir             string `yaml:"dir"`
	ThresholdKB     int64  `yaml:"threshold_kb"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// RepoConfig configures the git repository target
type RepoConfig struct {
	RemoteURL      string `yaml:"remote_url"`
	FallbackBranch string `yaml:"fallback_branch"`
	CommitMessage  string `yaml:"commit_message"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	// StateDir enables baseline persistence when set. An empty value keeps
	// the baseline in memory only.
	StateDir string `yaml:"state_dir"`
}

// ServeConfig configures the status/trigger HTTP server
type ServeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	SecretFile string `yaml:"secret_file"`
}

// NotifyConfig configures the outbound webhook notifier
type NotifyConfig struct {
	URL        string `yaml:"url"`
	SecretFile string `yaml:"secret_file"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, watching the
// current directory. Used when no config file exists and the CLI supplies
// everything through flags.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Watch.Dir = os.ExpandEnv(c.Watch.Dir)
	c.Repo.RemoteURL = os.ExpandEnv(c.Repo.RemoteURL)
	c.Repo.FallbackBranch = os.ExpandEnv(c.Repo.FallbackBranch)
	c.Paths.StateDir = os.ExpandEnv(c.Paths.StateDir)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.SecretFile = os.ExpandEnv(c.Serve.SecretFile)
	c.Notify.URL = os.ExpandEnv(c.Notify.URL)
	c.Notify.SecretFile = os.ExpandEnv(c.Notify.SecretFile)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Watch.Dir == "" {
		c.Watch.Dir = "."
	}
	if c.Watch.ThresholdKB == 0 {
		c.Watch.ThresholdKB = DefaultThresholdKB
	}
	if c.Watch.IntervalSeconds == 0 {
		c.Watch.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.Repo.FallbackBranch == "" {
		c.Repo.FallbackBranch = DefaultFallbackBranch
	}
	if c.Repo.CommitMessage == "" {
		c.Repo.CommitMessage = DefaultCommitMessage
	}
	if c.Serve.Enabled && c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = "127.0.0.1:8737"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir is required")
	}

	// A negative threshold makes every measurement a trigger. The original
	// tool shipped iterations with -1/-2 KB; those are treated as
	// misconfiguration and rejected here.
	if c.Watch.ThresholdKB < 0 {
		return fmt.Errorf("watch.threshold_kb must be >= 0, got %d", c.Watch.ThresholdKB)
	}

	if c.Watch.IntervalSeconds < 1 {
		return fmt.Errorf("watch.interval_seconds must be >= 1, got %d", c.Watch.IntervalSeconds)
	}

	if c.Paths.StateDir != "" && !filepath.IsAbs(c.Paths.StateDir) {
		return fmt.Errorf("paths.state_dir must be an absolute path: %s", c.Paths.StateDir)
	}

	if c.Serve.Enabled && c.Serve.ListenAddr == "" {
		return fmt.Errorf("serve.listen_addr is required when serve is enabled")
	}

	if c.Notify.SecretFile != "" && c.Notify.URL == "" {
		return fmt.Errorf("notify.secret_file is set but notify.url is empty")
	}

	if c.Notify.URL != "" && !c.notifyURLValid() {
		return fmt.Errorf("notify.url must be an http(s) URL: %s", c.Notify.URL)
	}

	return nil
}

// notifyURLValid reports whether the notify URL uses a supported scheme
func (c *Config) notifyURLValid() bool {
	return strings.HasPrefix(c.Notify.URL, "http://") || strings.HasPrefix(c.Notify.URL, "https://")
}

// Interval returns the poll interval as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Watch.IntervalSeconds) * time.Second
}

// ThresholdBytes returns the change threshold in bytes
func (c *Config) ThresholdBytes() int64 {
	return c.Watch.ThresholdKB * 1024
}

// StateFilePath returns the path to the baseline state file, or an empty
// string when persistence is disabled.
func (c *Config) StateFilePath() string {
	if c.Paths.StateDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, "state.json")
}

// CommitMessage renders the commit message template, expanding the
// {timestamp} placeholder with the given time.
func (c *Config) CommitMessage(now time.Time) string {
	return strings.ReplaceAll(c.Repo.CommitMessage, "{timestamp}", now.Format("2006-01-02 15:04:05"))
}
