package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// FOREMAN_COORDINATOR_INTERVAL_SECONDS for coordinator.interval_seconds.
const EnvPrefix = "FOREMAN"

// Config holds all configuration for foreman
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Distributor DistributorConfig `mapstructure:"distributor" yaml:"distributor"`
	Mailbox     MailboxConfig     `mapstructure:"mailbox" yaml:"mailbox"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
}

// CoordinatorConfig controls the control loop
type CoordinatorConfig struct {
	// IntervalSeconds is the pause between cycles
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	// BackoffSeconds replaces the interval after a failed cycle
	BackoffSeconds int `mapstructure:"backoff_seconds" yaml:"backoff_seconds"`
	// Strategy selects worker placement: round_robin, least_loaded, priority_based, skill_based
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
	// MaxConcurrent caps active tasks per worker when queued backlogs are distributed
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// AutoDistribute queues backlog distribution for reachable workers each cycle
	AutoDistribute bool `mapstructure:"auto_distribute" yaml:"auto_distribute"`
	// MaxRedistributions is how many times a failed task is retried before
	// it is left for an operator
	MaxRedistributions int `mapstructure:"max_redistributions" yaml:"max_redistributions"`
	// DeadlineWindowMinutes is how close a Low task's deadline must be before
	// Normal mode bumps it
	DeadlineWindowMinutes int `mapstructure:"deadline_window_minutes" yaml:"deadline_window_minutes"`
	// UrgentWindowMinutes is how close a deadline must be before Emergency
	// mode escalates it to Critical
	UrgentWindowMinutes int `mapstructure:"urgent_window_minutes" yaml:"urgent_window_minutes"`
	// OverloadHours marks a worker as shedding work in Emergency mode
	OverloadHours float64 `mapstructure:"overload_hours" yaml:"overload_hours"`
	// UnderloadHours marks a worker as able to receive shed work
	UnderloadHours float64 `mapstructure:"underload_hours" yaml:"underload_hours"`
	// AlertRetentionHours prunes resolved alerts older than this (0 = keep forever)
	AlertRetentionHours int `mapstructure:"alert_retention_hours" yaml:"alert_retention_hours"`
}

// Interval returns the cycle interval as a Duration
func (c *CoordinatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Backoff returns the post-failure pause as a Duration
func (c *CoordinatorConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// DeadlineWindow returns the Normal mode deadline window as a Duration
func (c *CoordinatorConfig) DeadlineWindow() time.Duration {
	return time.Duration(c.DeadlineWindowMinutes) * time.Minute
}

// UrgentWindow returns the Emergency mode escalation window as a Duration
func (c *CoordinatorConfig) UrgentWindow() time.Duration {
	return time.Duration(c.UrgentWindowMinutes) * time.Minute
}

// AlertRetention returns the resolved-alert retention as a Duration
func (c *CoordinatorConfig) AlertRetention() time.Duration {
	return time.Duration(c.AlertRetentionHours) * time.Hour
}

// MonitorConfig controls worker health derivation
type MonitorConfig struct {
	CapacityHours             float64 `mapstructure:"capacity_hours" yaml:"capacity_hours"`
	OverloadThreshold         float64 `mapstructure:"overload_threshold" yaml:"overload_threshold"`
	UnavailableTimeoutSeconds int     `mapstructure:"unavailable_timeout_seconds" yaml:"unavailable_timeout_seconds"`
	DeadlineWarningMinutes    int     `mapstructure:"deadline_warning_minutes" yaml:"deadline_warning_minutes"`
	StuckFactor               float64 `mapstructure:"stuck_factor" yaml:"stuck_factor"`
	PollConcurrency           int     `mapstructure:"poll_concurrency" yaml:"poll_concurrency"`
	ProbeTimeoutSeconds       int     `mapstructure:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
}

// Capacity returns the per-worker capacity as a Duration
func (c *MonitorConfig) Capacity() time.Duration {
	return time.Duration(c.CapacityHours * float64(time.Hour))
}

// UnavailableTimeout returns the silence threshold as a Duration
func (c *MonitorConfig) UnavailableTimeout() time.Duration {
	return time.Duration(c.UnavailableTimeoutSeconds) * time.Second
}

// DeadlineWarning returns the deadline warning window as a Duration
func (c *MonitorConfig) DeadlineWarning() time.Duration {
	return time.Duration(c.DeadlineWarningMinutes) * time.Minute
}

// ProbeTimeout returns the per-worker probe limit as a Duration
func (c *MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// DistributorConfig holds defaults applied to newly created tasks
type DistributorConfig struct {
	DefaultPriority       string  `mapstructure:"default_priority" yaml:"default_priority"`
	DefaultEstimatedHours float64 `mapstructure:"default_estimated_hours" yaml:"default_estimated_hours"`
	DefaultDeadlineHours  float64 `mapstructure:"default_deadline_hours" yaml:"default_deadline_hours"`
}

// DeadlineOffset returns the default deadline offset as a Duration
func (c *DistributorConfig) DeadlineOffset() time.Duration {
	return time.Duration(c.DefaultDeadlineHours * float64(time.Hour))
}

// Mailbox backends
const (
	MailboxFile  = "file"
	MailboxRedis = "redis"
)

// MailboxConfig selects and configures the message transport
type MailboxConfig struct {
	// Backend is "file" (JSONL under Dir) or "redis"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir overrides the file backend location (default: <state_dir>/mailbox)
	Dir           string `mapstructure:"dir" yaml:"dir"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password,omitempty"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	// MessageTTLMinutes is how long undelivered messages stay visible (0 = forever)
	MessageTTLMinutes int `mapstructure:"message_ttl_minutes" yaml:"message_ttl_minutes"`
}

// MessageTTL returns the message lifetime as a Duration
func (c *MailboxConfig) MessageTTL() time.Duration {
	return time.Duration(c.MessageTTLMinutes) * time.Minute
}

// ResolveDir returns the file mailbox directory under stateDir unless overridden.
func (c *MailboxConfig) ResolveDir(stateDir string) string {
	if c.Dir != "" {
		return expandHome(c.Dir)
	}
	return filepath.Join(stateDir, "mailbox")
}

// HistoryConfig selects where coordination reports are kept
type HistoryConfig struct {
	// Backend is "jsonl" or "sqlite"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the store location (default: a file in the state dir)
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", or "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Stderr writes logs to stderr instead of <state_dir>/foreman.log
	Stderr bool `mapstructure:"stderr" yaml:"stderr"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// PathsConfig controls where foreman keeps its state
type PathsConfig struct {
	// StateDir holds tasks, alerts, capabilities, history, mailbox, and logs.
	// Supports ~ for the home directory. Relative paths resolve against the
	// working directory.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
}

// DefaultStateDir is used when paths.state_dir is empty.
const DefaultStateDir = ".foreman"

// ResolveStateDir returns the absolute state directory.
func (p *PathsConfig) ResolveStateDir() string {
	dir := p.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	dir = expandHome(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			IntervalSeconds:       60,
			BackoffSeconds:        5,
			Strategy:              "priority_based",
			MaxConcurrent:         3,
			AutoDistribute:        true,
			MaxRedistributions:    3,
			DeadlineWindowMinutes: 120,
			UrgentWindowMinutes:   120,
			OverloadHours:         8,
			UnderloadHours:        4,
			AlertRetentionHours:   0, // Keep resolved alerts until pruned by hand
		},
		Monitor: MonitorConfig{
			CapacityHours:             8,
			OverloadThreshold:         0.8,
			UnavailableTimeoutSeconds: 300,
			DeadlineWarningMinutes:    120,
			StuckFactor:               2.0,
			PollConcurrency:           8,
			ProbeTimeoutSeconds:       10,
		},
		Distributor: DistributorConfig{
			DefaultPriority:       "medium",
			DefaultEstimatedHours: 4,
			DefaultDeadlineHours:  24,
		},
		Mailbox: MailboxConfig{
			Backend:           MailboxFile,
			RedisAddr:         "localhost:6379",
			RedisPrefix:       "foreman:mailbox",
			MessageTTLMinutes: 60,
		},
		History: HistoryConfig{
			Backend: "jsonl",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Paths: PathsConfig{
			StateDir: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Coordinator defaults
	v.SetDefault("coordinator.interval_seconds", defaults.Coordinator.IntervalSeconds)
	v.SetDefault("coordinator.backoff_seconds", defaults.Coordinator.BackoffSeconds)
	v.SetDefault("coordinator.strategy", defaults.Coordinator.Strategy)
	v.SetDefault("coordinator.max_concurrent", defaults.Coordinator.MaxConcurrent)
	v.SetDefault("coordinator.auto_distribute", defaults.Coordinator.AutoDistribute)
	v.SetDefault("coordinator.max_redistributions", defaults.Coordinator.MaxRedistributions)
	v.SetDefault("coordinator.deadline_window_minutes", defaults.Coordinator.DeadlineWindowMinutes)
	v.SetDefault("coordinator.urgent_window_minutes", defaults.Coordinator.UrgentWindowMinutes)
	v.SetDefault("coordinator.overload_hours", defaults.Coordinator.OverloadHours)
	v.SetDefault("coordinator.underload_hours", defaults.Coordinator.UnderloadHours)
	v.SetDefault("coordinator.alert_retention_hours", defaults.Coordinator.AlertRetentionHours)

	// Monitor defaults
	v.SetDefault("monitor.capacity_hours", defaults.Monitor.CapacityHours)
	v.SetDefault("monitor.overload_threshold", defaults.Monitor.OverloadThreshold)
	v.SetDefault("monitor.unavailable_timeout_seconds", defaults.Monitor.UnavailableTimeoutSeconds)
	v.SetDefault("monitor.deadline_warning_minutes", defaults.Monitor.DeadlineWarningMinutes)
	v.SetDefault("monitor.stuck_factor", defaults.Monitor.StuckFactor)
	v.SetDefault("monitor.poll_concurrency", defaults.Monitor.PollConcurrency)
	v.SetDefault("monitor.probe_timeout_seconds", defaults.Monitor.ProbeTimeoutSeconds)

	// Distributor defaults
	v.SetDefault("distributor.default_priority", defaults.Distributor.DefaultPriority)
	v.SetDefault("distributor.default_estimated_hours", defaults.Distributor.DefaultEstimatedHours)
	v.SetDefault("distributor.default_deadline_hours", defaults.Distributor.DefaultDeadlineHours)

	// Mailbox defaults
	v.SetDefault("mailbox.backend", defaults.Mailbox.Backend)
	v.SetDefault("mailbox.dir", defaults.Mailbox.Dir)
	v.SetDefault("mailbox.redis_addr", defaults.Mailbox.RedisAddr)
	v.SetDefault("mailbox.redis_password", defaults.Mailbox.RedisPassword)
	v.SetDefault("mailbox.redis_prefix", defaults.Mailbox.RedisPrefix)
	v.SetDefault("mailbox.message_ttl_minutes", defaults.Mailbox.MessageTTLMinutes)

	// History defaults
	v.SetDefault("history.backend", defaults.History.Backend)
	v.SetDefault("history.path", defaults.History.Path)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.stderr", defaults.Logging.Stderr)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Paths defaults
	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load unmarshals the global viper state into a validated Config
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v into a validated Config
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman")
	}
	// Fall back to ~/.config/foreman
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foreman"
	}
	return filepath.Join(home, ".config", "foreman")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

const fileHeader = `# foreman configuration
#
# Every key can be overridden with an environment variable, e.g.
#   FOREMAN_COORDINATOR_STRATEGY=least_loaded
#   FOREMAN_LOGGING_LEVEL=debug
#
# logging.level and coordinator.strategy are picked up by a running
# coordinator without a restart.

`

// Marshal renders the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// WriteFile writes the config as a commented YAML file, refusing to replace
// an existing one.
func (c *Config) WriteFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0o644)
}

// ReadFile parses a YAML config file on top of the defaults without viper.
// Used for validating files before they are swapped in.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
