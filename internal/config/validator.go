package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/task"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "monitor.capacity_hours")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidHistoryBackends returns the list of valid history backends
func ValidHistoryBackends() []string {
	return []string{"jsonl", "sqlite"}
}

// ValidMailboxBackends returns the list of valid mailbox backends
func ValidMailboxBackends() []string {
	return []string{MailboxFile, MailboxRedis}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCoordinator()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateDistributor()...)
	errors = append(errors, c.validateMailbox()...)
	errors = append(errors, c.validateHistory()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

func positiveInt(field string, v int) []ValidationError {
	if v <= 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
	}
	return nil
}

func nonNegativeInt(field string, v int) []ValidationError {
	if v < 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
	}
	return nil
}

func positiveFloat(field string, v float64) []ValidationError {
	if v <= 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
	}
	return nil
}

func oneOf(field, v string, valid []string) []ValidationError {
	if !slices.Contains(valid, v) {
		return []ValidationError{{
			Field:   field,
			Value:   v,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
		}}
	}
	return nil
}

// validateCoordinator validates the CoordinatorConfig
func (c *Config) validateCoordinator() []ValidationError {
	var errors []ValidationError
	cc := c.Coordinator

	errors = append(errors, positiveInt("coordinator.interval_seconds", cc.IntervalSeconds)...)
	errors = append(errors, positiveInt("coordinator.backoff_seconds", cc.BackoffSeconds)...)
	errors = append(errors, oneOf("coordinator.strategy", cc.Strategy, balance.Names())...)
	errors = append(errors, positiveInt("coordinator.max_concurrent", cc.MaxConcurrent)...)
	errors = append(errors, nonNegativeInt("coordinator.max_redistributions", cc.MaxRedistributions)...)
	errors = append(errors, nonNegativeInt("coordinator.deadline_window_minutes", cc.DeadlineWindowMinutes)...)
	errors = append(errors, nonNegativeInt("coordinator.urgent_window_minutes", cc.UrgentWindowMinutes)...)
	errors = append(errors, nonNegativeInt("coordinator.alert_retention_hours", cc.AlertRetentionHours)...)
	errors = append(errors, positiveFloat("coordinator.overload_hours", cc.OverloadHours)...)
	errors = append(errors, positiveFloat("coordinator.underload_hours", cc.UnderloadHours)...)

	// A worker cannot be both a donor and a recipient
	if cc.UnderloadHours > 0 && cc.OverloadHours > 0 && cc.UnderloadHours >= cc.OverloadHours {
		errors = append(errors, ValidationError{
			Field:   "coordinator.underload_hours",
			Value:   cc.UnderloadHours,
			Message: fmt.Sprintf("must be less than coordinator.overload_hours (%.1f)", cc.OverloadHours),
		})
	}

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError
	mc := c.Monitor

	errors = append(errors, positiveFloat("monitor.capacity_hours", mc.CapacityHours)...)
	if mc.OverloadThreshold <= 0 || mc.OverloadThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.overload_threshold",
			Value:   mc.OverloadThreshold,
			Message: "must be in (0, 1]",
		})
	}
	errors = append(errors, positiveInt("monitor.unavailable_timeout_seconds", mc.UnavailableTimeoutSeconds)...)
	errors = append(errors, nonNegativeInt("monitor.deadline_warning_minutes", mc.DeadlineWarningMinutes)...)
	if mc.StuckFactor < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.stuck_factor",
			Value:   mc.StuckFactor,
			Message: "must be at least 1",
		})
	}
	errors = append(errors, positiveInt("monitor.poll_concurrency", mc.PollConcurrency)...)
	errors = append(errors, positiveInt("monitor.probe_timeout_seconds", mc.ProbeTimeoutSeconds)...)

	// A probe that outlives the timeout can never report silence correctly
	if mc.ProbeTimeoutSeconds > 0 && mc.UnavailableTimeoutSeconds > 0 && mc.ProbeTimeoutSeconds >= mc.UnavailableTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "monitor.probe_timeout_seconds",
			Value:   mc.ProbeTimeoutSeconds,
			Message: fmt.Sprintf("must be less than monitor.unavailable_timeout_seconds (%d)", mc.UnavailableTimeoutSeconds),
		})
	}

	return errors
}

// validateDistributor validates the DistributorConfig
func (c *Config) validateDistributor() []ValidationError {
	var errors []ValidationError
	dc := c.Distributor

	if _, err := task.ParsePriority(dc.DefaultPriority); err != nil {
		errors = append(errors, ValidationError{
			Field:   "distributor.default_priority",
			Value:   dc.DefaultPriority,
			Message: "must be one of: low, medium, high, critical",
		})
	}
	errors = append(errors, positiveFloat("distributor.default_estimated_hours", dc.DefaultEstimatedHours)...)
	errors = append(errors, positiveFloat("distributor.default_deadline_hours", dc.DefaultDeadlineHours)...)

	return errors
}

// validateMailbox validates the MailboxConfig
func (c *Config) validateMailbox() []ValidationError {
	var errors []ValidationError
	mc := c.Mailbox

	errors = append(errors, oneOf("mailbox.backend", mc.Backend, ValidMailboxBackends())...)
	if mc.Backend == MailboxRedis && mc.RedisAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "mailbox.redis_addr",
			Value:   mc.RedisAddr,
			Message: "is required when mailbox.backend is redis",
		})
	}
	errors = append(errors, nonNegativeInt("mailbox.message_ttl_minutes", mc.MessageTTLMinutes)...)
	errors = append(errors, validatePath("mailbox.dir", mc.Dir)...)

	return errors
}

// validateHistory validates the HistoryConfig
func (c *Config) validateHistory() []ValidationError {
	var errors []ValidationError
	errors = append(errors, oneOf("history.backend", c.History.Backend, ValidHistoryBackends())...)
	errors = append(errors, validatePath("history.path", c.History.Path)...)
	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	if c.Logging.Level == "" {
		return nil
	}
	return oneOf("logging.level", strings.ToLower(c.Logging.Level), ValidLogLevels())
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "is required when metrics are enabled",
		}}
	}
	return nil
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	return validatePath("paths.state_dir", c.Paths.StateDir)
}

func validatePath(field, path string) []ValidationError {
	if path == "" {
		return nil
	}

	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
