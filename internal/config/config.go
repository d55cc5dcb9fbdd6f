// Package config loads and validates the monitor configuration: the
// target registry, loop intervals, maintenance thresholds, and alerting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hostmedic/hostmedic/internal/types"
)

// WatchdogConfig holds the fast-loop settings.
type WatchdogConfig struct {
	// Interval is how often the fast loop probes its targets.
	// Default: 60 seconds.
	Interval time.Duration `yaml:"interval"`

	// ProbeParallelism bounds concurrent probes within one tick.
	// Default: 4.
	ProbeParallelism int `yaml:"probe_parallelism"`

	// UnknownStreakThreshold is how many consecutive Unknown results a
	// target accumulates before a low-severity alert is raised.
	// Default: 3.
	UnknownStreakThreshold int `yaml:"unknown_streak_threshold"`
}

// QuarantineConfig caps remediation retries against a broken target.
type QuarantineConfig struct {
	// MaxFailures is the number of Failure outcomes tolerated within the
	// window before the target is quarantined. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// Window is the sliding window over which failures are counted.
	// Default: 1 hour.
	Window time.Duration `yaml:"window"`
}

// DiskConfig holds the disk-space check thresholds and reclaim policy.
type DiskConfig struct {
	// Path is the mount point whose usage is checked. Default: "/".
	Path string `yaml:"path"`

	// HighWaterPercent is the Critical threshold. Default: 90.
	HighWaterPercent float64 `yaml:"high_water_percent"`

	// LowWaterPercent is the Warning threshold and the reclaim goal.
	// Default: 80.
	LowWaterPercent float64 `yaml:"low_water_percent"`

	// ReclaimGlobs name the cache/log/backup/temp files that may be
	// deleted to reclaim space.
	ReclaimGlobs []string `yaml:"reclaim_globs"`

	// Retention protects recent files from reclaim. Default: 7 days.
	Retention time.Duration `yaml:"retention"`
}

// PermissionsConfig holds the permission-drift check settings.
type PermissionsConfig struct {
	// SensitivePaths must not exceed MaxMode.
	SensitivePaths []string `yaml:"sensitive_paths"`

	// MaxMode is the maximum allowed permission mask, as an octal string
	// (e.g. "0700"). Default: "0700".
	MaxMode string `yaml:"max_mode"`
}

// BackupsConfig holds the backup-freshness check settings.
type BackupsConfig struct {
	// Dir is the directory holding backup artifacts.
	Dir string `yaml:"dir"`

	// Staleness is the maximum tolerated age of the newest artifact.
	// Default: 48 hours.
	Staleness time.Duration `yaml:"staleness"`

	// JobCommand is the external backup job invoked by the auto-fix.
	JobCommand []string `yaml:"job_command"`
}

// MaintenanceConfig groups the long-interval check settings.
type MaintenanceConfig struct {
	Disk        DiskConfig        `yaml:"disk"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Backups     BackupsConfig     `yaml:"backups"`

	// RequiredTools must be resolvable on PATH.
	RequiredTools []string `yaml:"required_tools"`

	// RequiredDirs must exist; the auto-fix creates missing ones.
	RequiredDirs []string `yaml:"required_dirs"`

	// Interval is how often the scheduled maintenance cycle runs when the
	// monitor loop is started with --auto. Default: 24 hours.
	Interval time.Duration `yaml:"interval"`
}

// AlertConfig holds alert log and delivery settings.
type AlertConfig struct {
	// LogPath is the append-only local record of alerts and attempts.
	// Default: hostmedic.log in the state directory.
	LogPath string `yaml:"log_path"`

	// NotifyCommand is an optional external notifier (mail, webhook
	// script). It receives severity, event, and details as arguments.
	// Delivery is best-effort.
	NotifyCommand []string `yaml:"notify_command"`

	// NotifyPerMinute rate-limits external delivery. Default: 6.
	NotifyPerMinute int `yaml:"notify_per_minute"`
}

// Config is the complete monitor configuration.
type Config struct {
	Targets     []types.Target    `yaml:"targets"`
	Watchdog    WatchdogConfig    `yaml:"watchdog"`
	Quarantine  QuarantineConfig  `yaml:"quarantine"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Alerts      AlertConfig       `yaml:"alerts"`

	// ProbeTimeout bounds supervisor and runtime queries. Default: 20s.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ActionTimeout bounds restart actions and fix commands. Default: 30s.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// Default returns a configuration with safe defaults and no targets.
// A usable config must define at least one target; Load enforces this.
func Default() *Config {
	return &Config{
		Watchdog: WatchdogConfig{
			Interval:               60 * time.Second,
			ProbeParallelism:       4,
			UnknownStreakThreshold: 3,
		},
		Quarantine: QuarantineConfig{
			MaxFailures: 5,
			Window:      time.Hour,
		},
		Maintenance: MaintenanceConfig{
			Disk: DiskConfig{
				Path:             "/",
				HighWaterPercent: 90,
				LowWaterPercent:  80,
				Retention:        7 * 24 * time.Hour,
			},
			Permissions: PermissionsConfig{
				MaxMode: "0700",
			},
			Backups: BackupsConfig{
				Staleness: 48 * time.Hour,
			},
			Interval: 24 * time.Hour,
		},
		Alerts: AlertConfig{
			LogPath:         "hostmedic.log",
			NotifyPerMinute: 6,
		},
		ProbeTimeout:  20 * time.Second,
		ActionTimeout: 30 * time.Second,
	}
}

// Load reads the configuration file, applies environment overrides, and
// validates the result. A missing file, an empty target set, or any
// malformed target is fatal: the monitor refuses to start rather than run
// with nothing to watch.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// applyEnv applies environment overrides. Prefix: HOSTMEDIC_.
func (c *Config) applyEnv() {
	if val := os.Getenv("HOSTMEDIC_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Watchdog.Interval = d
		}
	}
	if val := os.Getenv("HOSTMEDIC_ALERT_LOG"); val != "" {
		c.Alerts.LogPath = val
	}
	if val := os.Getenv("HOSTMEDIC_QUARANTINE_MAX_FAILURES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Quarantine.MaxFailures = n
		}
	}
	if val := os.Getenv("HOSTMEDIC_PROBE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ProbeTimeout = d
		}
	}
}

// Validate checks that the configuration has safe and complete values.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
	}

	if c.Watchdog.Interval < 5*time.Second {
		return fmt.Errorf("watchdog interval too fast (minimum 5s), got %v", c.Watchdog.Interval)
	}
	if c.Watchdog.ProbeParallelism <= 0 {
		return fmt.Errorf("probe_parallelism must be positive, got %d", c.Watchdog.ProbeParallelism)
	}
	if c.Watchdog.UnknownStreakThreshold <= 0 {
		return fmt.Errorf("unknown_streak_threshold must be positive, got %d", c.Watchdog.UnknownStreakThreshold)
	}

	if c.Quarantine.MaxFailures <= 0 {
		return fmt.Errorf("quarantine max_failures must be positive, got %d", c.Quarantine.MaxFailures)
	}
	if c.Quarantine.Window <= 0 {
		return fmt.Errorf("quarantine window must be positive, got %v", c.Quarantine.Window)
	}

	d := c.Maintenance.Disk
	if d.HighWaterPercent <= 0 || d.HighWaterPercent > 100 {
		return fmt.Errorf("disk high_water_percent must be in (0,100], got %v", d.HighWaterPercent)
	}
	if d.LowWaterPercent <= 0 || d.LowWaterPercent >= d.HighWaterPercent {
		return fmt.Errorf("disk low_water_percent must be in (0, high_water), got %v", d.LowWaterPercent)
	}

	if _, err := c.MaxPermMode(); err != nil {
		return err
	}

	if c.Maintenance.Backups.Staleness <= 0 {
		return fmt.Errorf("backup staleness must be positive, got %v", c.Maintenance.Backups.Staleness)
	}

	if c.ProbeTimeout <= 0 || c.ProbeTimeout > 5*time.Minute {
		return fmt.Errorf("probe_timeout must be in (0, 5m], got %v", c.ProbeTimeout)
	}
	if c.ActionTimeout <= 0 || c.ActionTimeout > 10*time.Minute {
		return fmt.Errorf("action_timeout must be in (0, 10m], got %v", c.ActionTimeout)
	}

	if c.Alerts.LogPath == "" {
		return fmt.Errorf("alert log_path is required")
	}
	if c.Alerts.NotifyPerMinute <= 0 {
		return fmt.Errorf("notify_per_minute must be positive, got %d", c.Alerts.NotifyPerMinute)
	}

	return nil
}

// MaxPermMode parses the configured permission mask.
func (c *Config) MaxPermMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Maintenance.Permissions.MaxMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permissions max_mode %q: %w", c.Maintenance.Permissions.MaxMode, err)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("permissions max_mode %q out of range", c.Maintenance.Permissions.MaxMode)
	}
	return os.FileMode(mode), nil
}
