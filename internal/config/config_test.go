package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmedic/hostmedic/internal/types"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Targets = []types.Target{
		{ID: "svc-a", Kind: types.KindService, Tier: types.TierFast, Unit: "a.service"},
	}
	return cfg
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 60*time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 5, cfg.Quarantine.MaxFailures)
	assert.Equal(t, time.Hour, cfg.Quarantine.Window)
	assert.Equal(t, 90.0, cfg.Maintenance.Disk.HighWaterPercent)
	assert.Equal(t, 80.0, cfg.Maintenance.Disk.LowWaterPercent)
	assert.Equal(t, 48*time.Hour, cfg.Maintenance.Backups.Staleness)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.Interval)
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeConfig(t, `
targets:
  - id: svc-a
    kind: service
    tier: fast
    unit: nginx.service
  - id: web
    kind: container
    tier: fast
    unit: web
watchdog:
  interval: 30s
quarantine:
  max_failures: 3
maintenance:
  backups:
    dir: /var/backups
    staleness: 24h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, 30*time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 3, cfg.Quarantine.MaxFailures)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.Backups.Staleness)
	// Unset fields keep defaults.
	assert.Equal(t, 90.0, cfg.Maintenance.Disk.HighWaterPercent)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load("/non/existent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_EmptyTargetsIsFatal(t *testing.T) {
	path := writeConfig(t, "targets: []\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MalformedYAMLIsFatal(t *testing.T) {
	path := writeConfig(t, "targets: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval too fast", func(c *Config) { c.Watchdog.Interval = time.Second }},
		{"zero parallelism", func(c *Config) { c.Watchdog.ProbeParallelism = 0 }},
		{"zero max failures", func(c *Config) { c.Quarantine.MaxFailures = 0 }},
		{"zero window", func(c *Config) { c.Quarantine.Window = 0 }},
		{"low water above high water", func(c *Config) { c.Maintenance.Disk.LowWaterPercent = 95 }},
		{"bad perm mode", func(c *Config) { c.Maintenance.Permissions.MaxMode = "rwx" }},
		{"zero staleness", func(c *Config) { c.Maintenance.Backups.Staleness = 0 }},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }},
		{"empty log path", func(c *Config) { c.Alerts.LogPath = "" }},
		{"duplicate target id", func(c *Config) { c.Targets = append(c.Targets, c.Targets[0]) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOSTMEDIC_INTERVAL", "45s")
	t.Setenv("HOSTMEDIC_QUARANTINE_MAX_FAILURES", "9")

	path := writeConfig(t, `
targets:
  - id: svc-a
    kind: service
    tier: fast
    unit: a.service
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 9, cfg.Quarantine.MaxFailures)
}

func TestMaxPermMode(t *testing.T) {
	cfg := validConfig()
	mode, err := cfg.MaxPermMode()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), mode)
}
