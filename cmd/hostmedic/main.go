// Command hostmedic is a self-healing monitor for a single host. It
// watches systemd services and docker containers, restarts what it can,
// quarantines what it cannot, and runs scheduled host maintenance.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/alert"
	"github.com/hostmedic/hostmedic/internal/config"
	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/maintenance"
	"github.com/hostmedic/hostmedic/internal/probe"
	"github.com/hostmedic/hostmedic/internal/remedy"
	"github.com/hostmedic/hostmedic/internal/types"
)

var (
	configPath string
	stateDir   string
)

var rootCmd = &cobra.Command{
	Use:   "hostmedic",
	Short: "Self-healing service and host monitor",
	Long: `hostmedic watches a fixed set of systemd services and docker
containers, restarts them when they go down, and quarantines targets that
keep failing. A long-interval maintenance cycle keeps the host itself
healthy: disk space, permissions, dependencies, backups, and directory
structure.

Exit codes (check, run, fix):
  0 - Everything healthy
  1 - Unresolved warnings or failures
  2 - Unresolved critical issues`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "hostmedic.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", ".", "Directory for the alert log and other local state")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stack is the wired component graph every command builds from the
// configuration.
type stack struct {
	cfg      *config.Config
	registry *types.Registry
	prober   *probe.Prober
	engine   *remedy.Engine
	sink     *alert.Sink
	// actions runs restart actions, fix commands, and the notifier.
	actions hostexec.Runner
}

func loadStack() (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry, err := types.NewRegistry(cfg.Targets)
	if err != nil {
		return nil, err
	}

	logPath := cfg.Alerts.LogPath
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(stateDir, logPath)
	}

	actions := hostexec.NewExecRunner(cfg.ActionTimeout)
	sink, err := alert.NewSink(logPath, cfg.Alerts.NotifyCommand, cfg.Alerts.NotifyPerMinute, actions)
	if err != nil {
		return nil, err
	}

	engine := remedy.NewEngine(remedy.Config{
		MaxFailures: cfg.Quarantine.MaxFailures,
		Window:      cfg.Quarantine.Window,
	}, actions, sink)

	// Quarantine survives process restarts through the alert log, and a
	// running monitor observes operator clears through the same journal.
	if err := engine.RestoreFromJournal(sink); err != nil {
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		registry: registry,
		prober:   probe.New(hostexec.NewExecRunner(cfg.ProbeTimeout)),
		engine:   engine,
		sink:     sink,
		actions:  actions,
	}, nil
}

// checkers builds the maintenance checkers in report order.
func (s *stack) checkers() ([]maintenance.Checker, error) {
	maxMode, err := s.cfg.MaxPermMode()
	if err != nil {
		return nil, err
	}
	m := s.cfg.Maintenance
	return []maintenance.Checker{
		maintenance.NewDiskChecker(m.Disk),
		maintenance.NewPermissionsChecker(m.Permissions.SensitivePaths, maxMode),
		maintenance.NewDependenciesChecker(m.RequiredTools),
		maintenance.NewBackupsChecker(m.Backups, s.actions),
		maintenance.NewConfigurationChecker(m.RequiredDirs),
	}, nil
}

func (s *stack) diskChecker() *maintenance.DiskChecker {
	return maintenance.NewDiskChecker(s.cfg.Maintenance.Disk)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
