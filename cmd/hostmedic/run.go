package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/maintenance"
	"github.com/hostmedic/hostmedic/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one maintenance cycle",
	Long: `Run every maintenance category once: disk space, permissions,
dependencies, backups, and directory structure.

Auto-fixable issues are repaired and re-checked; issues a checker
cannot fix safely are only reported. With --dry-run, the cycle reports
what would be fixed without changing anything. Running twice with no
state change produces the same report and never re-applies a fix.

Exit codes:
  0 - All categories healthy
  1 - Unresolved warnings
  2 - Unresolved critical issues`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		s, err := loadStack()
		if err != nil {
			fatal(err)
		}
		checkers, err := s.checkers()
		if err != nil {
			fatal(err)
		}
		sched, err := maintenance.NewScheduler(checkers, s.sink, s.cfg.Maintenance.Interval)
		if err != nil {
			fatal(err)
		}

		report := sched.RunCycle(context.Background(), runOptions(dryRun))
		printMaintenanceReport(report, dryRun)
		os.Exit(maintenanceExitCode(report))
	},
}

// runOptions builds the cycle options for the run command. Fixing is
// the default; only --dry-run holds it back.
func runOptions(dryRun bool) maintenance.Options {
	return maintenance.Options{Auto: true, DryRun: dryRun}
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Report what would be fixed without changing anything")
	rootCmd.AddCommand(runCmd)
}

func printMaintenanceReport(report *maintenance.Report, dryRun bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	header := "Maintenance"
	if dryRun {
		header = "Maintenance (dry run)"
	}
	fmt.Printf("%s %s\n", cyan("→"), header)

	for _, res := range report.Results {
		if !res.Evaluated {
			fmt.Printf("  %s %-14s could not evaluate: %s\n", yellow("?"), res.Category, res.Err)
			continue
		}

		detail := res.Issue.Detail
		if res.PostFix != nil {
			detail = res.PostFix.Detail
		}

		switch res.Final() {
		case types.SeverityOk:
			if res.FixAttempted {
				fmt.Printf("  %s %-14s fixed: %s\n", green("✓"), res.Category, detail)
			} else {
				fmt.Printf("  %s %-14s %s\n", green("✓"), res.Category, detail)
			}
		case types.SeverityWarning:
			fmt.Printf("  %s %-14s %s\n", yellow("⚠"), res.Category, detail)
		case types.SeverityCritical:
			fmt.Printf("  %s %-14s %s\n", red("✗"), res.Category, detail)
		}
		if res.FixErr != "" {
			fmt.Printf("    Fix failed: %s\n", res.FixErr)
		}
	}

	fmt.Printf("\nHost health: %.0f%%\n", report.HealthPercent())
}

func maintenanceExitCode(report *maintenance.Report) int {
	switch {
	case report.HasCritical():
		return 2
	case report.HasIssues():
		return 1
	default:
		return 0
	}
}
