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

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report the health of every target and maintenance category",
	Long: `Probe every monitored target and evaluate every maintenance
category, then print a full report. Nothing is restarted or fixed.

Categories that cannot be evaluated are reported as unknown, never
omitted.

Exit codes:
  0 - Everything healthy
  1 - Degraded or unknown targets, or maintenance warnings
  2 - Down targets or critical maintenance issues`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := loadStack()
		if err != nil {
			fatal(err)
		}
		ctx := context.Background()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s Targets\n", cyan("→"))

		exitCode := 0
		for _, target := range s.registry.All() {
			result := s.prober.Check(ctx, target)

			switch result.Status {
			case types.StatusHealthy:
				fmt.Printf("  %s %-20s %s\n", green("✓"), target.ID, result.Detail)
			case types.StatusDegraded:
				fmt.Printf("  %s %-20s %s\n", yellow("⚠"), target.ID, result.Detail)
				exitCode = max(exitCode, 1)
			case types.StatusDown:
				fmt.Printf("  %s %-20s %s\n", red("✗"), target.ID, result.Detail)
				exitCode = 2
			case types.StatusUnknown:
				fmt.Printf("  %s %-20s %s\n", gray("?"), target.ID, result.Detail)
				exitCode = max(exitCode, 1)
			}
		}
		fmt.Println()

		checkers, err := s.checkers()
		if err != nil {
			fatal(err)
		}
		sched, err := maintenance.NewScheduler(checkers, s.sink, s.cfg.Maintenance.Interval)
		if err != nil {
			fatal(err)
		}

		report := sched.RunCycle(ctx, maintenance.Options{})
		printMaintenanceReport(report, false)

		os.Exit(max(exitCode, maintenanceExitCode(report)))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
