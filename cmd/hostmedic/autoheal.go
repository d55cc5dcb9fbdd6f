package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/types"
	"github.com/hostmedic/hostmedic/internal/watchdog"
)

var autoHealCmd = &cobra.Command{
	Use:   "auto-heal",
	Short: "Probe fast-tier targets once and remediate what is down",
	Long: `Run a single watchdog pass: probe every fast-tier target and hand
failures to the remediation engine. Quarantined targets are skipped.

This is the one-shot form of 'hostmedic monitor', useful from cron or
for manual intervention after an incident.`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := loadStack()
		if err != nil {
			fatal(err)
		}

		w, err := watchdog.New(s.registry, s.prober, s.engine, s.sink, watchdog.Config{
			Interval:               s.cfg.Watchdog.Interval,
			ProbeParallelism:       s.cfg.Watchdog.ProbeParallelism,
			UnknownStreakThreshold: s.cfg.Watchdog.UnknownStreakThreshold,
		})
		if err != nil {
			fatal(err)
		}

		w.Tick(context.Background())

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		attempts := s.engine.RecentAttempts()
		if len(attempts) == 0 {
			fmt.Printf("%s Nothing to heal\n", gray("○"))
			return
		}

		failed := 0
		for _, a := range attempts {
			if a.Outcome == types.OutcomeSuccess {
				fmt.Printf("%s Restarted %s (%s)\n", green("✓"), a.TargetID, a.ActionTaken)
			} else {
				failed++
				fmt.Printf("%s Failed to restart %s: %s\n", red("✗"), a.TargetID, a.Detail)
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(autoHealCmd)
}
