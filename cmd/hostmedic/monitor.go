package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/maintenance"
	"github.com/hostmedic/hostmedic/internal/watchdog"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the watchdog loop until interrupted",
	Long: `Start the fast monitoring loop: probe the fast-tier targets on
every tick and remediate failures. With --auto, the long-interval
maintenance cycle also runs in the background.

SIGINT or SIGTERM stops the loops gracefully; an in-flight tick
finishes before the process exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		auto, _ := cmd.Flags().GetBool("auto")
		interval, _ := cmd.Flags().GetDuration("interval")

		s, err := loadStack()
		if err != nil {
			fatal(err)
		}
		if interval > 0 {
			s.cfg.Watchdog.Interval = interval
		}

		w, err := watchdog.New(s.registry, s.prober, s.engine, s.sink, watchdog.Config{
			Interval:               s.cfg.Watchdog.Interval,
			ProbeParallelism:       s.cfg.Watchdog.ProbeParallelism,
			UnknownStreakThreshold: s.cfg.Watchdog.UnknownStreakThreshold,
		})
		if err != nil {
			fatal(err)
		}

		ctx := context.Background()
		if err := w.Start(ctx); err != nil {
			fatal(err)
		}

		var sched *maintenance.Scheduler
		if auto {
			checkers, err := s.checkers()
			if err != nil {
				fatal(err)
			}
			sched, err = maintenance.NewScheduler(checkers, s.sink, s.cfg.Maintenance.Interval)
			if err != nil {
				fatal(err)
			}
			if err := sched.Start(ctx); err != nil {
				fatal(err)
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh

		fmt.Printf("\nReceived %v, shutting down...\n", sig)
		w.Stop()
		if sched != nil {
			sched.Stop()
		}
	},
}

func init() {
	monitorCmd.Flags().Duration("interval", 0, "Override the watchdog probe interval (e.g. 30s)")
	monitorCmd.Flags().Bool("auto", false, "Also run the scheduled maintenance cycle")
	rootCmd.AddCommand(monitorCmd)
}
