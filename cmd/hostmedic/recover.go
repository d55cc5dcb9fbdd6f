package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/recovery"
	"github.com/hostmedic/hostmedic/internal/types"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Emergency recovery: force-restart everything and verify",
	Long: `Run the last-resort recovery procedure: force-restart every
monitored target (quarantined or not), reclaim disk space if usage is
critical, then re-probe everything and report the outcome.

Each step runs exactly once. If a target is still unhealthy after the
pass, intervene manually.`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := loadStack()
		if err != nil {
			fatal(err)
		}

		r, err := recovery.New(s.registry, s.prober, s.engine, s.diskChecker(), s.sink)
		if err != nil {
			fatal(err)
		}

		report := r.Run(context.Background())

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Println()
		for _, o := range report.Outcomes {
			switch {
			case o.RestartErr != "":
				fmt.Printf("%s %-20s restart failed: %s\n", red("✗"), o.TargetID, o.RestartErr)
			case o.Final == types.StatusHealthy:
				fmt.Printf("%s %-20s healthy\n", green("✓"), o.TargetID)
			case o.Final == types.StatusUnknown:
				fmt.Printf("%s %-20s state unknown\n", gray("?"), o.TargetID)
			default:
				fmt.Printf("%s %-20s still %s\n", yellow("⚠"), o.TargetID, o.Final)
			}
		}
		if report.DiskReclaimed {
			if report.DiskErr != "" {
				fmt.Printf("%s Disk reclaim failed: %s\n", red("✗"), report.DiskErr)
			} else {
				fmt.Printf("%s Disk space reclaimed\n", green("✓"))
			}
		}

		fmt.Printf("\nRestarted %d targets, %d/%d healthy\n",
			report.Restarted, report.Healthy(), len(report.Outcomes))

		if !report.Succeeded() {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
