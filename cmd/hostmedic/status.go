package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show target health, quarantine state, and recent activity",
	Long: `Display the target registry with live health, the quarantine set
restored from the alert log, and the most recent alerts and remediation
attempts.

--clear-quarantine lifts the quarantine on a target. The clear is
recorded in the alert log; a running monitor observes it on its next
tick and resumes watching the target.`,
	Run: func(cmd *cobra.Command, args []string) {
		clearID, _ := cmd.Flags().GetString("clear-quarantine")
		tailN, _ := cmd.Flags().GetInt("tail")

		s, err := loadStack()
		if err != nil {
			fatal(err)
		}
		ctx := context.Background()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== hostmedic status ==="))

		if clearID != "" {
			target, ok := s.registry.Get(clearID)
			if !ok {
				fatal(fmt.Errorf("unknown target %q", clearID))
			}
			if s.engine.ClearQuarantine(target.ID) {
				// The log is the journal: the running monitor picks this
				// clear up on its next tick.
				if err := s.sink.Emit(ctx, types.Alert{
					ID:       uuid.NewString(),
					Severity: types.SeverityOk,
					Event:    types.EventQuarantineCleared,
					TargetID: target.ID,
					Details:  fmt.Sprintf("quarantine cleared for %s by operator", target.ID),
				}); err != nil {
					fatal(err)
				}
				fmt.Printf("%s Quarantine cleared: %s\n\n", green("✓"), target.ID)
			} else {
				fmt.Printf("%s %s is not quarantined\n\n", yellow("⚠"), target.ID)
			}
		}

		quarantined := s.engine.QuarantinedIDs()

		fmt.Printf("%s\n", yellow("Targets:"))
		for _, target := range s.registry.All() {
			result := s.prober.Check(ctx, target)

			glyph := gray("?")
			switch result.Status {
			case types.StatusHealthy:
				glyph = green("✓")
			case types.StatusDegraded:
				glyph = yellow("⚠")
			case types.StatusDown:
				glyph = red("✗")
			}

			note := result.Detail
			if _, q := quarantined[target.ID]; q {
				note = red("QUARANTINED") + " " + note
			}
			fmt.Printf("  %s %-20s %-9s %-11s %s\n", glyph, target.ID, target.Kind, target.Tier, note)
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Quarantine:"))
		if len(quarantined) == 0 {
			fmt.Printf("  %s\n", gray("No quarantined targets"))
		} else {
			for id, since := range quarantined {
				fmt.Printf("  %s %s (since %s)\n", red("✗"), id, since.Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Recent activity:"))
		records, err := s.sink.Tail(tailN)
		if err != nil {
			fatal(err)
		}
		if len(records) == 0 {
			fmt.Printf("  %s\n", gray("No recorded activity"))
		}
		for _, rec := range records {
			ts := rec.Timestamp.Format("01-02 15:04:05")
			switch {
			case rec.Alert != nil:
				glyph := gray("·")
				switch rec.Alert.Severity {
				case types.SeverityWarning:
					glyph = yellow("⚠")
				case types.SeverityCritical:
					glyph = red("✗")
				}
				fmt.Printf("  %s %s  %-22s %s\n", glyph, ts, rec.Alert.Event, rec.Alert.Details)
			case rec.Attempt != nil:
				glyph := green("✓")
				if rec.Attempt.Outcome == types.OutcomeFailure {
					glyph = red("✗")
				}
				fmt.Printf("  %s %s  restart #%d %-12s %s\n", glyph, ts, rec.Attempt.AttemptNumber, rec.Attempt.TargetID, rec.Attempt.ActionTaken)
			}
		}
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().String("clear-quarantine", "", "Lift the quarantine on a target")
	statusCmd.Flags().Int("tail", 10, "How many recent log records to show")
	rootCmd.AddCommand(statusCmd)
}
