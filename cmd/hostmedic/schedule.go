package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/hostexec"
)

// cronMarker tags the crontab lines this command owns.
const cronMarker = "# hostmedic"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Register hostmedic in the user's crontab",
	Long: `Install crontab entries that start the monitor loop at boot and
run a daily maintenance cycle. Running schedule again replaces the
existing entries, so it is safe to re-run after changing flags or moving
the binary. --remove deletes the entries.`,
	Run: func(cmd *cobra.Command, args []string) {
		remove, _ := cmd.Flags().GetBool("remove")

		// Validate the config before wiring it into cron.
		if _, err := loadStack(); err != nil {
			fatal(err)
		}

		exe, err := os.Executable()
		if err != nil {
			fatal(fmt.Errorf("failed to resolve binary path: %w", err))
		}

		runner := hostexec.NewExecRunner(0)
		ctx := context.Background()

		res, err := runner.Run(ctx, "crontab", "-l")
		if err != nil {
			fatal(fmt.Errorf("failed to read crontab: %w", err))
		}
		// "no crontab for user" exits non-zero with empty stdout; start fresh.
		existing := ""
		if res.ExitCode == 0 {
			existing = res.Stdout
		}

		var lines []string
		for _, line := range strings.Split(existing, "\n") {
			if line == "" || strings.Contains(line, cronMarker) {
				continue
			}
			lines = append(lines, line)
		}

		if !remove {
			flags := fmt.Sprintf("--config %s --state-dir %s", configPath, stateDir)
			lines = append(lines,
				fmt.Sprintf("@reboot %s %s monitor --auto %s", exe, flags, cronMarker),
				fmt.Sprintf("@daily %s %s run %s", exe, flags, cronMarker),
			)
		}

		newTab := strings.Join(lines, "\n")
		if newTab != "" {
			newTab += "\n"
		}

		res, err = runner.RunInput(ctx, newTab, "crontab", "-")
		if err != nil {
			fatal(fmt.Errorf("failed to install crontab: %w", err))
		}
		if res.ExitCode != 0 {
			fatal(fmt.Errorf("crontab rejected the new table: %s", strings.TrimSpace(res.Stderr)))
		}

		green := color.New(color.FgGreen).SprintFunc()
		if remove {
			fmt.Printf("%s Crontab entries removed\n", green("✓"))
		} else {
			fmt.Printf("%s Scheduled: monitor at boot, maintenance daily\n", green("✓"))
		}
	},
}

func init() {
	scheduleCmd.Flags().Bool("remove", false, "Remove the crontab entries")
	rootCmd.AddCommand(scheduleCmd)
}
