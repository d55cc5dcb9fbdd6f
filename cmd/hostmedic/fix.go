package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostmedic/hostmedic/internal/maintenance"
	"github.com/hostmedic/hostmedic/internal/types"
)

var fixCmd = &cobra.Command{
	Use:   "fix <category>",
	Short: "Check and fix one maintenance category",
	Long: `Evaluate a single maintenance category and apply its fix.

Categories: disk-space, permissions, dependencies, backups, configuration.

Without --auto, the fix asks for confirmation. With --dry-run, the fix is
only described; for disk-space that includes the exact files that would
be reclaimed.

Exit codes:
  0 - Category healthy (or fixed)
  1 - Issue remains
  2 - Critical issue remains`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auto, _ := cmd.Flags().GetBool("auto")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		category, err := types.ParseCategory(args[0])
		if err != nil {
			fatal(err)
		}

		s, err := loadStack()
		if err != nil {
			fatal(err)
		}
		checkers, err := s.checkers()
		if err != nil {
			fatal(err)
		}

		var checker maintenance.Checker
		for _, c := range checkers {
			if c.Category() == category {
				checker = c
			}
		}
		if checker == nil {
			fatal(fmt.Errorf("no checker for category %s", category))
		}

		ctx := context.Background()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		issue, err := checker.Check(ctx)
		if err != nil {
			fatal(fmt.Errorf("check failed: %w", err))
		}

		if issue.Severity == types.SeverityOk {
			fmt.Printf("%s %s: %s\n", green("✓"), category, issue.Detail)
			return
		}

		glyph := yellow("⚠")
		if issue.Severity == types.SeverityCritical {
			glyph = red("✗")
		}
		fmt.Printf("%s %s: %s\n", glyph, category, issue.Detail)

		if !checker.AutoFixable() {
			fmt.Printf("  This category has no automatic fix.\n")
			os.Exit(severityExitCode(issue.Severity))
		}

		if dryRun {
			fmt.Printf("  Would fix (dry run).\n")
			if planner, ok := checker.(interface {
				Plan(ctx context.Context) ([]string, error)
			}); ok {
				plan, err := planner.Plan(ctx)
				if err != nil {
					fatal(err)
				}
				for _, path := range plan {
					fmt.Printf("    would remove %s\n", path)
				}
			}
			os.Exit(severityExitCode(issue.Severity))
		}

		if !auto && !confirm(fmt.Sprintf("Fix %s now?", category)) {
			fmt.Println("Aborted.")
			os.Exit(severityExitCode(issue.Severity))
		}

		if err := checker.Fix(ctx, issue); err != nil {
			fmt.Printf("%s Fix failed: %v\n", red("✗"), err)
			os.Exit(severityExitCode(issue.Severity))
		}

		post, err := checker.Check(ctx)
		if err != nil {
			fatal(fmt.Errorf("post-fix check failed: %w", err))
		}
		if post.Severity == types.SeverityOk {
			fmt.Printf("%s Fixed: %s\n", green("✓"), post.Detail)
			return
		}
		fmt.Printf("%s Issue remains after fix: %s\n", yellow("⚠"), post.Detail)
		os.Exit(severityExitCode(post.Severity))
	},
}

func init() {
	fixCmd.Flags().Bool("auto", false, "Apply the fix without asking")
	fixCmd.Flags().Bool("dry-run", false, "Describe the fix without changing anything")
	rootCmd.AddCommand(fixCmd)
}

func severityExitCode(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return 2
	case types.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// confirm asks a yes/no question on the terminal. Only manual commands
// may prompt; anything run from cron passes --auto instead.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
