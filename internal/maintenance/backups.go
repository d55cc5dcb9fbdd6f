package maintenance

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hostmedic/hostmedic/internal/config"
	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/types"
)

// BackupsChecker verifies that the backup directory holds a fresh
// artifact, and re-runs the backup job when it does not.
type BackupsChecker struct {
	cfg    config.BackupsConfig
	runner hostexec.Runner
	now    func() time.Time
}

// NewBackupsChecker creates the backup-freshness checker.
func NewBackupsChecker(cfg config.BackupsConfig, runner hostexec.Runner) *BackupsChecker {
	return &BackupsChecker{
		cfg:    cfg,
		runner: runner,
		now:    time.Now,
	}
}

func (c *BackupsChecker) Category() types.IssueCategory { return types.CategoryBackups }
func (c *BackupsChecker) AutoFixable() bool             { return len(c.cfg.JobCommand) > 0 }

// Check inspects the backup directory. No artifacts at all is Critical;
// a newest artifact older than the staleness window is a Warning.
func (c *BackupsChecker) Check(_ context.Context) (types.MaintenanceIssue, error) {
	issue := types.MaintenanceIssue{
		Category:    types.CategoryBackups,
		AutoFixable: c.AutoFixable(),
	}

	if c.cfg.Dir == "" {
		issue.Severity = types.SeverityOk
		issue.Detail = "no backup directory configured"
		return issue, nil
	}

	newest, count, err := c.newestArtifact()
	if err != nil {
		return types.MaintenanceIssue{}, err
	}

	switch {
	case count == 0:
		issue.Severity = types.SeverityCritical
		issue.Detail = fmt.Sprintf("no backup artifacts in %s", c.cfg.Dir)
	case c.now().Sub(newest) > c.cfg.Staleness:
		issue.Severity = types.SeverityWarning
		issue.Detail = fmt.Sprintf("newest backup is %v old (limit %v)",
			c.now().Sub(newest).Round(time.Minute), c.cfg.Staleness)
	default:
		issue.Severity = types.SeverityOk
		issue.Detail = fmt.Sprintf("%d artifacts, newest %v old",
			count, c.now().Sub(newest).Round(time.Minute))
	}
	return issue, nil
}

// newestArtifact returns the newest modification time among regular
// files in the backup directory and how many there are.
func (c *BackupsChecker) newestArtifact() (time.Time, int, error) {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to read backup dir %s: %w", c.cfg.Dir, err)
	}

	var newest time.Time
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest, count, nil
}

// Fix runs the configured backup job. Freshness is confirmed by the
// post-fix check, not here: a slow job counts as fixed once its artifact
// lands.
func (c *BackupsChecker) Fix(ctx context.Context, _ types.MaintenanceIssue) error {
	if len(c.cfg.JobCommand) == 0 {
		return fmt.Errorf("no backup job_command configured")
	}

	res, err := c.runner.Run(ctx, c.cfg.JobCommand[0], c.cfg.JobCommand[1:]...)
	if err != nil {
		return fmt.Errorf("backup job failed to start: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("backup job exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
