package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hostmedic/hostmedic/internal/config"
	"github.com/hostmedic/hostmedic/internal/types"
)

// DiskChecker watches filesystem usage on one mount and reclaims
// cache/log/backup/temp files when usage crosses the high-water mark.
type DiskChecker struct {
	cfg config.DiskConfig

	// usage reports percent used for a path. Swappable for tests.
	usage func(path string) (float64, error)
	now   func() time.Time
}

// NewDiskChecker creates the disk-space checker.
func NewDiskChecker(cfg config.DiskConfig) *DiskChecker {
	return &DiskChecker{
		cfg:   cfg,
		usage: statfsUsage,
		now:   time.Now,
	}
}

func (c *DiskChecker) Category() types.IssueCategory { return types.CategoryDiskSpace }
func (c *DiskChecker) AutoFixable() bool             { return len(c.cfg.ReclaimGlobs) > 0 }

// Check classifies usage against the water marks.
func (c *DiskChecker) Check(_ context.Context) (types.MaintenanceIssue, error) {
	used, err := c.usage(c.cfg.Path)
	if err != nil {
		return types.MaintenanceIssue{}, fmt.Errorf("failed to stat %s: %w", c.cfg.Path, err)
	}

	issue := types.MaintenanceIssue{
		Category:    types.CategoryDiskSpace,
		AutoFixable: c.AutoFixable(),
		Detail:      fmt.Sprintf("%s at %.1f%% used", c.cfg.Path, used),
	}

	switch {
	case used >= c.cfg.HighWaterPercent:
		issue.Severity = types.SeverityCritical
	case used >= c.cfg.LowWaterPercent:
		issue.Severity = types.SeverityWarning
	default:
		issue.Severity = types.SeverityOk
	}
	return issue, nil
}

// reclaimable lists deletable files older than the retention window,
// oldest first.
func (c *DiskChecker) reclaimable() ([]string, error) {
	cutoff := c.now().Add(-c.cfg.Retention)

	type candidate struct {
		path string
		mod  time.Time
	}
	var candidates []candidate

	for _, glob := range c.cfg.ReclaimGlobs {
		matches, err := filepath.Glob(glob)
		if err != nil {
			return nil, fmt.Errorf("bad reclaim glob %q: %w", glob, err)
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			candidates = append(candidates, candidate{path: path, mod: info.ModTime()})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mod.Before(candidates[j].mod)
	})

	paths := make([]string, len(candidates))
	for i, cand := range candidates {
		paths[i] = cand.path
	}
	return paths, nil
}

// Plan returns what Fix would delete, for dry-run reporting. It never
// deletes anything.
func (c *DiskChecker) Plan(_ context.Context) ([]string, error) {
	return c.reclaimable()
}

// Fix deletes reclaimable files oldest-first until usage drops to the
// low-water mark or no reclaimable data remains, whichever comes first.
func (c *DiskChecker) Fix(ctx context.Context, _ types.MaintenanceIssue) error {
	candidates, err := c.reclaimable()
	if err != nil {
		return err
	}

	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		used, err := c.usage(c.cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", c.cfg.Path, err)
		}
		if used <= c.cfg.LowWaterPercent {
			return nil
		}

		if err := os.Remove(path); err != nil {
			// One stubborn file must not stop the reclaim.
			fmt.Printf("Maintenance: could not remove %s: %v\n", path, err)
			continue
		}
	}

	return nil
}

// statfsUsage reports percent of the filesystem used, counting the
// root-reserved blocks as used (matches what df reports to users).
func statfsUsage(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	if st.Blocks == 0 {
		return 0, fmt.Errorf("filesystem at %s reports zero blocks", path)
	}
	used := float64(st.Blocks-st.Bavail) / float64(st.Blocks) * 100
	return used, nil
}
