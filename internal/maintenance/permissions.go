package maintenance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hostmedic/hostmedic/internal/types"
)

// PermissionsChecker detects permission drift on sensitive paths and
// tightens them back to the configured maximum mask.
type PermissionsChecker struct {
	paths   []string
	maxMode os.FileMode
}

// NewPermissionsChecker creates the permission-drift checker.
func NewPermissionsChecker(paths []string, maxMode os.FileMode) *PermissionsChecker {
	return &PermissionsChecker{paths: paths, maxMode: maxMode.Perm()}
}

func (c *PermissionsChecker) Category() types.IssueCategory { return types.CategoryPermissions }
func (c *PermissionsChecker) AutoFixable() bool             { return true }

// Check inspects every sensitive path. Paths exceeding the mask are a
// Warning; world-writable executables are Critical. Missing paths are
// skipped — absence is the configuration category's concern.
func (c *PermissionsChecker) Check(_ context.Context) (types.MaintenanceIssue, error) {
	issue := types.MaintenanceIssue{
		Category:    types.CategoryPermissions,
		Severity:    types.SeverityOk,
		AutoFixable: true,
	}

	var loose, dangerous []string
	for _, path := range c.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		perm := info.Mode().Perm()

		if perm&0o002 != 0 && perm&0o111 != 0 {
			dangerous = append(dangerous, fmt.Sprintf("%s (%04o)", path, perm))
			continue
		}
		if perm&^c.maxMode != 0 {
			loose = append(loose, fmt.Sprintf("%s (%04o)", path, perm))
		}
	}

	switch {
	case len(dangerous) > 0:
		issue.Severity = types.SeverityCritical
		issue.Detail = "world-writable executable: " + strings.Join(dangerous, ", ")
	case len(loose) > 0:
		issue.Severity = types.SeverityWarning
		issue.Detail = fmt.Sprintf("exceeds %04o: %s", c.maxMode, strings.Join(loose, ", "))
	default:
		issue.Detail = fmt.Sprintf("%d sensitive paths within %04o", len(c.paths), c.maxMode)
	}
	return issue, nil
}

// Fix tightens every offending path to the maximum mask. Tightening an
// already-tight path is a no-op, so repeated fixes are safe.
func (c *PermissionsChecker) Fix(_ context.Context, _ types.MaintenanceIssue) error {
	var firstErr error
	for _, path := range c.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		perm := info.Mode().Perm()
		if perm&^c.maxMode == 0 {
			continue
		}
		if err := os.Chmod(path, perm&c.maxMode); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to chmod %s: %w", path, err)
		}
	}
	return firstErr
}
