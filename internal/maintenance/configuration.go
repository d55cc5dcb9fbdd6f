package maintenance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hostmedic/hostmedic/internal/types"
)

// ConfigurationChecker verifies that the required directory structure
// exists, and recreates missing directories.
type ConfigurationChecker struct {
	dirs []string
}

// NewConfigurationChecker creates the directory-structure checker.
func NewConfigurationChecker(dirs []string) *ConfigurationChecker {
	return &ConfigurationChecker{dirs: dirs}
}

func (c *ConfigurationChecker) Category() types.IssueCategory { return types.CategoryConfiguration }
func (c *ConfigurationChecker) AutoFixable() bool             { return true }

// Check reports directories that are missing or not directories.
func (c *ConfigurationChecker) Check(_ context.Context) (types.MaintenanceIssue, error) {
	issue := types.MaintenanceIssue{
		Category:    types.CategoryConfiguration,
		Severity:    types.SeverityOk,
		AutoFixable: true,
	}

	var missing []string
	for _, dir := range c.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}

	if len(missing) > 0 {
		issue.Severity = types.SeverityWarning
		issue.Detail = "missing directories: " + strings.Join(missing, ", ")
	} else {
		issue.Detail = fmt.Sprintf("%d required directories present", len(c.dirs))
	}
	return issue, nil
}

// Fix recreates missing directories. Existing directories are left
// untouched, so repeated fixes are safe.
func (c *ConfigurationChecker) Fix(_ context.Context, _ types.MaintenanceIssue) error {
	var firstErr error
	for _, dir := range c.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return firstErr
}
