package maintenance

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hostmedic/hostmedic/internal/types"
)

// DependenciesChecker verifies that required external tools resolve on
// PATH. Misses are report-only: installing packages needs privileges the
// monitor does not assume.
type DependenciesChecker struct {
	tools    []string
	lookPath func(string) (string, error)
}

// NewDependenciesChecker creates the dependency checker.
func NewDependenciesChecker(tools []string) *DependenciesChecker {
	return &DependenciesChecker{
		tools:    tools,
		lookPath: exec.LookPath,
	}
}

func (c *DependenciesChecker) Category() types.IssueCategory { return types.CategoryDependencies }
func (c *DependenciesChecker) AutoFixable() bool             { return false }

// Check resolves each required tool on PATH.
func (c *DependenciesChecker) Check(_ context.Context) (types.MaintenanceIssue, error) {
	issue := types.MaintenanceIssue{
		Category: types.CategoryDependencies,
		Severity: types.SeverityOk,
	}

	var missing []string
	for _, tool := range c.tools {
		if _, err := c.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}

	if len(missing) > 0 {
		issue.Severity = types.SeverityWarning
		issue.Detail = "missing from PATH: " + strings.Join(missing, ", ")
	} else {
		issue.Detail = fmt.Sprintf("%d required tools present", len(c.tools))
	}
	return issue, nil
}

// Fix is never applicable for dependencies.
func (c *DependenciesChecker) Fix(_ context.Context, _ types.MaintenanceIssue) error {
	return fmt.Errorf("dependencies cannot be auto-fixed: install the missing tools with the system package manager")
}
