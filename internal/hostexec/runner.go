// Package hostexec wraps external command execution behind a small
// interface so probes, remediation actions, and maintenance fixes can be
// tested without touching the host.
package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its bounded timeout.
// Callers map it to Unknown (probes) or Failure (actions), never to a hang.
var ErrTimeout = errors.New("command timed out")

// Result captures the observable outcome of one command.
// A non-zero exit code is not an error: the status contract of the
// external collaborators (systemctl, docker) is carried in ExitCode.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands with a bounded timeout.
type Runner interface {
	// Run executes the command and returns its result. The error is
	// non-nil only when the command could not run at all (binary missing,
	// timeout); exit-code failures are reported through Result.ExitCode.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// RunInput is Run with data piped to the command's stdin.
	RunInput(ctx context.Context, stdin string, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the host via os/exec.
type ExecRunner struct {
	// Timeout bounds every command. Default: 30 seconds.
	Timeout time.Duration
}

// NewExecRunner returns a runner with the given per-command timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecRunner{Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return r.run(ctx, "", name, args...)
}

// RunInput implements Runner.
func (r *ExecRunner) RunInput(ctx context.Context, stdin string, name string, args ...string) (Result, error) {
	return r.run(ctx, stdin, name, args...)
}

func (r *ExecRunner) run(ctx context.Context, stdin, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	err := cmd.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%s: %w", name, ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, fmt.Errorf("failed to run %s: %w", name, err)
}
