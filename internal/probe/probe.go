// Package probe checks liveness of monitored targets. Probes are pure
// reads: they query the process supervisor or the container runtime and
// classify the answer, with no side effects.
package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/types"
)

// Prober classifies the health of one target per call.
type Prober struct {
	runner hostexec.Runner
	now    func() time.Time
}

// New creates a prober that queries the host through the given runner.
func New(runner hostexec.Runner) *Prober {
	return &Prober{
		runner: runner,
		now:    time.Now,
	}
}

// Check probes one target and returns a fresh HealthResult. A query error
// (supervisor unreachable, runtime unavailable, timeout) yields Unknown,
// never an error: downstream treats Unknown as non-fatal.
func (p *Prober) Check(ctx context.Context, target types.Target) types.HealthResult {
	result := types.HealthResult{
		TargetID:  target.ID,
		Timestamp: p.now(),
	}

	switch target.Kind {
	case types.KindService:
		result.Status, result.Detail = p.checkService(ctx, target)
	case types.KindContainer:
		result.Status, result.Detail = p.checkContainer(ctx, target)
	default:
		result.Status = types.StatusUnknown
		result.Detail = fmt.Sprintf("unsupported target kind %q", target.Kind)
	}

	return result
}

// checkService asks the process supervisor for the unit's active state.
// systemctl is-active prints the state and exits non-zero for anything
// other than "active"; the printed state is authoritative either way.
func (p *Prober) checkService(ctx context.Context, target types.Target) (types.HealthStatus, string) {
	res, err := p.runner.Run(ctx, "systemctl", "is-active", target.Unit)
	if err != nil {
		return types.StatusUnknown, fmt.Sprintf("supervisor query failed: %v", err)
	}

	state := strings.TrimSpace(res.Stdout)
	switch state {
	case "active":
		return types.StatusHealthy, state
	case "activating", "reloading", "refreshing":
		return types.StatusDegraded, state
	case "failed", "inactive", "deactivating":
		return types.StatusDown, state
	default:
		return types.StatusUnknown, fmt.Sprintf("unrecognized unit state %q", state)
	}
}

// containerStateFormat extracts running state and, when the container
// declares a health check, its reported health.
const containerStateFormat = `{{.State.Running}} {{if .State.Health}}{{.State.Health.Status}}{{else}}none{{end}}`

// checkContainer requires the container to be running and, if it declares
// a health check, that its health is not "unhealthy".
func (p *Prober) checkContainer(ctx context.Context, target types.Target) (types.HealthStatus, string) {
	res, err := p.runner.Run(ctx, "docker", "inspect", "--format", containerStateFormat, target.Unit)
	if err != nil {
		return types.StatusUnknown, fmt.Sprintf("container runtime query failed: %v", err)
	}

	if res.ExitCode != 0 {
		// A missing container is Down (the restart action can start it);
		// anything else is a runtime problem.
		if strings.Contains(res.Stderr, "No such object") || strings.Contains(res.Stderr, "No such container") {
			return types.StatusDown, "container does not exist"
		}
		return types.StatusUnknown, fmt.Sprintf("docker inspect exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) != 2 {
		return types.StatusUnknown, fmt.Sprintf("unexpected inspect output %q", strings.TrimSpace(res.Stdout))
	}

	running, health := fields[0], fields[1]
	if running != "true" {
		return types.StatusDown, "container not running"
	}

	switch health {
	case "none", "healthy":
		return types.StatusHealthy, "running"
	case "starting":
		return types.StatusDegraded, "health check starting"
	case "unhealthy":
		return types.StatusDegraded, "container unhealthy"
	default:
		return types.StatusUnknown, fmt.Sprintf("unrecognized health state %q", health)
	}
}
