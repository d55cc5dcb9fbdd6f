// Package recovery implements the emergency last-resort procedure: one
// forced restart pass over every target, an emergency disk reclaim, and
// a final verification probe. It is run on explicit operator request
// only and never retries.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hostmedic/hostmedic/internal/types"
)

// Prober checks one target's health.
type Prober interface {
	Check(ctx context.Context, target types.Target) types.HealthResult
}

// Restarter force-restarts one target, quarantine or not.
type Restarter interface {
	ForceRestart(ctx context.Context, target types.Target) (*types.RemediationAttempt, error)
}

// DiskFixer is the disk-space maintenance check, reused for the
// emergency reclaim.
type DiskFixer interface {
	Check(ctx context.Context) (types.MaintenanceIssue, error)
	Fix(ctx context.Context, issue types.MaintenanceIssue) error
	AutoFixable() bool
}

// Alerter delivers alerts.
type Alerter interface {
	Emit(ctx context.Context, a types.Alert) error
}

// TargetOutcome is the end state of one target after recovery.
type TargetOutcome struct {
	TargetID  string
	Restarted bool
	// RestartErr is set when the restart action itself could not run.
	RestartErr string
	Final      types.HealthStatus
}

// Report summarizes one recovery run.
type Report struct {
	Timestamp time.Time
	Restarted int
	Outcomes  []TargetOutcome
	// DiskReclaimed is set when usage was at or above the high-water mark
	// and the emergency reclaim ran.
	DiskReclaimed bool
	DiskErr       string
}

// Healthy counts targets that verified healthy after the pass.
func (r *Report) Healthy() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Final == types.StatusHealthy {
			n++
		}
	}
	return n
}

// Succeeded reports whether every target verified healthy.
func (r *Report) Succeeded() bool {
	return r.Healthy() == len(r.Outcomes)
}

// Runner executes the recovery procedure.
type Runner struct {
	registry *types.Registry
	prober   Prober
	engine   Restarter
	disk     DiskFixer
	alerts   Alerter
}

// New creates a recovery runner. The disk fixer is optional.
func New(registry *types.Registry, prober Prober, engine Restarter, disk DiskFixer, alerts Alerter) (*Runner, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("remediation engine is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert sink is required")
	}
	return &Runner{
		registry: registry,
		prober:   prober,
		engine:   engine,
		disk:     disk,
		alerts:   alerts,
	}, nil
}

// Run executes one recovery pass: restart everything, reclaim disk if
// critical, then verify. Each step runs exactly once.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{Timestamp: time.Now()}
	targets := r.registry.All()

	fmt.Printf("Recovery: force-restarting %d targets\n", len(targets))
	for _, target := range targets {
		outcome := TargetOutcome{TargetID: target.ID}
		attempt, err := r.engine.ForceRestart(ctx, target)
		switch {
		case err != nil:
			outcome.RestartErr = err.Error()
		case attempt != nil:
			outcome.Restarted = true
			report.Restarted++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	r.reclaimDisk(ctx, report)

	// Verification pass. One probe per target, no retries: recovery
	// either worked or the operator intervenes.
	for i := range report.Outcomes {
		target, ok := r.registry.Get(report.Outcomes[i].TargetID)
		if !ok {
			continue
		}
		result := r.prober.Check(ctx, target)
		report.Outcomes[i].Final = result.Status
	}

	severity := types.SeverityOk
	if !report.Succeeded() {
		severity = types.SeverityWarning
	}
	alert := types.Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Event:     types.EventRecoveryCompleted,
		Details:   fmt.Sprintf("restarted %d targets, %d/%d healthy", report.Restarted, report.Healthy(), len(report.Outcomes)),
		Timestamp: time.Now(),
	}
	if err := r.alerts.Emit(ctx, alert); err != nil {
		fmt.Printf("Recovery: failed to emit alert: %v\n", err)
	}

	return report
}

// reclaimDisk runs the emergency reclaim when usage is Critical.
func (r *Runner) reclaimDisk(ctx context.Context, report *Report) {
	if r.disk == nil || !r.disk.AutoFixable() {
		return
	}

	issue, err := r.disk.Check(ctx)
	if err != nil {
		report.DiskErr = err.Error()
		return
	}
	if issue.Severity != types.SeverityCritical {
		return
	}

	fmt.Printf("Recovery: disk critical (%s), reclaiming\n", issue.Detail)
	report.DiskReclaimed = true
	if err := r.disk.Fix(ctx, issue); err != nil {
		report.DiskErr = err.Error()
	}
}
