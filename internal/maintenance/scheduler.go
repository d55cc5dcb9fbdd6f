// Package maintenance runs the long-interval host health checks: disk
// space, permission drift, missing dependencies, stale backups, and
// required directory structure. Each category is checked independently
// and either auto-fixed or reported.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostmedic/hostmedic/internal/types"
)

// Checker evaluates one maintenance category.
type Checker interface {
	Category() types.IssueCategory
	AutoFixable() bool
	Check(ctx context.Context) (types.MaintenanceIssue, error)
	Fix(ctx context.Context, issue types.MaintenanceIssue) error
}

// Alerter delivers alerts.
type Alerter interface {
	Emit(ctx context.Context, a types.Alert) error
}

// Options controls one maintenance cycle.
type Options struct {
	// Auto applies fixes for auto-fixable issues. Without it the cycle
	// only reports.
	Auto bool
	// DryRun reports what would be fixed without touching anything.
	DryRun bool
}

// CategoryResult is the outcome of one category in one cycle.
type CategoryResult struct {
	Category  types.IssueCategory
	Evaluated bool
	Err       string
	Issue     types.MaintenanceIssue
	// FixAttempted is set when an auto-fix ran (never under dry-run).
	FixAttempted bool
	FixErr       string
	// PostFix is the category re-checked after a successful fix.
	PostFix *types.MaintenanceIssue
}

// Final returns the severity that stands after any fix.
func (r CategoryResult) Final() types.Severity {
	if r.PostFix != nil {
		return r.PostFix.Severity
	}
	return r.Issue.Severity
}

// Report aggregates one full maintenance cycle.
type Report struct {
	Timestamp time.Time
	Results   []CategoryResult
}

// HealthPercent is healthy categories over total categories.
func (r *Report) HealthPercent() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	healthy := 0
	for _, res := range r.Results {
		if res.Evaluated && res.Final() == types.SeverityOk {
			healthy++
		}
	}
	return float64(healthy) / float64(len(r.Results)) * 100
}

// HasCritical reports whether any category ended the cycle Critical.
func (r *Report) HasCritical() bool {
	for _, res := range r.Results {
		if res.Evaluated && res.Final() == types.SeverityCritical {
			return true
		}
	}
	return false
}

// HasIssues reports whether anything is not Ok, including categories
// that could not be evaluated.
func (r *Report) HasIssues() bool {
	for _, res := range r.Results {
		if !res.Evaluated || res.Final() != types.SeverityOk {
			return true
		}
	}
	return false
}

// Scheduler runs maintenance cycles, on demand and on a long interval.
type Scheduler struct {
	mu       sync.Mutex
	checkers []Checker
	alerts   Alerter
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler over the given category checkers.
func NewScheduler(checkers []Checker, alerts Alerter, interval time.Duration) (*Scheduler, error) {
	if len(checkers) == 0 {
		return nil, fmt.Errorf("at least one checker is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert sink is required")
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		checkers: checkers,
		alerts:   alerts,
		interval: interval,
	}, nil
}

// RunCycle evaluates every category once. Categories are side-effect
// isolated: a failure in one never aborts the others, it only surfaces
// in that category's result. The cycle is idempotent — with no state
// change between runs the issue set and fixes are identical, and a fix
// is never re-applied to an already-fixed issue.
func (s *Scheduler) RunCycle(ctx context.Context, opts Options) *Report {
	report := &Report{Timestamp: time.Now()}

	for _, checker := range s.checkers {
		report.Results = append(report.Results, s.runCategory(ctx, checker, opts))
	}

	return report
}

func (s *Scheduler) runCategory(ctx context.Context, checker Checker, opts Options) CategoryResult {
	result := CategoryResult{Category: checker.Category()}

	issue, err := checker.Check(ctx)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Evaluated = true
	result.Issue = issue

	// A Critical issue always alerts, regardless of the fix outcome.
	if issue.Severity == types.SeverityCritical {
		s.emit(ctx, types.Alert{
			ID:       uuid.NewString(),
			Severity: types.SeverityCritical,
			Event:    types.EventMaintenanceIssue,
			Details:  fmt.Sprintf("%s: %s", issue.Category, issue.Detail),
		})
	}

	if issue.Severity == types.SeverityOk {
		return result
	}
	if !opts.Auto || opts.DryRun || !checker.AutoFixable() {
		return result
	}

	result.FixAttempted = true
	if err := checker.Fix(ctx, issue); err != nil {
		result.FixErr = err.Error()
		s.emit(ctx, types.Alert{
			ID:       uuid.NewString(),
			Severity: types.SeverityWarning,
			Event:    types.EventMaintenanceIssue,
			Details:  fmt.Sprintf("%s: auto-fix failed: %v", issue.Category, err),
		})
		return result
	}

	// Confirm the fix took.
	post, err := checker.Check(ctx)
	if err != nil {
		result.FixErr = fmt.Sprintf("post-fix check failed: %v", err)
		return result
	}
	result.PostFix = &post

	if post.Severity == types.SeverityOk {
		s.emit(ctx, types.Alert{
			ID:       uuid.NewString(),
			Severity: types.SeverityOk,
			Event:    types.EventMaintenanceFixed,
			Details:  fmt.Sprintf("%s: %s -> %s", issue.Category, issue.Severity, post.Severity),
		})
	}

	return result
}

func (s *Scheduler) emit(ctx context.Context, a types.Alert) {
	a.Timestamp = time.Now()
	if err := s.alerts.Emit(ctx, a); err != nil {
		fmt.Printf("Maintenance: failed to emit alert: %v\n", err)
	}
}

// Start begins the periodic maintenance loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("maintenance scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	fmt.Printf("Maintenance: scheduled (interval=%v)\n", s.interval)
	return nil
}

// Stop gracefully stops the periodic loop; an in-flight cycle finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.running = false
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			report := s.RunCycle(s.ctx, Options{Auto: true})
			fmt.Printf("Maintenance: cycle complete (%.0f%% healthy)\n", report.HealthPercent())
			timer.Reset(s.interval)
		}
	}
}
