// Package remedy applies bounded, idempotent remediation actions to
// failing targets and enforces the quarantine cap that prevents restart
// storms against a persistently broken target.
package remedy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/types"
)

// Alerter is the subset of the alert sink the engine needs.
type Alerter interface {
	Emit(ctx context.Context, a types.Alert) error
	RecordAttempt(a types.RemediationAttempt) error
}

// Journal is the durable record quarantine state is recovered from and
// out-of-process quarantine clears are observed through.
type Journal interface {
	// QuarantineState replays the record and returns the targets that
	// entered quarantine and were never cleared, with entry times.
	QuarantineState() (map[string]time.Time, error)

	// QuarantineClearsSince returns targets whose quarantine was cleared
	// after t.
	QuarantineClearsSince(t time.Time) ([]string, error)
}

// Config holds the engine's retry-cap policy.
type Config struct {
	// MaxFailures is the number of Failure outcomes tolerated within the
	// window before a target is quarantined. Default: 5.
	MaxFailures int

	// Window is the sliding window over which failures are counted.
	// Default: 1 hour.
	Window time.Duration
}

// DefaultConfig returns the default quarantine policy.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Window:      time.Hour,
	}
}

// Engine executes restart actions. Remediation against the same target is
// serialized by a per-target lock; a call that finds the lock held is a
// no-op, because the in-flight attempt owns the outcome.
type Engine struct {
	cfg    Config
	runner hostexec.Runner
	alerts Alerter
	now    func() time.Time

	mu sync.Mutex
	// journal, when attached, persists quarantine state across processes.
	journal Journal
	// lastSync is the high-water mark for journal clear events.
	lastSync time.Time
	// locks serializes remediation per target.
	locks map[string]*sync.Mutex
	// failures holds failure timestamps per target, pruned to the window.
	failures map[string][]time.Time
	// degradedStreak counts consecutive Degraded observations per target.
	degradedStreak map[string]int
	// attemptCounts numbers attempts per target across the process lifetime.
	attemptCounts map[string]int
	// quarantined maps target ID to the time quarantine was entered.
	quarantined map[string]time.Time
	// history keeps a bounded window of recent attempts for reporting.
	history    []types.RemediationAttempt
	maxHistory int
}

// NewEngine creates a remediation engine.
func NewEngine(cfg Config, runner hostexec.Runner, alerts Alerter) *Engine {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Engine{
		cfg:            cfg,
		runner:         runner,
		alerts:         alerts,
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
		failures:       make(map[string][]time.Time),
		degradedStreak: make(map[string]int),
		attemptCounts:  make(map[string]int),
		quarantined:    make(map[string]time.Time),
		maxHistory:     100,
	}
}

// Remediate applies the policy for one probe result. It returns the
// attempt made, or nil when policy dictates no action (healthy or unknown
// result, quarantined target, first degraded observation, or a remediation
// already in flight for this target). The restart action is issued at most
// once per invocation; there is no internal retry loop.
func (e *Engine) Remediate(ctx context.Context, target types.Target, result types.HealthResult) (*types.RemediationAttempt, error) {
	switch result.Status {
	case types.StatusHealthy:
		e.mu.Lock()
		delete(e.degradedStreak, target.ID)
		e.mu.Unlock()
		return nil, nil
	case types.StatusUnknown:
		// Unknown is non-fatal and never triggers remediation.
		return nil, nil
	}

	e.mu.Lock()
	if _, q := e.quarantined[target.ID]; q {
		e.mu.Unlock()
		return nil, nil
	}
	if result.Status == types.StatusDegraded {
		e.degradedStreak[target.ID]++
		if e.degradedStreak[target.ID] < 2 {
			// React to degradation only once it has held for two
			// consecutive probes.
			e.mu.Unlock()
			return nil, nil
		}
	}
	lock := e.lockForLocked(target.ID)
	e.mu.Unlock()

	if !lock.TryLock() {
		// In-flight remediation owns the outcome.
		return nil, nil
	}
	defer lock.Unlock()

	attempt := e.execute(ctx, target)

	e.mu.Lock()
	delete(e.degradedStreak, target.ID)
	e.mu.Unlock()

	e.finish(ctx, target, attempt)
	return attempt, nil
}

// ForceRestart restarts a target unconditionally. It ignores health and
// quarantine state (the deliberate manual override) but still serializes
// with any automatic remediation for the same target.
func (e *Engine) ForceRestart(ctx context.Context, target types.Target) (*types.RemediationAttempt, error) {
	e.mu.Lock()
	lock := e.lockForLocked(target.ID)
	e.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	attempt := e.execute(ctx, target)
	e.finish(ctx, target, attempt)
	return attempt, nil
}

// execute runs the restart action once and builds the attempt record.
// Must be called with the target's remediation lock held.
func (e *Engine) execute(ctx context.Context, target types.Target) *types.RemediationAttempt {
	action := restartAction(target)

	e.mu.Lock()
	e.attemptCounts[target.ID]++
	number := e.attemptCounts[target.ID]
	e.mu.Unlock()

	attempt := &types.RemediationAttempt{
		ID:            uuid.NewString(),
		TargetID:      target.ID,
		Timestamp:     e.now(),
		ActionTaken:   strings.Join(action, " "),
		AttemptNumber: number,
	}

	res, err := e.runner.Run(ctx, action[0], action[1:]...)

	// A stopped-and-removed container cannot be restarted; fall back to
	// starting it.
	if err == nil && res.ExitCode != 0 && target.Kind == types.KindContainer &&
		strings.Contains(res.Stderr, "No such") && len(target.RestartCommand) == 0 {
		attempt.ActionTaken = fmt.Sprintf("docker start %s", target.Unit)
		res, err = e.runner.Run(ctx, "docker", "start", target.Unit)
	}

	switch {
	case err != nil:
		attempt.Outcome = types.OutcomeFailure
		attempt.Detail = err.Error()
	case res.ExitCode != 0:
		attempt.Outcome = types.OutcomeFailure
		attempt.Detail = fmt.Sprintf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	default:
		attempt.Outcome = types.OutcomeSuccess
	}

	return attempt
}

// finish records the attempt, counts failures against the sliding window,
// and raises alerts for failures and the quarantine transition.
func (e *Engine) finish(ctx context.Context, target types.Target, attempt *types.RemediationAttempt) {
	if err := e.alerts.RecordAttempt(*attempt); err != nil {
		fmt.Printf("Remedy: failed to record attempt for %s: %v\n", target.ID, err)
	}

	e.mu.Lock()
	e.history = append(e.history, *attempt)
	if len(e.history) > e.maxHistory {
		copy(e.history, e.history[len(e.history)-e.maxHistory:])
		e.history = e.history[:e.maxHistory]
	}
	e.mu.Unlock()

	if attempt.Outcome != types.OutcomeFailure {
		return
	}

	quarantineNow := e.recordFailure(target.ID, attempt.Timestamp)

	failAlert := types.Alert{
		ID:        uuid.NewString(),
		Severity:  types.SeverityWarning,
		Event:     types.EventRemediationFailed,
		TargetID:  target.ID,
		Details:   fmt.Sprintf("target %s: %s failed (attempt %d): %s", target.ID, attempt.ActionTaken, attempt.AttemptNumber, attempt.Detail),
		Timestamp: attempt.Timestamp,
	}
	if err := e.alerts.Emit(ctx, failAlert); err != nil {
		fmt.Printf("Remedy: failed to emit alert for %s: %v\n", target.ID, err)
	}

	if quarantineNow {
		qAlert := types.Alert{
			ID:        uuid.NewString(),
			Severity:  types.SeverityCritical,
			Event:     types.EventTargetQuarantined,
			TargetID:  target.ID,
			Details:   fmt.Sprintf("target %s quarantined after %d failures within %v; automatic remediation suspended", target.ID, e.cfg.MaxFailures+1, e.cfg.Window),
			Timestamp: attempt.Timestamp,
		}
		if err := e.alerts.Emit(ctx, qAlert); err != nil {
			fmt.Printf("Remedy: failed to emit quarantine alert for %s: %v\n", target.ID, err)
		}
	}
}

// recordFailure adds one failure to the target's sliding window and
// reports whether this failure pushed the target into quarantine. The
// transition fires exactly once; subsequent failures of a quarantined
// target (from manual overrides) do not re-alert.
func (e *Engine) recordFailure(targetID string, at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := at.Add(-e.cfg.Window)
	window := e.failures[targetID]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	e.failures[targetID] = kept

	if _, q := e.quarantined[targetID]; q {
		return false
	}
	if len(kept) > e.cfg.MaxFailures {
		e.quarantined[targetID] = at
		return true
	}
	return false
}

// lockForLocked returns the per-target lock, creating it on first use.
// Must be called with e.mu held.
func (e *Engine) lockForLocked(targetID string) *sync.Mutex {
	lock, ok := e.locks[targetID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[targetID] = lock
	}
	return lock
}

// RestoreFromJournal attaches the journal and seeds quarantine state
// persisted by an earlier process. Call once at startup, before the
// monitoring loops begin.
func (e *Engine) RestoreFromJournal(j Journal) error {
	state, err := j.QuarantineState()
	if err != nil {
		return fmt.Errorf("failed to restore quarantine state: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.journal = j
	e.lastSync = e.now()
	for id, at := range state {
		e.quarantined[id] = at
	}
	return nil
}

// SyncQuarantine applies quarantine clears recorded by other processes
// since the last sync. This is how a running monitor observes
// 'status --clear-quarantine' without a restart.
func (e *Engine) SyncQuarantine() {
	e.mu.Lock()
	j := e.journal
	since := e.lastSync
	e.mu.Unlock()

	if j == nil {
		return
	}

	// Advance the mark before reading: a clear recorded mid-read lands
	// after the new mark and is picked up on the next sync.
	mark := e.now()
	cleared, err := j.QuarantineClearsSince(since)
	if err != nil {
		fmt.Printf("Remedy: failed to read quarantine clears: %v\n", err)
		return
	}

	e.mu.Lock()
	e.lastSync = mark
	e.mu.Unlock()

	for _, id := range cleared {
		if e.ClearQuarantine(id) {
			fmt.Printf("Remedy: quarantine cleared for %s\n", id)
		}
	}
}

// IsQuarantined reports whether automatic remediation is suspended for
// the target.
func (e *Engine) IsQuarantined(targetID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, q := e.quarantined[targetID]
	return q
}

// QuarantinedIDs returns the quarantined target IDs with entry times.
func (e *Engine) QuarantinedIDs() map[string]time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]time.Time, len(e.quarantined))
	for id, at := range e.quarantined {
		out[id] = at
	}
	return out
}

// ClearQuarantine manually lifts quarantine for a target, resetting its
// failure window so it gets a fresh retry budget.
func (e *Engine) ClearQuarantine(targetID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, q := e.quarantined[targetID]; !q {
		return false
	}
	delete(e.quarantined, targetID)
	delete(e.failures, targetID)
	delete(e.degradedStreak, targetID)
	return true
}

// RecentAttempts returns a copy of the bounded attempt history.
func (e *Engine) RecentAttempts() []types.RemediationAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.RemediationAttempt, len(e.history))
	copy(out, e.history)
	return out
}

// restartAction builds the restart command for a target.
func restartAction(target types.Target) []string {
	if len(target.RestartCommand) > 0 {
		return target.RestartCommand
	}
	switch target.Kind {
	case types.KindContainer:
		return []string{"docker", "restart", target.Unit}
	default:
		return []string{"systemctl", "restart", target.Unit}
	}
}
