package remedy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/types"
)

type fakeAlerter struct {
	mu       sync.Mutex
	alerts   []types.Alert
	attempts []types.RemediationAttempt
}

func (f *fakeAlerter) Emit(_ context.Context, a types.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlerter) RecordAttempt(a types.RemediationAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAlerter) eventCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.alerts {
		if a.Event == event {
			n++
		}
	}
	return n
}

// scriptedRunner returns a fixed result for every command and records calls.
type scriptedRunner struct {
	mu     sync.Mutex
	result hostexec.Result
	err    error
	calls  [][]string
	// block, when non-nil, is closed to release in-flight calls.
	block   chan struct{}
	started chan struct{}
}

func (s *scriptedRunner) Run(_ context.Context, name string, args ...string) (hostexec.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string{name}, args...))
	started := s.started
	block := s.block
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return s.result, s.err
}

func (s *scriptedRunner) RunInput(ctx context.Context, _ string, name string, args ...string) (hostexec.Result, error) {
	return s.Run(ctx, name, args...)
}

func (s *scriptedRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func svcTarget() types.Target {
	return types.Target{ID: "svc-a", Kind: types.KindService, Tier: types.TierFast, Unit: "a.service"}
}

func downResult(id string) types.HealthResult {
	return types.HealthResult{TargetID: id, Timestamp: time.Now(), Status: types.StatusDown}
}

func degradedResult(id string) types.HealthResult {
	return types.HealthResult{TargetID: id, Timestamp: time.Now(), Status: types.StatusDegraded}
}

func TestRemediate_DownIssuesRestartOnce(t *testing.T) {
	runner := &scriptedRunner{}
	alerts := &fakeAlerter{}
	e := NewEngine(DefaultConfig(), runner, alerts)

	attempt, err := e.Remediate(context.Background(), svcTarget(), downResult("svc-a"))
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if attempt == nil {
		t.Fatal("Expected an attempt for a down target")
	}
	if attempt.Outcome != types.OutcomeSuccess {
		t.Errorf("Expected success, got %s (%s)", attempt.Outcome, attempt.Detail)
	}
	if attempt.ActionTaken != "systemctl restart a.service" {
		t.Errorf("Unexpected action: %s", attempt.ActionTaken)
	}
	if runner.callCount() != 1 {
		t.Errorf("Expected exactly one restart action, got %d", runner.callCount())
	}
	if len(alerts.attempts) != 1 {
		t.Errorf("Expected attempt to be recorded, got %d", len(alerts.attempts))
	}
}

func TestRemediate_HealthyAndUnknownAreNoOps(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})

	for _, status := range []types.HealthStatus{types.StatusHealthy, types.StatusUnknown} {
		result := types.HealthResult{TargetID: "svc-a", Status: status}
		attempt, err := e.Remediate(context.Background(), svcTarget(), result)
		if err != nil {
			t.Fatalf("Remediate failed: %v", err)
		}
		if attempt != nil {
			t.Errorf("Expected no attempt for %s result", status)
		}
	}
	if runner.callCount() != 0 {
		t.Errorf("Expected no actions, got %d", runner.callCount())
	}
}

func TestRemediate_DegradedRequiresTwoConsecutiveObservations(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	attempt, _ := e.Remediate(ctx, svcTarget(), degradedResult("svc-a"))
	if attempt != nil {
		t.Error("First degraded observation must not trigger remediation")
	}

	attempt, _ = e.Remediate(ctx, svcTarget(), degradedResult("svc-a"))
	if attempt == nil {
		t.Error("Second consecutive degraded observation must trigger remediation")
	}
	if runner.callCount() != 1 {
		t.Errorf("Expected one restart, got %d", runner.callCount())
	}
}

func TestRemediate_HealthyResetsDegradedStreak(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	_, _ = e.Remediate(ctx, svcTarget(), degradedResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), types.HealthResult{TargetID: "svc-a", Status: types.StatusHealthy})
	attempt, _ := e.Remediate(ctx, svcTarget(), degradedResult("svc-a"))

	if attempt != nil {
		t.Error("A healthy probe in between must reset the degraded streak")
	}
}

func TestRemediate_FailureEmitsAlert(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1, Stderr: "Job failed"}}
	alerts := &fakeAlerter{}
	e := NewEngine(DefaultConfig(), runner, alerts)

	attempt, _ := e.Remediate(context.Background(), svcTarget(), downResult("svc-a"))
	if attempt.Outcome != types.OutcomeFailure {
		t.Fatalf("Expected failure outcome, got %s", attempt.Outcome)
	}
	if alerts.eventCount(types.EventRemediationFailed) != 1 {
		t.Errorf("Expected one failure alert, got %d", alerts.eventCount(types.EventRemediationFailed))
	}
}

func TestQuarantine_TransitionAlertsExactlyOnce(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1, Stderr: "broken"}}
	alerts := &fakeAlerter{}
	cfg := Config{MaxFailures: 3, Window: time.Hour}
	e := NewEngine(cfg, runner, alerts)
	ctx := context.Background()

	// Fail past the cap, then keep probing.
	for i := 0; i < 10; i++ {
		_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	}

	if !e.IsQuarantined("svc-a") {
		t.Fatal("Expected target to be quarantined")
	}
	if got := alerts.eventCount(types.EventTargetQuarantined); got != 1 {
		t.Errorf("Expected exactly one quarantine alert, got %d", got)
	}
	// Cap+1 actions ran; later cycles skipped the target entirely.
	if runner.callCount() != cfg.MaxFailures+1 {
		t.Errorf("Expected %d actions before quarantine, got %d", cfg.MaxFailures+1, runner.callCount())
	}
}

func TestQuarantine_SlidingWindowForgetsOldFailures(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1}}
	cfg := Config{MaxFailures: 2, Window: time.Hour}
	e := NewEngine(cfg, runner, &fakeAlerter{})

	current := time.Now()
	e.now = func() time.Time { return current }
	ctx := context.Background()

	// Two failures now, then two more an hour and a half later: the first
	// two have slid out of the window, so no quarantine.
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	current = current.Add(90 * time.Minute)
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))

	if e.IsQuarantined("svc-a") {
		t.Error("Failures outside the window must not count toward quarantine")
	}

	// A third failure inside the window crosses the cap.
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if !e.IsQuarantined("svc-a") {
		t.Error("Expected quarantine once the window holds more than the cap")
	}
}

func TestClearQuarantine(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1}}
	cfg := Config{MaxFailures: 1, Window: time.Hour}
	e := NewEngine(cfg, runner, &fakeAlerter{})
	ctx := context.Background()

	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if !e.IsQuarantined("svc-a") {
		t.Fatal("Expected quarantine")
	}

	if !e.ClearQuarantine("svc-a") {
		t.Error("ClearQuarantine should report success")
	}
	if e.IsQuarantined("svc-a") {
		t.Error("Expected quarantine lifted")
	}
	if e.ClearQuarantine("svc-a") {
		t.Error("Clearing twice should report false")
	}

	// Fresh retry budget after clearing.
	attempt, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if attempt == nil {
		t.Error("Expected remediation to resume after quarantine cleared")
	}
}

func TestForceRestart_IgnoresQuarantine(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1}}
	cfg := Config{MaxFailures: 1, Window: time.Hour}
	e := NewEngine(cfg, runner, &fakeAlerter{})
	ctx := context.Background()

	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if !e.IsQuarantined("svc-a") {
		t.Fatal("Expected quarantine")
	}

	before := runner.callCount()
	attempt, err := e.ForceRestart(ctx, svcTarget())
	if err != nil {
		t.Fatalf("ForceRestart failed: %v", err)
	}
	if attempt == nil {
		t.Fatal("ForceRestart must act regardless of quarantine")
	}
	if runner.callCount() != before+1 {
		t.Errorf("Expected one more action, got %d", runner.callCount()-before)
	}
}

func TestRemediate_ContainerFallsBackToStart(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1, Stderr: "Error: No such container: web"}}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})

	target := types.Target{ID: "web", Kind: types.KindContainer, Tier: types.TierFast, Unit: "web"}
	attempt, _ := e.Remediate(context.Background(), target, downResult("web"))

	if runner.callCount() != 2 {
		t.Fatalf("Expected restart then start fallback, got %d calls", runner.callCount())
	}
	if !strings.HasPrefix(attempt.ActionTaken, "docker start") {
		t.Errorf("Expected fallback action recorded, got %s", attempt.ActionTaken)
	}
}

func TestRemediate_CustomRestartCommand(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})

	target := svcTarget()
	target.RestartCommand = []string{"sv", "restart", "a"}
	attempt, _ := e.Remediate(context.Background(), target, downResult("svc-a"))

	if attempt.ActionTaken != "sv restart a" {
		t.Errorf("Expected custom restart command, got %s", attempt.ActionTaken)
	}
}

func TestRemediate_AtMostOneInFlightPerTarget(t *testing.T) {
	runner := &scriptedRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	var attempts int64

	// First call blocks inside the restart action.
	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		attempt, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
		if attempt != nil {
			atomic.AddInt64(&attempts, 1)
		}
	}()
	<-runner.started
	runner.mu.Lock()
	runner.started = nil
	runner.mu.Unlock()

	// Concurrent calls against the same target are no-ops while the first
	// attempt is in flight. They all complete before the lock is released.
	var contenders sync.WaitGroup
	for i := 0; i < 8; i++ {
		contenders.Add(1)
		go func() {
			defer contenders.Done()
			attempt, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
			if attempt != nil {
				atomic.AddInt64(&attempts, 1)
			}
		}()
	}
	contenders.Wait()

	close(runner.block)
	first.Wait()

	if got := atomic.LoadInt64(&attempts); got != 1 {
		t.Errorf("Expected exactly one attempt, got %d", got)
	}
	if runner.callCount() != 1 {
		t.Errorf("Expected exactly one restart action, got %d", runner.callCount())
	}
}

func TestRemediate_DistinctTargetsDoNotBlockEachOther(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	targetB := types.Target{ID: "svc-b", Kind: types.KindService, Tier: types.TierFast, Unit: "b.service"}

	a, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	b, _ := e.Remediate(ctx, targetB, downResult("svc-b"))
	if a == nil || b == nil {
		t.Error("Remediation of distinct targets must be independent")
	}
}

// fakeJournal is an in-memory stand-in for the alert log.
type fakeJournal struct {
	mu     sync.Mutex
	state  map[string]time.Time
	clears []journaledClear
	err    error
}

type journaledClear struct {
	id string
	at time.Time
}

func (f *fakeJournal) QuarantineState() (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]time.Time, len(f.state))
	for id, at := range f.state {
		out[id] = at
	}
	return out, nil
}

func (f *fakeJournal) QuarantineClearsSince(t time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var cleared []string
	for _, c := range f.clears {
		if c.at.After(t) {
			cleared = append(cleared, c.id)
		}
	}
	return cleared, nil
}

func (f *fakeJournal) recordClear(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears = append(f.clears, journaledClear{id: id, at: at})
}

func TestRestoreFromJournal_SeedsQuarantine(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})

	journal := &fakeJournal{state: map[string]time.Time{"svc-a": time.Now().Add(-time.Hour)}}
	if err := e.RestoreFromJournal(journal); err != nil {
		t.Fatalf("RestoreFromJournal failed: %v", err)
	}

	if !e.IsQuarantined("svc-a") {
		t.Error("Expected quarantine restored from the journal")
	}

	// A restored quarantine suppresses remediation like a live one.
	attempt, err := e.Remediate(context.Background(), svcTarget(), downResult("svc-a"))
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if attempt != nil || runner.callCount() != 0 {
		t.Error("A journaled quarantine must suppress remediation")
	}
}

func TestRestoreFromJournal_ReadErrorIsEscalated(t *testing.T) {
	e := NewEngine(DefaultConfig(), &scriptedRunner{}, &fakeAlerter{})

	journal := &fakeJournal{err: fmt.Errorf("log unreadable")}
	if err := e.RestoreFromJournal(journal); err == nil {
		t.Error("Expected error when the journal cannot be read")
	}
}

func TestSyncQuarantine_AppliesJournaledClears(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	current := time.Now()
	e.now = func() time.Time { return current }

	journal := &fakeJournal{state: map[string]time.Time{"svc-a": current.Add(-time.Hour)}}
	if err := e.RestoreFromJournal(journal); err != nil {
		t.Fatalf("RestoreFromJournal failed: %v", err)
	}

	// Nothing cleared yet: sync changes nothing.
	e.SyncQuarantine()
	if !e.IsQuarantined("svc-a") {
		t.Fatal("Sync without clear events must leave quarantine in place")
	}

	// Another process records a clear; the next sync lifts the quarantine
	// and remediation resumes.
	journal.recordClear("svc-a", current.Add(time.Minute))
	current = current.Add(2 * time.Minute)
	e.SyncQuarantine()

	if e.IsQuarantined("svc-a") {
		t.Error("Expected quarantine lifted after a journaled clear")
	}
	attempt, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if attempt == nil {
		t.Error("Expected remediation to resume after the clear")
	}
}

func TestSyncQuarantine_SkipsClearsAlreadySeen(t *testing.T) {
	runner := &scriptedRunner{result: hostexec.Result{ExitCode: 1}}
	cfg := Config{MaxFailures: 1, Window: time.Hour}
	e := NewEngine(cfg, runner, &fakeAlerter{})
	ctx := context.Background()

	current := time.Now()
	e.now = func() time.Time { return current }

	journal := &fakeJournal{}
	if err := e.RestoreFromJournal(journal); err != nil {
		t.Fatalf("RestoreFromJournal failed: %v", err)
	}

	journal.recordClear("svc-a", current.Add(time.Minute))
	current = current.Add(2 * time.Minute)
	e.SyncQuarantine()

	// The target quarantines again after the clear was consumed; an old
	// clear event must not lift the new quarantine.
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	_, _ = e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	if !e.IsQuarantined("svc-a") {
		t.Fatal("Expected quarantine")
	}

	current = current.Add(time.Minute)
	e.SyncQuarantine()
	if !e.IsQuarantined("svc-a") {
		t.Error("A consumed clear event must not lift a later quarantine")
	}
}

func TestSyncQuarantine_WithoutJournalIsNoOp(t *testing.T) {
	e := NewEngine(DefaultConfig(), &scriptedRunner{}, &fakeAlerter{})
	// Must not panic or block without an attached journal.
	e.SyncQuarantine()
}

func TestAttemptNumbersIncreasePerTarget(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewEngine(DefaultConfig(), runner, &fakeAlerter{})
	ctx := context.Background()

	first, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))
	second, _ := e.Remediate(ctx, svcTarget(), downResult("svc-a"))

	if first.AttemptNumber != 1 || second.AttemptNumber != 2 {
		t.Errorf("Expected attempt numbers 1,2, got %d,%d", first.AttemptNumber, second.AttemptNumber)
	}

	history := e.RecentAttempts()
	if len(history) != 2 {
		t.Errorf("Expected 2 attempts in history, got %d", len(history))
	}
}
