// Package watchdog runs the short-interval monitoring loop: probe the
// fast-tier targets, hand failures to the remediation engine, and raise
// alerts for persistent probe errors.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hostmedic/hostmedic/internal/types"
)

// Prober checks the liveness of one target.
type Prober interface {
	Check(ctx context.Context, target types.Target) types.HealthResult
}

// Remediator applies the remediation policy to one probe result.
type Remediator interface {
	Remediate(ctx context.Context, target types.Target, result types.HealthResult) (*types.RemediationAttempt, error)
	IsQuarantined(targetID string) bool
	// SyncQuarantine applies quarantine clears recorded out of process.
	SyncQuarantine()
}

// Alerter delivers alerts.
type Alerter interface {
	Emit(ctx context.Context, a types.Alert) error
}

// Config holds the fast-loop settings.
type Config struct {
	// Interval between ticks. Default: 60 seconds.
	Interval time.Duration

	// ProbeParallelism bounds concurrent probes within a tick. Default: 4.
	ProbeParallelism int

	// UnknownStreakThreshold is how many consecutive Unknown results
	// trigger a low-severity alert. Default: 3.
	UnknownStreakThreshold int

	// TickTimeout bounds one full tick. Default: 2x Interval.
	TickTimeout time.Duration
}

// DefaultConfig returns the default fast-loop settings.
func DefaultConfig() Config {
	return Config{
		Interval:               60 * time.Second,
		ProbeParallelism:       4,
		UnknownStreakThreshold: 3,
	}
}

// Watchdog is the fast monitoring loop. Probing across distinct targets
// runs in parallel; remediation per target stays single-threaded behind
// the engine's per-target lock.
type Watchdog struct {
	mu sync.Mutex

	registry *types.Registry
	prober   Prober
	engine   Remediator
	alerts   Alerter
	cfg      Config

	// unknownStreaks counts consecutive Unknown probe results per target.
	streakMu       sync.Mutex
	unknownStreaks map[string]int

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a watchdog over the fast-tier targets of the registry.
func New(registry *types.Registry, prober Prober, engine Remediator, alerts Alerter, cfg Config) (*Watchdog, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert sink is required")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.ProbeParallelism <= 0 {
		cfg.ProbeParallelism = 4
	}
	if cfg.UnknownStreakThreshold <= 0 {
		cfg.UnknownStreakThreshold = 3
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 2 * cfg.Interval
	}

	return &Watchdog{
		registry:       registry,
		prober:         prober,
		engine:         engine,
		alerts:         alerts,
		cfg:            cfg,
		unknownStreaks: make(map[string]int),
	}, nil
}

// Start begins the monitoring loop.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watchdog already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop()

	fmt.Printf("Watchdog: started (interval=%v, targets=%d)\n", w.cfg.Interval, len(w.registry.Tier(types.TierFast)))
	return nil
}

// Stop gracefully stops the watchdog. An in-flight remediation finishes
// before the loop exits; nothing is killed mid-action.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	fmt.Println("Watchdog: stopping...")
	w.cancel()
	w.running = false
	w.wg.Wait()
	fmt.Println("Watchdog: stopped")
}

// loop ticks on a fixed interval and observes shutdown between ticks.
func (w *Watchdog) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-timer.C:
			tickCtx, tickCancel := context.WithTimeout(w.ctx, w.cfg.TickTimeout)
			w.Tick(tickCtx)
			tickCancel()

			timer.Reset(w.cfg.Interval)
		}
	}
}

// Tick runs one probe-and-remediate pass over the fast-tier targets.
// Quarantined targets are skipped. Exposed for the on-demand auto-heal
// command, which runs a single pass outside the loop.
func (w *Watchdog) Tick(ctx context.Context) {
	// An operator may have cleared a quarantine since the last tick.
	w.engine.SyncQuarantine()

	targets := w.registry.Tier(types.TierFast)

	sem := semaphore.NewWeighted(int64(w.cfg.ProbeParallelism))
	var wg sync.WaitGroup

	for _, target := range targets {
		if w.engine.IsQuarantined(target.ID) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown or tick timeout; remaining targets wait for the
			// next tick.
			break
		}

		wg.Add(1)
		go func(t types.Target) {
			defer wg.Done()
			defer sem.Release(1)
			w.checkTarget(ctx, t)
		}(target)
	}

	wg.Wait()
}

// checkTarget probes one target and hands the result to the engine.
// Remediation runs synchronously so the per-target outcome is settled
// before the goroutine finishes.
func (w *Watchdog) checkTarget(ctx context.Context, target types.Target) {
	result := w.prober.Check(ctx, target)

	w.observeStreak(ctx, target, result)

	if result.Status == types.StatusHealthy {
		return
	}

	attempt, err := w.engine.Remediate(ctx, target, result)
	if err != nil {
		fmt.Printf("Watchdog: remediation error for %s: %v\n", target.ID, err)
		return
	}
	if attempt != nil {
		fmt.Printf("Watchdog: %s was %s, %s -> %s\n", target.ID, result.Status, attempt.ActionTaken, attempt.Outcome)
	}
}

// observeStreak tracks consecutive Unknown results and raises one
// low-severity alert when a streak reaches the threshold. The alert fires
// once per streak, not once per tick.
func (w *Watchdog) observeStreak(ctx context.Context, target types.Target, result types.HealthResult) {
	w.streakMu.Lock()
	if result.Status != types.StatusUnknown {
		delete(w.unknownStreaks, target.ID)
		w.streakMu.Unlock()
		return
	}

	w.unknownStreaks[target.ID]++
	streak := w.unknownStreaks[target.ID]
	w.streakMu.Unlock()

	if streak != w.cfg.UnknownStreakThreshold {
		return
	}

	a := types.Alert{
		ID:        uuid.NewString(),
		Severity:  types.SeverityWarning,
		Event:     types.EventProbeUnknownStreak,
		TargetID:  target.ID,
		Details:   fmt.Sprintf("target %s: %d consecutive probe errors (%s)", target.ID, streak, result.Detail),
		Timestamp: result.Timestamp,
	}
	if err := w.alerts.Emit(ctx, a); err != nil {
		fmt.Printf("Watchdog: failed to emit streak alert for %s: %v\n", target.ID, err)
	}
}
