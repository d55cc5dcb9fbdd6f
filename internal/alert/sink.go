// Package alert owns delivery of human-facing notifications and the
// durable local record of alerts and remediation attempts.
package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hostmedic/hostmedic/internal/hostexec"
	"github.com/hostmedic/hostmedic/internal/types"
)

// Record is one line in the local log. Kind distinguishes alerts from
// remediation attempts so external tooling can filter without a schema.
type Record struct {
	Kind      string                    `json:"kind"` // "alert" or "attempt"
	Timestamp time.Time                 `json:"timestamp"`
	Alert     *types.Alert              `json:"alert,omitempty"`
	Attempt   *types.RemediationAttempt `json:"attempt,omitempty"`
}

// Sink writes alerts to the append-only local log and forwards them to an
// optional external notifier. The local write is authoritative: it happens
// first and a failure there is escalated. External delivery is best-effort
// and never rolls back or fails the local write.
type Sink struct {
	mu      sync.Mutex
	path    string
	notify  []string
	runner  hostexec.Runner
	limiter *rate.Limiter
	stderr  *os.File
}

// NewSink creates a sink logging to path. notifyCommand may be empty to
// disable external delivery; perMinute rate-limits it.
func NewSink(path string, notifyCommand []string, perMinute int, runner hostexec.Runner) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("alert log path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create alert log directory: %w", err)
		}
	}
	if perMinute <= 0 {
		perMinute = 6
	}

	return &Sink{
		path:    path,
		notify:  notifyCommand,
		runner:  runner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		stderr:  os.Stderr,
	}, nil
}

// Emit delivers one alert: local log first, then best-effort external
// notification. A local write failure is reported on stderr and returned;
// a delivery failure is logged and swallowed.
func (s *Sink) Emit(ctx context.Context, a types.Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	rec := Record{Kind: "alert", Timestamp: a.Timestamp, Alert: &a}
	if err := s.append(rec); err != nil {
		// The local log must not fail silently.
		fmt.Fprintf(s.stderr, "alert: local log write failed: %v (alert: %s %s)\n", err, a.Severity, a.Event)
		return fmt.Errorf("alert log write failed: %w", err)
	}

	s.deliver(ctx, a)
	return nil
}

// RecordAttempt appends one remediation attempt to the local log.
// Attempts are records, not notifications: no external delivery.
func (s *Sink) RecordAttempt(attempt types.RemediationAttempt) error {
	rec := Record{Kind: "attempt", Timestamp: attempt.Timestamp, Attempt: &attempt}
	if err := s.append(rec); err != nil {
		fmt.Fprintf(s.stderr, "alert: attempt log write failed: %v\n", err)
		return fmt.Errorf("attempt log write failed: %w", err)
	}
	return nil
}

// append writes one record as a single line. One write call per record
// keeps concurrent appends from interleaving within a record.
func (s *Sink) append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return nil
}

// deliver forwards the alert to the external notifier, if configured.
func (s *Sink) deliver(ctx context.Context, a types.Alert) {
	if len(s.notify) == 0 {
		return
	}
	if !s.limiter.Allow() {
		fmt.Fprintf(s.stderr, "alert: delivery rate limit hit, skipping external notify for %s\n", a.Event)
		return
	}

	// Copy: appending to the configured slice would share its backing
	// array across concurrent deliveries.
	args := make([]string, 0, len(s.notify)+2)
	args = append(args, s.notify[1:]...)
	args = append(args, string(a.Severity), a.Event, a.Details)
	res, err := s.runner.Run(ctx, s.notify[0], args...)
	if err != nil {
		fmt.Fprintf(s.stderr, "alert: external delivery failed: %v\n", err)
		return
	}
	if res.ExitCode != 0 {
		fmt.Fprintf(s.stderr, "alert: notifier exited %d: %s\n", res.ExitCode, res.Stderr)
	}
}

// Tail returns the last n records from the local log. Lines that fail to
// parse are skipped so a partial write never hides the rest of the history.
func (s *Sink) Tail(n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open alert log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alert log: %w", err)
	}

	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// QuarantineState replays the log and returns the targets that entered
// quarantine and were never cleared, with entry times.
func (s *Sink) QuarantineState() (map[string]time.Time, error) {
	records, err := s.Tail(0)
	if err != nil {
		return nil, err
	}

	state := make(map[string]time.Time)
	for _, rec := range records {
		if rec.Alert == nil || rec.Alert.TargetID == "" {
			continue
		}
		switch rec.Alert.Event {
		case types.EventTargetQuarantined:
			state[rec.Alert.TargetID] = rec.Timestamp
		case types.EventQuarantineCleared:
			delete(state, rec.Alert.TargetID)
		}
	}
	return state, nil
}

// QuarantineClearsSince returns the targets whose quarantine was cleared
// after t, in log order.
func (s *Sink) QuarantineClearsSince(t time.Time) ([]string, error) {
	records, err := s.Tail(0)
	if err != nil {
		return nil, err
	}

	var cleared []string
	for _, rec := range records {
		if rec.Alert == nil || rec.Alert.TargetID == "" {
			continue
		}
		if rec.Alert.Event == types.EventQuarantineCleared && rec.Timestamp.After(t) {
			cleared = append(cleared, rec.Alert.TargetID)
		}
	}
	return cleared, nil
}
