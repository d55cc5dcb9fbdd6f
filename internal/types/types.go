package types

import (
	"fmt"
	"time"
)

// TargetKind identifies what kind of unit a target is.
type TargetKind string

const (
	KindService   TargetKind = "service"
	KindContainer TargetKind = "container"
)

// Tier controls which loop checks a target.
type Tier string

const (
	// TierFast targets are probed by the short-interval watchdog loop.
	TierFast Tier = "fast"
	// TierMaintenance targets are only checked during maintenance cycles
	// and emergency recovery.
	TierMaintenance Tier = "maintenance"
)

// Target is a monitored service or container. Targets are created at
// configuration load and are immutable for the lifetime of the process.
type Target struct {
	// ID uniquely identifies the target across all records and alerts.
	ID string `yaml:"id"`
	// Kind selects the probe and restart primitives (systemd vs docker).
	Kind TargetKind `yaml:"kind"`
	// Tier selects which loop owns this target.
	Tier Tier `yaml:"tier"`
	// Unit is the systemd unit name or container name to probe.
	Unit string `yaml:"unit"`
	// RestartCommand overrides the default restart action when set.
	// Default: systemctl restart <unit> / docker restart <unit>.
	RestartCommand []string `yaml:"restart_command,omitempty"`
}

// Validate checks that the target definition is complete.
func (t Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("target is missing id")
	}
	if t.Kind != KindService && t.Kind != KindContainer {
		return fmt.Errorf("target %s: invalid kind %q (must be service or container)", t.ID, t.Kind)
	}
	if t.Tier != TierFast && t.Tier != TierMaintenance {
		return fmt.Errorf("target %s: invalid tier %q (must be fast or maintenance)", t.ID, t.Tier)
	}
	if t.Unit == "" {
		return fmt.Errorf("target %s: unit is required", t.ID)
	}
	return nil
}

// HealthStatus classifies the result of a single probe.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
	// StatusUnknown means the probe itself failed (supervisor or runtime
	// unreachable). Unknown never triggers remediation.
	StatusUnknown HealthStatus = "unknown"
)

// HealthResult is the outcome of one probe against one target.
// Results are produced fresh on every probe and never mutated.
type HealthResult struct {
	TargetID  string       `json:"target_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	// Detail carries the raw supervisor/runtime state or the probe error.
	Detail string `json:"detail,omitempty"`
}

// RemediationOutcome is the result of one remediation attempt.
type RemediationOutcome string

const (
	OutcomeSuccess RemediationOutcome = "success"
	OutcomeFailure RemediationOutcome = "failure"
)

// RemediationAttempt records one restart action against one target.
type RemediationAttempt struct {
	ID            string             `json:"id"`
	TargetID      string             `json:"target_id"`
	Timestamp     time.Time          `json:"timestamp"`
	ActionTaken   string             `json:"action_taken"`
	Outcome       RemediationOutcome `json:"outcome"`
	AttemptNumber int                `json:"attempt_number"`
	// Detail carries command output on failure.
	Detail string `json:"detail,omitempty"`
}

// IssueCategory identifies one maintenance check.
type IssueCategory string

const (
	CategoryDiskSpace     IssueCategory = "disk-space"
	CategoryPermissions   IssueCategory = "permissions"
	CategoryDependencies  IssueCategory = "dependencies"
	CategoryBackups       IssueCategory = "backups"
	CategoryConfiguration IssueCategory = "configuration"
)

// Categories lists all maintenance categories in report order.
func Categories() []IssueCategory {
	return []IssueCategory{
		CategoryDiskSpace,
		CategoryPermissions,
		CategoryDependencies,
		CategoryBackups,
		CategoryConfiguration,
	}
}

// ParseCategory maps a CLI argument to a category.
func ParseCategory(s string) (IssueCategory, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (valid: disk-space, permissions, dependencies, backups, configuration)", s)
}

// Severity grades maintenance issues and alerts.
type Severity string

const (
	SeverityOk       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MaintenanceIssue is the outcome of one maintenance category check.
type MaintenanceIssue struct {
	Category    IssueCategory `json:"category"`
	Severity    Severity      `json:"severity"`
	AutoFixable bool          `json:"auto_fixable"`
	Detail      string        `json:"detail,omitempty"`
}

// Alert is a human-facing notification. Producers construct the value;
// the alert sink owns delivery.
type Alert struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Event    string   `json:"event"`
	// TargetID is set when the alert concerns one monitored target.
	TargetID  string    `json:"target_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Well-known alert events.
const (
	EventRemediationFailed  = "remediation_failed"
	EventTargetQuarantined  = "target_quarantined"
	EventQuarantineCleared  = "quarantine_cleared"
	EventProbeUnknownStreak = "probe_unknown_streak"
	EventMaintenanceIssue   = "maintenance_issue"
	EventMaintenanceFixed   = "maintenance_fixed"
	EventRecoveryCompleted  = "recovery_completed"
)
