package main

import (
	"testing"

	"github.com/hostmedic/hostmedic/internal/maintenance"
	"github.com/hostmedic/hostmedic/internal/types"
)

func result(sev types.Severity) maintenance.CategoryResult {
	return maintenance.CategoryResult{
		Evaluated: true,
		Issue:     types.MaintenanceIssue{Severity: sev},
	}
}

func TestMaintenanceExitCode(t *testing.T) {
	tests := []struct {
		name    string
		results []maintenance.CategoryResult
		want    int
	}{
		{"all healthy", []maintenance.CategoryResult{result(types.SeverityOk)}, 0},
		{"warning", []maintenance.CategoryResult{result(types.SeverityOk), result(types.SeverityWarning)}, 1},
		{"critical", []maintenance.CategoryResult{result(types.SeverityWarning), result(types.SeverityCritical)}, 2},
		{"unevaluated counts as issue", []maintenance.CategoryResult{{Evaluated: false, Err: "boom"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &maintenance.Report{Results: tt.results}
			if got := maintenanceExitCode(report); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSeverityExitCode(t *testing.T) {
	if got := severityExitCode(types.SeverityOk); got != 0 {
		t.Errorf("Expected 0 for ok, got %d", got)
	}
	if got := severityExitCode(types.SeverityWarning); got != 1 {
		t.Errorf("Expected 1 for warning, got %d", got)
	}
	if got := severityExitCode(types.SeverityCritical); got != 2 {
		t.Errorf("Expected 2 for critical, got %d", got)
	}
}
