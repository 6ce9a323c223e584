package workflow

import (
	"testing"

	"github.com/mmdatafocus/stockcount_backend/models"
)

// The completion gate decision is pure so the blocking rule is testable
// without a DB. Materialization commits before the gate runs, so a blocked
// completion still leaves the variance rows behind for investigation.

func gateVariance(severity models.VarianceSeverity, status models.InvestigationStatus) models.Variance {
	return models.Variance{Severity: severity, CurrentStatus: status}
}

func TestCompletionGate_UnresolvedCriticalBlocks(t *testing.T) {
	variances := []models.Variance{
		gateVariance(models.VarianceSeverityCritical, models.InvestigationStatusPending),
		gateVariance(models.VarianceSeverityMedium, models.InvestigationStatusPending),
	}
	if got := UnresolvedCriticalCount(variances); got != 1 {
		t.Fatalf("blocked count: got %d want 1", got)
	}
}

func TestCompletionGate_ResolvedCriticalClears(t *testing.T) {
	variances := []models.Variance{
		gateVariance(models.VarianceSeverityCritical, models.InvestigationStatusResolved),
		gateVariance(models.VarianceSeverityHigh, models.InvestigationStatusPending),
		gateVariance(models.VarianceSeverityLow, models.InvestigationStatusPending),
	}
	if got := UnresolvedCriticalCount(variances); got != 0 {
		t.Fatalf("blocked count: got %d want 0, only Critical gates completion", got)
	}
}

func TestCompletionGate_EveryNonResolvedCriticalStateBlocks(t *testing.T) {
	// Resolved is the only state that clears the gate; an investigation in
	// flight, or one waiting on approval, still blocks.
	blocking := []models.InvestigationStatus{
		models.InvestigationStatusPending,
		models.InvestigationStatusInProgress,
		models.InvestigationStatusRequiresApproval,
		models.InvestigationStatusEscalated,
	}
	for _, status := range blocking {
		variances := []models.Variance{gateVariance(models.VarianceSeverityCritical, status)}
		if got := UnresolvedCriticalCount(variances); got != 1 {
			t.Fatalf("status %s: got %d want 1", status, got)
		}
	}
}

func TestCompletionGate_CountsEveryBlockingCritical(t *testing.T) {
	variances := []models.Variance{
		gateVariance(models.VarianceSeverityCritical, models.InvestigationStatusPending),
		gateVariance(models.VarianceSeverityCritical, models.InvestigationStatusEscalated),
		gateVariance(models.VarianceSeverityCritical, models.InvestigationStatusResolved),
	}
	if got := UnresolvedCriticalCount(variances); got != 2 {
		t.Fatalf("blocked count: got %d want 2", got)
	}
}

func TestCompletionGate_NoVariancesAllows(t *testing.T) {
	if got := UnresolvedCriticalCount(nil); got != 0 {
		t.Fatalf("blocked count on empty set: got %d want 0", got)
	}
}
