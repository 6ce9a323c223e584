package workflow

import (
	"testing"

	"github.com/mmdatafocus/stockcount_backend/models"
)

// DB-free checks of the retry-cycle semantics: the attempt counter never
// passes the ceiling, and the ceiling is what makes a failure permanent.

func TestFailureOutcome_BelowCeilingRetries(t *testing.T) {
	for attempts := 1; attempts < 5; attempts++ {
		status, permanent := FailureOutcome(attempts, 5)
		if status != models.ReconciliationStatusRetrying || permanent {
			t.Fatalf("attempts=%d: got (%s, %v), want (Retrying, false)", attempts, status, permanent)
		}
	}
}

func TestFailureOutcome_CeilingIsPermanent(t *testing.T) {
	status, permanent := FailureOutcome(5, 5)
	if status != models.ReconciliationStatusFailed || !permanent {
		t.Fatalf("got (%s, %v), want (Failed, true)", status, permanent)
	}
	// Defensive: past the ceiling behaves the same.
	status, permanent = FailureOutcome(7, 5)
	if status != models.ReconciliationStatusFailed || !permanent {
		t.Fatalf("got (%s, %v), want (Failed, true)", status, permanent)
	}
}

func TestReconciliation_FiveConsecutiveFailures(t *testing.T) {
	// Walk a record through five failing attempts the way recordFailure does.
	record := models.ReconciliationRecord{
		CurrentStatus: models.ReconciliationStatusPending,
		MaxAttempts:   5,
	}
	for i := 0; i < 5; i++ {
		if record.Attempts >= record.MaxAttempts {
			t.Fatalf("attempt started past the ceiling: %d", record.Attempts)
		}
		if !record.CurrentStatus.CanTransition(models.ReconciliationStatusInProgress) {
			t.Fatalf("attempt %d: cannot claim from %s", i+1, record.CurrentStatus)
		}
		record.CurrentStatus = models.ReconciliationStatusInProgress
		record.Attempts++
		status, _ := FailureOutcome(record.Attempts, record.MaxAttempts)
		if !record.CurrentStatus.CanTransition(status) {
			t.Fatalf("attempt %d: illegal transition InProgress -> %s", record.Attempts, status)
		}
		record.CurrentStatus = status
	}

	if record.Attempts != 5 {
		t.Fatalf("attempts: got %d want 5", record.Attempts)
	}
	if record.CurrentStatus != models.ReconciliationStatusFailed {
		t.Fatalf("status after 5 failures: got %s want Failed", record.CurrentStatus)
	}
}

func TestAbandonOutcome_ConsumesAnAttempt(t *testing.T) {
	// A worker crash after the claim may have reached the external ledger,
	// so the abandoned attempt counts like an observed failure.
	attemptNumber, status := abandonOutcome(2, 5)
	if attemptNumber != 3 {
		t.Fatalf("attempt number: got %d want 3", attemptNumber)
	}
	if status != models.ReconciliationStatusRetrying {
		t.Fatalf("status: got %s want Retrying", status)
	}
}

func TestAbandonOutcome_LastAttemptParksTheRecord(t *testing.T) {
	attemptNumber, status := abandonOutcome(4, 5)
	if attemptNumber != 5 {
		t.Fatalf("attempt number: got %d want 5", attemptNumber)
	}
	if status != models.ReconciliationStatusFailed {
		t.Fatalf("status: got %s want Failed", status)
	}
}

func TestReconciliationTransitions_ManualResetOnly(t *testing.T) {
	if !models.ReconciliationStatusFailed.CanTransition(models.ReconciliationStatusPending) {
		t.Fatal("Failed -> Pending (manual reset) must be allowed")
	}
	if models.ReconciliationStatusSynced.CanTransition(models.ReconciliationStatusPending) {
		t.Fatal("Synced is terminal; no reset path")
	}
	if models.ReconciliationStatusRetrying.CanTransition(models.ReconciliationStatusPending) {
		t.Fatal("Retrying re-enters via InProgress, never via Pending")
	}
	if models.ReconciliationStatusFailed.CanTransition(models.ReconciliationStatusInProgress) {
		t.Fatal("Failed records must not be claimed without a manual reset")
	}
}
