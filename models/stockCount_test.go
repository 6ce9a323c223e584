package models

import (
	"testing"

	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
)

func TestVarianceQuantity(t *testing.T) {
	got := VarianceQuantity(decimal.NewFromInt(100), decimal.NewFromInt(95))
	if !got.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("got %s want -5", got)
	}
	got = VarianceQuantity(decimal.NewFromInt(50), decimal.NewFromInt(55))
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("got %s want 5", got)
	}
}

func TestVariancePercent_ZeroSystemQuantity(t *testing.T) {
	// Counting stock the books say should not exist is a full variance, not a
	// division error.
	got := VariancePercent(decimal.Zero, decimal.NewFromInt(3))
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("zero system, counted 3: got %s want 100", got)
	}
	got = VariancePercent(decimal.Zero, decimal.Zero)
	if !got.IsZero() {
		t.Fatalf("zero system, counted 0: got %s want 0", got)
	}
}

func TestVariancePercent_Signed(t *testing.T) {
	got := VariancePercent(decimal.NewFromInt(100), decimal.NewFromInt(95))
	if !got.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("got %s want -5", got)
	}
	got = VariancePercent(decimal.NewFromInt(50), decimal.NewFromInt(55))
	if !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("got %s want 10", got)
	}
}

func TestValidateWorksheetLines(t *testing.T) {
	if err := ValidateWorksheetLines(nil); err == nil || utils.ErrorCode(err) != utils.CodeEmptyWorksheet {
		t.Fatalf("empty worksheet: got %v", err)
	}

	dup := []NewWorksheetLine{
		{LocationId: 1, ProductId: 2},
		{LocationId: 1, ProductId: 2},
	}
	if err := ValidateWorksheetLines(dup); err == nil || utils.ErrorCode(err) != utils.CodeDuplicateEntry {
		t.Fatalf("duplicate line: got %v", err)
	}

	invalid := []NewWorksheetLine{{LocationId: 0, ProductId: 2}}
	if err := ValidateWorksheetLines(invalid); err == nil {
		t.Fatal("invalid location must be rejected")
	}

	ok := []NewWorksheetLine{
		{LocationId: 1, ProductId: 2},
		{LocationId: 1, ProductId: 3},
		{LocationId: 2, ProductId: 2},
	}
	if err := ValidateWorksheetLines(ok); err != nil {
		t.Fatalf("valid worksheet rejected: %v", err)
	}
}

func TestValidateResolve(t *testing.T) {
	v := Variance{Severity: VarianceSeverityMedium, CurrentStatus: InvestigationStatusInProgress}
	if err := v.ValidateResolve(); err == nil || utils.ErrorCode(err) != utils.CodeIncompleteInvestigation {
		t.Fatalf("resolve without findings: got %v", err)
	}

	v.ReasonCode = "MISCOUNT"
	v.InvestigationNotes = "recounted shelf, original entry transposed digits"
	if err := v.ValidateResolve(); err != nil {
		t.Fatalf("medium with findings must resolve: %v", err)
	}

	// High severity needs a recorded Approved decision.
	v.Severity = VarianceSeverityHigh
	if err := v.ValidateResolve(); err == nil || utils.ErrorCode(err) != utils.CodeApprovalRequired {
		t.Fatalf("high without approval: got %v", err)
	}
	approved := ApprovalDecisionApproved
	v.ApprovalDecision = &approved
	if err := v.ValidateResolve(); err != nil {
		t.Fatalf("high with approval must resolve: %v", err)
	}

	rejected := ApprovalDecisionRejected
	v.ApprovalDecision = &rejected
	if err := v.ValidateResolve(); err == nil {
		t.Fatal("rejected decision must not unlock resolution")
	}
}
