package models

import "testing"

func TestCountStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to CountStatus }{
		{CountStatusDraft, CountStatusInProgress},
		{CountStatusDraft, CountStatusCancelled},
		{CountStatusInProgress, CountStatusCompleted},
		{CountStatusInProgress, CountStatusCancelled},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Fatalf("%s -> %s must be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to CountStatus }{
		{CountStatusDraft, CountStatusCompleted},
		{CountStatusCompleted, CountStatusInProgress},
		{CountStatusCompleted, CountStatusCancelled},
		{CountStatusCancelled, CountStatusDraft},
		{CountStatusCancelled, CountStatusInProgress},
	}
	for _, tr := range forbidden {
		if tr.from.CanTransition(tr.to) {
			t.Fatalf("%s -> %s must be rejected", tr.from, tr.to)
		}
	}

	if !CountStatusCompleted.IsTerminal() || !CountStatusCancelled.IsTerminal() {
		t.Fatal("Completed and Cancelled are terminal")
	}
	if CountStatusDraft.IsTerminal() || CountStatusInProgress.IsTerminal() {
		t.Fatal("Draft and InProgress are not terminal")
	}
}

func TestInvestigationStatusTransitions(t *testing.T) {
	if !InvestigationStatusPending.CanTransition(InvestigationStatusInProgress) {
		t.Fatal("Pending -> InProgress must be allowed")
	}
	if !InvestigationStatusInProgress.CanTransition(InvestigationStatusRequiresApproval) {
		t.Fatal("InProgress -> RequiresApproval must be allowed")
	}
	if !InvestigationStatusRequiresApproval.CanTransition(InvestigationStatusInProgress) {
		t.Fatal("RequiresApproval -> InProgress (decision recorded) must be allowed")
	}
	if InvestigationStatusRequiresApproval.CanTransition(InvestigationStatusResolved) {
		t.Fatal("RequiresApproval cannot resolve directly; the decision lands first")
	}
	if InvestigationStatusPending.CanTransition(InvestigationStatusResolved) {
		t.Fatal("Pending cannot resolve without investigation")
	}
	if !InvestigationStatusResolved.IsTerminal() {
		t.Fatal("Resolved is terminal")
	}
	if !InvestigationStatusEscalated.IsTerminal() {
		t.Fatal("Escalated is terminal; no automated reopen")
	}
}

func TestSeverityRankAndApprovalGate(t *testing.T) {
	order := []VarianceSeverity{
		VarianceSeverityLow, VarianceSeverityMedium, VarianceSeverityHigh, VarianceSeverityCritical,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("rank of %s must exceed %s", order[i], order[i-1])
		}
	}

	if VarianceSeverityLow.RequiresApproval() || VarianceSeverityMedium.RequiresApproval() {
		t.Fatal("Low and Medium resolve without approval")
	}
	if !VarianceSeverityHigh.RequiresApproval() || !VarianceSeverityCritical.RequiresApproval() {
		t.Fatal("High and Critical require an approval decision")
	}

	if MaxSeverity(VarianceSeverityMedium, VarianceSeverityHigh) != VarianceSeverityHigh {
		t.Fatal("MaxSeverity must keep the higher classification")
	}
	if MaxSeverity(VarianceSeverityCritical, VarianceSeverityLow) != VarianceSeverityCritical {
		t.Fatal("MaxSeverity must be order independent")
	}
}
