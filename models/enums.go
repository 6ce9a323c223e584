package models

// Status enums are typed strings with explicit transition tables. Every
// mutation goes through CanTransition so an illegal status combination can
// never be persisted.

type CountType string

const (
	CountTypeCycle CountType = "Cycle"
	CountTypeFull  CountType = "Full"
	CountTypeSpot  CountType = "Spot"
)

type CountStatus string

const (
	CountStatusDraft      CountStatus = "Draft"
	CountStatusInProgress CountStatus = "InProgress"
	CountStatusCompleted  CountStatus = "Completed"
	CountStatusCancelled  CountStatus = "Cancelled"
)

var countTransitions = map[CountStatus][]CountStatus{
	CountStatusDraft:      {CountStatusInProgress, CountStatusCancelled},
	CountStatusInProgress: {CountStatusCompleted, CountStatusCancelled},
	CountStatusCompleted:  {},
	CountStatusCancelled:  {},
}

func (s CountStatus) CanTransition(to CountStatus) bool {
	for _, next := range countTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CountStatus) IsTerminal() bool {
	return len(countTransitions[s]) == 0
}

type VarianceSeverity string

const (
	VarianceSeverityLow      VarianceSeverity = "Low"
	VarianceSeverityMedium   VarianceSeverity = "Medium"
	VarianceSeverityHigh     VarianceSeverity = "High"
	VarianceSeverityCritical VarianceSeverity = "Critical"
)

var severityRank = map[VarianceSeverity]int{
	VarianceSeverityLow:      1,
	VarianceSeverityMedium:   2,
	VarianceSeverityHigh:     3,
	VarianceSeverityCritical: 4,
}

func (s VarianceSeverity) Rank() int {
	return severityRank[s]
}

// RequiresApproval reports whether resolving a variance of this severity
// needs a recorded Approved decision first.
func (s VarianceSeverity) RequiresApproval() bool {
	return s == VarianceSeverityHigh || s == VarianceSeverityCritical
}

func MaxSeverity(a, b VarianceSeverity) VarianceSeverity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type InvestigationStatus string

const (
	InvestigationStatusPending          InvestigationStatus = "Pending"
	InvestigationStatusInProgress       InvestigationStatus = "InProgress"
	InvestigationStatusRequiresApproval InvestigationStatus = "RequiresApproval"
	InvestigationStatusResolved         InvestigationStatus = "Resolved"
	InvestigationStatusEscalated        InvestigationStatus = "Escalated"
)

// Escalated is terminal: there is no automated reopen path, an operator has
// to intervene out of band.
var investigationTransitions = map[InvestigationStatus][]InvestigationStatus{
	InvestigationStatusPending:          {InvestigationStatusInProgress, InvestigationStatusEscalated},
	InvestigationStatusInProgress:       {InvestigationStatusRequiresApproval, InvestigationStatusResolved, InvestigationStatusEscalated},
	InvestigationStatusRequiresApproval: {InvestigationStatusInProgress},
	InvestigationStatusResolved:         {},
	InvestigationStatusEscalated:        {},
}

func (s InvestigationStatus) CanTransition(to InvestigationStatus) bool {
	for _, next := range investigationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s InvestigationStatus) IsTerminal() bool {
	return len(investigationTransitions[s]) == 0
}

type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "Approved"
	ApprovalDecisionRejected ApprovalDecision = "Rejected"
)

type ReconciliationStatus string

const (
	ReconciliationStatusPending    ReconciliationStatus = "Pending"
	ReconciliationStatusInProgress ReconciliationStatus = "InProgress"
	ReconciliationStatusSynced     ReconciliationStatus = "Synced"
	ReconciliationStatusFailed     ReconciliationStatus = "Failed"
	ReconciliationStatusRetrying   ReconciliationStatus = "Retrying"
)

// Failed -> Pending is the manual reset path only; the sweep never takes it.
var reconciliationTransitions = map[ReconciliationStatus][]ReconciliationStatus{
	ReconciliationStatusPending:    {ReconciliationStatusInProgress},
	ReconciliationStatusInProgress: {ReconciliationStatusSynced, ReconciliationStatusRetrying, ReconciliationStatusFailed},
	ReconciliationStatusRetrying:   {ReconciliationStatusInProgress},
	ReconciliationStatusSynced:     {},
	ReconciliationStatusFailed:     {ReconciliationStatusPending},
}

func (s ReconciliationStatus) CanTransition(to ReconciliationStatus) bool {
	for _, next := range reconciliationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
