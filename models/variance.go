package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Variance is materialized at count completion for every entry with a
// nonzero variance. It is mutated only through the investigation workflow
// below and never deleted.
type Variance struct {
	ID                 int                  `gorm:"primary_key" json:"id"`
	BusinessId         string               `gorm:"index;size:64;not null" json:"business_id"`
	StockCountId       int                  `gorm:"uniqueIndex:uniq_variance_entry,priority:1;not null" json:"stock_count_id"`
	EntryId            int                  `gorm:"uniqueIndex:uniq_variance_entry,priority:2;not null" json:"entry_id"`
	LocationId         int                  `gorm:"not null" json:"location_id"`
	ProductId          int                  `gorm:"not null" json:"product_id"`
	VarianceQty        decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"variance_qty"`
	VariancePct        decimal.Decimal      `gorm:"type:decimal(10,4);default:0" json:"variance_pct"`
	UnitPrice          decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	VarianceValue      decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"variance_value"`
	Severity           VarianceSeverity     `gorm:"type:enum('Low','Medium','High','Critical');not null;index" json:"severity"`
	CurrentStatus      InvestigationStatus  `gorm:"type:enum('Pending','InProgress','RequiresApproval','Resolved','Escalated');not null;index" json:"current_status"`
	ReasonCode         string               `gorm:"size:64" json:"reason_code"`
	InvestigationNotes string               `gorm:"type:text" json:"investigation_notes"`
	ResolutionNotes    string               `gorm:"type:text" json:"resolution_notes"`
	ApprovedBy         *int                 `json:"approved_by"`
	ApprovalDecision   *ApprovalDecision    `gorm:"type:enum('Approved','Rejected')" json:"approval_decision"`
	ApprovalComments   string               `gorm:"type:text" json:"approval_comments"`
	AuditLog           []VarianceAuditEntry `gorm:"foreignKey:VarianceId" json:"audit_log"`
	CreatedAt          time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// VarianceAuditEntry is append-only: one row per workflow transition, never
// truncated.
type VarianceAuditEntry struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	VarianceId int                 `gorm:"index;not null" json:"variance_id"`
	Action     string              `gorm:"size:32;not null" json:"action"`
	FromStatus InvestigationStatus `gorm:"size:32;not null" json:"from_status"`
	ToStatus   InvestigationStatus `gorm:"size:32;not null" json:"to_status"`
	ActorId    int                 `json:"actor_id"`
	ActorName  string              `gorm:"size:100" json:"actor_name"`
	Notes      string              `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// ValidateResolve is the policy gate for resolving a variance. High and
// Critical severities cannot reach Resolved without a recorded Approved
// decision, and an investigation without a reason and notes is not an
// investigation.
func (v *Variance) ValidateResolve() error {
	if v.ReasonCode == "" || v.InvestigationNotes == "" {
		return utils.NewPolicyError(utils.CodeIncompleteInvestigation,
			"variance %d needs a reason code and investigation notes before resolution", v.ID)
	}
	if v.Severity.RequiresApproval() {
		if v.ApprovalDecision == nil || *v.ApprovalDecision != ApprovalDecisionApproved {
			return utils.NewPolicyError(utils.CodeApprovalRequired,
				"variance %d has severity %s and requires an approved decision before resolution", v.ID, v.Severity)
		}
	}
	return nil
}

func transitionVariance(ctx context.Context, varianceId int, action string, to InvestigationStatus,
	notes string, mutate func(tx *gorm.DB, v *Variance) error) (*Variance, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	var variance Variance
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "variance", businessId, varianceId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "variance", businessId, varianceId)

		if err := tx.Where("id = ? AND business_id = ?", varianceId, businessId).Take(&variance).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		from := variance.CurrentStatus
		if !from.CanTransition(to) {
			return utils.NewStateError(utils.CodeInvalidState,
				"variance %d cannot go from %s to %s", variance.ID, from, to)
		}
		if mutate != nil {
			if err := mutate(tx, &variance); err != nil {
				return err
			}
		}
		variance.CurrentStatus = to
		if err := tx.Save(&variance).Error; err != nil {
			return err
		}

		audit := VarianceAuditEntry{
			VarianceId: variance.ID,
			Action:     action,
			FromStatus: from,
			ToStatus:   to,
			ActorId:    userId,
			ActorName:  userName,
			Notes:      notes,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}

		eventType := map[string]string{
			"Investigate":     EventVarianceInvestigated,
			"RequestApproval": EventVarianceInvestigated,
			"Approve":         EventVarianceApproved,
			"Resolve":         EventVarianceResolved,
			"Escalate":        EventVarianceEscalated,
		}[action]
		if eventType == "" {
			eventType = EventVarianceInvestigated
		}
		return PublishCountEvent(ctx, tx, businessId, eventType, variance.ID, map[string]any{
			"variance_id": variance.ID,
			"count_id":    variance.StockCountId,
			"severity":    variance.Severity,
			"from_status": from,
			"to_status":   to,
		})
	})
	if err != nil {
		return nil, err
	}
	return &variance, nil
}

// InvestigateVariance moves Pending -> InProgress and records the reason.
func InvestigateVariance(ctx context.Context, varianceId int, reasonCode string, notes string) (*Variance, error) {
	if reasonCode == "" {
		return nil, utils.NewValidationError(utils.CodeIncompleteInvestigation, "reason code is required")
	}
	if notes == "" {
		return nil, utils.NewValidationError(utils.CodeIncompleteInvestigation, "investigation notes are required")
	}
	return transitionVariance(ctx, varianceId, "Investigate", InvestigationStatusInProgress, notes,
		func(tx *gorm.DB, v *Variance) error {
			v.ReasonCode = reasonCode
			v.InvestigationNotes = notes
			return nil
		})
}

// RequestVarianceApproval moves InProgress -> RequiresApproval. Only
// severities that actually gate on approval may take this edge.
func RequestVarianceApproval(ctx context.Context, varianceId int) (*Variance, error) {
	return transitionVariance(ctx, varianceId, "RequestApproval", InvestigationStatusRequiresApproval, "",
		func(tx *gorm.DB, v *Variance) error {
			if !v.Severity.RequiresApproval() {
				return utils.NewStateError(utils.CodeInvalidState,
					"variance %d severity %s does not require approval", v.ID, v.Severity)
			}
			return nil
		})
}

// ApproveVariance records the decision and returns the variance to
// InProgress. A Rejected decision also returns it to InProgress, but leaves
// the resolution gate closed.
func ApproveVariance(ctx context.Context, varianceId int, decision ApprovalDecision, comments string) (*Variance, error) {
	if decision != ApprovalDecisionApproved && decision != ApprovalDecisionRejected {
		return nil, utils.NewValidationError(utils.CodeInvalidState, "decision must be Approved or Rejected")
	}
	return transitionVariance(ctx, varianceId, "Approve", InvestigationStatusInProgress, comments,
		func(tx *gorm.DB, v *Variance) error {
			userId, _ := utils.GetUserIdFromContext(ctx)
			v.ApprovedBy = &userId
			v.ApprovalDecision = &decision
			v.ApprovalComments = comments
			return nil
		})
}

// ResolveVariance moves InProgress -> Resolved if the policy gate passes.
func ResolveVariance(ctx context.Context, varianceId int, notes string) (*Variance, error) {
	return transitionVariance(ctx, varianceId, "Resolve", InvestigationStatusResolved, notes,
		func(tx *gorm.DB, v *Variance) error {
			if err := v.ValidateResolve(); err != nil {
				return err
			}
			v.ResolutionNotes = notes
			return nil
		})
}

// EscalateVariance moves Pending/InProgress -> Escalated (terminal).
func EscalateVariance(ctx context.Context, varianceId int, notes string) (*Variance, error) {
	return transitionVariance(ctx, varianceId, "Escalate", InvestigationStatusEscalated, notes, nil)
}

func GetVariance(ctx context.Context, varianceId int) (*Variance, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	var variance Variance
	err := config.GetDB().WithContext(ctx).
		Preload("AuditLog").
		Where("id = ? AND business_id = ?", varianceId, businessId).
		Take(&variance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &variance, nil
}

// ListVariancesForCount returns all variances of a count, audit included.
func ListVariancesForCount(ctx context.Context, countId int) ([]Variance, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	var variances []Variance
	err := config.GetDB().WithContext(ctx).
		Preload("AuditLog").
		Where("stock_count_id = ? AND business_id = ?", countId, businessId).
		Order("id ASC").
		Find(&variances).Error
	return variances, err
}
