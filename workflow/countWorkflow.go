package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"gorm.io/gorm"
)

// UnresolvedCriticalCount is the completion gate decision: every Critical
// variance must be Resolved before a count may complete. Lower severities
// never block.
func UnresolvedCriticalCount(variances []models.Variance) int {
	blocked := 0
	for _, v := range variances {
		if v.Severity == models.VarianceSeverityCritical && v.CurrentStatus != models.InvestigationStatusResolved {
			blocked++
		}
	}
	return blocked
}

// CompleteStockCount closes a count: materializes variances, enforces the
// critical-variance gate, snapshots the summary and initiates ledger
// reconciliation. This is the only place a count becomes Completed and the
// only trigger for reconciliation.
//
// Materialization and completion are separate transactions. A blocked attempt
// must still commit the variances it found, otherwise there would be nothing
// to investigate and the gate could never clear. Completion can be retried
// and succeeds once every critical variance is resolved.
func CompleteStockCount(ctx context.Context, countId int, prices models.UnitPriceProvider) (*models.StockCount, *VarianceSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, nil, errors.New("business id not found in context")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	thresholds, err := models.GetVarianceThresholds(ctx, businessId)
	if err != nil {
		return nil, nil, err
	}

	db := config.GetDB()
	count, classified, countedTotal, err := materializeVariances(ctx, db, businessId, countId, prices, thresholds)
	if err != nil {
		return nil, nil, err
	}

	summary := BuildVarianceSummary(classified, countedTotal)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer models.ReleaseAggregateLock(tx, "count", businessId, countId)

		// Re-check under the lock: both the status and the gate can have
		// moved since materialization committed.
		var current models.StockCount
		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if !current.CurrentStatus.CanTransition(models.CountStatusCompleted) {
			return utils.NewStateError(utils.CodeInvalidState,
				"count %s is %s and cannot be completed", current.CountNumber, current.CurrentStatus)
		}

		var variances []models.Variance
		if err := tx.Where("stock_count_id = ?", countId).Find(&variances).Error; err != nil {
			return err
		}
		if blocked := UnresolvedCriticalCount(variances); blocked > 0 {
			return utils.NewPolicyError(utils.CodeCriticalVarianceBlocked,
				"count %s has %d unresolved critical variance(s); investigate and resolve them before completing",
				current.CountNumber, blocked)
		}

		now := time.Now().UTC()
		count.CurrentStatus = models.CountStatusCompleted
		count.CompletedBy = &userId
		count.CompletedAt = &now
		count.SummaryJSON = summaryJSON
		if err := tx.Model(&models.StockCount{}).Where("id = ?", count.ID).
			Updates(map[string]interface{}{
				"current_status": models.CountStatusCompleted,
				"completed_by":   userId,
				"completed_at":   now,
				"summary_json":   summaryJSON,
			}).Error; err != nil {
			return err
		}

		if err := models.PublishCountEvent(ctx, tx, businessId, models.EventCountCompleted, count.ID, map[string]any{
			"count_id": count.ID,
			"summary":  summary,
		}); err != nil {
			return err
		}

		// Initiate reconciliation exactly once; the unique index makes a
		// replayed completion a no-op here.
		retryCfg := GetReconciliationRetryConfig()
		record, created, err := models.CreateReconciliationRecord(tx, businessId, count.ID, retryCfg.MaxAttempts)
		if err != nil {
			return err
		}
		if created {
			return models.PublishCountEvent(ctx, tx, businessId, models.EventReconciliationInitiated, record.ID, map[string]any{
				"reconciliation_id": record.ID,
				"count_id":          count.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return count, &summary, nil
}

// materializeVariances classifies the recorded entries and commits a Variance
// row for each new one. Existing rows keep their investigation state across
// completion attempts.
func materializeVariances(ctx context.Context, db *gorm.DB, businessId string, countId int,
	prices models.UnitPriceProvider, thresholds config.VarianceThresholds) (*models.StockCount, []ClassifiedVariance, int, error) {

	var count models.StockCount
	var classified []ClassifiedVariance
	var countedTotal int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer models.ReleaseAggregateLock(tx, "count", businessId, countId)

		if err := tx.Preload("Entries").
			Where("id = ? AND business_id = ?", countId, businessId).
			Take(&count).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if !count.CurrentStatus.CanTransition(models.CountStatusCompleted) {
			return utils.NewStateError(utils.CodeInvalidState,
				"count %s is %s and cannot be completed", count.CountNumber, count.CurrentStatus)
		}

		counted := count.CountedEntries()
		if len(counted) == 0 {
			return utils.NewValidationError(utils.CodeEmptyWorksheet,
				"count %s has no recorded entries", count.CountNumber)
		}
		countedTotal = len(counted)

		var err error
		classified, err = ClassifyEntries(ctx, businessId, counted, prices, thresholds)
		if err != nil {
			return err
		}

		for _, cv := range classified {
			variance := models.Variance{
				BusinessId:    businessId,
				StockCountId:  count.ID,
				EntryId:       cv.Entry.ID,
				LocationId:    cv.Entry.LocationId,
				ProductId:     cv.Entry.ProductId,
				VarianceQty:   cv.Entry.VarianceQty,
				VariancePct:   cv.Entry.VariancePct,
				UnitPrice:     cv.UnitPrice,
				VarianceValue: cv.VarianceValue,
				Severity:      cv.Severity,
				CurrentStatus: models.InvestigationStatusPending,
			}
			res := tx.Where("stock_count_id = ? AND entry_id = ?", count.ID, cv.Entry.ID).
				FirstOrCreate(&variance)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				if err := models.PublishCountEvent(ctx, tx, businessId, models.EventVarianceIdentified, variance.ID, map[string]any{
					"variance_id": variance.ID,
					"count_id":    count.ID,
					"severity":    variance.Severity,
					"value":       variance.VarianceValue,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return &count, classified, countedTotal, nil
}
