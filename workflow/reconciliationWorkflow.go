package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/ledgersync"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconciliationEngine owns attempt execution and the periodic retry sweep.
// Attempts on one record are serialized: the claim is a guarded status
// UPDATE, so a record already InProgress cannot be re-triggered by the sweep
// or a concurrent worker, and the external ledger never sees a double
// submission for one count.
type ReconciliationEngine struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Client ledgersync.LedgerClient
	Cfg    RetryConfig

	WorkerID     string
	PollInterval time.Duration
	BatchSize    int
	LockTimeout  time.Duration
	CallTimeout  time.Duration
}

func NewReconciliationEngine(db *gorm.DB, logger *logrus.Logger, client ledgersync.LedgerClient) *ReconciliationEngine {
	return &ReconciliationEngine{
		DB:           db,
		Logger:       logger,
		Client:       client,
		Cfg:          GetReconciliationRetryConfig(),
		WorkerID:     uuid.NewString(),
		PollInterval: 15 * time.Second,
		BatchSize:    20,
		LockTimeout:  5 * time.Minute,
		CallTimeout:  45 * time.Second,
	}
}

// FailureOutcome decides the post-failure status. Pure so the attempt-ceiling
// invariants are testable without a DB: attempts never exceed maxAttempts and
// the ceiling makes the failure permanent.
func FailureOutcome(attempts int, maxAttempts int) (status models.ReconciliationStatus, permanent bool) {
	if attempts >= maxAttempts {
		return models.ReconciliationStatusFailed, true
	}
	return models.ReconciliationStatusRetrying, false
}

// Run is the periodic sweep: every PollInterval it re-attempts Pending
// records and Retrying records whose next_attempt_at has elapsed.
func (e *ReconciliationEngine) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.PollInterval):
		}
	}
}

func (e *ReconciliationEngine) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-e.LockTimeout)

	var due []models.ReconciliationRecord
	err := e.DB.WithContext(ctx).
		Where(`
			current_status = ?
			OR (current_status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
			OR (current_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)
		`, models.ReconciliationStatusPending,
			models.ReconciliationStatusRetrying, now,
			models.ReconciliationStatusInProgress, staleBefore).
		Order("id ASC").
		Limit(e.BatchSize).
		Find(&due).Error
	if err != nil {
		config.LogError(e.Logger, "reconciliationWorkflow.go", "sweepOnce", "querying due records", nil, err)
		return
	}

	for _, record := range due {
		// A worker crash can leave a record InProgress; reclaim it as a
		// failure of that attempt before re-running.
		if record.CurrentStatus == models.ReconciliationStatusInProgress {
			e.reclaimStale(ctx, record, now)
			continue
		}
		if err := e.RunAttempt(ctx, record.ID); err != nil {
			config.LogError(e.Logger, "reconciliationWorkflow.go", "sweepOnce", "running attempt", record.ID, err)
		}
	}
}

// reclaimStale charges a crashed attempt against the record. The worker may
// have died after calling the external ledger, so the abandoned attempt
// counts toward the ceiling and leaves an audit row like any other failure.
func (e *ReconciliationEngine) reclaimStale(ctx context.Context, record models.ReconciliationRecord, now time.Time) {
	attemptNumber, status := abandonOutcome(record.Attempts, record.MaxAttempts)
	msg := "attempt abandoned: worker lock expired"
	next := now.Add(RetryDelay(attemptNumber, e.Cfg, retrySeed(record.ID, attemptNumber)))
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"current_status": status,
			"attempts":       attemptNumber,
			"last_error":     &msg,
			"locked_at":      nil,
			"locked_by":      nil,
		}
		if status == models.ReconciliationStatusRetrying {
			updates["next_attempt_at"] = &next
		} else {
			updates["next_attempt_at"] = nil
		}
		res := tx.Model(&models.ReconciliationRecord{}).
			Where("id = ? AND current_status = ? AND locked_at = ?", record.ID, models.ReconciliationStatusInProgress, record.LockedAt).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another sweeper reclaimed it first.
			return nil
		}
		audit := models.ReconciliationAttempt{
			ReconciliationRecordId: record.ID,
			AttemptNumber:          attemptNumber,
			ErrorMessage:           msg,
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		config.LogError(e.Logger, "reconciliationWorkflow.go", "reclaimStale", "reclaiming stale record", record.ID, err)
	}
}

// abandonOutcome decides what an abandoned attempt does to the record: the
// try is consumed even though no outcome was observed, so the same ceiling
// rule applies as for an observed failure.
func abandonOutcome(priorAttempts int, maxAttempts int) (attemptNumber int, status models.ReconciliationStatus) {
	attemptNumber = priorAttempts + 1
	status, _ = FailureOutcome(attemptNumber, maxAttempts)
	return attemptNumber, status
}

// RunAttempt executes one synchronization attempt. Safe to call concurrently
// for the same record: whoever loses the claim returns without touching the
// external system.
func (e *ReconciliationEngine) RunAttempt(ctx context.Context, recordId int) error {
	// Cross-instance courtesy lock; the guarded UPDATE below is the
	// authoritative claim.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, lockKey(recordId), e.LockTimeout, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil
			}
			return err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	db := e.DB.WithContext(ctx)
	now := time.Now().UTC()

	var record models.ReconciliationRecord
	if err := db.Where("id = ?", recordId).Take(&record).Error; err != nil {
		return err
	}
	if record.CurrentStatus != models.ReconciliationStatusPending &&
		record.CurrentStatus != models.ReconciliationStatusRetrying {
		return nil
	}
	if record.Attempts >= record.MaxAttempts {
		// Defensive: the failure path should already have parked it.
		return nil
	}

	claim := db.Model(&models.ReconciliationRecord{}).
		Where("id = ? AND current_status = ?", record.ID, record.CurrentStatus).
		Updates(map[string]interface{}{
			"current_status":  models.ReconciliationStatusInProgress,
			"locked_at":       now,
			"locked_by":       e.WorkerID,
			"last_attempt_at": now,
		})
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		// Someone else claimed it first.
		return nil
	}

	attemptNumber := record.Attempts + 1
	request, err := e.buildJournalRequest(ctx, record)
	if err != nil {
		return e.recordFailure(ctx, record, attemptNumber, nil, 0, 0, err)
	}
	requestJSON, _ := json.Marshal(request)

	callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
	defer cancel()

	start := time.Now()
	response, callErr := e.Client.CreateJournal(callCtx, *request)
	duration := time.Since(start).Milliseconds()

	if callErr != nil {
		var lerr *ledgersync.LedgerError
		httpStatus := 0
		if errors.As(callErr, &lerr) {
			httpStatus = lerr.StatusCode
		}
		return e.recordFailure(ctx, record, attemptNumber, requestJSON, httpStatus, duration, callErr)
	}

	responseJSON, _ := json.Marshal(response)
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		audit := models.ReconciliationAttempt{
			ReconciliationRecordId: record.ID,
			AttemptNumber:          attemptNumber,
			RequestJSON:            requestJSON,
			ResponseJSON:           responseJSON,
			HttpStatus:             200,
			DurationMs:             duration,
			Succeeded:              true,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ReconciliationRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"current_status":      models.ReconciliationStatusSynced,
				"attempts":            attemptNumber,
				"external_journal_id": response.JournalId,
				"next_attempt_at":     nil,
				"last_error":          nil,
				"locked_at":           nil,
				"locked_by":           nil,
			}).Error; err != nil {
			return err
		}
		e.Logger.WithFields(logrus.Fields{
			"module":            "Reconciliation",
			"business_id":       record.BusinessId,
			"reconciliation_id": record.ID,
			"count_id":          record.StockCountId,
			"journal_id":        response.JournalId,
			"attempt":           attemptNumber,
		}).Info("reconciliation synced")
		return models.PublishCountEvent(ctx, tx, record.BusinessId, models.EventReconciliationCompleted, record.ID, map[string]any{
			"reconciliation_id": record.ID,
			"count_id":          record.StockCountId,
			"journal_id":        response.JournalId,
		})
	})
}

func (e *ReconciliationEngine) recordFailure(ctx context.Context, record models.ReconciliationRecord,
	attemptNumber int, requestJSON []byte, httpStatus int, duration int64, cause error) error {

	status, permanent := FailureOutcome(attemptNumber, record.MaxAttempts)
	errMsg := cause.Error()

	var lerr *ledgersync.LedgerError
	needsReview := record.NeedsReview
	if permanent && errors.As(cause, &lerr) && lerr.Permanent() {
		// The engine retried a request the ledger calls malformed; an
		// operator has to look at it before a manual retry makes sense.
		needsReview = true
	}

	now := time.Now().UTC()
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		audit := models.ReconciliationAttempt{
			ReconciliationRecordId: record.ID,
			AttemptNumber:          attemptNumber,
			RequestJSON:            requestJSON,
			HttpStatus:             httpStatus,
			DurationMs:             duration,
			ErrorMessage:           errMsg,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"current_status": status,
			"attempts":       attemptNumber,
			"last_error":     &errMsg,
			"needs_review":   needsReview,
			"locked_at":      nil,
			"locked_by":      nil,
		}
		if status == models.ReconciliationStatusRetrying {
			next := now.Add(RetryDelay(attemptNumber, e.Cfg, retrySeed(record.ID, attemptNumber)))
			updates["next_attempt_at"] = &next
		} else {
			updates["next_attempt_at"] = nil
		}
		if err := tx.Model(&models.ReconciliationRecord{}).
			Where("id = ?", record.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		return models.PublishCountEvent(ctx, tx, record.BusinessId, models.EventReconciliationFailed, record.ID, map[string]any{
			"reconciliation_id": record.ID,
			"count_id":          record.StockCountId,
			"error":             errMsg,
			"attempt":           attemptNumber,
			"permanent":         permanent,
		})
	})
	if err != nil {
		return err
	}

	e.Logger.WithFields(logrus.Fields{
		"module":            "Reconciliation",
		"business_id":       record.BusinessId,
		"reconciliation_id": record.ID,
		"count_id":          record.StockCountId,
		"attempt":           attemptNumber,
		"status":            status,
		"http_status":       httpStatus,
	}).Error("reconciliation attempt failed: " + errMsg)
	return nil
}

func (e *ReconciliationEngine) buildJournalRequest(ctx context.Context, record models.ReconciliationRecord) (*ledgersync.JournalRequest, error) {
	var count models.StockCount
	if err := e.DB.WithContext(ctx).Preload("Entries").
		Where("id = ?", record.StockCountId).Take(&count).Error; err != nil {
		return nil, err
	}
	if count.CurrentStatus != models.CountStatusCompleted {
		return nil, utils.NewStateError(utils.CodeInvalidState,
			"count %s is %s; only completed counts reconcile", count.CountNumber, count.CurrentStatus)
	}

	journalDate := time.Now().UTC()
	if count.CompletedAt != nil {
		journalDate = *count.CompletedAt
	}

	lines := make([]ledgersync.JournalLine, 0, len(count.Entries))
	for _, entry := range count.CountedEntries() {
		lines = append(lines, ledgersync.JournalLine{
			LocationId:  entry.LocationId,
			ProductId:   entry.ProductId,
			SystemQty:   entry.SystemQty,
			CountedQty:  *entry.CountedQty,
			VarianceQty: entry.VarianceQty,
		})
	}

	return &ledgersync.JournalRequest{
		Reference:   count.CountNumber,
		JournalName: "Stock Count " + count.CountNumber,
		JournalDate: journalDate.Format("2006-01-02"),
		BusinessId:  count.BusinessId,
		Lines:       lines,
	}, nil
}

// RetryReconciliation is the manual reset: Failed -> Pending with the
// attempt counter zeroed, re-entering the normal attempt cycle. The sweep
// never takes this edge on its own.
func RetryReconciliation(ctx context.Context, recordId int) (*models.ReconciliationRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}

	var record models.ReconciliationRecord
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND business_id = ?", recordId, businessId).Take(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if record.CurrentStatus != models.ReconciliationStatusFailed {
			return utils.NewStateError(utils.CodeReconciliationNotFailed,
				"reconciliation %d is %s; only failed records can be manually retried", record.ID, record.CurrentStatus)
		}
		record.CurrentStatus = models.ReconciliationStatusPending
		record.Attempts = 0
		return tx.Model(&models.ReconciliationRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"current_status":  models.ReconciliationStatusPending,
				"attempts":        0,
				"next_attempt_at": nil,
				"last_error":      nil,
				"needs_review":    false,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func lockKey(recordId int) string {
	return fmt.Sprintf("reconcile:%d", recordId)
}

func retrySeed(recordId int, attempt int) int64 {
	return int64(recordId)*1000 + int64(attempt)
}
