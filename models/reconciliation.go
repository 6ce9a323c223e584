package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"gorm.io/gorm"
)

// ReconciliationRecord tracks synchronization of one completed count with
// the external ledger. Exactly one record per count (unique index on
// stock_count_id). Attempts never exceed MaxAttempts; once Failed only an
// explicit manual reset reopens it.
type ReconciliationRecord struct {
	ID                int                     `gorm:"primary_key" json:"id"`
	BusinessId        string                  `gorm:"index;size:64;not null" json:"business_id"`
	StockCountId      int                     `gorm:"uniqueIndex;not null" json:"stock_count_id"`
	CurrentStatus     ReconciliationStatus    `gorm:"type:enum('Pending','InProgress','Synced','Failed','Retrying');not null;index" json:"current_status"`
	Attempts          int                     `gorm:"default:0" json:"attempts"`
	MaxAttempts       int                     `gorm:"default:5" json:"max_attempts"`
	ExternalJournalId *string                 `gorm:"size:128" json:"external_journal_id"`
	LastAttemptAt     *time.Time              `json:"last_attempt_at"`
	NextAttemptAt     *time.Time              `json:"next_attempt_at"`
	LastError         *string                 `gorm:"type:text" json:"last_error"`
	NeedsReview       bool                    `gorm:"default:false" json:"needs_review"`
	LockedAt          *time.Time              `json:"locked_at"`
	LockedBy          *string                 `gorm:"size:64" json:"locked_by"`
	AuditLog          []ReconciliationAttempt `gorm:"foreignKey:ReconciliationRecordId" json:"audit_log"`
	CreatedAt         time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReconciliationAttempt is the append-only audit row for one attempt against
// the external ledger: request/response snapshots, HTTP status and duration.
type ReconciliationAttempt struct {
	ID                     int       `gorm:"primary_key" json:"id"`
	ReconciliationRecordId int       `gorm:"index;not null" json:"reconciliation_record_id"`
	AttemptNumber          int       `gorm:"not null" json:"attempt_number"`
	RequestJSON            []byte    `gorm:"type:json" json:"request"`
	ResponseJSON           []byte    `gorm:"type:json" json:"response"`
	HttpStatus             int       `json:"http_status"`
	DurationMs             int64     `json:"duration_ms"`
	Succeeded              bool      `gorm:"default:false" json:"succeeded"`
	ErrorMessage           string    `gorm:"type:text" json:"error_message"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateReconciliationRecord inserts the one record for a completed count.
// The unique index makes double-initiation a no-op for the second caller.
func CreateReconciliationRecord(tx *gorm.DB, businessId string, countId int, maxAttempts int) (*ReconciliationRecord, bool, error) {
	record := ReconciliationRecord{
		BusinessId:    businessId,
		StockCountId:  countId,
		CurrentStatus: ReconciliationStatusPending,
		MaxAttempts:   maxAttempts,
	}
	if err := tx.Create(&record).Error; err != nil {
		if isDuplicateKeyErr(err) {
			var existing ReconciliationRecord
			if qerr := tx.Where("stock_count_id = ?", countId).Take(&existing).Error; qerr != nil {
				return nil, false, qerr
			}
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &record, true, nil
}

func GetReconciliationRecord(ctx context.Context, recordId int) (*ReconciliationRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	var record ReconciliationRecord
	err := config.GetDB().WithContext(ctx).
		Preload("AuditLog").
		Where("id = ? AND business_id = ?", recordId, businessId).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func GetReconciliationForCount(ctx context.Context, countId int) (*ReconciliationRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	var record ReconciliationRecord
	err := config.GetDB().WithContext(ctx).
		Preload("AuditLog").
		Where("stock_count_id = ? AND business_id = ?", countId, businessId).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}
