package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockCount is one counting exercise over a scope of locations/products.
// Status flows Draft -> InProgress -> Completed, or any non-terminal status
// -> Cancelled; never backward. A Completed or Cancelled count is immutable.
type StockCount struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"index;size:64;not null" json:"business_id"`
	CountNumber   string            `gorm:"size:64;uniqueIndex" json:"count_number"`
	CountType     CountType         `gorm:"type:enum('Cycle','Full','Spot');not null" json:"count_type"`
	ScopeJSON     []byte            `gorm:"type:json" json:"scope"`
	CurrentStatus CountStatus       `gorm:"type:enum('Draft','InProgress','Completed','Cancelled');not null;index" json:"current_status"`
	InitiatedBy   int               `gorm:"not null" json:"initiated_by"`
	InitiatedAt   time.Time         `gorm:"not null" json:"initiated_at"`
	CompletedBy   *int              `json:"completed_by"`
	CompletedAt   *time.Time        `json:"completed_at"`
	SummaryJSON   []byte            `gorm:"type:json" json:"summary"`
	Notes         string            `gorm:"type:text" json:"notes"`
	Entries       []StockCountEntry `gorm:"foreignKey:StockCountId" json:"entries"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockCountEntry is one location/product observation. The pair
// (location_id, product_id) is unique per count: a second recording for the
// same pair is rejected, never overwritten.
type StockCountEntry struct {
	ID               int              `gorm:"primary_key" json:"id"`
	StockCountId     int              `gorm:"uniqueIndex:uniq_count_entry,priority:1;not null" json:"stock_count_id"`
	LocationId       int              `gorm:"uniqueIndex:uniq_count_entry,priority:2;not null" json:"location_id"`
	ProductId        int              `gorm:"uniqueIndex:uniq_count_entry,priority:3;not null" json:"product_id"`
	SystemQty        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"system_qty"`
	CountedQty       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"counted_qty"`
	VarianceQty      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"variance_qty"`
	VariancePct      decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"variance_pct"`
	RecordedBy       int              `json:"recorded_by"`
	RecordedAt       *time.Time       `json:"recorded_at"`
	DeviceId         string           `gorm:"size:64" json:"device_id"`
	Notes            string           `gorm:"size:500" json:"notes"`
	RecountRequested bool             `gorm:"default:false" json:"recount_requested"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountScope is the predicate a worksheet was generated from. Resolution of
// the predicate into concrete lines is the catalog's job; the core stores it
// for traceability.
type CountScope struct {
	LocationIds []int  `json:"location_ids"`
	CategoryIds []int  `json:"category_ids"`
	SkuFrom     string `json:"sku_from"`
	SkuTo       string `json:"sku_to"`
}

type NewStockCount struct {
	CountType CountType          `json:"count_type" binding:"required"`
	Scope     CountScope         `json:"scope"`
	Notes     string             `json:"notes"`
	Lines     []NewWorksheetLine `json:"lines" binding:"required"`
}

type NewWorksheetLine struct {
	LocationId int `json:"location_id" binding:"required"`
	ProductId  int `json:"product_id" binding:"required"`
}

type NewCountEntry struct {
	LocationId int             `json:"location_id" binding:"required"`
	ProductId  int             `json:"product_id" binding:"required"`
	CountedQty decimal.Decimal `json:"counted_qty"`
	Notes      string          `json:"notes"`
	DeviceId   string          `json:"device_id"`
	// CountedAt is when the observation was made, which for offline-queued
	// entries predates the server receiving it. Zero means "now".
	CountedAt time.Time `json:"counted_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// VarianceQuantity is counted - system.
func VarianceQuantity(system, counted decimal.Decimal) decimal.Decimal {
	return counted.Sub(system)
}

// VariancePercent is variance/system*100. A count against a zero system
// quantity is a 100% variance when anything was found and 0% when nothing
// was, never a division error.
func VariancePercent(system, counted decimal.Decimal) decimal.Decimal {
	if system.IsZero() {
		if counted.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return counted.Sub(system).Div(system).Mul(decimal.NewFromInt(100))
}

// ValidateWorksheetLines rejects empty worksheets and duplicate
// (location, product) pairs before anything touches the DB.
func ValidateWorksheetLines(lines []NewWorksheetLine) error {
	if len(lines) == 0 {
		return utils.NewValidationError(utils.CodeEmptyWorksheet, "worksheet has no lines")
	}
	seen := make(map[[2]int]bool, len(lines))
	for _, line := range lines {
		if line.LocationId <= 0 || line.ProductId <= 0 {
			return utils.NewValidationError(utils.CodeEmptyWorksheet, "worksheet line has invalid location/product")
		}
		key := [2]int{line.LocationId, line.ProductId}
		if seen[key] {
			return utils.NewValidationError(utils.CodeDuplicateEntry,
				"duplicate worksheet line for location %d product %d", line.LocationId, line.ProductId)
		}
		seen[key] = true
	}
	return nil
}

func entryEditWindow() time.Duration {
	minutes := 15
	if v := os.Getenv("ENTRY_EDIT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			minutes = n
		}
	}
	return time.Duration(minutes) * time.Minute
}

func nextCountNumber(tx *gorm.DB, businessId string) (string, error) {
	var count int64
	if err := tx.Model(&StockCount{}).Where("business_id = ?", businessId).Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("ST-%06d", count+1), nil
}

// CreateStockCount generates a worksheet: a Draft count pre-populated with
// expected quantities from the stock-level provider.
func CreateStockCount(ctx context.Context, input *NewStockCount, levels StockLevelProvider) (*StockCount, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if err := ValidateWorksheetLines(input.Lines); err != nil {
		return nil, err
	}

	scopeJSON, err := json.Marshal(input.Scope)
	if err != nil {
		return nil, err
	}

	entries := make([]StockCountEntry, 0, len(input.Lines))
	for _, line := range input.Lines {
		systemQty, err := levels.SystemQuantity(ctx, businessId, line.LocationId, line.ProductId)
		if err != nil {
			return nil, err
		}
		entries = append(entries, StockCountEntry{
			LocationId: line.LocationId,
			ProductId:  line.ProductId,
			SystemQty:  systemQty,
		})
	}

	count := StockCount{
		BusinessId:    businessId,
		CountType:     input.CountType,
		ScopeJSON:     scopeJSON,
		CurrentStatus: CountStatusDraft,
		InitiatedBy:   userId,
		InitiatedAt:   time.Now().UTC(),
		Notes:         input.Notes,
		Entries:       entries,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextCountNumber(tx, businessId)
		if err != nil {
			return err
		}
		count.CountNumber = number
		if err := tx.Create(&count).Error; err != nil {
			return err
		}
		return PublishCountEvent(ctx, tx, businessId, EventCountInitiated, count.ID, map[string]any{
			"count_id":     count.ID,
			"count_number": count.CountNumber,
			"entry_count":  len(count.Entries),
		})
	})
	if err != nil {
		return nil, err
	}
	return &count, nil
}

// RecordCountEntry records one observation. Allowed only while the count is
// Draft or InProgress; the first recorded entry flips Draft to InProgress.
// Worksheet generation pre-creates expected rows with a NULL counted
// quantity, so recording fills that row in; a row whose counted quantity is
// already set is a duplicate and is rejected.
func RecordCountEntry(ctx context.Context, countId int, input *NewCountEntry) (*StockCountEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if input.CountedQty.IsNegative() {
		return nil, utils.NewValidationError(utils.CodeInvalidState, "counted quantity cannot be negative")
	}

	countedAt := input.CountedAt
	if countedAt.IsZero() {
		countedAt = time.Now().UTC()
	}

	var entry StockCountEntry
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "count", businessId, countId)

		var count StockCount
		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&count).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if count.CurrentStatus != CountStatusDraft && count.CurrentStatus != CountStatusInProgress {
			return utils.NewStateError(utils.CodeInvalidState,
				"cannot record entry while count %s is %s", count.CountNumber, count.CurrentStatus)
		}

		var existing StockCountEntry
		findErr := tx.Where("stock_count_id = ? AND location_id = ? AND product_id = ?",
			countId, input.LocationId, input.ProductId).Take(&existing).Error
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		counted := input.CountedQty
		if findErr == nil {
			if existing.CountedQty != nil {
				return utils.NewValidationError(utils.CodeDuplicateEntry,
					"entry for location %d product %d already recorded", input.LocationId, input.ProductId)
			}
			// Expected worksheet row: fill it in.
			existing.CountedQty = &counted
			existing.VarianceQty = VarianceQuantity(existing.SystemQty, counted)
			existing.VariancePct = VariancePercent(existing.SystemQty, counted)
			existing.RecordedBy = userId
			existing.RecordedAt = &countedAt
			existing.DeviceId = input.DeviceId
			existing.Notes = input.Notes
			existing.RecountRequested = false
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			entry = existing
		} else {
			// Observation outside the generated worksheet (uncounted product
			// found on a shelf): system quantity comes from the stock ledger
			// snapshot, absent rows count as zero.
			systemQty, err := NewStockLevelProvider().SystemQuantity(ctx, businessId, input.LocationId, input.ProductId)
			if err != nil {
				return err
			}
			entry = StockCountEntry{
				StockCountId: countId,
				LocationId:   input.LocationId,
				ProductId:    input.ProductId,
				SystemQty:    systemQty,
				CountedQty:   &counted,
				VarianceQty:  VarianceQuantity(systemQty, counted),
				VariancePct:  VariancePercent(systemQty, counted),
				RecordedBy:   userId,
				RecordedAt:   &countedAt,
				DeviceId:     input.DeviceId,
				Notes:        input.Notes,
			}
			if err := tx.Create(&entry).Error; err != nil {
				if isDuplicateKeyErr(err) {
					return utils.NewValidationError(utils.CodeDuplicateEntry,
						"entry for location %d product %d already recorded", input.LocationId, input.ProductId)
				}
				return err
			}
		}

		if count.CurrentStatus == CountStatusDraft {
			if !count.CurrentStatus.CanTransition(CountStatusInProgress) {
				return utils.NewStateError(utils.CodeInvalidState, "count %s cannot start", count.CountNumber)
			}
			if err := tx.Model(&StockCount{}).Where("id = ?", count.ID).
				Update("current_status", CountStatusInProgress).Error; err != nil {
				return err
			}
		}

		return PublishCountEvent(ctx, tx, businessId, EventEntryRecorded, count.ID, map[string]any{
			"count_id":     count.ID,
			"entry_id":     entry.ID,
			"location_id":  entry.LocationId,
			"product_id":   entry.ProductId,
			"variance_qty": entry.VarianceQty,
			"variance_pct": entry.VariancePct,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateCountEntry amends a recorded entry inside the edit window. Past the
// window entries are immutable; offline conflict resolution is the only
// other path that rewrites one.
func UpdateCountEntry(ctx context.Context, countId int, entryId int, countedQty decimal.Decimal, notes string) (*StockCountEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	if countedQty.IsNegative() {
		return nil, utils.NewValidationError(utils.CodeInvalidState, "counted quantity cannot be negative")
	}

	var entry StockCountEntry
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "count", businessId, countId)

		var count StockCount
		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&count).Error; err != nil {
			return err
		}
		if count.CurrentStatus != CountStatusDraft && count.CurrentStatus != CountStatusInProgress {
			return utils.NewStateError(utils.CodeInvalidState,
				"cannot edit entries while count %s is %s", count.CountNumber, count.CurrentStatus)
		}
		if err := tx.Where("id = ? AND stock_count_id = ?", entryId, countId).Take(&entry).Error; err != nil {
			return err
		}
		if entry.RecordedAt == nil || entry.CountedQty == nil {
			return utils.NewStateError(utils.CodeInvalidState, "entry %d has not been recorded yet", entryId)
		}
		if time.Since(*entry.RecordedAt) > entryEditWindow() {
			return utils.NewStateError(utils.CodeEntryLocked, "entry %d is outside the edit window", entryId)
		}

		entry.CountedQty = &countedQty
		entry.VarianceQty = VarianceQuantity(entry.SystemQty, countedQty)
		entry.VariancePct = VariancePercent(entry.SystemQty, countedQty)
		entry.Notes = notes
		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// OverwriteEntryFromConflict replaces a recorded entry with an offline
// observation that carries a later timestamp. This is the "later timestamp
// wins" arm of the offline conflict rule and bypasses the edit window.
func OverwriteEntryFromConflict(ctx context.Context, countId int, input *NewCountEntry) (*StockCountEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	var entry StockCountEntry
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "count", businessId, countId)

		var count StockCount
		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&count).Error; err != nil {
			return err
		}
		if count.CurrentStatus != CountStatusDraft && count.CurrentStatus != CountStatusInProgress {
			return utils.NewStateError(utils.CodeInvalidState,
				"cannot resolve conflicts while count %s is %s", count.CountNumber, count.CurrentStatus)
		}
		if err := tx.Where("stock_count_id = ? AND location_id = ? AND product_id = ?",
			countId, input.LocationId, input.ProductId).Take(&entry).Error; err != nil {
			return err
		}
		// Reject only when the server copy is strictly newer. Equal timestamps
		// reach this path after an operator explicitly chose the local value.
		if entry.RecordedAt != nil && input.CountedAt.Before(*entry.RecordedAt) {
			return utils.NewStateError(utils.CodeInvalidState,
				"server entry for location %d product %d is newer", input.LocationId, input.ProductId)
		}

		counted := input.CountedQty
		countedAt := input.CountedAt
		entry.CountedQty = &counted
		entry.VarianceQty = VarianceQuantity(entry.SystemQty, counted)
		entry.VariancePct = VariancePercent(entry.SystemQty, counted)
		entry.RecordedBy = userId
		entry.RecordedAt = &countedAt
		entry.DeviceId = input.DeviceId
		entry.Notes = input.Notes
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}

		return PublishCountEvent(ctx, tx, businessId, EventEntryRecorded, count.ID, map[string]any{
			"count_id":    count.ID,
			"entry_id":    entry.ID,
			"location_id": entry.LocationId,
			"product_id":  entry.ProductId,
			"overwrite":   true,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RequestRecount flags a recorded entry for a second pass and clears its
// counted value, so the slot accepts a fresh RecordCountEntry without
// tripping the duplicate rejection.
func RequestRecount(ctx context.Context, countId int, entryId int) (*StockCountEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}

	var entry StockCountEntry
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "count", businessId, countId)

		var count StockCount
		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&count).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if count.CurrentStatus != CountStatusInProgress {
			return utils.NewStateError(utils.CodeInvalidState,
				"cannot request a recount while count %s is %s", count.CountNumber, count.CurrentStatus)
		}
		if err := tx.Where("id = ? AND stock_count_id = ?", entryId, countId).Take(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if entry.CountedQty == nil {
			return utils.NewStateError(utils.CodeInvalidState,
				"entry %d has no recorded value to recount", entryId)
		}

		entry.CountedQty = nil
		entry.VarianceQty = decimal.Zero
		entry.VariancePct = decimal.Zero
		entry.RecordedAt = nil
		entry.RecountRequested = true
		if err := tx.Model(&StockCountEntry{}).Where("id = ?", entry.ID).
			Updates(map[string]interface{}{
				"counted_qty":       nil,
				"variance_qty":      decimal.Zero,
				"variance_pct":      decimal.Zero,
				"recorded_at":       nil,
				"recount_requested": true,
			}).Error; err != nil {
			return err
		}

		return PublishCountEvent(ctx, tx, businessId, EventEntryRecorded, count.ID, map[string]any{
			"count_id":          count.ID,
			"entry_id":          entry.ID,
			"location_id":       entry.LocationId,
			"product_id":        entry.ProductId,
			"recount_requested": true,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CancelStockCount moves a non-terminal count to Cancelled.
func CancelStockCount(ctx context.Context, countId int) (*StockCount, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}

	var count StockCount
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAggregateLock(tx, "count", businessId, countId); err != nil {
			return err
		}
		defer ReleaseAggregateLock(tx, "count", businessId, countId)

		if err := tx.Where("id = ? AND business_id = ?", countId, businessId).Take(&count).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if !count.CurrentStatus.CanTransition(CountStatusCancelled) {
			return utils.NewStateError(utils.CodeInvalidState,
				"count %s is %s and cannot be cancelled", count.CountNumber, count.CurrentStatus)
		}
		count.CurrentStatus = CountStatusCancelled
		if err := tx.Model(&StockCount{}).Where("id = ?", count.ID).
			Update("current_status", CountStatusCancelled).Error; err != nil {
			return err
		}
		return PublishCountEvent(ctx, tx, businessId, EventCountCancelled, count.ID, map[string]any{
			"count_id": count.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &count, nil
}

func GetStockCount(ctx context.Context, countId int) (*StockCount, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, errors.New("business id not found in context")
	}
	var count StockCount
	err := config.GetDB().WithContext(ctx).
		Preload("Entries").
		Where("id = ? AND business_id = ?", countId, businessId).
		Take(&count).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &count, nil
}

// CountedEntries filters entries that actually have an observation.
func (count *StockCount) CountedEntries() []StockCountEntry {
	out := make([]StockCountEntry, 0, len(count.Entries))
	for _, e := range count.Entries {
		if e.CountedQty != nil {
			out = append(out, e)
		}
	}
	return out
}
