package offlinesync

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"gorm.io/gorm"
)

// SubmitResult reports the outcome of pushing one queued entry to the server.
// Conflict means the server already holds a counted value for the same
// (location, product); ServerRecordedAt is its observation timestamp so the
// queue can apply the later-timestamp rule.
type SubmitResult struct {
	Entry            *models.StockCountEntry
	Conflict         bool
	ServerRecordedAt *time.Time
}

// EntrySubmitter is the queue's view of the server. The production
// implementation goes straight to the stock count model; tests substitute a
// scripted fake.
type EntrySubmitter interface {
	SubmitEntry(ctx context.Context, countId int, input *models.NewCountEntry) (*SubmitResult, error)
	OverwriteEntry(ctx context.Context, countId int, input *models.NewCountEntry) error
}

type serverSubmitter struct{}

func NewServerSubmitter() EntrySubmitter {
	return serverSubmitter{}
}

func (serverSubmitter) SubmitEntry(ctx context.Context, countId int, input *models.NewCountEntry) (*SubmitResult, error) {
	entry, err := models.RecordCountEntry(ctx, countId, input)
	if err == nil {
		return &SubmitResult{Entry: entry}, nil
	}
	if utils.ErrorCode(err) != utils.CodeDuplicateEntry {
		return nil, err
	}

	// Duplicate means someone else counted the same slot while this device
	// was offline. Surface the server timestamp so the caller can decide
	// which observation survives.
	var existing models.StockCountEntry
	dbErr := config.GetDB().WithContext(ctx).
		Where("stock_count_id = ? AND location_id = ? AND product_id = ?",
			countId, input.LocationId, input.ProductId).
		Take(&existing).Error
	if dbErr != nil {
		if errors.Is(dbErr, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, dbErr
	}
	return &SubmitResult{Entry: &existing, Conflict: true, ServerRecordedAt: existing.RecordedAt}, nil
}

func (serverSubmitter) OverwriteEntry(ctx context.Context, countId int, input *models.NewCountEntry) error {
	_, err := models.OverwriteEntryFromConflict(ctx, countId, input)
	return err
}
