package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"gorm.io/gorm"
)

// Event types emitted by the core.
const (
	EventCountInitiated          = "CountInitiated"
	EventEntryRecorded           = "EntryRecorded"
	EventCountCompleted          = "CountCompleted"
	EventCountCancelled          = "CountCancelled"
	EventVarianceIdentified      = "VarianceIdentified"
	EventVarianceInvestigated    = "VarianceInvestigated"
	EventVarianceApproved        = "VarianceApproved"
	EventVarianceResolved        = "VarianceResolved"
	EventVarianceEscalated       = "VarianceEscalated"
	EventReconciliationInitiated = "ReconciliationInitiated"
	EventReconciliationCompleted = "ReconciliationCompleted"
	EventReconciliationFailed    = "ReconciliationFailed"
)

// Outbox publish statuses for CountEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// CountEventRecord is the transactional outbox row: written inside the
// command's DB transaction, published to Pub/Sub asynchronously by the
// dispatcher after commit.
type CountEventRecord struct {
	ID               int        `gorm:"primary_key" json:"id"`
	BusinessId       string     `gorm:"index;size:64;not null" json:"business_id"`
	EventType        string     `gorm:"size:64;not null;index" json:"event_type"`
	AggregateId      int        `gorm:"not null;index" json:"aggregate_id"`
	OccurredAt       time.Time  `gorm:"not null" json:"occurred_at"`
	Payload          []byte     `gorm:"type:json" json:"payload"`
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int        `gorm:"default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`
	CorrelationId    string     `gorm:"size:64" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// PublishCountEvent writes the event record inside the caller's DB
// transaction but does NOT publish to Pub/Sub. Publishing happens
// asynchronously after commit.
func PublishCountEvent(ctx context.Context, tx *gorm.DB, businessId string, eventType string, aggregateId int, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := CountEventRecord{
		BusinessId:    businessId,
		EventType:     eventType,
		AggregateId:   aggregateId,
		OccurredAt:    time.Now().UTC(),
		Payload:       payloadJSON,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func ConvertToCountEventMessage(rec CountEventRecord) config.CountEventMessage {
	return config.CountEventMessage{
		ID:            rec.ID,
		BusinessId:    rec.BusinessId,
		EventType:     rec.EventType,
		AggregateId:   rec.AggregateId,
		OccurredAt:    rec.OccurredAt,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
