package offlinesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/sirupsen/logrus"
)

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "Pending"
	ItemStatusSyncing ItemStatus = "Syncing"
	ItemStatusSynced  ItemStatus = "Synced"
	// Superseded means a newer server observation won the conflict and the
	// local value was discarded, with the item kept for the audit trail.
	ItemStatusSuperseded ItemStatus = "Superseded"
	ItemStatusFailed     ItemStatus = "Failed"
)

// QueueItem is one locally recorded entry awaiting upload. Items are never
// removed from the queue: terminal items stay visible so nothing a counter
// typed can silently disappear.
type QueueItem struct {
	ID         string
	CountId    int
	Entry      models.NewCountEntry
	Status     ItemStatus
	Attempts   int
	LastError  string
	Conflict   bool
	EnqueuedAt time.Time
}

// Queue is the per-device upload queue. One Queue per device, drained by a
// single goroutine, so entries from the same device replay in the order they
// were recorded.
type Queue struct {
	DeviceId    string
	Submitter   EntrySubmitter
	Logger      *logrus.Logger
	BatchSize   int
	MaxAttempts int

	mu    sync.Mutex
	items []*QueueItem
}

func NewQueue(deviceId string, submitter EntrySubmitter, logger *logrus.Logger) *Queue {
	return &Queue{
		DeviceId:    deviceId,
		Submitter:   submitter,
		Logger:      logger,
		BatchSize:   25,
		MaxAttempts: 5,
	}
}

// Enqueue records a local observation for later upload. The observation
// timestamp is stamped here if the caller left it zero; it is the value the
// conflict rule compares, not the upload time.
func (q *Queue) Enqueue(countId int, entry models.NewCountEntry) *QueueItem {
	if entry.CountedAt.IsZero() {
		entry.CountedAt = time.Now().UTC()
	}
	if entry.DeviceId == "" {
		entry.DeviceId = q.DeviceId
	}
	item := &QueueItem{
		ID:         uuid.NewString(),
		CountId:    countId,
		Entry:      entry,
		Status:     ItemStatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return item
}

// Run drains the queue until the context is cancelled, waiting between
// passes when nothing is pending.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		q.DrainOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// DrainOnce uploads up to BatchSize pending items in enqueue order and
// returns how many reached a terminal state this pass.
func (q *Queue) DrainOnce(ctx context.Context) int {
	batch := q.claimBatch()
	settled := 0
	for _, item := range batch {
		if q.syncItem(ctx, item) {
			settled++
		}
	}
	return settled
}

func (q *Queue) claimBatch() []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := make([]*QueueItem, 0, q.BatchSize)
	for _, item := range q.items {
		if item.Status != ItemStatusPending {
			continue
		}
		item.Status = ItemStatusSyncing
		batch = append(batch, item)
		if len(batch) >= q.BatchSize {
			break
		}
	}
	return batch
}

// syncItem pushes one item and applies the conflict rule. Returns true when
// the item reached a terminal status.
func (q *Queue) syncItem(ctx context.Context, item *QueueItem) bool {
	result, err := q.Submitter.SubmitEntry(ctx, item.CountId, &item.Entry)
	if err != nil {
		return q.settleError(item, err)
	}
	if !result.Conflict {
		q.setStatus(item, ItemStatusSynced, "")
		return true
	}

	// The server already holds a counted value for this slot. The
	// observation with the later timestamp wins; an exact tie is not
	// decidable automatically and waits for an operator.
	serverAt := time.Time{}
	if result.ServerRecordedAt != nil {
		serverAt = *result.ServerRecordedAt
	}
	switch {
	case item.Entry.CountedAt.After(serverAt):
		if err := q.Submitter.OverwriteEntry(ctx, item.CountId, &item.Entry); err != nil {
			return q.settleError(item, err)
		}
		q.setStatus(item, ItemStatusSynced, "")
		q.logConflict(item, "local observation newer, server entry overwritten")
		return true
	case serverAt.After(item.Entry.CountedAt):
		q.setStatus(item, ItemStatusSuperseded, "")
		q.logConflict(item, "server observation newer, local entry discarded")
		return true
	default:
		q.mu.Lock()
		item.Status = ItemStatusFailed
		item.Conflict = true
		item.LastError = utils.CodeConflictAdjudication
		q.mu.Unlock()
		q.logConflict(item, "identical observation timestamps, operator adjudication required")
		return true
	}
}

func (q *Queue) settleError(item *QueueItem, err error) bool {
	// Rejections are deterministic; retrying the same payload cannot help.
	permanent := utils.IsValidation(err) || utils.IsState(err) || utils.IsPolicy(err) ||
		errors.Is(err, utils.ErrorRecordNotFound)

	q.mu.Lock()
	defer q.mu.Unlock()
	item.Attempts++
	item.LastError = err.Error()
	if permanent || item.Attempts >= q.MaxAttempts {
		item.Status = ItemStatusFailed
		return true
	}
	item.Status = ItemStatusPending
	return false
}

func (q *Queue) setStatus(item *QueueItem, status ItemStatus, lastError string) {
	q.mu.Lock()
	item.Status = status
	item.LastError = lastError
	q.mu.Unlock()
}

// ResolveConflict settles a timestamp tie the drain loop parked. keepLocal
// pushes the queued value over the server's copy; otherwise the server copy
// stands and the item is marked Superseded.
func (q *Queue) ResolveConflict(ctx context.Context, itemId string, keepLocal bool) error {
	item := q.find(itemId)
	if item == nil {
		return utils.ErrorRecordNotFound
	}
	q.mu.Lock()
	parked := item.Status == ItemStatusFailed && item.Conflict
	q.mu.Unlock()
	if !parked {
		return utils.NewStateError(utils.CodeInvalidState, "queue item %s has no pending conflict", itemId)
	}

	if !keepLocal {
		q.mu.Lock()
		item.Status = ItemStatusSuperseded
		item.Conflict = false
		item.LastError = ""
		q.mu.Unlock()
		return nil
	}
	if err := q.Submitter.OverwriteEntry(ctx, item.CountId, &item.Entry); err != nil {
		return err
	}
	q.mu.Lock()
	item.Status = ItemStatusSynced
	item.Conflict = false
	item.LastError = ""
	q.mu.Unlock()
	return nil
}

// RetryItem requeues a Failed non-conflict item, resetting its attempt
// counter. Conflicted items go through ResolveConflict instead.
func (q *Queue) RetryItem(itemId string) error {
	item := q.find(itemId)
	if item == nil {
		return utils.ErrorRecordNotFound
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.Status != ItemStatusFailed || item.Conflict {
		return utils.NewStateError(utils.CodeInvalidState, "queue item %s is not retryable", itemId)
	}
	item.Status = ItemStatusPending
	item.Attempts = 0
	item.LastError = ""
	return nil
}

// Items returns a snapshot of the queue in enqueue order.
func (q *Queue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueItem, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

func (q *Queue) find(itemId string) *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == itemId {
			return item
		}
	}
	return nil
}

func (q *Queue) logConflict(item *QueueItem, outcome string) {
	if q.Logger == nil {
		return
	}
	q.Logger.WithFields(logrus.Fields{
		"module":      "OfflineSync",
		"device_id":   q.DeviceId,
		"count_id":    item.CountId,
		"location_id": item.Entry.LocationId,
		"product_id":  item.Entry.ProductId,
		"local_at":    item.Entry.CountedAt.Format(time.RFC3339Nano),
	}).Warn("offline entry conflict: " + outcome)
}
