package offlinesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
)

// Scripted submitter: answers are keyed by (location, product) so a test can
// mix clean submissions, conflicts and failures in one drain pass.

type fakeSubmitter struct {
	conflicts  map[[2]int]time.Time
	failWith   map[[2]int]error
	submitted  [][2]int
	overwrites [][2]int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		conflicts: map[[2]int]time.Time{},
		failWith:  map[[2]int]error{},
	}
}

func (f *fakeSubmitter) SubmitEntry(_ context.Context, _ int, input *models.NewCountEntry) (*SubmitResult, error) {
	key := [2]int{input.LocationId, input.ProductId}
	if err, ok := f.failWith[key]; ok {
		return nil, err
	}
	f.submitted = append(f.submitted, key)
	if at, ok := f.conflicts[key]; ok {
		serverAt := at
		return &SubmitResult{Conflict: true, ServerRecordedAt: &serverAt}, nil
	}
	return &SubmitResult{Entry: &models.StockCountEntry{}}, nil
}

func (f *fakeSubmitter) OverwriteEntry(_ context.Context, _ int, input *models.NewCountEntry) error {
	f.overwrites = append(f.overwrites, [2]int{input.LocationId, input.ProductId})
	return nil
}

func entryAt(locationId, productId int, at time.Time) models.NewCountEntry {
	return models.NewCountEntry{
		LocationId: locationId,
		ProductId:  productId,
		CountedQty: decimal.NewFromInt(10),
		CountedAt:  at,
	}
}

func TestDrain_CleanSubmissionSyncs(t *testing.T) {
	sub := newFakeSubmitter()
	q := NewQueue("device-1", sub, nil)
	q.Enqueue(1, entryAt(1, 100, time.Now().UTC()))

	if settled := q.DrainOnce(context.Background()); settled != 1 {
		t.Fatalf("settled: got %d want 1", settled)
	}
	items := q.Items()
	if items[0].Status != ItemStatusSynced {
		t.Fatalf("status: got %s want Synced", items[0].Status)
	}
	if len(sub.overwrites) != 0 {
		t.Fatalf("no overwrite expected, got %d", len(sub.overwrites))
	}
}

func TestDrain_LocalNewerWinsConflict(t *testing.T) {
	serverAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	localAt := serverAt.Add(2 * time.Minute)

	sub := newFakeSubmitter()
	sub.conflicts[[2]int{1, 100}] = serverAt
	q := NewQueue("device-1", sub, nil)
	q.Enqueue(1, entryAt(1, 100, localAt))

	q.DrainOnce(context.Background())

	items := q.Items()
	if items[0].Status != ItemStatusSynced {
		t.Fatalf("status: got %s want Synced", items[0].Status)
	}
	if len(sub.overwrites) != 1 {
		t.Fatalf("expected 1 overwrite, got %d", len(sub.overwrites))
	}
}

func TestDrain_ServerNewerSupersedesLocal(t *testing.T) {
	localAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	serverAt := localAt.Add(2 * time.Minute)

	sub := newFakeSubmitter()
	sub.conflicts[[2]int{1, 100}] = serverAt
	q := NewQueue("device-1", sub, nil)
	q.Enqueue(1, entryAt(1, 100, localAt))

	q.DrainOnce(context.Background())

	items := q.Items()
	if items[0].Status != ItemStatusSuperseded {
		t.Fatalf("status: got %s want Superseded", items[0].Status)
	}
	if len(sub.overwrites) != 0 {
		t.Fatalf("server copy must stand, got %d overwrites", len(sub.overwrites))
	}
	if len(items) != 1 {
		t.Fatal("superseded item must stay in the queue")
	}
}

func TestDrain_EqualTimestampsParkForAdjudication(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sub := newFakeSubmitter()
	sub.conflicts[[2]int{1, 100}] = at
	q := NewQueue("device-1", sub, nil)
	item := q.Enqueue(1, entryAt(1, 100, at))

	q.DrainOnce(context.Background())

	got := q.Items()[0]
	if got.Status != ItemStatusFailed || !got.Conflict {
		t.Fatalf("expected parked conflict, got status=%s conflict=%v", got.Status, got.Conflict)
	}
	if got.LastError != utils.CodeConflictAdjudication {
		t.Fatalf("last error: got %q", got.LastError)
	}

	// Operator keeps the local value.
	if err := q.ResolveConflict(context.Background(), item.ID, true); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if q.Items()[0].Status != ItemStatusSynced {
		t.Fatalf("after keepLocal: got %s want Synced", q.Items()[0].Status)
	}
	if len(sub.overwrites) != 1 {
		t.Fatalf("keepLocal must overwrite, got %d", len(sub.overwrites))
	}
}

func TestResolveConflict_KeepServer(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sub := newFakeSubmitter()
	sub.conflicts[[2]int{1, 100}] = at
	q := NewQueue("device-1", sub, nil)
	item := q.Enqueue(1, entryAt(1, 100, at))
	q.DrainOnce(context.Background())

	if err := q.ResolveConflict(context.Background(), item.ID, false); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if q.Items()[0].Status != ItemStatusSuperseded {
		t.Fatalf("got %s want Superseded", q.Items()[0].Status)
	}
	if len(sub.overwrites) != 0 {
		t.Fatal("keepServer must not overwrite")
	}
}

func TestDrain_TransientErrorRetriesToCeiling(t *testing.T) {
	sub := newFakeSubmitter()
	sub.failWith[[2]int{1, 100}] = errors.New("connection reset")
	q := NewQueue("device-1", sub, nil)
	q.MaxAttempts = 3
	q.Enqueue(1, entryAt(1, 100, time.Now().UTC()))

	for i := 0; i < 2; i++ {
		q.DrainOnce(context.Background())
		got := q.Items()[0]
		if got.Status != ItemStatusPending {
			t.Fatalf("pass %d: got %s want Pending", i+1, got.Status)
		}
		if got.Attempts != i+1 {
			t.Fatalf("pass %d: attempts %d", i+1, got.Attempts)
		}
	}

	q.DrainOnce(context.Background())
	got := q.Items()[0]
	if got.Status != ItemStatusFailed {
		t.Fatalf("after ceiling: got %s want Failed", got.Status)
	}
	if got.Conflict {
		t.Fatal("transient failure is not a conflict")
	}
	if len(q.Items()) != 1 {
		t.Fatal("failed item must never be dropped")
	}

	// And a Failed item can be requeued once the outage is over.
	delete(sub.failWith, [2]int{1, 100})
	if err := q.RetryItem(got.ID); err != nil {
		t.Fatalf("RetryItem: %v", err)
	}
	q.DrainOnce(context.Background())
	if q.Items()[0].Status != ItemStatusSynced {
		t.Fatalf("after retry: got %s want Synced", q.Items()[0].Status)
	}
}

func TestDrain_PermanentRejectionFailsImmediately(t *testing.T) {
	sub := newFakeSubmitter()
	sub.failWith[[2]int{1, 100}] = utils.NewStateError(utils.CodeInvalidState, "count is Completed")
	q := NewQueue("device-1", sub, nil)
	q.Enqueue(1, entryAt(1, 100, time.Now().UTC()))

	q.DrainOnce(context.Background())
	got := q.Items()[0]
	if got.Status != ItemStatusFailed {
		t.Fatalf("got %s want Failed", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts: got %d want 1", got.Attempts)
	}
}

func TestDrain_BatchSizeBoundsOnePass(t *testing.T) {
	sub := newFakeSubmitter()
	q := NewQueue("device-1", sub, nil)
	q.BatchSize = 2
	for i := 0; i < 5; i++ {
		q.Enqueue(1, entryAt(1, 100+i, time.Now().UTC()))
	}

	if settled := q.DrainOnce(context.Background()); settled != 2 {
		t.Fatalf("first pass settled %d, want 2", settled)
	}
	synced := 0
	for _, item := range q.Items() {
		if item.Status == ItemStatusSynced {
			synced++
		}
	}
	if synced != 2 {
		t.Fatalf("synced after first pass: %d", synced)
	}

	q.DrainOnce(context.Background())
	q.DrainOnce(context.Background())
	for i, item := range q.Items() {
		if item.Status != ItemStatusSynced {
			t.Fatalf("item %d not synced after three passes: %s", i, item.Status)
		}
	}
}

func TestEnqueue_StampsObservationTime(t *testing.T) {
	q := NewQueue("device-1", newFakeSubmitter(), nil)
	before := time.Now().UTC()
	item := q.Enqueue(1, models.NewCountEntry{LocationId: 1, ProductId: 100, CountedQty: decimal.NewFromInt(1)})
	if item.Entry.CountedAt.Before(before) {
		t.Fatal("zero CountedAt must be stamped at enqueue time")
	}
	if item.Entry.DeviceId != "device-1" {
		t.Fatalf("device id: got %q", item.Entry.DeviceId)
	}
}
