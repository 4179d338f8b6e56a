package purge

import (
	"context"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/groupwave/corestore/batch"
	"github.com/groupwave/corestore/changelog"
	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/lease"
	"github.com/groupwave/corestore/storedrv/memory"
)

const metaClass batch.Property = 1

type fakeFTS struct {
	removed []uint32
}

func (f *fakeFTS) Remove(_ context.Context, _ uint32, documentIDs []uint32) error {
	f.removed = append(f.removed, documentIDs...)
	return nil
}

// fakeBlobs is shared across the worker-pool goroutines purgeAll fans
// purgeOne out onto, so its state needs its own lock independent of
// whatever the driver does.
type fakeBlobs struct {
	mu       sync.Mutex
	unlinked []string
}

func (f *fakeBlobs) Unlink(_ context.Context, hash string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlinked = append(f.unlinked, hash)
	return nil
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unlinked)
}

func writeMetadata(t *testing.T, b *batch.Builder, accountID uint32, collection changelog.Collection, docID uint32, blobHash string) {
	t.Helper()
	v, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(Metadata{BlobHash: blobHash, BlobSize: 42})
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	b.AccountID(accountID).Collection(collection).DocumentID(docID)
	b.Set(metaClass, v)
}

func TestTombstoneDocumentTagsIndexesAndLogs(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	b := batch.New(drv, cfg)

	TombstoneDocument(b, 1, changelog.CollectionEmail, 5, 7, []byte("mailbox-idx-key"), 3, 99)
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ids, err := (&Job{drv: drv}).scanTombstoneBitmap(context.Background(), 1, uint8(changelog.CollectionEmail), 7)
	if err != nil {
		t.Fatalf("scanTombstoneBitmap: %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("scanTombstoneBitmap = %v, want [5]", ids)
	}
}

func TestAutoExpungeTombstonesOnlyMessagesPastHoldPeriod(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	b := batch.New(drv, cfg)

	old := MessageRef{DocumentID: 1, MailboxID: 10, UID: 1, ReceivedAt: time.Now().Add(-48 * time.Hour)}
	fresh := MessageRef{DocumentID: 2, MailboxID: 10, UID: 2, ReceivedAt: time.Now()}
	src := fakeSource{msgs: []MessageRef{old, fresh}}

	n, err := AutoExpunge(src, b, 1, 7, 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("AutoExpunge: %v", err)
	}
	if n != 1 {
		t.Fatalf("AutoExpunge tombstoned %d, want 1", n)
	}
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ids, err := (&Job{drv: drv}).scanTombstoneBitmap(context.Background(), 1, uint8(changelog.CollectionEmail), 7)
	if err != nil {
		t.Fatalf("scanTombstoneBitmap: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("scanTombstoneBitmap = %v, want [1]", ids)
	}
}

type fakeSource struct {
	msgs []MessageRef
}

func (f fakeSource) TrashJunkMessages(uint32) ([]MessageRef, error) { return f.msgs, nil }

func TestPurgeTombstonedClearsMetadataAndUnlinksBlob(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	leases := lease.New(time.Hour)
	defer leases.Stop()

	b := batch.New(drv, cfg)
	TombstoneDocument(b, 1, changelog.CollectionEmail, 5, 7, nil, 3, 99)
	writeMetadata(t, b, 1, changelog.CollectionEmail, 5, "deadbeef")
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fts := &fakeFTS{}
	blobs := &fakeBlobs{}
	job := NewJob(drv, leases, fts, blobs, cfg)

	purged, err := job.PurgeTombstoned(context.Background(), 1, changelog.CollectionEmail, 7, metaClass, 0)
	if err != nil {
		t.Fatalf("PurgeTombstoned: %v", err)
	}
	if purged != 1 {
		t.Fatalf("PurgeTombstoned purged %d, want 1", purged)
	}
	if len(fts.removed) != 1 || fts.removed[0] != 5 {
		t.Fatalf("fts.removed = %v, want [5]", fts.removed)
	}
	if len(blobs.unlinked) != 1 || blobs.unlinked[0] != "deadbeef" {
		t.Fatalf("blobs.unlinked = %v, want [deadbeef]", blobs.unlinked)
	}

	v, ok, err := drv.Get(context.Background(), batch.ValueKey(metaClass, 1, uint8(changelog.CollectionEmail), 5))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected metadata to be cleared, got %q", v)
	}
}

func TestPurgeTombstonedMovesBlobIntoUndeleteHoldInsteadOfUnlinking(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	leases := lease.New(time.Hour)
	defer leases.Stop()

	b := batch.New(drv, cfg)
	TombstoneDocument(b, 1, changelog.CollectionEmail, 5, 7, nil, 3, 99)
	writeMetadata(t, b, 1, changelog.CollectionEmail, 5, "deadbeef")
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fts := &fakeFTS{}
	blobs := &fakeBlobs{}
	job := NewJob(drv, leases, fts, blobs, cfg)

	purged, err := job.PurgeTombstoned(context.Background(), 1, changelog.CollectionEmail, 7, metaClass, 30)
	if err != nil {
		t.Fatalf("PurgeTombstoned: %v", err)
	}
	if purged != 1 {
		t.Fatalf("PurgeTombstoned purged %d, want 1", purged)
	}
	if len(blobs.unlinked) != 0 {
		t.Fatalf("expected no immediate unlink with an undelete hold configured, got %v", blobs.unlinked)
	}

	_, ok, err := drv.Get(context.Background(), batch.ValueKey(UndeleteArchive, 1, uint8(changelog.CollectionEmail), 5))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected an UndeleteArchive record to be written")
	}
}

func TestPurgeTombstonedSkipsWhenLeaseAlreadyHeld(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	leases := lease.New(time.Hour)
	defer leases.Stop()

	ok, err := leases.Acquire("purge:1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("pre-Acquire = %v, %v; want true, nil", ok, err)
	}

	job := NewJob(drv, leases, &fakeFTS{}, &fakeBlobs{}, cfg)
	purged, err := job.PurgeTombstoned(context.Background(), 1, changelog.CollectionEmail, 7, metaClass, 0)
	if err != nil {
		t.Fatalf("PurgeTombstoned: %v", err)
	}
	if purged != 0 {
		t.Fatalf("PurgeTombstoned purged %d while lease held, want 0", purged)
	}
}

func TestExpireUndeleteHoldsUnlinksOncePastHoldDays(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	leases := lease.New(time.Hour)
	defer leases.Stop()

	b := batch.New(drv, cfg)
	TombstoneDocument(b, 1, changelog.CollectionEmail, 5, 7, nil, 3, 99)
	writeMetadata(t, b, 1, changelog.CollectionEmail, 5, "deadbeef")
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	blobs := &fakeBlobs{}
	job := NewJob(drv, leases, &fakeFTS{}, blobs, cfg)
	if _, err := job.PurgeTombstoned(context.Background(), 1, changelog.CollectionEmail, 7, metaClass, 30); err != nil {
		t.Fatalf("PurgeTombstoned: %v", err)
	}

	// Hold window not yet elapsed: ExpireUndeleteHolds is a no-op.
	if err := job.ExpireUndeleteHolds(context.Background(), 1, changelog.CollectionEmail, 5, 30); err != nil {
		t.Fatalf("ExpireUndeleteHolds: %v", err)
	}
	if len(blobs.unlinked) != 0 {
		t.Fatalf("expected no unlink before the hold window elapses, got %v", blobs.unlinked)
	}

	// holdDays=0 means "already past the window" relative to the stored PurgedAt.
	if err := job.ExpireUndeleteHolds(context.Background(), 1, changelog.CollectionEmail, 5, 0); err != nil {
		t.Fatalf("ExpireUndeleteHolds: %v", err)
	}
	if len(blobs.unlinked) != 1 || blobs.unlinked[0] != "deadbeef" {
		t.Fatalf("blobs.unlinked = %v, want [deadbeef]", blobs.unlinked)
	}

	_, ok, err := drv.Get(context.Background(), batch.ValueKey(UndeleteArchive, 1, uint8(changelog.CollectionEmail), 5))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected the UndeleteArchive record to be cleared after expiry")
	}
}

// concurrencyTrackingBlobs counts concurrent Unlink calls, so tests can
// confirm purgeAll actually overlaps work instead of just not crashing
// when run with multiple documents.
type concurrencyTrackingBlobs struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	unlinked    []string
}

func (f *concurrencyTrackingBlobs) Unlink(_ context.Context, hash string, _ int64) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.unlinked = append(f.unlinked, hash)
	f.mu.Unlock()
	return nil
}

func TestPurgeTombstonedRunsDocumentsConcurrentlyBoundedByPurgeWorkers(t *testing.T) {
	drv := memory.New()
	cfg := cmn.DefaultConfig()
	cfg.PurgeWorkers = 2
	leases := lease.New(time.Hour)
	defer leases.Stop()

	const docCount = 6
	b := batch.New(drv, cfg)
	for i := uint32(1); i <= docCount; i++ {
		TombstoneDocument(b, 1, changelog.CollectionEmail, i, 7, nil, 3, 99)
		writeMetadata(t, b, 1, changelog.CollectionEmail, i, "hash")
	}
	if _, err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	blobs := &concurrencyTrackingBlobs{}
	job := NewJob(drv, leases, &fakeFTS{}, blobs, cfg)

	purged, err := job.PurgeTombstoned(context.Background(), 1, changelog.CollectionEmail, 7, metaClass, 0)
	if err != nil {
		t.Fatalf("PurgeTombstoned: %v", err)
	}
	if purged != docCount {
		t.Fatalf("PurgeTombstoned purged %d, want %d", purged, docCount)
	}
	if len(blobs.unlinked) != docCount {
		t.Fatalf("blobs.unlinked = %v, want %d entries", blobs.unlinked, docCount)
	}
	if blobs.maxInFlight < 2 {
		t.Fatalf("maxInFlight = %d, want at least 2 (purgeOne calls should overlap)", blobs.maxInFlight)
	}
	if blobs.maxInFlight > cfg.PurgeWorkers {
		t.Fatalf("maxInFlight = %d, want at most PurgeWorkers=%d", blobs.maxInFlight, cfg.PurgeWorkers)
	}
}
