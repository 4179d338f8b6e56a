package purge

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/groupwave/corestore/batch"
	"github.com/groupwave/corestore/changelog"
	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/lease"
	"github.com/groupwave/corestore/stats"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storeerr"
)

// FTSRemover clears a search index's derived keys for a set of documents,
// the seam purge needs into searchindex without importing it directly
// (searchindex in turn depends on storedrv, not on purge).
type FTSRemover interface {
	Remove(ctx context.Context, accountID uint32, documentIDs []uint32) error
}

// BlobUnlinker releases a blob previously referenced by a document's
// archive, the seam purge needs into blobstore.
type BlobUnlinker interface {
	Unlink(ctx context.Context, hash string, size int64) error
}

// Metadata is the minimal per-document record purge needs to recover
// before clearing a document's archive: the blob it owns, if any.
type Metadata struct {
	BlobHash string `json:"blob_hash,omitempty"`
	BlobSize int64  `json:"blob_size,omitempty"`
}

var jsonMeta = jsoniter.ConfigCompatibleWithStandardLibrary

// MetadataClass is the Property id the metadata archive (recovered for
// blob hash/size before a purge unlink) is stored under. Callers that
// write documents choose their own property numbering; purge only needs
// to agree with them on which property holds Metadata.
type MetadataClass = batch.Property

// UndeleteArchive is the Property class purge moves a document's blob
// link into when an undelete-hold window is configured, instead of
// unlinking immediately (original_source/http/src/management/enterprise/
// undelete.rs, supplementing spec.md §4.4 per SPEC_FULL.md §2.5).
const UndeleteArchive MetadataClass = 0xFFFE

// Job runs the lease-guarded reclaim pass for one account.
type Job struct {
	drv     storedrv.Driver
	leases  *lease.Store
	fts     FTSRemover
	blobs   BlobUnlinker
	cfg     *cmn.Config
	metrics *stats.Registry
}

func NewJob(drv storedrv.Driver, leases *lease.Store, fts FTSRemover, blobs BlobUnlinker, cfg *cmn.Config) *Job {
	if cfg == nil {
		cfg = cmn.GCO.Get()
	}
	return &Job{drv: drv, leases: leases, fts: fts, blobs: blobs, cfg: cfg}
}

// SetMetrics attaches a Prometheus registry PurgeTombstoned reports
// tombstoned/purged/error counts to. Safe to skip.
func (j *Job) SetMetrics(m *stats.Registry) { j.metrics = m }

// PurgeTombstoned implements spec.md §4.4's "Purge" and "Lease discipline"
// steps: acquire purge:<account_id>, scan the tombstone bitmap, clear the
// FTS index, then per document recover blob hash/size from metaClass,
// clear metaClass, and unlink the blob (or move it into an undelete hold
// if undeleteHoldDays > 0). Only the metaClass property is cleared: the
// document's other properties and its index and bitmap-tag keys,
// including the tombstone tag itself, are left in place.
func (j *Job) PurgeTombstoned(ctx context.Context, accountID uint32, collection changelog.Collection, mailboxField uint8, metaClass MetadataClass, undeleteHoldDays int) (purged int, err error) {
	leaseName := leaseNameFor(accountID)
	ok, err := j.leases.Acquire(leaseName, j.cfg.PurgeLeaseTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		glog.V(3).Infof("purge: account %d already in progress, skipping", accountID)
		return 0, nil
	}
	defer func() {
		j.leases.Release(leaseName)
	}()

	docIDs, err := j.scanTombstoneBitmap(ctx, accountID, uint8(collection), mailboxField)
	if err != nil {
		return 0, err
	}
	if len(docIDs) == 0 {
		return 0, nil
	}
	if j.metrics != nil {
		j.metrics.PurgeTombstonedN.Add(float64(len(docIDs)))
	}

	if err := j.fts.Remove(ctx, accountID, docIDs); err != nil {
		return 0, err
	}

	purged = j.purgeAll(ctx, accountID, collection, metaClass, docIDs, undeleteHoldDays)
	if j.metrics != nil {
		j.metrics.PurgePurgedN.Add(float64(purged))
	}
	return purged, nil
}

// purgeAll fans purgeOne out across docIDs, bounded by cfg.PurgeWorkers
// (spec.md §5's "worker pools (purge, delivery) run in parallel across
// tasks bounded by explicit semaphores", grounded on the teacher's
// fs/mpather.joggerSyncGroup: an errgroup.Group paired with a buffered
// channel as the semaphore). A single document's failure is logged and
// counted, never aborts its siblings — matching the sequential loop this
// replaces, which also never stopped early on a per-document error.
func (j *Job) purgeAll(ctx context.Context, accountID uint32, collection changelog.Collection, metaClass MetadataClass, docIDs []uint32, undeleteHoldDays int) int {
	workers := j.cfg.PurgeWorkers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	var mu sync.Mutex
	purged := 0

	for _, docID := range docIDs {
		docID := docID
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if err := j.purgeOne(gctx, accountID, collection, metaClass, docID, undeleteHoldDays); err != nil {
				glog.Errorf("purge: account %d document %d: %v", accountID, docID, err)
				if j.metrics != nil {
					j.metrics.PurgeErrorsN.Inc()
				}
				return nil
			}
			mu.Lock()
			purged++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return purged
}

func (j *Job) scanTombstoneBitmap(ctx context.Context, accountID uint32, collection uint8, mailboxField uint8) ([]uint32, error) {
	begin, end := batch.BitmapTagRange(accountID, collection, mailboxField, TombstoneID)
	var ids []uint32
	err := j.drv.Iterate(ctx, begin, end, false, func(k, _ []byte) (bool, error) {
		ids = append(ids, batch.DecodeBitmapTagDocumentID(k))
		return true, nil
	})
	return ids, err
}

func (j *Job) purgeOne(ctx context.Context, accountID uint32, collection changelog.Collection, metaClass MetadataClass, docID uint32, undeleteHoldDays int) error {
	b := batch.New(j.drv, j.cfg)
	b.AccountID(accountID).Collection(collection).DocumentID(docID)

	meta, err := j.readMetadata(ctx, accountID, uint8(collection), metaClass, docID)
	if err != nil && !storeerr.Is(err, storeerr.NotFound) {
		return err
	}

	b.Clear(metaClass)
	switch {
	case undeleteHoldDays > 0 && meta.BlobHash != "":
		held, merr := jsonMeta.Marshal(undeleteRecord{Metadata: meta, PurgedAt: time.Now()})
		if merr != nil {
			return merr
		}
		b.Set(UndeleteArchive, held)
	case meta.BlobHash != "":
		if err := j.blobs.Unlink(ctx, meta.BlobHash, meta.BlobSize); err != nil {
			return err
		}
	}

	_, err = b.Commit(ctx)
	return err
}

type undeleteRecord struct {
	Metadata
	PurgedAt time.Time `json:"purged_at"`
}

func (j *Job) readMetadata(ctx context.Context, accountID uint32, collection uint8, class MetadataClass, docID uint32) (Metadata, error) {
	var meta Metadata
	v, ok, err := j.drv.Get(ctx, batch.ValueKey(class, accountID, collection, docID))
	if err != nil {
		return meta, err
	}
	if !ok {
		return meta, storeerr.New(storeerr.NotFound, "purge: no metadata")
	}
	if err := jsonMeta.Unmarshal(v, &meta); err != nil {
		return meta, storeerr.Wrap(storeerr.SchemaMismatch, err, "purge: malformed metadata")
	}
	return meta, nil
}

func leaseNameFor(accountID uint32) string {
	return "purge:" + itoa(accountID)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ExpireUndeleteHolds performs the real unlink for every UndeleteArchive
// record whose purge time is older than holdDays (SPEC_FULL.md §2.5's
// undelete-hold supplement).
func (j *Job) ExpireUndeleteHolds(ctx context.Context, accountID uint32, collection changelog.Collection, docID uint32, holdDays int) error {
	v, ok, err := j.drv.Get(ctx, batch.ValueKey(UndeleteArchive, accountID, uint8(collection), docID))
	if err != nil || !ok {
		return err
	}
	var rec undeleteRecord
	if err := jsonMeta.Unmarshal(v, &rec); err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "purge: malformed undelete record")
	}
	if time.Since(rec.PurgedAt) < time.Duration(holdDays)*24*time.Hour {
		return nil
	}
	if rec.BlobHash != "" {
		if err := j.blobs.Unlink(ctx, rec.BlobHash, rec.BlobSize); err != nil {
			return err
		}
	}
	b := batch.New(j.drv, j.cfg)
	b.AccountID(accountID).Collection(collection).DocumentID(docID)
	b.Clear(UndeleteArchive)
	_, err = b.Commit(ctx)
	return err
}
