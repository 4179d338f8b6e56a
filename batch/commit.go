package batch

import (
	"context"
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/groupwave/corestore/changelog"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storeerr"
)

// chunkRangeEnd is an exclusive upper bound covering base (chunk 0) and
// every possible single-byte chunk suffix 0x00..0xFF appended to it.
func chunkRangeEnd(base []byte) []byte {
	end := make([]byte, len(base)+2)
	copy(end, base)
	end[len(base)] = 0xFF
	end[len(base)+1] = 0xFF
	return end
}

// writeValue stores value under class's key, chunked across consecutive
// keys if it exceeds maxValueSize (spec.md §4.1's chunking rule: chunk 0
// reuses the base key).
func writeValue(txn storedrv.Txn, class ValueClass, accountID uint32, collection uint8, documentID uint32, value []byte, maxValueSize int) error {
	base := valueKey(class, accountID, collection, documentID)
	if maxValueSize <= 0 || len(value) <= maxValueSize {
		txn.Set(base, value)
		return nil
	}
	nChunks := (len(value) + maxValueSize - 1) / maxValueSize
	if nChunks > 256 {
		return storeerr.New(storeerr.ValueTooLarge, "batch: value exceeds 256 chunks")
	}
	for i := 0; i < nChunks; i++ {
		lo := i * maxValueSize
		hi := lo + maxValueSize
		if hi > len(value) {
			hi = len(value)
		}
		key := base
		if i > 0 {
			key = append(append([]byte{}, base...), byte(i))
		}
		txn.Set(key, value[lo:hi])
	}
	return nil
}

// readValue reassembles a possibly-chunked value by sequentially fetching
// chunk 0 (the base key) then chunk 1, 2, ... until one is absent.
func readValue(txn storedrv.Txn, class ValueClass, accountID uint32, collection uint8, documentID uint32) ([]byte, bool, error) {
	base := valueKey(class, accountID, collection, documentID)
	first, ok, err := txn.Get(base)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := first
	for i := 1; i < 256; i++ {
		key := append(append([]byte{}, base...), byte(i))
		v, ok, err := txn.Get(key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		out = append(out, v...)
	}
	return out, true, nil
}

func clearValue(txn storedrv.Txn, class ValueClass, accountID uint32, collection uint8, documentID uint32) {
	base := valueKey(class, accountID, collection, documentID)
	txn.ClearRange(base, chunkRangeEnd(base))
}

// segments splits the accumulated ops at each opCommitPoint boundary.
func (b *Builder) segments() [][]operation {
	var out [][]operation
	var cur []operation
	for _, op := range b.ops {
		if op.kind == opCommitPoint {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, op)
	}
	out = append(out, cur)
	return out
}

// changeIDSegment returns one opAssignChangeID per account with pending
// changelog activity in this commit, meant to run as the commit's *first*
// segment. spec.md §4.1 requires the change id to be "exposed to SetFnc via
// assigned_ids.current_change_id()" — which only works if the id is minted
// before any user segment runs, not after (that would make it available
// only to the trailing Log segment itself).
func (b *Builder) changeIDSegment() []operation {
	var ops []operation
	for accountID, cs := range b.changes {
		if cs.IsEmpty() {
			continue
		}
		ops = append(ops, operation{kind: opAssignChangeID, accountID: accountID})
	}
	return ops
}

// logSegment serializes every account's accumulated changelog.ChangeSet
// into Log operations, appended as the commit's final segment. By the time
// this segment runs, changeIDSegment has already assigned and persisted
// each account's change id; these ops only need to write the records that
// reference it.
func (b *Builder) logSegment() []operation {
	var ops []operation
	for accountID, cs := range b.changes {
		if cs.IsEmpty() {
			continue
		}
		for _, sc := range cs.Collections() {
			changes := cs.Changes(sc)
			if changes.HasItemChanges() || changes.HasContainerChanges() {
				ops = append(ops, operation{
					kind:          opLog,
					accountID:     accountID,
					logCollection: uint8(sc),
					logPayload:    changes.ToRecord().Marshal(),
				})
			}
		}
		for _, vc := range cs.VanishedCollections() {
			items := cs.Vanished(vc)
			if len(items) == 0 {
				continue
			}
			ops = append(ops, operation{
				kind:          opLog,
				accountID:     accountID,
				logCollection: uint8(vc),
				logIsVanished: true,
				logPayload:    changelog.MarshalVanished(items),
			})
		}
	}
	return ops
}

// Commit executes every accumulated operation, segment by segment, against
// the driver. Returns the ids assigned during the commit (per-account
// change ids and AddAndGet results). A segment's failure (AssertionFailed,
// ValueTooLarge, or an unrecoverable backend error) stops the commit;
// segments already applied are not rolled back (spec.md §4.1's "a returned
// error leaves no partial commit-point segments pending beyond those
// already acknowledged").
func (b *Builder) Commit(ctx context.Context) (*AssignedIds, error) {
	ids := newAssignedIds()

	// Mint every touched account's change id up front, before any user
	// segment runs, so SetFnc/MergeFnc closures in segment 0 can already
	// observe it via AssignedIds.CurrentChangeID.
	if seg := b.changeIDSegment(); len(seg) > 0 {
		if err := b.commitSegment(ctx, seg, ids); err != nil {
			return ids, err
		}
	}

	segs := b.segments()
	if logOps := b.logSegment(); len(logOps) > 0 {
		segs = append(segs, logOps)
	}

	for _, seg := range segs {
		if len(seg) == 0 {
			continue
		}
		if err := b.commitSegment(ctx, seg, ids); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

func (b *Builder) commitSegment(ctx context.Context, seg []operation, ids *AssignedIds) error {
	deadline := time.Now().Add(b.cfg.MaxCommitTime)
	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxCommitAttempts; attempt++ {
		err := b.drv.Write(ctx, func(txn storedrv.Txn) error {
			return b.applySegment(txn, seg, ids)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !storeerr.Is(err, storeerr.BackendUnavailable) {
			return err
		}
		if b.metrics != nil {
			b.metrics.BatchCommitRetryN.Inc()
		}
		if time.Now().After(deadline) {
			break
		}
		backoff := time.Duration(50+rand.Intn(250)) * time.Millisecond
		glog.V(4).Infof("batch: commit attempt %d failed with transient error, retrying in %s: %v", attempt, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	if b.metrics != nil {
		b.metrics.BatchCommitFailuresN.Inc()
	}
	return storeerr.Wrap(storeerr.AssertionFailed, lastErr, "batch: commit exceeded retry budget")
}

func (b *Builder) applySegment(txn storedrv.Txn, seg []operation, ids *AssignedIds) error {
	for _, op := range seg {
		if err := b.applyOp(txn, op, ids); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) applyOp(txn storedrv.Txn, op operation, ids *AssignedIds) error {
	switch op.kind {
	case opAssertValue:
		return applyAssert(txn, op)
	case opValue:
		return b.applyValue(txn, op, ids)
	case opIndex:
		return applyIndex(txn, op)
	case opLog:
		return b.applyLog(txn, op, ids)
	case opAssignChangeID:
		return b.applyAssignChangeID(txn, op, ids)
	default:
		return nil
	}
}

func applyAssert(txn storedrv.Txn, op operation) error {
	base := valueKey(op.assertClass, op.accountID, op.collection, op.documentID)
	cur, ok, err := txn.Get(base)
	if err != nil {
		return err
	}
	if op.assertAbsent {
		if ok {
			return storeerr.New(storeerr.AssertionFailed, "batch: expected value absent").WithContext(op.accountID, collName(op.collection), op.documentID)
		}
		return nil
	}
	if !ok || string(cur) != string(op.assertBytes) {
		return storeerr.New(storeerr.AssertionFailed, "batch: asserted value mismatch").WithContext(op.accountID, collName(op.collection), op.documentID)
	}
	return nil
}

func applyIndex(txn storedrv.Txn, op operation) error {
	var key []byte
	if op.isBitmapTag {
		key = bitmapTagKey(op.accountID, op.collection, op.field, op.indexKey, op.documentID)
	} else {
		key = indexKey(op.accountID, op.collection, op.documentID, op.field, op.indexKey)
	}
	if op.set {
		txn.Set(key, []byte{})
	} else {
		txn.Clear(key)
	}
	return nil
}

func (b *Builder) applyValue(txn storedrv.Txn, op operation, ids *AssignedIds) error {
	maxValueSize := b.cfg.MaxValueSize
	switch op.value.kind {
	case valueSet:
		return writeValue(txn, op.class, op.accountID, op.collection, op.documentID, op.value.bytes, maxValueSize)
	case valueClear:
		clearValue(txn, op.class, op.accountID, op.collection, op.documentID)
		return nil
	case valueSetFnc:
		ids.documentID = op.documentID
		bytes, err := op.value.setFnc(op.value.params, ids)
		if err != nil {
			return err
		}
		return writeValue(txn, op.class, op.accountID, op.collection, op.documentID, bytes, maxValueSize)
	case valueMergeFnc:
		ids.documentID = op.documentID
		existing, ok, err := readValue(txn, op.class, op.accountID, op.collection, op.documentID)
		if err != nil {
			return err
		}
		var existingArg []byte
		if ok {
			existingArg = existing
		}
		result, err := op.value.mergeFnc(op.value.params, ids, existingArg)
		if err != nil {
			return err
		}
		switch result.kind {
		case mergeUpdate:
			return writeValue(txn, op.class, op.accountID, op.collection, op.documentID, result.Value, maxValueSize)
		case mergeDelete:
			clearValue(txn, op.class, op.accountID, op.collection, op.documentID)
			return nil
		default: // mergeSkip
			return nil
		}
	case valueAtomicAdd:
		txn.AtomicAdd(valueKey(op.class, op.accountID, op.collection, op.documentID), op.value.delta)
		return nil
	case valueAddAndGet:
		key := valueKey(op.class, op.accountID, op.collection, op.documentID)
		cur, ok, err := txn.Get(key)
		if err != nil {
			return err
		}
		var curVal int64
		if ok {
			curVal = decodeCounter(cur)
		}
		newVal := curVal + op.value.delta
		txn.Set(key, encodeCounter(newVal))
		ids.pushCounter(newVal)
		return nil
	}
	return nil
}

// applyAssignChangeID bumps op.accountID's change-id counter and records the
// result in ids, so that every later segment in this commit (including the
// trailing Log segment) observes the same minted id.
func (b *Builder) applyAssignChangeID(txn storedrv.Txn, op operation, ids *AssignedIds) error {
	if _, already := ids.changeIDs[op.accountID]; already {
		return nil
	}
	counterKey := changelog.ChangeIDCounterKey(op.accountID)
	cur, ok, err := txn.Get(counterKey)
	if err != nil {
		return err
	}
	var curVal uint64
	if ok {
		curVal = decodeU64(cur)
	}
	changeID := curVal + 1
	txn.Set(counterKey, encodeU64(changeID))
	ids.changeIDs[op.accountID] = changeID
	return nil
}

func (b *Builder) applyLog(txn storedrv.Txn, op operation, ids *AssignedIds) error {
	changeID := ids.changeIDs[op.accountID]

	var key []byte
	if op.logIsVanished {
		key = changelog.VanishedKey(op.accountID, changelog.VanishedCollection(op.logCollection), changeID)
	} else {
		key = changelog.RecordKey(op.accountID, changelog.SyncCollection(op.logCollection), changeID)
	}
	txn.Set(key, op.logPayload)
	return nil
}

func collName(c uint8) string { return changelog.Collection(c).String() }
