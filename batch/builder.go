// Package batch implements the write pipeline (spec.md §4.1): an
// append-only sequence of typed operations applied against a sticky
// account/collection/document cursor, optimistic-concurrency assertions,
// atomic counters, user-defined set/merge closures, and commit-point
// splitting for backends with a per-transaction size ceiling.
package batch

import (
	"github.com/groupwave/corestore/changelog"
	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/stats"
	"github.com/groupwave/corestore/storedrv"
)

// Builder accumulates operations with a sticky cursor. Zero value is not
// usable; construct with New.
type Builder struct {
	drv storedrv.Driver
	cfg *cmn.Config

	accountID  uint32
	collection uint8
	documentID uint32

	ops []operation

	// runningSize/runningOps estimate the current segment's footprint so
	// push can insert automatic commit points once the configured
	// thresholds are reached.
	runningSize int64
	runningOps  int

	changes map[uint32]*changelog.ChangeSet

	metrics *stats.Registry
}

// SetMetrics attaches a Prometheus registry Commit reports segment retry
// and failure counts to. Safe to skip.
func (b *Builder) SetMetrics(m *stats.Registry) *Builder {
	b.metrics = m
	return b
}

// New constructs a Builder against drv, using cfg's thresholds (or the
// process-wide GCO config if cfg is nil).
func New(drv storedrv.Driver, cfg *cmn.Config) *Builder {
	if cfg == nil {
		cfg = cmn.GCO.Get()
	}
	return &Builder{
		drv:     drv,
		cfg:     cfg,
		changes: make(map[uint32]*changelog.ChangeSet),
	}
}

func (b *Builder) changeSet() *changelog.ChangeSet {
	cs, ok := b.changes[b.accountID]
	if !ok {
		cs = changelog.NewChangeSet()
		b.changes[b.accountID] = cs
	}
	return cs
}

// AccountID moves the cursor to accountID; subsequent ops apply to it.
func (b *Builder) AccountID(id uint32) *Builder { b.accountID = id; return b }

// Collection moves the cursor to collection.
func (b *Builder) Collection(c changelog.Collection) *Builder { b.collection = uint8(c); return b }

// DocumentID moves the cursor to documentID.
func (b *Builder) DocumentID(id uint32) *Builder { b.documentID = id; return b }

func (b *Builder) push(op operation) {
	// Auto-split: once the running segment crosses the configured
	// thresholds, insert an implicit commit point before the next op,
	// replaying the cursor at the start of the new segment (spec.md §4.1).
	if len(b.ops) > 0 && b.IsLargeBatch() {
		b.ops = append(b.ops, operation{kind: opCommitPoint})
		b.runningSize = 0
		b.runningOps = 0
	}

	op.accountID = b.accountID
	op.collection = b.collection
	op.documentID = b.documentID
	b.ops = append(b.ops, op)
	b.runningOps++
	b.runningSize += int64(len(op.value.bytes) + len(op.assertBytes) + len(op.indexKey) + len(op.logPayload))
}

// AssertValue aborts the current commit-point segment with AssertionFailed
// unless class's current value equals expected exactly.
func (b *Builder) AssertValue(class ValueClass, expected []byte) *Builder {
	b.push(operation{kind: opAssertValue, assertClass: class, assertBytes: expected})
	return b
}

// AssertAbsent aborts the segment unless class currently has no value.
func (b *Builder) AssertAbsent(class ValueClass) *Builder {
	b.push(operation{kind: opAssertValue, assertClass: class, assertAbsent: true})
	return b
}

// Set writes value verbatim under class, chunking it if it exceeds the
// configured max value size.
func (b *Builder) Set(class ValueClass, value []byte) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueSet, bytes: value}})
	return b
}

// SetFnc composes the value from params and the ids assigned so far in
// this commit, with no dependency on any prior value.
func (b *Builder) SetFnc(class ValueClass, fn SetFnc, params Params) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueSetFnc, setFnc: fn, params: params}})
	return b
}

// MergeFnc reads the existing value (nil if absent) inside the commit
// transaction and lets fn decide whether to update, delete, or skip it.
func (b *Builder) MergeFnc(class ValueClass, fn MergeFnc, params Params) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueMergeFnc, mergeFnc: fn, params: params}})
	return b
}

// AtomicAdd adds delta to class's signed 64-bit counter without reading it
// first; the result is not observable to this batch.
func (b *Builder) AtomicAdd(class ValueClass, delta int64) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueAtomicAdd, delta: delta}})
	return b
}

// AddAndGet adds delta to class's counter and exposes the resulting value
// through AssignedIds.LastCounter for subsequent SetFnc/MergeFnc calls in
// the same commit.
func (b *Builder) AddAndGet(class ValueClass, delta int64) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueAddAndGet, delta: delta}})
	return b
}

// Clear removes class's value (all chunks, if chunked).
func (b *Builder) Clear(class ValueClass) *Builder {
	b.push(operation{kind: opValue, class: class, value: valueOp{kind: valueClear}})
	return b
}

// Index adds (set=true) or removes (set=false) a secondary-index key for
// the document at the current cursor.
func (b *Builder) Index(field uint8, key []byte, set bool) *Builder {
	b.push(operation{kind: opIndex, field: field, indexKey: key, set: set})
	return b
}

// Unindex is sugar for Index(field, key, false).
func (b *Builder) Unindex(field uint8, key []byte) *Builder { return b.Index(field, key, false) }

// Tag sets (set=true) or clears membership of the current document in
// the bitmap-tag keyed by (field, tagValue) — e.g. tagging a message with
// TOMBSTONE_ID under the mailbox-ids field (spec.md §4.4).
func (b *Builder) Tag(field uint8, tagValue []byte, set bool) *Builder {
	b.push(operation{kind: opIndex, field: field, indexKey: tagValue, set: set, isBitmapTag: true})
	return b
}

// Untag is sugar for Tag(field, tagValue, false).
func (b *Builder) Untag(field uint8, tagValue []byte) *Builder { return b.Tag(field, tagValue, false) }

// --- change accumulation (spec.md §4.1 "Change accumulation") -----------

func (b *Builder) LogItemInsert(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogItemInsert(sc, id)
	return b
}
func (b *Builder) LogItemUpdate(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogItemUpdate(sc, id)
	return b
}
func (b *Builder) LogItemDelete(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogItemDelete(sc, id)
	return b
}
func (b *Builder) LogContainerInsert(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogContainerInsert(sc, id)
	return b
}
func (b *Builder) LogContainerUpdate(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogContainerUpdate(sc, id)
	return b
}
func (b *Builder) LogContainerDelete(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogContainerDelete(sc, id)
	return b
}
func (b *Builder) LogContainerPropertyUpdate(sc changelog.SyncCollection, id uint32) *Builder {
	b.changeSet().LogContainerPropertyUpdate(sc, id)
	return b
}
func (b *Builder) LogVanishedItem(vc changelog.VanishedCollection, item changelog.VanishedItem) *Builder {
	b.changeSet().LogVanishedItem(vc, item)
	return b
}

// CommitPoint inserts an explicit split: operations before it and after it
// run as separate physical transactions, replaying the current cursor at
// the start of the new segment (spec.md §4.1).
func (b *Builder) CommitPoint() *Builder {
	b.ops = append(b.ops, operation{kind: opCommitPoint})
	b.runningSize = 0
	b.runningOps = 0
	return b
}

// IsLargeBatch reports whether the current (uncommitted) segment has
// already crossed the auto-split thresholds; the next pushed operation is
// then preceded by an implicit commit point.
func (b *Builder) IsLargeBatch() bool {
	return b.runningSize >= b.cfg.MaxBatchSize || b.runningOps >= b.cfg.MaxBatchOps
}
