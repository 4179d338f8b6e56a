// Package storedrv defines the key-value storage driver contract the rest
// of the core is built on (spec.md §2): ordered byte keys in disjoint
// subspaces, get/iterate/write(batch)/delete_range/atomic_add/compare-and-
// clear. Every other package (batch, changelog, searchindex, purge, queue)
// talks to a Driver, never to a concrete backend.
package storedrv

import "context"

// Subspace is the single-byte tag prefixing every key in a logical class
// (spec.md §6). The set is an append-only registry: renumbering an existing
// tag is a breaking on-disk change.
type Subspace byte

const (
	SubspaceBitmapID    Subspace = 'b' // bitmap-id: (account, collection, document) -> presence
	SubspaceBitmapTag   Subspace = 'c' // bitmap-tag: (account, collection, field, tag, document)
	SubspaceBitmapText  Subspace = 'v' // bitmap-text: text-field membership bitmaps
	SubspaceIndex       Subspace = 'i' // secondary index keys
	SubspaceProperty    Subspace = 'p' // document archive values
	SubspaceCounter     Subspace = 'u' // atomic counters (document-id allocators, quotas)
	SubspaceInMemory    Subspace = 'm' // process-local ephemeral values
	SubspaceLog         Subspace = 'l' // change-log / vanished-item records
	SubspaceQueue       Subspace = 'q' // queue message archives
	SubspaceQueueEvent  Subspace = 'e' // queue-event(due, queue_id, queue_name) keys
	SubspaceBlobLink    Subspace = 'n' // blob hash/size links owned by a document
	SubspaceDirectory   Subspace = 'd' // directory / principal metadata
	SubspaceSearchIndex Subspace = 'g' // FTS term + field index keys
	SubspaceTaskQueue   Subspace = 't' // background task queue (e.g. send-iMIP)
	SubspaceTelemetry   Subspace = 'w' // telemetry / tracing index
)

// Txn is a single physical, all-or-nothing transaction handed to a batch
// commit-point segment.
type Txn interface {
	// Get returns the value for key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool, err error)
	Set(key, value []byte)
	Clear(key []byte)
	// ClearRange clears every key in [begin, end).
	ClearRange(begin, end []byte)
	// AtomicAdd adds delta to the little-endian int64 stored at key
	// (0 if absent) without requiring a prior Get in the same Txn.
	AtomicAdd(key []byte, delta int64)
}

// Driver is the storage engine contract: ordered byte-keys in disjoint
// subspaces, with transactional writes.
type Driver interface {
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Iterate calls fn for every key in [begin, end) in key order (or
	// reverse order when reverse is true), stopping early if fn returns
	// false.
	Iterate(ctx context.Context, begin, end []byte, reverse bool, fn func(k, v []byte) (bool, error)) error

	// Write executes fn against a fresh Txn as one physical transaction.
	// fn may be invoked more than once if the backend needs to retry
	// against a newer snapshot.
	Write(ctx context.Context, fn func(Txn) error) error

	DeleteRange(ctx context.Context, begin, end []byte) error

	// AtomicAdd adds delta to the little-endian int64 stored at key and
	// returns the resulting value.
	AtomicAdd(ctx context.Context, key []byte, delta int64) (int64, error)

	// CompareAndClear clears key iff its current little-endian int64 value
	// equals expect, returning whether the clear happened.
	CompareAndClear(ctx context.Context, key []byte, expect int64) (bool, error)

	Close() error
}

// MaxKey is an upper bound for range scans over a subspace: the subspace
// tag followed by 0xFF bytes sufficient to exceed any real key sharing the
// prefix.
func MaxKey(prefix []byte) []byte {
	end := make([]byte, len(prefix)+8)
	copy(end, prefix)
	for i := len(prefix); i < len(end); i++ {
		end[i] = 0xFF
	}
	return end
}
