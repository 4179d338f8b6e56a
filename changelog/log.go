package changelog

import (
	"context"
	"encoding/binary"

	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storeerr"
)

// logKey mirrors batch's private key layout for the Log subspace, since
// changelog is the reader half of the same (account, stream, change_id)
// keyspace batch writes into.
func logKey(accountID uint32, stream uint8, changeID uint64) []byte {
	key := make([]byte, 0, 1+4+1+8)
	key = append(key, byte(storedrv.SubspaceLog))
	key = appendU32(key, accountID)
	key = append(key, stream)
	key = appendU64(key, changeID)
	return key
}

func changeIDCounterKey(accountID uint32) []byte {
	key := make([]byte, 0, 1+4+1+4+1)
	key = append(key, byte(storedrv.SubspaceCounter))
	key = appendU32(key, accountID)
	key = append(key, 0)
	key = appendU32(key, 0)
	key = append(key, 0xFF)
	return key
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func decodeU64Suffix(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// Reader serves the read-side operations of spec.md §4.2's sync substrate:
// current state watermark, incremental changes since a watermark, vanished
// tombstones, and retention trimming. It reads directly off a
// storedrv.Driver rather than going through batch, since none of these
// operations need the write pipeline's ordering or assertion guarantees.
type Reader struct {
	drv storedrv.Driver
}

func NewReader(drv storedrv.Driver) *Reader { return &Reader{drv: drv} }

// GetState returns the highest change id ever assigned to accountID, i.e.
// the watermark a client should remember as its current sync state.
func (r *Reader) GetState(ctx context.Context, accountID uint32) (uint64, error) {
	v, ok, err := r.drv.Get(ctx, changeIDCounterKey(accountID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, storeerr.New(storeerr.SchemaMismatch, "changelog: malformed change-id counter")
	}
	return binary.BigEndian.Uint64(v), nil
}

// Changes returns the merged change-set for stream since (exclusive)
// sinceID, implementing spec.md §4.2's "changes(account, sync_collection,
// since, limit) returns a merged change-set and the new cursor. The server
// compresses transitively (e.g., inserted-then-deleted collapses to
// neither)." Every persisted Record in (sinceID, upTo] is folded into one
// net Record via changelog.MergeRecords, so a resync spanning several
// commits never hands a caller raw, unmerged per-commit records.
//
// limit bounds how many individual change-id records are merged and read
// in one call; a non-positive limit means unbounded. When more records
// exist past the limit, cursor is the change id of the last record folded
// in (not the account's full current watermark) and hasMore is true — the
// caller should call Changes again with since=cursor to continue. When
// hasMore is false, cursor equals GetState's value at the time of the
// call.
func (r *Reader) Changes(ctx context.Context, accountID uint32, stream SyncCollection, sinceID uint64, limit int) (merged *Record, cursor uint64, hasMore bool, err error) {
	state, err := r.GetState(ctx, accountID)
	if err != nil {
		return nil, 0, false, err
	}

	lo := logKey(accountID, uint8(stream), sinceID+1)
	hi := logKey(accountID, uint8(stream), ^uint64(0))
	var records []*Record
	var lastID uint64
	iterErr := r.drv.Iterate(ctx, lo, hi, false, func(key, value []byte) (bool, error) {
		if limit > 0 && len(records) >= limit {
			return false, nil
		}
		changeID := decodeU64Suffix(key)
		rec, uerr := UnmarshalRecord(value)
		if uerr != nil {
			return false, uerr
		}
		records = append(records, rec)
		lastID = changeID
		return true, nil
	})
	if iterErr != nil {
		return nil, 0, false, iterErr
	}

	if limit > 0 && len(records) >= limit {
		// There may be more left past lastID; a second, cheap iterate just
		// checks for existence rather than re-reading and re-merging.
		more := false
		probeErr := r.drv.Iterate(ctx, logKey(accountID, uint8(stream), lastID+1), hi, false, func(_, _ []byte) (bool, error) {
			more = true
			return false, nil
		})
		if probeErr != nil {
			return nil, 0, false, probeErr
		}
		if more {
			return MergeRecords(records), lastID, true, nil
		}
	}
	return MergeRecords(records), state, false, nil
}

// Vanished returns every VanishedItem tombstoned on stream with change id
// greater than sinceID, flattened in change-id order.
func (r *Reader) Vanished(ctx context.Context, accountID uint32, stream VanishedCollection, sinceID uint64) ([]VanishedItem, error) {
	lo := logKey(accountID, uint8(stream)|vanishedStreamBit, sinceID+1)
	hi := logKey(accountID, uint8(stream)|vanishedStreamBit, ^uint64(0))
	var out []VanishedItem
	err := r.drv.Iterate(ctx, lo, hi, false, func(_, value []byte) (bool, error) {
		items, uerr := UnmarshalVanished(value)
		if uerr != nil {
			return false, uerr
		}
		out = append(out, items...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordKey returns the Log-subspace key a change Record is stored at.
// Exported so batch's commit path (the writer half of this keyspace) can
// place records at exactly the keys Reader expects.
func RecordKey(accountID uint32, stream SyncCollection, changeID uint64) []byte {
	return logKey(accountID, uint8(stream), changeID)
}

// VanishedKey returns the Log-subspace key a vanished-item batch is stored
// at for stream and changeID.
func VanishedKey(accountID uint32, stream VanishedCollection, changeID uint64) []byte {
	return logKey(accountID, uint8(stream)|vanishedStreamBit, changeID)
}

// ChangeIDCounterKey returns the Counter-subspace key holding accountID's
// change-id watermark.
func ChangeIDCounterKey(accountID uint32) []byte { return changeIDCounterKey(accountID) }

// vanishedStreamBit keeps vanished-tombstone entries for a SyncCollection in
// a disjoint key range from that same collection's item/container change
// records, while still sharing the Log subspace.
const vanishedStreamBit uint8 = 0x80

// DeleteChanges trims every Record and vanished-tombstone entry with
// change id <= uptoID, implementing spec.md §4.2's retention policy.
func (r *Reader) DeleteChanges(ctx context.Context, accountID uint32, stream SyncCollection, uptoID uint64) error {
	lo := logKey(accountID, uint8(stream), 0)
	hi := logKey(accountID, uint8(stream), uptoID+1)
	if err := r.drv.DeleteRange(ctx, lo, hi); err != nil {
		return err
	}
	vlo := logKey(accountID, uint8(stream)|vanishedStreamBit, 0)
	vhi := logKey(accountID, uint8(stream)|vanishedStreamBit, uptoID+1)
	return r.drv.DeleteRange(ctx, vlo, vhi)
}
