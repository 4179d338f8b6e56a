package batch

import (
	"encoding/binary"

	"github.com/groupwave/corestore/storedrv"
)

// ValueClass identifies a class of stored value (spec.md §3's "Counter
// key"/"Index key" families generalized): a subspace plus a class-specific
// suffix. Document archives, counters, queue messages, search-index
// entries, and directory records are all ValueClasses; searchindex and
// queue define their own concrete classes against this same interface so
// batch stays domain-agnostic.
type ValueClass interface {
	Subspace() storedrv.Subspace
	// KeyBytes returns the class-specific suffix appended after
	// account/collection/document in the serialized key.
	KeyBytes() []byte
}

// Property is an arbitrary per-document archive value (the Document
// "Archive value" of spec.md §3), identified by a small numeric property id
// (e.g. the main object archive, metadata, or a named side-table).
type Property uint16

func (p Property) Subspace() storedrv.Subspace { return storedrv.SubspaceProperty }
func (p Property) KeyBytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(p))
	return b
}

// Counter identifies a signed 64-bit atomic counter class (spec.md §3's
// "Counter key"), e.g. a document-id allocator or a quota class.
type Counter uint8

func (c Counter) Subspace() storedrv.Subspace { return storedrv.SubspaceCounter }
func (c Counter) KeyBytes() []byte             { return []byte{byte(c)} }

// changeIDClassByte reserves one counter-class byte for the per-account
// change-id counter so it shares the Counter subspace's key layout while
// remaining unambiguous against caller-defined Counter classes.
const changeIDClassByte = 0xFF

// InMemory identifies a process-local ephemeral value (leases, locked
// message state) that never needs to survive a restart but is convenient
// to model through the same batch/driver path.
type InMemory uint16

func (m InMemory) Subspace() storedrv.Subspace { return storedrv.SubspaceInMemory }
func (m InMemory) KeyBytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(m))
	return b
}

// valueKey serializes the (subspace, account, collection, document, class)
// tuple into a single ordered byte key, per spec.md §6's "concatenate
// big-endian integers and tag bytes" rule.
func valueKey(class ValueClass, accountID uint32, collection uint8, documentID uint32) []byte {
	suffix := class.KeyBytes()
	key := make([]byte, 0, 1+4+1+4+len(suffix))
	key = append(key, byte(class.Subspace()))
	key = appendU32(key, accountID)
	key = append(key, collection)
	key = appendU32(key, documentID)
	key = append(key, suffix...)
	return key
}

func changeIDKey(accountID uint32) []byte {
	key := make([]byte, 0, 1+4+1+4+1)
	key = append(key, byte(storedrv.SubspaceCounter))
	key = appendU32(key, accountID)
	key = append(key, 0) // collection
	key = appendU32(key, 0)
	key = append(key, changeIDClassByte)
	return key
}

// indexKey serializes an Index key (spec.md §3): (account, collection,
// document, field, key-bytes).
func indexKey(accountID uint32, collection uint8, documentID uint32, field uint8, keyBytes []byte) []byte {
	key := make([]byte, 0, 1+4+1+4+1+len(keyBytes))
	key = append(key, byte(storedrv.SubspaceIndex))
	key = appendU32(key, accountID)
	key = append(key, collection)
	key = appendU32(key, documentID)
	key = append(key, field)
	key = append(key, keyBytes...)
	return key
}

// bitmapTagKey serializes a Bitmap-tag key (spec.md §3): (account,
// collection, field, tag-value, document). It is the counterpart to
// indexKey for set-valued fields, ordered by tag-value first so a scan can
// enumerate every document carrying a given tag.
func bitmapTagKey(accountID uint32, collection uint8, field uint8, tagValue []byte, documentID uint32) []byte {
	key := make([]byte, 0, 1+4+1+1+len(tagValue)+4)
	key = append(key, byte(storedrv.SubspaceBitmapTag))
	key = appendU32(key, accountID)
	key = append(key, collection)
	key = append(key, field)
	key = append(key, tagValue...)
	key = appendU32(key, documentID)
	return key
}

// logKey serializes a Change-log / Vanished entry key (spec.md §4.2):
// (account, sync_collection|vanished_collection, change_id).
func logKey(accountID uint32, collection uint8, changeID uint64) []byte {
	key := make([]byte, 0, 1+4+1+8)
	key = append(key, byte(storedrv.SubspaceLog))
	key = appendU32(key, accountID)
	key = append(key, collection)
	key = appendU64(key, changeID)
	return key
}

// ValueKey exposes valueKey's serialization for callers (e.g. purge) that
// need to read a class's raw value straight off the driver, outside of a
// batch-managed transaction.
func ValueKey(class ValueClass, accountID uint32, collection uint8, documentID uint32) []byte {
	return valueKey(class, accountID, collection, documentID)
}

// BitmapTagRange returns the [begin, end) key range covering every
// document tagged with tagValue under (accountID, collection, field) —
// exported so packages like purge can scan the tombstone bitmap without
// duplicating batch's private key layout.
func BitmapTagRange(accountID uint32, collection uint8, field uint8, tagValue []byte) (begin, end []byte) {
	begin = bitmapTagKey(accountID, collection, field, tagValue, 0)
	prefix := begin[:len(begin)-4]
	return begin, storedrv.MaxKey(prefix)
}

// DecodeBitmapTagDocumentID extracts the trailing document id from a
// bitmap-tag key produced by BitmapTagRange's scan.
func DecodeBitmapTagDocumentID(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[len(key)-4:])
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

// encodeCounter/decodeCounter store a signed 64-bit counter value as
// big-endian bytes (spec.md §3's Counter key: "signed 64-bit atomic").
func encodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeCounter(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
