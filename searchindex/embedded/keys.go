// Package embedded implements searchindex.Driver directly against a
// storedrv.Driver's SearchIndex subspace (spec.md §4.3's embedded
// driver), grounded on the original's store/src/search/term.rs term-index
// keyspace.
package embedded

import (
	"encoding/binary"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/storedrv"
)

// Three key tags share storedrv.SubspaceSearchIndex, each ordered to
// support the scan pattern its query path needs:
//
//	tagArchive: (account, kind, document) -> TermIndex.Marshal()
//	tagTerm:    (account, kind, hash, field, document) -> empty
//	tagField:   (account, kind, field, bytes, document) -> empty
const (
	tagArchive byte = 0
	tagTerm    byte = 1
	tagField   byte = 2
)

func archiveKey(accountID uint32, kind searchindex.Kind, documentID uint32) []byte {
	k := make([]byte, 0, 1+1+4+1+4)
	k = append(k, byte(storedrv.SubspaceSearchIndex), tagArchive)
	k = appendU32(k, accountID)
	k = append(k, byte(kind))
	k = appendU32(k, documentID)
	return k
}

func termKey(accountID uint32, kind searchindex.Kind, hash uint64, field searchindex.FieldID, documentID uint32) []byte {
	k := make([]byte, 0, 1+1+4+1+8+1+4)
	k = append(k, byte(storedrv.SubspaceSearchIndex), tagTerm)
	k = appendU32(k, accountID)
	k = append(k, byte(kind))
	k = appendU64(k, hash)
	k = append(k, byte(field))
	k = appendU32(k, documentID)
	return k
}

// termRange returns the [begin, end) range of every document carrying
// hash under field, for query-time enumeration.
func termRange(accountID uint32, kind searchindex.Kind, hash uint64, field searchindex.FieldID) (begin, end []byte) {
	prefix := make([]byte, 0, 1+1+4+1+8+1)
	prefix = append(prefix, byte(storedrv.SubspaceSearchIndex), tagTerm)
	prefix = appendU32(prefix, accountID)
	prefix = append(prefix, byte(kind))
	prefix = appendU64(prefix, hash)
	prefix = append(prefix, byte(field))
	return prefix, storedrv.MaxKey(prefix)
}

func fieldKey(accountID uint32, kind searchindex.Kind, field searchindex.FieldID, value []byte, documentID uint32) []byte {
	k := make([]byte, 0, 1+1+4+1+1+len(value)+4)
	k = append(k, byte(storedrv.SubspaceSearchIndex), tagField)
	k = appendU32(k, accountID)
	k = append(k, byte(kind))
	k = append(k, byte(field))
	k = append(k, value...)
	k = appendU32(k, documentID)
	return k
}

// fieldPrefixRange returns the [begin, end) range of every (value,
// document) pair stored for field — the full scan a LowerThan/
// GreaterThan/range operator walks.
func fieldPrefixRange(accountID uint32, kind searchindex.Kind, field searchindex.FieldID) (begin, end []byte) {
	prefix := make([]byte, 0, 1+1+4+1+1)
	prefix = append(prefix, byte(storedrv.SubspaceSearchIndex), tagField)
	prefix = appendU32(prefix, accountID)
	prefix = append(prefix, byte(kind))
	prefix = append(prefix, byte(field))
	return prefix, storedrv.MaxKey(prefix)
}

// decodeFieldKeyTail splits a key produced by fieldKey back into (value,
// documentID), given the known prefix length.
func decodeFieldKeyTail(key []byte, prefixLen int) (value []byte, documentID uint32) {
	tail := key[prefixLen:]
	value = tail[:len(tail)-4]
	documentID = binary.BigEndian.Uint32(tail[len(tail)-4:])
	return
}

func decodeTermKeyDocumentID(key []byte) uint32 {
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
