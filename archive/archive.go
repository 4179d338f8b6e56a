// Package archive implements the self-describing, versioned record format
// spec.md §9 requires for every stored Document/TermIndex/Message value: a
// version word (the payload's schema) and a change-id watermark, stored in a
// msgp-encoded header ahead of the payload bytes (not in a trailer after
// them). Readers must refuse mismatched
// versions and must never partially deserialize a corrupt envelope.
package archive

import (
	"github.com/pierrec/lz4/v3"
	"github.com/tinylib/msgp/msgp"

	"github.com/groupwave/corestore/storeerr"
)

// compressThreshold matches the teacher's shard-compression policy
// (ext/dsort/shard/tarlz4.go): payloads smaller than this aren't worth the
// LZ4 framing overhead.
const compressThreshold = 256

// Envelope is the on-disk wrapper around every archive value: a version
// word identifying the payload schema, a change-id watermark that must be
// monotonically non-decreasing across overwrites of the same key (spec.md
// §3's "Archive value" invariant), and the (optionally LZ4-compressed)
// payload bytes.
type Envelope struct {
	Version     uint16
	ChangeID    uint64
	Compressed  bool
	payloadSize int
	Payload     []byte
}

// Wrap builds an Envelope around an already-serialized payload.
func Wrap(version uint16, changeID uint64, payload []byte) *Envelope {
	return &Envelope{Version: version, ChangeID: changeID, Payload: payload}
}

// MarshalBinary encodes the envelope using msgp's primitive append helpers
// directly (no code generation): a fixed header of (version, change-id,
// compressed flag, uncompressed length) followed by the payload bytes,
// LZ4-compressed when it's large enough to be worth it.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	payload := e.Payload
	compressed := false
	if len(payload) >= compressThreshold {
		compact := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, compact, nil)
		if err == nil && n > 0 && n < len(payload) {
			payload = compact[:n]
			compressed = true
		}
	}

	b := make([]byte, 0, 2+8+1+4+len(payload))
	b = msgp.AppendUint16(b, e.Version)
	b = msgp.AppendUint64(b, e.ChangeID)
	b = msgp.AppendBool(b, compressed)
	b = msgp.AppendInt32(b, int32(len(e.Payload)))
	b = msgp.AppendBytes(b, payload)
	return b, nil
}

// UnmarshalBinary decodes an Envelope, refusing to return a partially
// populated struct on any error per spec.md §9.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	version, rest, err := msgp.ReadUint16Bytes(data)
	if err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "archive: truncated version")
	}
	changeID, rest, err := msgp.ReadUint64Bytes(rest)
	if err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "archive: truncated change-id")
	}
	compressed, rest, err := msgp.ReadBoolBytes(rest)
	if err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "archive: truncated compressed flag")
	}
	uncompressedLen, rest, err := msgp.ReadInt32Bytes(rest)
	if err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "archive: truncated length")
	}
	payload, rest, err := msgp.ReadBytesBytes(rest, nil)
	if err != nil {
		return storeerr.Wrap(storeerr.SchemaMismatch, err, "archive: truncated payload")
	}
	_ = rest

	if compressed {
		plain := make([]byte, uncompressedLen)
		n, derr := lz4.UncompressBlock(payload, plain)
		if derr != nil || n != int(uncompressedLen) {
			return storeerr.Wrap(storeerr.SchemaMismatch, derr, "archive: corrupt lz4 payload")
		}
		payload = plain
	}

	e.Version = version
	e.ChangeID = changeID
	e.Compressed = compressed
	e.Payload = payload
	return nil
}

// CheckVersion returns SchemaMismatch if got != want, the refuse-to-read
// rule spec.md §5 and §9 both require ("readers that refuse to trust a
// newer schema must compare archive-version before deserializing").
func CheckVersion(want, got uint16) error {
	if want != got {
		return storeerr.New(storeerr.SchemaMismatch, "archive version mismatch")
	}
	return nil
}
