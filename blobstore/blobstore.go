// Package blobstore provides erasure-coded blob-link durability for
// purge's unlink step (spec.md §4.4, SPEC_FULL.md's DOMAIN STACK): large
// attachment blobs referenced by a document's Archive value are chunked
// across data+parity shards so a single corrupted shard doesn't cost the
// whole blob, grounded on the teacher's reb/ec.go use of
// github.com/klauspost/reedsolomon for slice reconstruction.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/klauspost/reedsolomon"

	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storeerr"
)

// Store erasure-codes blobs across dataShards+paritySharads shards, keyed
// by content hash in storedrv.SubspaceBlobLink.
type Store struct {
	drv          storedrv.Driver
	dataShards   int
	parityShards int
}

func New(drv storedrv.Driver, cfg *cmn.Config) *Store {
	if cfg == nil {
		cfg = cmn.GCO.Get()
	}
	return &Store{drv: drv, dataShards: cfg.BlobDataShards, parityShards: cfg.BlobParityShards}
}

// shardKey encodes (hash, shard_index) under SubspaceBlobLink.
func shardKey(hash string, shard int) []byte {
	raw, _ := hex.DecodeString(hash)
	k := make([]byte, 0, 1+len(raw)+1)
	k = append(k, byte(storedrv.SubspaceBlobLink))
	k = append(k, raw...)
	k = append(k, byte(shard))
	return k
}

func shardKeyRange(hash string) (begin, end []byte) {
	raw, _ := hex.DecodeString(hash)
	prefix := make([]byte, 0, 1+len(raw))
	prefix = append(prefix, byte(storedrv.SubspaceBlobLink))
	prefix = append(prefix, raw...)
	return prefix, storedrv.MaxKey(prefix)
}

// Hash returns the content hash Put assigns a blob; purge's Metadata
// records this alongside the blob's size.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put erasure-codes data across the store's shard layout and returns its
// content hash and original size.
func (s *Store) Put(ctx context.Context, data []byte) (hash string, size int64, err error) {
	enc, err := reedsolomon.New(s.dataShards, s.parityShards)
	if err != nil {
		return "", 0, storeerr.Wrap(storeerr.BackendError, err, "blobstore: reedsolomon.New failed")
	}
	shards, err := enc.Split(data)
	if err != nil {
		return "", 0, storeerr.Wrap(storeerr.BackendError, err, "blobstore: split failed")
	}
	if err := enc.Encode(shards); err != nil {
		return "", 0, storeerr.Wrap(storeerr.BackendError, err, "blobstore: encode failed")
	}

	hash = Hash(data)
	err = s.drv.Write(ctx, func(txn storedrv.Txn) error {
		for i, shard := range shards {
			txn.Set(shardKey(hash, i), shard)
		}
		txn.Set(sizeKey(hash), encodeSize(int64(len(data))))
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return hash, int64(len(data)), nil
}

func sizeKey(hash string) []byte {
	raw, _ := hex.DecodeString(hash)
	k := make([]byte, 0, 1+len(raw)+1)
	k = append(k, byte(storedrv.SubspaceBlobLink))
	k = append(k, raw...)
	k = append(k, 0xFE) // reserved shard index for the size record
	return k
}

func encodeSize(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeSize(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

// Get reassembles the blob stored under hash, reconstructing from parity
// if up to parityShards data shards are missing or corrupted.
func (s *Store) Get(ctx context.Context, hash string, size int64) ([]byte, error) {
	if size <= 0 {
		if v, ok, err := s.drv.Get(ctx, sizeKey(hash)); err != nil {
			return nil, err
		} else if ok {
			size = decodeSize(v)
		}
	}

	total := s.dataShards + s.parityShards
	shards := make([][]byte, total)
	missing := 0
	for i := 0; i < total; i++ {
		v, ok, err := s.drv.Get(ctx, shardKey(hash, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			missing++
			continue
		}
		shards[i] = v
	}
	if missing > 0 {
		enc, err := reedsolomon.New(s.dataShards, s.parityShards)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.BackendError, err, "blobstore: reedsolomon.New failed")
		}
		if err := enc.Reconstruct(shards); err != nil {
			return nil, storeerr.Wrap(storeerr.BackendUnavailable, err, "blobstore: reconstruct failed")
		}
	}

	var out []byte
	for i := 0; i < s.dataShards; i++ {
		out = append(out, shards[i]...)
	}
	if size > 0 && int64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

// Unlink removes every shard (and the size record) stored under hash —
// purge's "unlink the blob" step (spec.md §4.4), implementing
// purge.BlobUnlinker.
func (s *Store) Unlink(ctx context.Context, hash string, _ int64) error {
	begin, end := shardKeyRange(hash)
	return s.drv.DeleteRange(ctx, begin, end)
}
