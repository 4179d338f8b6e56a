// Package buntdb backs storedrv.Driver with github.com/tidwall/buntdb, an
// embedded, ordered key-value store. This is the default storage driver for
// single-node and development deployments; buntdb's native ordered-key
// iteration (AscendGreaterOrEqual/AscendRange) maps directly onto
// Driver.Iterate, and its single-writer Update transactions give the batch
// model the atomic commit-point semantics spec.md §4.1 requires.
package buntdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/groupwave/corestore/storedrv"
)

// Store wraps a *buntdb.DB as a storedrv.Driver.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if necessary) a buntdb file at path. Pass ":memory:"
// for a process-local, non-persistent store.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("buntdb: open %s: %w", path, err)
	}
	// Ordered byte-key semantics: buntdb's default comparator is already
	// byte-lexicographic, which is what every subspace's key layout
	// (spec.md §6) assumes.
	return &Store{db: db}, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(string(key))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		out = []byte(v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *Store) Iterate(_ context.Context, begin, end []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	iter := func(key, value string) bool {
		if end != nil && key >= string(end) {
			// A reverse walk starts at end itself, which the range excludes.
			return reverse
		}
		if reverse && key < string(begin) {
			return false
		}
		cont, err := fn([]byte(key), []byte(value))
		return err == nil && cont
	}
	return s.db.View(func(tx *buntdb.Tx) error {
		if reverse {
			return tx.DescendLessOrEqual("", string(end), iter)
		}
		return tx.AscendGreaterOrEqual("", string(begin), iter)
	})
}

type buntTxn struct {
	tx *buntdb.Tx
}

func (t *buntTxn) Get(key []byte) ([]byte, bool, error) {
	v, err := t.tx.Get(string(key))
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (t *buntTxn) Set(key, value []byte) {
	_, _, _ = t.tx.Set(string(key), string(value), nil)
}

func (t *buntTxn) Clear(key []byte) {
	_, _ = t.tx.Delete(string(key))
}

func (t *buntTxn) ClearRange(begin, end []byte) {
	var toDelete []string
	_ = t.tx.AscendGreaterOrEqual("", string(begin), func(key, _ string) bool {
		if end != nil && key >= string(end) {
			return false
		}
		toDelete = append(toDelete, key)
		return true
	})
	for _, k := range toDelete {
		_, _ = t.tx.Delete(k)
	}
}

func (t *buntTxn) AtomicAdd(key []byte, delta int64) {
	cur := int64(0)
	if v, err := t.tx.Get(string(key)); err == nil {
		cur = int64(binary.LittleEndian.Uint64([]byte(v)))
	}
	cur += delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(cur))
	_, _, _ = t.tx.Set(string(key), string(buf), nil)
}

func (s *Store) Write(_ context.Context, fn func(storedrv.Txn) error) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		return fn(&buntTxn{tx: tx})
	})
}

func (s *Store) DeleteRange(_ context.Context, begin, end []byte) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		(&buntTxn{tx: tx}).ClearRange(begin, end)
		return nil
	})
}

func (s *Store) AtomicAdd(_ context.Context, key []byte, delta int64) (int64, error) {
	var result int64
	err := s.db.Update(func(tx *buntdb.Tx) error {
		cur := int64(0)
		if v, err := tx.Get(string(key)); err == nil {
			cur = int64(binary.LittleEndian.Uint64([]byte(v)))
		}
		cur += delta
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(cur))
		_, _, err := tx.Set(string(key), string(buf), nil)
		result = cur
		return err
	})
	return result, err
}

func (s *Store) CompareAndClear(_ context.Context, key []byte, expect int64) (bool, error) {
	var cleared bool
	err := s.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Get(string(key))
		if err == buntdb.ErrNotFound {
			cleared = expect == 0
			return nil
		}
		if err != nil {
			return err
		}
		cur := int64(binary.LittleEndian.Uint64([]byte(v)))
		if cur != expect {
			return nil
		}
		_, err = tx.Delete(string(key))
		cleared = err == nil
		return nil
	})
	return cleared, err
}

func (s *Store) Close() error { return s.db.Close() }

var _ storedrv.Driver = (*Store)(nil)
