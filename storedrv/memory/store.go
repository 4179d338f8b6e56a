// Package memory provides a dependency-free, synchronous storedrv.Driver
// used by unit tests that need a simple reference implementation of the
// storage engine contract, the same role the teacher's devtools/tutils
// in-memory doubles play for aistore's own test suite.
package memory

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/groupwave/corestore/storedrv"
)

// Store is an in-process, single-node storedrv.Driver backed by a sorted
// byte-key map. All operations run under one mutex: there is no real
// contention to retry against, so Write's fn is always invoked exactly
// once.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Iterate(_ context.Context, begin, end []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.data))
	b, e := string(begin), string(end)
	for k := range s.data {
		if k >= b && (e == "" || k < e) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = s.data[k]
	}
	s.mu.Unlock()

	for _, k := range keys {
		cont, err := fn([]byte(k), snapshot[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type memTxn struct{ s *Store }

func (t *memTxn) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *memTxn) Set(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	t.s.data[string(key)] = v
}

func (t *memTxn) Clear(key []byte) {
	delete(t.s.data, string(key))
}

func (t *memTxn) ClearRange(begin, end []byte) {
	b, e := string(begin), string(end)
	for k := range t.s.data {
		if k >= b && (e == "" || k < e) {
			delete(t.s.data, k)
		}
	}
}

func (t *memTxn) AtomicAdd(key []byte, delta int64) {
	cur := int64(0)
	if v, ok := t.s.data[string(key)]; ok {
		cur = int64(binary.LittleEndian.Uint64(v))
	}
	cur += delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(cur))
	t.s.data[string(key)] = buf
}

func (s *Store) Write(_ context.Context, fn func(storedrv.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTxn{s: s})
}

func (s *Store) DeleteRange(_ context.Context, begin, end []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, e := string(begin), string(end)
	for k := range s.data {
		if k >= b && (e == "" || k < e) {
			delete(s.data, k)
		}
	}
	return nil
}

func (s *Store) AtomicAdd(_ context.Context, key []byte, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := int64(0)
	if v, ok := s.data[string(key)]; ok {
		cur = int64(binary.LittleEndian.Uint64(v))
	}
	cur += delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(cur))
	s.data[string(key)] = buf
	return cur, nil
}

func (s *Store) CompareAndClear(_ context.Context, key []byte, expect int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[string(key)]
	if !ok {
		return expect == 0, nil
	}
	cur := int64(binary.LittleEndian.Uint64(v))
	if cur != expect {
		return false, nil
	}
	delete(s.data, string(key))
	return true, nil
}

func (s *Store) Close() error { return nil }

var _ storedrv.Driver = (*Store)(nil)
