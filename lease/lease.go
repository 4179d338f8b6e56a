// Package lease implements the named, time-bounded mutual-exclusion
// primitive the purge job takes per account (spec.md §3 "Lease key", §4.4,
// §4.5). The distilled spec mentions
// leases in passing but never specifies the primitive itself; this supplies
// a small in-memory store, grounded on the teacher's housekeeping-timer
// idiom (`cluster/lom_cache_hk.go`): a periodic sweep over an in-memory map
// of expiry timestamps, rather than a persistent driver round-trip per
// check.
package lease

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

type entry struct {
	expiresAt time.Time
	revision  uint64
}

// Store holds in-process leases keyed by name (e.g. "purge:<account_id>").
// It never persists to the storage driver — a lease held by a crashed
// process self-expires once its TTL elapses, matching spec.md §4.4's "a
// failed release is logged but not treated as fatal: the lease
// self-expires."
type Store struct {
	mu       sync.Mutex
	leases   map[string]entry
	revision uint64

	stopHK chan struct{}
}

// New constructs a Store and starts its housekeeping sweep, which clears
// expired entries every interval so stale leases do not accumulate in the
// map.
func New(sweepInterval time.Duration) *Store {
	s := &Store{leases: make(map[string]entry), stopHK: make(chan struct{})}
	go s.housekeep(sweepInterval)
	return s
}

func (s *Store) housekeep(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopHK:
			return
		case now := <-t.C:
			s.sweep(now)
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.leases {
		if !now.Before(e.expiresAt) {
			delete(s.leases, name)
			glog.V(4).Infof("lease: %s self-expired", name)
		}
	}
}

// Stop ends the housekeeping goroutine.
func (s *Store) Stop() { close(s.stopHK) }

// Acquire attempts to hold name for ttl. Returns false without error if
// another holder currently owns an unexpired lease.
func (s *Store) Acquire(name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.leases[name]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	s.revision++
	s.leases[name] = entry{expiresAt: now.Add(ttl), revision: s.revision}
	return true, nil
}

// Release drops name's lease immediately, regardless of remaining TTL.
func (s *Store) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, name)
}

// Renew extends name's lease by ttl from now, provided it is still held;
// returns false if the lease had already expired or was never acquired.
func (s *Store) Renew(name string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.leases[name]
	if !ok || time.Now().After(e.expiresAt) {
		return false
	}
	e.expiresAt = time.Now().Add(ttl)
	s.leases[name] = e
	return true
}

// Revision returns the store-wide revision counter, which increments on
// every successful Acquire and on every BumpRevision. The queue's
// LockedMessages does not use this Store; queue.Queue keeps its own
// revision counter for spec.md §9's "revisioning" rule.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// BumpRevision forces Revision() forward without acquiring or releasing
// any lease.
func (s *Store) BumpRevision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	return s.revision
}
