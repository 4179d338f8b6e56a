// Package cache supplements spec.md's InvalidateGroupwareCache event
// (referenced only inside the broadcast payload by the distilled spec)
// with the concrete named caches S6 in spec.md §8 enumerates:
// permissions, access_tokens, files, contacts, events, scheduling.
// Grounded on the teacher's own in-memory owner pattern for shared,
// atomically-swapped cluster state (cluster.Smap/cluster.BMD): a
// process-wide registry of named caches, each invalidated by id or
// wholesale-cleared on a settings reload.
package cache

import "sync"

// Name identifies one of the fixed caches InvalidateGroupwareCache and
// ReloadSettings act on.
type Name string

const (
	Permissions  Name = "permissions"
	AccessTokens Name = "access_tokens"
	Files        Name = "files"
	Contacts     Name = "contacts"
	Events       Name = "events"
	Scheduling   Name = "scheduling"
)

var allNames = []Name{Permissions, AccessTokens, Files, Contacts, Events, Scheduling}

// entry is one cache slot: an arbitrary value keyed by account/object id.
type entry struct {
	mu sync.RWMutex
	m  map[uint32]any
}

func newEntry() *entry { return &entry{m: make(map[uint32]any)} }

func (e *entry) get(id uint32) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.m[id]
	return v, ok
}

func (e *entry) set(id uint32, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m[id] = v
}

func (e *entry) invalidate(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.m, id)
}

func (e *entry) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m = make(map[uint32]any)
}

// Registry holds the fixed set of named caches.
type Registry struct {
	caches map[Name]*entry
}

func NewRegistry() *Registry {
	r := &Registry{caches: make(map[Name]*entry, len(allNames))}
	for _, n := range allNames {
		r.caches[n] = newEntry()
	}
	return r
}

// Get returns the cached value for (name, id), if present.
func (r *Registry) Get(name Name, id uint32) (any, bool) {
	c, ok := r.caches[name]
	if !ok {
		return nil, false
	}
	return c.get(id)
}

// Put stores value under (name, id).
func (r *Registry) Put(name Name, id uint32, value any) {
	if c, ok := r.caches[name]; ok {
		c.set(id, value)
	}
}

// Invalidate drops id from every cache named in names — the effect of
// InvalidateGroupwareCache([ids...]) in S6 (spec.md §8): "cleared ...
// only for the listed ids."
func (r *Registry) Invalidate(ids []uint32, names ...Name) {
	if len(names) == 0 {
		names = allNames
	}
	for _, n := range names {
		c, ok := r.caches[n]
		if !ok {
			continue
		}
		for _, id := range ids {
			c.invalidate(id)
		}
	}
}

// ClearAll wholesale-clears every cache, the effect of ReloadSettings.
func (r *Registry) ClearAll() {
	for _, c := range r.caches {
		c.clear()
	}
}
