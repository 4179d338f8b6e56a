package changelog

import (
	"sort"

	"github.com/tinylib/msgp/msgp"
)

// idSet is an insertion-ordered set of document/container ids, used to
// build the deduplicated inserted/updated/deleted lists a ChangeRecord
// stores.
type idSet struct {
	order []uint32
	has   map[uint32]struct{}
}

func newIDSet() *idSet { return &idSet{has: make(map[uint32]struct{})} }

func (s *idSet) add(id uint32) {
	if _, ok := s.has[id]; ok {
		return
	}
	s.has[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) remove(id uint32) bool {
	if _, ok := s.has[id]; !ok {
		return false
	}
	delete(s.has, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *idSet) contains(id uint32) bool {
	_, ok := s.has[id]
	return ok
}

func (s *idSet) slice() []uint32 { return s.order }

func (s *idSet) len() int { return len(s.order) }

// half tracks inserted/updated/deleted for one of {items, containers}
// within one collection's accumulated changes for one commit.
type half struct {
	inserted *idSet
	updated  *idSet
	deleted  *idSet
}

func newHalf() *half {
	return &half{inserted: newIDSet(), updated: newIDSet(), deleted: newIDSet()}
}

// logInsert/logUpdate/logDelete implement spec.md §4.2's transitive
// compression: inserted-then-deleted within the same uncommitted change set
// collapses to neither.
func (h *half) logInsert(id uint32) {
	h.deleted.remove(id)
	h.updated.remove(id)
	h.inserted.add(id)
}

func (h *half) logUpdate(id uint32) {
	if h.inserted.contains(id) {
		return
	}
	h.updated.add(id)
}

func (h *half) logDelete(id uint32) {
	if h.inserted.remove(id) {
		return
	}
	h.updated.remove(id)
	h.deleted.add(id)
}

func (h *half) hasChanges() bool {
	return h.inserted.len() > 0 || h.updated.len() > 0 || h.deleted.len() > 0
}

// CollectionChanges accumulates one SyncCollection's changes for one
// account within one commit: item and container inserts/updates/deletes,
// plus containers whose own metadata (not their children) changed.
type CollectionChanges struct {
	items              *half
	containers         *half
	propertyContainers *idSet
}

func newCollectionChanges() *CollectionChanges {
	return &CollectionChanges{items: newHalf(), containers: newHalf(), propertyContainers: newIDSet()}
}

func (c *CollectionChanges) HasItemChanges() bool      { return c.items.hasChanges() }
func (c *CollectionChanges) HasContainerChanges() bool {
	return c.containers.hasChanges() || c.propertyContainers.len() > 0
}

// VanishedItem is one tombstone record visible to incremental-sync clients
// (spec.md §3's "Vanished entry"): the container it lived in plus its
// stable item identifier (e.g. mailbox id + IMAP UID).
type VanishedItem struct {
	ContainerID uint32
	ItemUID     uint64
}

// ChangeSet accumulates every SyncCollection's changes, and every vanished
// stream's tombstones, for one account within one commit (spec.md §4.1's
// "per-account change set keyed by SyncCollection").
type ChangeSet struct {
	byCollection map[SyncCollection]*CollectionChanges
	vanished     map[VanishedCollection][]VanishedItem
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		byCollection: make(map[SyncCollection]*CollectionChanges),
		vanished:     make(map[VanishedCollection][]VanishedItem),
	}
}

func (cs *ChangeSet) collection(sc SyncCollection) *CollectionChanges {
	c, ok := cs.byCollection[sc]
	if !ok {
		c = newCollectionChanges()
		cs.byCollection[sc] = c
	}
	return c
}

func (cs *ChangeSet) LogItemInsert(sc SyncCollection, id uint32)  { cs.collection(sc).items.logInsert(id) }
func (cs *ChangeSet) LogItemUpdate(sc SyncCollection, id uint32)  { cs.collection(sc).items.logUpdate(id) }
func (cs *ChangeSet) LogItemDelete(sc SyncCollection, id uint32)  { cs.collection(sc).items.logDelete(id) }
func (cs *ChangeSet) LogContainerInsert(sc SyncCollection, id uint32) {
	cs.collection(sc).containers.logInsert(id)
}
func (cs *ChangeSet) LogContainerUpdate(sc SyncCollection, id uint32) {
	cs.collection(sc).containers.logUpdate(id)
}
func (cs *ChangeSet) LogContainerDelete(sc SyncCollection, id uint32) {
	cs.collection(sc).containers.logDelete(id)
	cs.collection(sc).propertyContainers.remove(id)
}
func (cs *ChangeSet) LogContainerPropertyUpdate(sc SyncCollection, id uint32) {
	c := cs.collection(sc)
	if c.containers.inserted.contains(id) || c.containers.deleted.contains(id) {
		return
	}
	c.propertyContainers.add(id)
}

func (cs *ChangeSet) LogVanishedItem(vc VanishedCollection, item VanishedItem) {
	cs.vanished[vc] = append(cs.vanished[vc], item)
}

// IsEmpty reports whether any collection or vanished stream was touched.
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.byCollection) == 0 && len(cs.vanished) == 0
}

// Collections returns every SyncCollection touched, for deterministic
// iteration when serializing Log operations.
func (cs *ChangeSet) Collections() []SyncCollection {
	out := make([]SyncCollection, 0, len(cs.byCollection))
	for sc := range cs.byCollection {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (cs *ChangeSet) VanishedCollections() []VanishedCollection {
	out := make([]VanishedCollection, 0, len(cs.vanished))
	for vc := range cs.vanished {
		out = append(out, vc)
	}
	return out
}

func (cs *ChangeSet) Changes(sc SyncCollection) *CollectionChanges { return cs.byCollection[sc] }
func (cs *ChangeSet) Vanished(vc VanishedCollection) []VanishedItem { return cs.vanished[vc] }

// MergeRecords folds a sequence of per-commit Records, in increasing
// change-id order, into one net Record — spec.md §4.2's "the server
// compresses transitively (e.g., inserted-then-deleted collapses to
// neither)" applied across commits rather than within one. It replays each
// record's already-netted ids through the same half/idSet rules a single
// ChangeSet uses, so a later commit's delete of an id inserted by an
// earlier commit in the same window collapses exactly as it would have had
// both happened in one commit.
func MergeRecords(records []*Record) *Record {
	items := newHalf()
	containers := newHalf()
	props := newIDSet()
	for _, rec := range records {
		for _, id := range rec.InsertedItems {
			items.logInsert(id)
		}
		for _, id := range rec.UpdatedItems {
			items.logUpdate(id)
		}
		for _, id := range rec.DeletedItems {
			items.logDelete(id)
		}
		for _, id := range rec.InsertedContainers {
			containers.logInsert(id)
		}
		for _, id := range rec.UpdatedContainers {
			containers.logUpdate(id)
		}
		for _, id := range rec.DeletedContainers {
			containers.logDelete(id)
			props.remove(id)
		}
		for _, id := range rec.PropertyContainers {
			if containers.inserted.contains(id) || containers.deleted.contains(id) {
				continue
			}
			props.add(id)
		}
	}
	return &Record{
		InsertedItems:      items.inserted.slice(),
		UpdatedItems:       items.updated.slice(),
		DeletedItems:       items.deleted.slice(),
		InsertedContainers: containers.inserted.slice(),
		UpdatedContainers:  containers.updated.slice(),
		DeletedContainers:  containers.deleted.slice(),
		PropertyContainers: props.slice(),
	}
}

// --- wire encoding -------------------------------------------------------
//
// ChangeRecord/VanishedRecord are encoded with msgp's primitive append/read
// helpers directly (no codegen), the same approach archive.Envelope uses:
// a small, stable, hand-written binary layout.

// Record is what actually gets stored at one (account, sync_collection,
// change_id) Log key: the net inserted/updated/deleted id lists for items
// and containers, plus which containers had a property-only change.
type Record struct {
	InsertedItems      []uint32
	UpdatedItems       []uint32
	DeletedItems       []uint32
	InsertedContainers []uint32
	UpdatedContainers  []uint32
	DeletedContainers  []uint32
	PropertyContainers []uint32
}

func (c *CollectionChanges) ToRecord() *Record {
	return &Record{
		InsertedItems:      c.items.inserted.slice(),
		UpdatedItems:       c.items.updated.slice(),
		DeletedItems:       c.items.deleted.slice(),
		InsertedContainers: c.containers.inserted.slice(),
		UpdatedContainers:  c.containers.updated.slice(),
		DeletedContainers:  c.containers.deleted.slice(),
		PropertyContainers: c.propertyContainers.slice(),
	}
}

func appendU32Slice(b []byte, vs []uint32) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(vs)))
	for _, v := range vs {
		b = msgp.AppendUint32(b, v)
	}
	return b
}

func readU32Slice(b []byte) ([]uint32, []byte, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, nil, err
	}
	var out []uint32
	if n > 0 {
		out = make([]uint32, 0, n)
	}
	for i := uint32(0); i < n; i++ {
		var v uint32
		v, rest, err = msgp.ReadUint32Bytes(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, v)
	}
	return out, rest, nil
}

// Marshal encodes the Record as a flat sequence of seven msgp arrays.
func (r *Record) Marshal() []byte {
	var b []byte
	b = appendU32Slice(b, r.InsertedItems)
	b = appendU32Slice(b, r.UpdatedItems)
	b = appendU32Slice(b, r.DeletedItems)
	b = appendU32Slice(b, r.InsertedContainers)
	b = appendU32Slice(b, r.UpdatedContainers)
	b = appendU32Slice(b, r.DeletedContainers)
	b = appendU32Slice(b, r.PropertyContainers)
	return b
}

func UnmarshalRecord(b []byte) (*Record, error) {
	r := &Record{}
	var err error
	for _, field := range []*[]uint32{
		&r.InsertedItems, &r.UpdatedItems, &r.DeletedItems,
		&r.InsertedContainers, &r.UpdatedContainers, &r.DeletedContainers,
		&r.PropertyContainers,
	} {
		*field, b, err = readU32Slice(b)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MarshalVanished encodes a list of VanishedItem records.
func MarshalVanished(items []VanishedItem) []byte {
	b := msgp.AppendArrayHeader(nil, uint32(len(items)))
	for _, it := range items {
		b = msgp.AppendUint32(b, it.ContainerID)
		b = msgp.AppendUint64(b, it.ItemUID)
	}
	return b
}

func UnmarshalVanished(b []byte) ([]VanishedItem, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	out := make([]VanishedItem, 0, n)
	for i := uint32(0); i < n; i++ {
		var item VanishedItem
		item.ContainerID, rest, err = msgp.ReadUint32Bytes(rest)
		if err != nil {
			return nil, err
		}
		item.ItemUID, rest, err = msgp.ReadUint64Bytes(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
