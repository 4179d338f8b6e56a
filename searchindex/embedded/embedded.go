package embedded

import (
	"context"
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storeerr"
)

// prefilterSize bounds the cuckoo filter's capacity. The filter is held in
// memory and filled by this Driver's WriteIndex and MergeIndex calls. A
// false positive only costs Query the real range scan; a negative lookup
// makes Query treat the term as absent without scanning. MergeIndex and
// DeleteIndex do not consult it.
const prefilterSize = 1 << 20

// Driver implements searchindex.Driver directly against a
// storedrv.Driver, per spec.md §4.3's embedded implementation.
type Driver struct {
	drv    storedrv.Driver
	exists *cuckoo.Filter
}

func New(drv storedrv.Driver) *Driver {
	return &Driver{drv: drv, exists: cuckoo.NewFilter(prefilterSize)}
}

var _ searchindex.Driver = (*Driver)(nil)

func termExistenceKey(kind searchindex.Kind, hash uint64, field searchindex.FieldID) []byte {
	b := make([]byte, 0, 1+8+1)
	b = append(b, byte(kind))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], hash)
	b = append(b, tmp[:]...)
	b = append(b, byte(field))
	return b
}

func (d *Driver) WriteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, idx *searchindex.TermIndex) error {
	return d.drv.Write(ctx, func(txn storedrv.Txn) error {
		d.writeTerms(txn, accountID, kind, documentID, idx.Terms, true)
		d.writeFields(txn, accountID, kind, documentID, idx.Fields, true)
		txn.Set(archiveKey(accountID, kind, documentID), idx.Marshal())
		return nil
	})
}

// MergeIndex implements spec.md §4.3's merge_index: read the prior
// TermIndex, diff against next, and touch only the changed keys.
func (d *Driver) MergeIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, next *searchindex.TermIndex) error {
	prior, err := d.readArchive(ctx, accountID, kind, documentID)
	if err != nil {
		return err
	}
	return d.drv.Write(ctx, func(txn storedrv.Txn) error {
		added, removed, addedF, removedF := searchindex.Diff(prior, next)
		d.writeTerms(txn, accountID, kind, documentID, added, true)
		d.writeTerms(txn, accountID, kind, documentID, removed, false)
		d.writeFields(txn, accountID, kind, documentID, addedF, true)
		d.writeFields(txn, accountID, kind, documentID, removedF, false)
		txn.Set(archiveKey(accountID, kind, documentID), next.Marshal())
		return nil
	})
}

func (d *Driver) DeleteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32) error {
	prior, err := d.readArchive(ctx, accountID, kind, documentID)
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}
	return d.drv.Write(ctx, func(txn storedrv.Txn) error {
		d.writeTerms(txn, accountID, kind, documentID, prior.Terms, false)
		d.writeFields(txn, accountID, kind, documentID, prior.Fields, false)
		txn.Clear(archiveKey(accountID, kind, documentID))
		return nil
	})
}

func (d *Driver) readArchive(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32) (*searchindex.TermIndex, error) {
	v, ok, err := d.drv.Get(ctx, archiveKey(accountID, kind, documentID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ti, err := searchindex.UnmarshalTermIndex(v)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.SchemaMismatch, err, "searchindex: malformed TermIndex")
	}
	return ti, nil
}

func (d *Driver) writeTerms(txn storedrv.Txn, accountID uint32, kind searchindex.Kind, documentID uint32, terms []searchindex.Term, set bool) {
	for _, t := range terms {
		for field := searchindex.FieldID(0); field < 32; field++ {
			if t.FieldsBitmap&(1<<uint(field)) == 0 {
				continue
			}
			key := termKey(accountID, kind, t.Hash, field, documentID)
			if set {
				txn.Set(key, nil)
				d.exists.InsertUnique(termExistenceKey(kind, t.Hash, field))
			} else {
				txn.Clear(key)
			}
		}
	}
}

func (d *Driver) writeFields(txn storedrv.Txn, accountID uint32, kind searchindex.Kind, documentID uint32, fields []searchindex.FieldValue, set bool) {
	for _, f := range fields {
		key := fieldKey(accountID, kind, f.Field, f.Bytes, documentID)
		if set {
			txn.Set(key, nil)
		} else {
			txn.Clear(key)
		}
	}
}

