package embedded

import (
	"bytes"
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/searchindex/tokenize"
	"github.com/groupwave/corestore/storedrv"
)

// Query evaluates q's filter tree into a roaring bitmap of matching
// document ids, intersects it with q.Mask, applies comparators, and
// returns results (spec.md §4.3's query path).
func (d *Driver) Query(ctx context.Context, q searchindex.Query) ([]searchindex.Result, error) {
	matched, err := d.eval(ctx, q.AccountID, q.Kind, q.Language, q.Filter)
	if err != nil {
		return nil, err
	}
	if q.Mask != nil {
		matched.And(q.Mask)
	}

	ids := matched.ToArray()
	results := make([]searchindex.Result, len(ids))
	for i, id := range ids {
		results[i] = searchindex.Result{DocumentID: id}
	}
	if len(q.Comparators) > 0 {
		if err := d.sortResults(ctx, q, results); err != nil {
			return nil, err
		}
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (d *Driver) eval(ctx context.Context, accountID uint32, kind searchindex.Kind, lang tokenize.Language, f searchindex.Filter) (*roaring.Bitmap, error) {
	switch f.Kind {
	case searchindex.FilterEnd:
		// FilterEnd only marks "no further children" for drivers that
		// flatten the tree into a postfix token stream; the in-process
		// tree here never needs to evaluate it standalone.
		return roaring.New(), nil
	case searchindex.FilterAnd:
		out := roaring.New()
		first := true
		for _, c := range f.Children {
			bm, err := d.eval(ctx, accountID, kind, lang, c)
			if err != nil {
				return nil, err
			}
			if first {
				out.Or(bm)
				first = false
				continue
			}
			out.And(bm)
		}
		return out, nil
	case searchindex.FilterOr:
		out := roaring.New()
		for _, c := range f.Children {
			bm, err := d.eval(ctx, accountID, kind, lang, c)
			if err != nil {
				return nil, err
			}
			out.Or(bm)
		}
		return out, nil
	case searchindex.FilterNot:
		if len(f.Children) == 0 {
			return roaring.New(), nil
		}
		bm, err := d.eval(ctx, accountID, kind, lang, f.Children[0])
		if err != nil {
			return nil, err
		}
		all, err := d.allDocuments(ctx, accountID, kind)
		if err != nil {
			return nil, err
		}
		all.AndNot(bm)
		return all, nil
	case searchindex.FilterDocumentSet:
		if f.DocumentSet == nil {
			return roaring.New(), nil
		}
		return f.DocumentSet.Clone(), nil
	case searchindex.FilterOperator:
		return d.evalOperator(ctx, accountID, kind, lang, f)
	default:
		return roaring.New(), nil
	}
}

func (d *Driver) evalOperator(ctx context.Context, accountID uint32, kind searchindex.Kind, lang tokenize.Language, f searchindex.Filter) (*roaring.Bitmap, error) {
	taxonomy := searchindex.TaxonomyFor(kind)
	def, _ := taxonomy.ByID(f.Field)

	switch f.Op {
	case searchindex.Equal, searchindex.Contains:
		if def.Text {
			return d.matchText(ctx, accountID, kind, f.Field, lang, string(f.Value))
		}
		return d.matchField(ctx, accountID, kind, f.Field, func(v []byte) bool { return bytes.Equal(v, f.Value) })
	case searchindex.LowerThan:
		return d.matchField(ctx, accountID, kind, f.Field, func(v []byte) bool { return bytes.Compare(v, f.Value) < 0 })
	case searchindex.LowerEqualThan:
		return d.matchField(ctx, accountID, kind, f.Field, func(v []byte) bool { return bytes.Compare(v, f.Value) <= 0 })
	case searchindex.GreaterThan:
		return d.matchField(ctx, accountID, kind, f.Field, func(v []byte) bool { return bytes.Compare(v, f.Value) > 0 })
	case searchindex.GreaterEqualThan:
		return d.matchField(ctx, accountID, kind, f.Field, func(v []byte) bool { return bytes.Compare(v, f.Value) >= 0 })
	default:
		return roaring.New(), nil
	}
}

// matchText tokenizes query with the same tokenizer write_index used and
// conjunctively matches every resulting term (spec.md §4.3: "Contains:
// conjunctive token match with optional stemming"; Equal is treated as
// the same conjunctive match here since the term index only tracks
// set membership, not positions — a documented simplification, not an
// exact phrase match).
func (d *Driver) matchText(ctx context.Context, accountID uint32, kind searchindex.Kind, field searchindex.FieldID, lang tokenize.Language, query string) (*roaring.Bitmap, error) {
	tokens := tokenize.Tokenize(query, lang)
	out := roaring.New()
	if len(tokens) == 0 {
		return out, nil
	}
	first := true
	for _, tok := range tokens {
		hash := searchindex.TermHash(tok)
		if !d.exists.Lookup(termExistenceKey(kind, hash, field)) {
			return roaring.New(), nil
		}
		bm := roaring.New()
		begin, end := termRange(accountID, kind, hash, field)
		if err := d.drv.Iterate(ctx, begin, end, false, func(k, _ []byte) (bool, error) {
			bm.Add(decodeTermKeyDocumentID(k))
			return true, nil
		}); err != nil {
			return nil, err
		}
		if first {
			out = bm
			first = false
			continue
		}
		out.And(bm)
	}
	return out, nil
}

func (d *Driver) matchField(ctx context.Context, accountID uint32, kind searchindex.Kind, field searchindex.FieldID, match func([]byte) bool) (*roaring.Bitmap, error) {
	out := roaring.New()
	begin, end := fieldPrefixRange(accountID, kind, field)
	prefixLen := len(begin)
	err := d.drv.Iterate(ctx, begin, end, false, func(k, _ []byte) (bool, error) {
		value, docID := decodeFieldKeyTail(k, prefixLen)
		if match(value) {
			out.Add(docID)
		}
		return true, nil
	})
	return out, err
}

func (d *Driver) allDocuments(ctx context.Context, accountID uint32, kind searchindex.Kind) (*roaring.Bitmap, error) {
	out := roaring.New()
	prefix := []byte{byte(storedrv.SubspaceSearchIndex), tagArchive}
	prefix = appendU32(prefix, accountID)
	prefix = append(prefix, byte(kind))
	err := d.drv.Iterate(ctx, prefix, storedrv.MaxKey(prefix), false, func(k, _ []byte) (bool, error) {
		out.Add(decodeTermKeyDocumentID(k))
		return true, nil
	})
	return out, err
}

func (d *Driver) sortResults(ctx context.Context, q searchindex.Query, results []searchindex.Result) error {
	cmp := q.Comparators[0]
	if cmp.Kind != searchindex.ComparatorField {
		return nil
	}
	values := make(map[uint32][]byte, len(results))
	for _, r := range results {
		v, ok, err := d.fieldValue(ctx, q.AccountID, q.Kind, cmp.Field, r.DocumentID)
		if err != nil {
			return err
		}
		if ok {
			values[r.DocumentID] = v
		}
	}
	sortByFieldThenID(results, values, cmp.Ascending)
	return nil
}

// fieldValue recovers the single stored value for (field, documentID) by
// scanning the field's range and picking the entry with this document id
// — field/index values are typically small fixed-width encodings, so
// this is a short scan in practice, not a full table scan.
func (d *Driver) fieldValue(ctx context.Context, accountID uint32, kind searchindex.Kind, field searchindex.FieldID, documentID uint32) ([]byte, bool, error) {
	begin, end := fieldPrefixRange(accountID, kind, field)
	prefixLen := len(begin)
	var found []byte
	var ok bool
	err := d.drv.Iterate(ctx, begin, end, false, func(k, _ []byte) (bool, error) {
		value, docID := decodeFieldKeyTail(k, prefixLen)
		if docID == documentID {
			found = value
			ok = true
			return false, nil
		}
		return true, nil
	})
	return found, ok, err
}

func sortByFieldThenID(results []searchindex.Result, values map[uint32][]byte, ascending bool) {
	sort.Slice(results, func(i, j int) bool {
		a, b := values[results[i].DocumentID], values[results[j].DocumentID]
		c := bytes.Compare(a, b)
		if c == 0 {
			return results[i].DocumentID < results[j].DocumentID
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
}
