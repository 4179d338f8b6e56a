package searchindex

import "github.com/OneOfOne/xxhash"

// termHashSeed fixes the xxhash seed so term_hash is stable across
// restarts (xxhash.ChecksumString64S takes a seed; using a constant one
// makes the hash a pure function of the token).
const termHashSeed = 0x5eed1e7

// TermHash returns the fixed-size cheap hash of a token spec.md §4.3's
// TermIndex model stores terms by.
func TermHash(token string) uint64 {
	return xxhash.ChecksumString64S(token, termHashSeed)
}

// Term is one entry of the TermIndex's "terms" vector: a token's hash and
// the bitmap of logical (tokenized) fields it appeared in.
type Term struct {
	Hash        uint64
	FieldsBitmap uint32 // bit i set <=> FieldID(i) contained this token
}

// FieldValue is one entry of the TermIndex's "fields" vector: the raw
// bytes of a structured, filterable field (spec.md §4.3: "(field_id,
// raw_bytes) for structured filters").
type FieldValue struct {
	Field FieldID
	Bytes []byte
}

// TermIndex is the archive value spec.md §4.3 and the GLOSSARY describe:
// "(term_hash, fields_bitmap) + (field_id, bytes) used to rebuild or diff
// the search index."
type TermIndex struct {
	Terms  []Term
	Fields []FieldValue
}

func (ti *TermIndex) termByHash(h uint64) (Term, bool) {
	for _, t := range ti.Terms {
		if t.Hash == h {
			return t, true
		}
	}
	return Term{}, false
}

func (ti *TermIndex) fieldByID(id FieldID) (FieldValue, bool) {
	for _, f := range ti.Fields {
		if f.Field == id {
			return f, true
		}
	}
	return FieldValue{}, false
}

// Diff exposes diff for drivers (embedded) that need to compute
// merge_index's added/removed sets themselves.
func Diff(prior, next *TermIndex) (addedTerms, removedTerms []Term, addedFields, removedFields []FieldValue) {
	return diff(prior, next)
}

// diff computes the term/field keys write_index must add and remove to
// turn prior into next (spec.md §4.3's merge_index: "compute set
// differences, emit only the added term/field keys and clear only the
// removed ones").
func diff(prior, next *TermIndex) (addedTerms, removedTerms []Term, addedFields, removedFields []FieldValue) {
	if prior == nil {
		prior = &TermIndex{}
	}
	for _, t := range next.Terms {
		old, ok := prior.termByHash(t.Hash)
		if !ok || old.FieldsBitmap != t.FieldsBitmap {
			addedTerms = append(addedTerms, t)
		}
		if dropped := old.FieldsBitmap &^ t.FieldsBitmap; ok && dropped != 0 {
			removedTerms = append(removedTerms, Term{Hash: t.Hash, FieldsBitmap: dropped})
		}
	}
	for _, t := range prior.Terms {
		if _, ok := next.termByHash(t.Hash); !ok {
			removedTerms = append(removedTerms, t)
		}
	}
	for _, f := range next.Fields {
		old, ok := prior.fieldByID(f.Field)
		if !ok || string(old.Bytes) != string(f.Bytes) {
			addedFields = append(addedFields, f)
		}
	}
	for _, f := range prior.Fields {
		if _, ok := next.fieldByID(f.Field); !ok {
			removedFields = append(removedFields, f)
		}
	}
	return
}
