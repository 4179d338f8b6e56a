package searchindex

import "github.com/groupwave/corestore/searchindex/tokenize"

// TextField is one tokenized input to BuildTermIndex. When the taxonomy
// marks the field Indexed, the text's bytes are also stored as a
// structured field value (e.g. Subject is both tokenized and
// range/equality filterable).
type TextField struct {
	Field FieldID
	Text  string
}

// StructuredField is a non-tokenized input: stored only as a
// SearchIndex{Index} entry.
type StructuredField struct {
	Field FieldID
	Bytes []byte
}

// BuildTermIndex assembles the TermIndex a document's write_index call
// writes (spec.md §4.3): every token of every TextField becomes a Term
// entry with FieldsBitmap recording which fields the token appeared in,
// and every TextField/StructuredField becomes a FieldValue for the ones
// the taxonomy marks Indexed.
func BuildTermIndex(kind Kind, lang tokenize.Language, text []TextField, structured []StructuredField) *TermIndex {
	taxonomy := TaxonomyFor(kind)
	bitmapByHash := make(map[uint64]uint32)
	order := make([]uint64, 0)
	ti := &TermIndex{}

	for _, tf := range text {
		def, ok := taxonomy.ByID(tf.Field)
		if !ok || !def.Text || tf.Field > 31 {
			continue
		}
		for _, tok := range tokenize.Tokenize(tf.Text, lang) {
			h := TermHash(tok)
			if _, seen := bitmapByHash[h]; !seen {
				order = append(order, h)
			}
			bitmapByHash[h] |= uint32(1) << uint(tf.Field)
		}
		if def.Indexed {
			ti.Fields = append(ti.Fields, FieldValue{Field: tf.Field, Bytes: []byte(tf.Text)})
		}
	}
	for _, h := range order {
		ti.Terms = append(ti.Terms, Term{Hash: h, FieldsBitmap: bitmapByHash[h]})
	}

	for _, sf := range structured {
		def, ok := taxonomy.ByID(sf.Field)
		if !ok || !def.Indexed {
			continue
		}
		ti.Fields = append(ti.Fields, FieldValue{Field: sf.Field, Bytes: sf.Bytes})
	}

	return ti
}
