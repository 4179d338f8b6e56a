package searchindex

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/groupwave/corestore/searchindex/tokenize"
)

// Operator is the comparison spec.md §4.3 names for an Operator filter
// node against a structured field.
type Operator uint8

const (
	Equal Operator = iota
	Contains
	LowerThan
	LowerEqualThan
	GreaterThan
	GreaterEqualThan
)

// FilterKind discriminates a Filter node's variant.
type FilterKind uint8

const (
	FilterAnd FilterKind = iota
	FilterOr
	FilterNot
	FilterEnd
	FilterDocumentSet
	FilterOperator
)

// Filter is a node in the filter tree spec.md §4.3 specifies:
// {And, Or, Not, End, DocumentSet(bitmap), Operator{field, op, value}}.
// And/Or/Not compose Children; DocumentSet and Operator are leaves.
// FilterEnd is the sentinel closing an And/Or/Not group for drivers that
// parse the tree as a flat token stream rather than recursively (mirroring
// the original's postfix-style filter encoding). The in-process Filter
// value here is already a tree and no driver flattens it: embedded
// evaluates a FilterEnd node as an empty set, elastic and meili treat it
// like And.
type Filter struct {
	Kind     FilterKind
	Children []Filter

	DocumentSet *roaring.Bitmap

	Field FieldID
	Op    Operator
	Value []byte
}

func And(children ...Filter) Filter { return Filter{Kind: FilterAnd, Children: children} }
func Or(children ...Filter) Filter  { return Filter{Kind: FilterOr, Children: children} }
func Not(child Filter) Filter       { return Filter{Kind: FilterNot, Children: []Filter{child}} }
func DocSet(bm *roaring.Bitmap) Filter {
	return Filter{Kind: FilterDocumentSet, DocumentSet: bm}
}
func Cmp(field FieldID, op Operator, value []byte) Filter {
	return Filter{Kind: FilterOperator, Field: field, Op: op, Value: value}
}

// ComparatorKind names the sort key a query orders results by.
type ComparatorKind uint8

const (
	ComparatorField ComparatorKind = iota
	ComparatorSortedSet
)

// Comparator orders query results. Ascending sorts low-to-high. The
// embedded driver orders by the first Comparator only and breaks ties on
// DocumentID. The elastic and meili drivers hand every Comparator to the
// backend's own sort and add no DocumentID tie-break, so their order among
// equal keys is whatever the backend returns.
type Comparator struct {
	Kind       ComparatorKind
	Field      FieldID
	Ascending  bool
}

// Query scopes and filters a search (spec.md §4.3: "(SearchIndex kind,
// account_id, mask: bitmap)").
type Query struct {
	Kind        Kind
	AccountID   uint32
	Mask        *roaring.Bitmap
	Filter      Filter
	Comparators []Comparator
	Language    tokenize.Language
	Limit       int
}
