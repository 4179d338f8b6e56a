package searchindex

import "context"

// Result is one matched document. When a Query specifies Comparators,
// each driver returns its results already in comparator order.
type Result struct {
	DocumentID uint32
	Score      float64 // driver-native relevance score; meaningless when a Comparator is set
}

// Driver is the query/write seam spec.md §4.3's "three interchangeable
// implementations" share: embedded, elastic, and meili all implement it,
// and must yield the same result set given equivalent inputs (score
// ordering may differ only when Query has no Comparator).
type Driver interface {
	// WriteIndex stores idx for (accountID, kind, documentID), emitting
	// whatever derived keys/documents this driver needs from scratch
	// (spec.md §4.3's write_index).
	WriteIndex(ctx context.Context, accountID uint32, kind Kind, documentID uint32, idx *TermIndex) error

	// MergeIndex replaces the stored index for the document with next,
	// touching only the term/field keys that actually changed (spec.md
	// §4.3's merge_index). Implementations that cannot diff
	// incrementally (elastic, meili) may implement this as a full
	// re-write; the embedded driver implements the true diff.
	MergeIndex(ctx context.Context, accountID uint32, kind Kind, documentID uint32, next *TermIndex) error

	// DeleteIndex clears every derived key/document for documentID
	// (spec.md §4.3's delete path).
	DeleteIndex(ctx context.Context, accountID uint32, kind Kind, documentID uint32) error

	// Query runs q against the index and returns matching documents.
	Query(ctx context.Context, q Query) ([]Result, error)
}
