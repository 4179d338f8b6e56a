// Package meili implements searchindex.Driver against MeiliSearch's
// documents + filter-expression API (spec.md §4.3's third interchangeable
// driver), using github.com/meilisearch/meilisearch-go — an out-of-pack
// ecosystem dependency named in DESIGN.md, since no example repo imports
// a MeiliSearch client directly.
package meili

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/storeerr"
)

// Driver stores one MeiliSearch document per (account, kind, document) in
// an index named "<prefix>-<kind>", with a synthetic primary key
// "<account>_<document>" (Meili primary keys must be strings/ints without
// a compound form).
type Driver struct {
	client *meilisearch.Client
	prefix string
}

func New(client *meilisearch.Client, indexPrefix string) *Driver {
	return &Driver{client: client, prefix: indexPrefix}
}

var _ searchindex.Driver = (*Driver)(nil)

func (d *Driver) indexName(kind searchindex.Kind) string {
	return fmt.Sprintf("%s-%s", d.prefix, kind.String())
}

func primaryKey(accountID, documentID uint32) string {
	return fmt.Sprintf("%d_%d", accountID, documentID)
}

func toDocument(accountID, documentID uint32, idx *searchindex.TermIndex) map[string]any {
	doc := map[string]any{
		"id":         primaryKey(accountID, documentID),
		"account_id": accountID,
	}
	for _, f := range idx.Fields {
		doc[strconv.Itoa(int(f.Field))] = string(f.Bytes)
	}
	return doc
}

func (d *Driver) WriteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, idx *searchindex.TermIndex) error {
	index := d.client.Index(d.indexName(kind))
	_, err := index.AddDocumentsWithContext(ctx, []map[string]any{toDocument(accountID, documentID, idx)}, nil)
	if err != nil {
		return storeerr.Wrap(storeerr.BackendError, err, "meili: add documents failed")
	}
	return nil
}

// MergeIndex re-adds the full document; MeiliSearch's AddDocuments call
// upserts by primary key, which already gives at-most-one-write-per-change
// semantics at the document granularity (spec.md §4.3 permits a full
// re-write where incremental diffing isn't available).
func (d *Driver) MergeIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, next *searchindex.TermIndex) error {
	return d.WriteIndex(ctx, accountID, kind, documentID, next)
}

func (d *Driver) DeleteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32) error {
	index := d.client.Index(d.indexName(kind))
	_, err := index.DeleteDocumentWithContext(ctx, primaryKey(accountID, documentID))
	if err != nil {
		return storeerr.Wrap(storeerr.BackendError, err, "meili: delete document failed")
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, q searchindex.Query) ([]searchindex.Result, error) {
	index := d.client.Index(d.indexName(q.Kind))
	req := &meilisearch.SearchRequest{
		Filter: buildFilterExpression(q),
	}
	if q.Limit > 0 {
		req.Limit = int64(q.Limit)
	}
	if len(q.Comparators) > 0 {
		req.Sort = translateSort(q.Comparators)
	}

	queryText := extractQueryText(q.Filter)
	resp, err := index.SearchWithContext(ctx, queryText, req)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.BackendError, err, "meili: search failed")
	}
	return parseHits(resp)
}

// buildFilterExpression renders the non-text portion of the filter tree
// (DocumentSet, structured Operators) as a MeiliSearch filter string;
// text Equal/Contains operators become the free-text query instead
// (extractQueryText), since Meili's filter syntax is for structured
// attributes, not full-text matching.
func buildFilterExpression(q searchindex.Query) string {
	expr := renderFilter(q.Filter, q.Kind)
	scoped := fmt.Sprintf("account_id = %d", q.AccountID)
	if expr == "" {
		return scoped
	}
	return scoped + " AND " + expr
}

func renderFilter(f searchindex.Filter, kind searchindex.Kind) string {
	switch f.Kind {
	case searchindex.FilterAnd, searchindex.FilterEnd:
		return joinFilters(f.Children, kind, " AND ")
	case searchindex.FilterOr:
		return joinFilters(f.Children, kind, " OR ")
	case searchindex.FilterNot:
		if len(f.Children) == 0 {
			return ""
		}
		inner := renderFilter(f.Children[0], kind)
		if inner == "" {
			return ""
		}
		return "NOT (" + inner + ")"
	case searchindex.FilterDocumentSet:
		if f.DocumentSet == nil || f.DocumentSet.IsEmpty() {
			return ""
		}
		ids := make([]string, 0, f.DocumentSet.GetCardinality())
		it := f.DocumentSet.Iterator()
		for it.HasNext() {
			ids = append(ids, fmt.Sprintf("%d", it.Next()))
		}
		return "document_id IN [" + strings.Join(ids, ",") + "]"
	case searchindex.FilterOperator:
		taxonomy := searchindex.TaxonomyFor(kind)
		def, _ := taxonomy.ByID(f.Field)
		if def.Text {
			return "" // handled via free-text query instead
		}
		return renderOperator(f)
	default:
		return ""
	}
}

func renderOperator(f searchindex.Filter) string {
	field := strconv.Itoa(int(f.Field))
	value := string(f.Value)
	switch f.Op {
	case searchindex.Equal:
		return fmt.Sprintf("%s = %q", field, value)
	case searchindex.LowerThan:
		return fmt.Sprintf("%s < %q", field, value)
	case searchindex.LowerEqualThan:
		return fmt.Sprintf("%s <= %q", field, value)
	case searchindex.GreaterThan:
		return fmt.Sprintf("%s > %q", field, value)
	case searchindex.GreaterEqualThan:
		return fmt.Sprintf("%s >= %q", field, value)
	default:
		return ""
	}
}

func joinFilters(children []searchindex.Filter, kind searchindex.Kind, sep string) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if r := renderFilter(c, kind); r != "" {
			parts = append(parts, "("+r+")")
		}
	}
	return strings.Join(parts, sep)
}

// extractQueryText walks the filter tree for the first text Contains/Equal
// operator and returns its value as Meili's free-text query.
func extractQueryText(f searchindex.Filter) string {
	if f.Kind == searchindex.FilterOperator && (f.Op == searchindex.Contains || f.Op == searchindex.Equal) {
		return string(f.Value)
	}
	for _, c := range f.Children {
		if t := extractQueryText(c); t != "" {
			return t
		}
	}
	return ""
}

func translateSort(cmps []searchindex.Comparator) []string {
	out := make([]string, 0, len(cmps))
	for _, c := range cmps {
		dir := "asc"
		if !c.Ascending {
			dir = "desc"
		}
		out = append(out, fmt.Sprintf("%d:%s", c.Field, dir))
	}
	return out
}

func parseHits(resp *meilisearch.SearchResponse) ([]searchindex.Result, error) {
	out := make([]searchindex.Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		m, ok := hit.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		docID, err := documentIDFromKey(id)
		if err != nil {
			continue
		}
		out = append(out, searchindex.Result{DocumentID: docID})
	}
	return out, nil
}

func documentIDFromKey(key string) (uint32, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("meili: malformed document key %q", key)
	}
	v, err := strconv.ParseUint(parts[1], 10, 32)
	return uint32(v), err
}
