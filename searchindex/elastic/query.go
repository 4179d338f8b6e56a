package elastic

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/groupwave/corestore/searchindex"
)

// buildSearchBody translates a searchindex.Filter tree into an ES Query
// DSL bool query; the filter shapes in spec.md §4.3 map directly onto
// ES's own bool/must/must_not/should clauses.
func buildSearchBody(q searchindex.Query) map[string]any {
	body := map[string]any{"query": translateFilter(q.Filter, q.AccountID)}
	if q.Limit > 0 {
		body["size"] = q.Limit
	}
	if len(q.Comparators) > 0 {
		body["sort"] = translateComparators(q.Comparators)
	}
	return body
}

func translateFilter(f searchindex.Filter, accountID uint32) map[string]any {
	switch f.Kind {
	case searchindex.FilterAnd, searchindex.FilterEnd:
		return boolQuery("must", f.Children, accountID)
	case searchindex.FilterOr:
		return boolQuery("should", f.Children, accountID)
	case searchindex.FilterNot:
		return boolQuery("must_not", f.Children, accountID)
	case searchindex.FilterDocumentSet:
		ids := make([]string, 0)
		if f.DocumentSet != nil {
			it := f.DocumentSet.Iterator()
			for it.HasNext() {
				ids = append(ids, strconv.FormatUint(uint64(it.Next()), 10))
			}
		}
		return map[string]any{"ids": map[string]any{"values": ids}}
	case searchindex.FilterOperator:
		return translateOperator(f)
	default:
		return map[string]any{"match_all": map[string]any{}}
	}
}

func boolQuery(clause string, children []searchindex.Filter, accountID uint32) map[string]any {
	clauses := make([]map[string]any, 0, len(children))
	for _, c := range children {
		clauses = append(clauses, translateFilter(c, accountID))
	}
	return map[string]any{"bool": map[string]any{clause: clauses}}
}

func translateOperator(f searchindex.Filter) map[string]any {
	field := strconv.Itoa(int(f.Field))
	switch f.Op {
	case searchindex.Equal:
		return map[string]any{"term": map[string]any{field: string(f.Value)}}
	case searchindex.Contains:
		return map[string]any{"match": map[string]any{field: string(f.Value)}}
	case searchindex.LowerThan:
		return map[string]any{"range": map[string]any{field: map[string]any{"lt": string(f.Value)}}}
	case searchindex.LowerEqualThan:
		return map[string]any{"range": map[string]any{field: map[string]any{"lte": string(f.Value)}}}
	case searchindex.GreaterThan:
		return map[string]any{"range": map[string]any{field: map[string]any{"gt": string(f.Value)}}}
	case searchindex.GreaterEqualThan:
		return map[string]any{"range": map[string]any{field: map[string]any{"gte": string(f.Value)}}}
	default:
		return map[string]any{"match_all": map[string]any{}}
	}
}

func translateComparators(cmps []searchindex.Comparator) []map[string]any {
	out := make([]map[string]any, 0, len(cmps))
	for _, c := range cmps {
		order := "asc"
		if !c.Ascending {
			order = "desc"
		}
		out = append(out, map[string]any{strconv.Itoa(int(c.Field)): map[string]any{"order": order}})
	}
	return out
}

type esHit struct {
	ID    string  `json:"_id"`
	Score float64 `json:"_score"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

func parseSearchResponse(body io.Reader, limit int) ([]searchindex.Result, error) {
	var resp esSearchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, err
	}
	out := make([]searchindex.Result, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		docID, err := parseDocID(h.ID)
		if err != nil {
			continue
		}
		out = append(out, searchindex.Result{DocumentID: docID, Score: h.Score})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// parseDocID recovers the document id from an "<account>:<document>" ES
// document id (see docID in elastic.go).
func parseDocID(id string) (uint32, error) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			v, err := strconv.ParseUint(id[i+1:], 10, 32)
			return uint32(v), err
		}
	}
	v, err := strconv.ParseUint(id, 10, 32)
	return uint32(v), err
}
