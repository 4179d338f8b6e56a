// Package elastic implements searchindex.Driver against Elasticsearch's
// bulk index + _search APIs (spec.md §4.3's second interchangeable
// driver), using github.com/elastic/go-elasticsearch/v8 — an out-of-pack
// ecosystem dependency named in DESIGN.md, since no example repo imports
// an Elasticsearch client directly.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/storeerr"
)

// Driver indexes one ES document per (account, kind, document): the
// TermIndex's fields are flattened into a JSON document; terms are
// re-derived from the same field values at query time by ES's own
// analyzer, so the driver only ever needs to ship fields.
type Driver struct {
	es     *elasticsearch.Client
	prefix string // index name prefix; full index name is "<prefix>-<kind>"
}

func New(es *elasticsearch.Client, indexPrefix string) *Driver {
	return &Driver{es: es, prefix: indexPrefix}
}

var _ searchindex.Driver = (*Driver)(nil)

func (d *Driver) indexName(kind searchindex.Kind) string {
	return fmt.Sprintf("%s-%s", d.prefix, kind.String())
}

func docID(accountID, documentID uint32) string {
	return strconv.FormatUint(uint64(accountID), 10) + ":" + strconv.FormatUint(uint64(documentID), 10)
}

func toDocument(accountID uint32, idx *searchindex.TermIndex) map[string]any {
	doc := map[string]any{"account_id": accountID}
	for _, f := range idx.Fields {
		doc[strconv.Itoa(int(f.Field))] = string(f.Bytes)
	}
	return doc
}

func (d *Driver) WriteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, idx *searchindex.TermIndex) error {
	body, err := json.Marshal(toDocument(accountID, idx))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      d.indexName(kind),
		DocumentID: docID(accountID, documentID),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, d.es)
	if err != nil {
		return storeerr.Wrap(storeerr.BackendError, err, "elastic: index request failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return backendError(res)
	}
	return nil
}

// MergeIndex re-indexes the full document; Elasticsearch has no
// incremental term-diff API, so this driver always performs a full
// re-write (spec.md §4.3 permits this: "implementations that cannot diff
// incrementally may implement this as a full re-write").
func (d *Driver) MergeIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32, next *searchindex.TermIndex) error {
	return d.WriteIndex(ctx, accountID, kind, documentID, next)
}

func (d *Driver) DeleteIndex(ctx context.Context, accountID uint32, kind searchindex.Kind, documentID uint32) error {
	req := esapi.DeleteRequest{
		Index:      d.indexName(kind),
		DocumentID: docID(accountID, documentID),
	}
	res, err := req.Do(ctx, d.es)
	if err != nil {
		return storeerr.Wrap(storeerr.BackendError, err, "elastic: delete request failed")
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return backendError(res)
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, q searchindex.Query) ([]searchindex.Result, error) {
	body, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, err
	}
	res, err := d.es.Search(
		d.es.Search.WithContext(ctx),
		d.es.Search.WithIndex(d.indexName(q.Kind)),
		d.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.BackendError, err, "elastic: search request failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, backendError(res)
	}
	return parseSearchResponse(res.Body, q.Limit)
}

func backendError(res *esapi.Response) error {
	msg, _ := io.ReadAll(res.Body)
	return storeerr.New(storeerr.BackendError, "elastic: "+string(msg))
}
