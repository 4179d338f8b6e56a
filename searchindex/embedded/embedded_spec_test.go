package embedded

import (
	"context"

	"github.com/RoaringBitmap/roaring"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/searchindex/tokenize"
	"github.com/groupwave/corestore/storedrv/memory"
)

func docIDs(results []searchindex.Result) []uint32 {
	out := make([]uint32, len(results))
	for i, r := range results {
		out[i] = r.DocumentID
	}
	return out
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		d   *Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = New(memory.New())
	})

	writeEmail := func(documentID uint32, subject, body string, size uint32) {
		ti := searchindex.BuildTermIndex(searchindex.Email, tokenize.None,
			[]searchindex.TextField{
				{Field: searchindex.EmailSubject, Text: subject},
				{Field: searchindex.EmailBody, Text: body},
			},
			[]searchindex.StructuredField{
				{Field: searchindex.EmailSize, Bytes: []byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)}},
			},
		)
		Expect(d.WriteIndex(ctx, 1, searchindex.Email, documentID, ti)).To(Succeed())
	}

	It("matches a Contains query against a tokenized text field", func() {
		writeEmail(1, "quarterly invoice", "see attached", 100)
		writeEmail(2, "team lunch", "noon at the usual place", 50)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice")),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(1)))
	})

	It("treats Equal on a text field the same as Contains (a documented simplification)", func() {
		writeEmail(1, "quarterly invoice", "", 0)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Equal, []byte("invoice")),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(1)))
	})

	It("evaluates an And of two text filters as their conjunction", func() {
		writeEmail(1, "quarterly invoice", "urgent", 0)
		writeEmail(2, "quarterly invoice", "fyi", 0)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.And(
				searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice")),
				searchindex.Cmp(searchindex.EmailBody, searchindex.Contains, []byte("urgent")),
			),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(1)))
	})

	It("evaluates an Or of two text filters as their union", func() {
		writeEmail(1, "invoice", "", 0)
		writeEmail(2, "lunch", "", 0)
		writeEmail(3, "unrelated", "", 0)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Or(
				searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice")),
				searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("lunch")),
			),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(1), uint32(2)))
	})

	It("evaluates Not as every indexed document minus the child match", func() {
		writeEmail(1, "invoice", "", 0)
		writeEmail(2, "lunch", "", 0)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Not(searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice"))),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(2)))
	})

	It("intersects a DocumentSet filter's bitmap literally", func() {
		writeEmail(1, "invoice", "", 0)
		writeEmail(2, "invoice", "", 0)

		only2 := roaring.New()
		only2.Add(2)
		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.DocSet(only2),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(2)))
	})

	It("evaluates range operators against a structured field", func() {
		writeEmail(1, "a", "", 10)
		writeEmail(2, "b", "", 200)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSize, searchindex.GreaterThan, []byte{0, 0, 0, 100}),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(2)))
	})

	It("intersects the query Mask with the filter's matched set", func() {
		writeEmail(1, "invoice", "", 0)
		writeEmail(2, "invoice", "", 0)

		mask := roaring.New()
		mask.Add(1)
		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1, Mask: mask,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice")),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(ConsistOf(uint32(1)))
	})

	It("sorts results by the comparator field, breaking ties on document id", func() {
		writeEmail(1, "x", "", 300)
		writeEmail(2, "x", "", 100)
		writeEmail(3, "x", "", 200)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1,
			Filter:      searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("x")),
			Comparators: []searchindex.Comparator{{Kind: searchindex.ComparatorField, Field: searchindex.EmailSize, Ascending: true}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(Equal([]uint32{2, 3, 1}))
	})

	It("applies Limit after sorting", func() {
		writeEmail(1, "x", "", 1)
		writeEmail(2, "x", "", 2)
		writeEmail(3, "x", "", 3)

		results, err := d.Query(ctx, searchindex.Query{
			Kind: searchindex.Email, AccountID: 1, Limit: 2,
			Filter:      searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("x")),
			Comparators: []searchindex.Comparator{{Kind: searchindex.ComparatorField, Field: searchindex.EmailSize, Ascending: true}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(results)).To(Equal([]uint32{1, 2}))
	})

	It("MergeIndex updates term keys so a stale term no longer matches and the new one does", func() {
		ti1 := searchindex.BuildTermIndex(searchindex.Email, tokenize.None,
			[]searchindex.TextField{{Field: searchindex.EmailSubject, Text: "invoice"}}, nil)
		Expect(d.WriteIndex(ctx, 1, searchindex.Email, 1, ti1)).To(Succeed())

		ti2 := searchindex.BuildTermIndex(searchindex.Email, tokenize.None,
			[]searchindex.TextField{{Field: searchindex.EmailSubject, Text: "receipt"}}, nil)
		Expect(d.MergeIndex(ctx, 1, searchindex.Email, 1, ti2)).To(Succeed())

		stale, err := d.Query(ctx, searchindex.Query{Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(stale).To(BeEmpty())

		fresh, err := d.Query(ctx, searchindex.Query{Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("receipt"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(docIDs(fresh)).To(ConsistOf(uint32(1)))
	})

	It("DeleteIndex removes every derived key so later queries see nothing", func() {
		writeEmail(1, "invoice", "", 0)
		Expect(d.DeleteIndex(ctx, 1, searchindex.Email, 1)).To(Succeed())

		results, err := d.Query(ctx, searchindex.Query{Kind: searchindex.Email, AccountID: 1,
			Filter: searchindex.Cmp(searchindex.EmailSubject, searchindex.Contains, []byte("invoice"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("DeleteIndex on a document with no prior index is a no-op", func() {
		Expect(d.DeleteIndex(ctx, 1, searchindex.Email, 999)).To(Succeed())
	})
})
