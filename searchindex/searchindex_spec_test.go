package searchindex

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/groupwave/corestore/searchindex/tokenize"
)

var _ = Describe("TermHash", func() {
	It("is a deterministic function of the token", func() {
		Expect(TermHash("invoice")).To(Equal(TermHash("invoice")))
	})

	It("differs across distinct tokens (with overwhelming probability)", func() {
		Expect(TermHash("invoice")).NotTo(Equal(TermHash("receipt")))
	})
})

var _ = Describe("BuildTermIndex", func() {
	It("records every tokenized word's fields bitmap across the fields it appears in", func() {
		ti := BuildTermIndex(Email, tokenize.None,
			[]TextField{
				{Field: EmailFrom, Text: "alice"},
				{Field: EmailSubject, Text: "alice invoice"},
			},
			nil,
		)
		term, ok := ti.termByHash(TermHash("alice"))
		Expect(ok).To(BeTrue())
		Expect(term.FieldsBitmap & (1 << uint(EmailFrom))).NotTo(BeZero())
		Expect(term.FieldsBitmap & (1 << uint(EmailSubject))).NotTo(BeZero())

		invoice, ok := ti.termByHash(TermHash("invoice"))
		Expect(ok).To(BeTrue())
		Expect(invoice.FieldsBitmap & (1 << uint(EmailFrom))).To(BeZero())
	})

	It("stores a FieldValue only for taxonomy fields marked Indexed", func() {
		ti := BuildTermIndex(Email, tokenize.None,
			[]TextField{
				{Field: EmailSubject, Text: "hello"}, // Indexed: true
				{Field: EmailBody, Text: "world"},    // Indexed: false
			},
			nil,
		)
		_, ok := ti.fieldByID(EmailSubject)
		Expect(ok).To(BeTrue())
		_, ok = ti.fieldByID(EmailBody)
		Expect(ok).To(BeFalse())
	})

	It("stores structured fields only when the taxonomy marks them Indexed", func() {
		ti := BuildTermIndex(Email, tokenize.None, nil, []StructuredField{
			{Field: EmailSize, Bytes: []byte{0, 0, 0, 42}},
		})
		fv, ok := ti.fieldByID(EmailSize)
		Expect(ok).To(BeTrue())
		Expect(fv.Bytes).To(Equal([]byte{0, 0, 0, 42}))
	})

	It("ignores fields not defined by the Kind's taxonomy", func() {
		ti := BuildTermIndex(Email, tokenize.None, []TextField{{Field: FieldID(250), Text: "x"}}, nil)
		Expect(ti.Terms).To(BeEmpty())
	})
})

var _ = Describe("Diff", func() {
	It("reports every term in next as added when prior is nil", func() {
		next := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 1}}}
		added, removed, _, _ := Diff(nil, next)
		Expect(added).To(HaveLen(1))
		Expect(removed).To(BeEmpty())
	})

	It("reports a term as removed when it no longer appears in next", func() {
		prior := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 1}}}
		next := &TermIndex{}
		added, removed, _, _ := Diff(prior, next)
		Expect(added).To(BeEmpty())
		Expect(removed).To(HaveLen(1))
	})

	It("reports a term as added again if its fields bitmap changed", func() {
		prior := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 1}}}
		next := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 3}}}
		added, removed, _, _ := Diff(prior, next)
		Expect(added).To(HaveLen(1))
		Expect(removed).To(BeEmpty())
	})

	It("treats an unchanged term as neither added nor removed", func() {
		prior := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 1}}}
		next := &TermIndex{Terms: []Term{{Hash: 1, FieldsBitmap: 1}}}
		added, removed, _, _ := Diff(prior, next)
		Expect(added).To(BeEmpty())
		Expect(removed).To(BeEmpty())
	})

	It("diffs fields by id and byte-equality", func() {
		prior := &TermIndex{Fields: []FieldValue{{Field: EmailSize, Bytes: []byte("1")}}}
		next := &TermIndex{Fields: []FieldValue{{Field: EmailSize, Bytes: []byte("2")}}}
		_, _, addedF, removedF := Diff(prior, next)
		Expect(addedF).To(HaveLen(1))
		Expect(removedF).To(BeEmpty()) // same field id, just a changed value: an update, not a removal
	})
})

var _ = Describe("TermIndex wire format", func() {
	It("round-trips through Marshal/UnmarshalTermIndex", func() {
		ti := &TermIndex{
			Terms:  []Term{{Hash: 1, FieldsBitmap: 3}, {Hash: 2, FieldsBitmap: 1}},
			Fields: []FieldValue{{Field: EmailSize, Bytes: []byte{1, 2, 3}}},
		}
		got, err := UnmarshalTermIndex(ti.Marshal())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Terms).To(Equal(ti.Terms))
		Expect(got.Fields).To(Equal(ti.Fields))
	})
})

var _ = Describe("Taxonomy.ByID", func() {
	It("finds a declared field", func() {
		def, ok := EmailTaxonomy.ByID(EmailSubject)
		Expect(ok).To(BeTrue())
		Expect(def.Name).To(Equal("subject"))
	})

	It("reports false for an undeclared field id", func() {
		_, ok := EmailTaxonomy.ByID(FieldID(250))
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("TaxonomyFor", func() {
	It("returns the right taxonomy per Kind", func() {
		Expect(TaxonomyFor(Calendar)).To(Equal(CalendarTaxonomy))
		Expect(TaxonomyFor(Contacts)).To(Equal(ContactsTaxonomy))
		Expect(TaxonomyFor(File)).To(Equal(FileTaxonomy))
		Expect(TaxonomyFor(Tracing)).To(Equal(TracingTaxonomy))
	})
})
