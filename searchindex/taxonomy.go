// Package searchindex builds and queries the term+field index for
// indexable documents (spec.md §4.3): a TermIndex archive per document,
// derived SearchIndex{Term}/SearchIndex{Index} keys, and a filter-tree
// query path against one of three interchangeable drivers.
package searchindex

// Kind names one of the five indexable domains spec.md §4.3 lists. Field
// ids are only unique within a Kind, not across kinds.
type Kind uint8

const (
	Email Kind = iota
	Calendar
	Contacts
	File
	Tracing
)

func (k Kind) String() string {
	switch k {
	case Email:
		return "email"
	case Calendar:
		return "calendar"
	case Contacts:
		return "contacts"
	case File:
		return "file"
	case Tracing:
		return "tracing"
	default:
		return "unknown"
	}
}

// FieldID is a stable numeric field identifier, unique within its Kind.
// Stability across restarts matters: these ids are the suffix of a
// SearchIndex{Index} key, so renumbering one is a breaking on-disk change
// (the same append-only discipline storedrv.Subspace follows).
type FieldID uint8

// FieldDef declares whether a field is tokenized for text search
// (Text) and/or stored for range/equality filters (Indexed). A field may
// be both, e.g. a Subject line is tokenized and also filterable verbatim.
type FieldDef struct {
	ID      FieldID
	Name    string
	Text    bool
	Indexed bool
}

// Taxonomy is the ordered field table for one Kind.
type Taxonomy []FieldDef

// ByID returns the field definition for id, and whether it's defined.
func (t Taxonomy) ByID(id FieldID) (FieldDef, bool) {
	for _, f := range t {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Email field taxonomy: spec.md §4.3's worked example, verbatim.
const (
	EmailFrom FieldID = iota
	EmailTo
	EmailCc
	EmailBcc
	EmailSubject
	EmailBody
	EmailAttachment
	EmailReceivedAt
	EmailSentAt
	EmailSize
	EmailHasAttachment
	EmailHeaders
)

var EmailTaxonomy = Taxonomy{
	{EmailFrom, "from", true, true},
	{EmailTo, "to", true, true},
	{EmailCc, "cc", true, true},
	{EmailBcc, "bcc", true, true},
	{EmailSubject, "subject", true, true},
	{EmailBody, "body", true, false},
	{EmailAttachment, "attachment", true, false},
	{EmailReceivedAt, "received_at", false, true},
	{EmailSentAt, "sent_at", false, true},
	{EmailSize, "size", false, true},
	{EmailHasAttachment, "has_attachment", false, true},
	{EmailHeaders, "headers", true, false},
}

// Calendar field taxonomy, supplementing the distilled spec (which names
// the taxonomy only for Email) per SPEC_FULL.md §2.4, shaped after the
// original's jmap-proto/src/object/calendar.rs event properties.
const (
	CalendarSummary FieldID = iota
	CalendarDescription
	CalendarLocation
	CalendarOrganizer
	CalendarAttendee
	CalendarStart
	CalendarEnd
	CalendarUID
	CalendarStatus
)

var CalendarTaxonomy = Taxonomy{
	{CalendarSummary, "summary", true, true},
	{CalendarDescription, "description", true, false},
	{CalendarLocation, "location", true, true},
	{CalendarOrganizer, "organizer", true, true},
	{CalendarAttendee, "attendee", true, true},
	{CalendarStart, "start", false, true},
	{CalendarEnd, "end", false, true},
	{CalendarUID, "uid", false, true},
	{CalendarStatus, "status", false, true},
}

// Contacts field taxonomy, shaped after vCard's common properties.
const (
	ContactFullName FieldID = iota
	ContactGivenName
	ContactFamilyName
	ContactEmail
	ContactPhone
	ContactOrg
	ContactNote
)

var ContactsTaxonomy = Taxonomy{
	{ContactFullName, "fn", true, true},
	{ContactGivenName, "given_name", true, true},
	{ContactFamilyName, "family_name", true, true},
	{ContactEmail, "email", true, true},
	{ContactPhone, "phone", false, true},
	{ContactOrg, "org", true, true},
	{ContactNote, "note", true, false},
}

// File field taxonomy, for WebDAV/CalDAV/CardDAV-stored blobs.
const (
	FileName FieldID = iota
	FileContentType
	FileSize
	FileModifiedAt
	FileContent
)

var FileTaxonomy = Taxonomy{
	{FileName, "name", true, true},
	{FileContentType, "content_type", false, true},
	{FileSize, "size", false, true},
	{FileModifiedAt, "modified_at", false, true},
	{FileContent, "content", true, false},
}

// Tracing field taxonomy, for the telemetry/tracing subspace (spec.md
// §6's SubspaceTelemetry).
const (
	TraceSpanName FieldID = iota
	TraceService
	TraceStatus
	TraceDuration
	TraceStartedAt
)

var TracingTaxonomy = Taxonomy{
	{TraceSpanName, "span_name", true, true},
	{TraceService, "service", false, true},
	{TraceStatus, "status", false, true},
	{TraceDuration, "duration", false, true},
	{TraceStartedAt, "started_at", false, true},
}

// TaxonomyFor returns the field table for a Kind.
func TaxonomyFor(k Kind) Taxonomy {
	switch k {
	case Email:
		return EmailTaxonomy
	case Calendar:
		return CalendarTaxonomy
	case Contacts:
		return ContactsTaxonomy
	case File:
		return FileTaxonomy
	case Tracing:
		return TracingTaxonomy
	default:
		return nil
	}
}
