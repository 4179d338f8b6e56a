// Package purge implements the account-purge / tombstone pipeline
// (spec.md §4.4): tombstone writes, auto-expunge by retention, and the
// lease-guarded reclaim pass that clears search-index entries, the
// metadata property, and blob links for already-tombstoned documents.
package purge

import (
	"time"

	"github.com/groupwave/corestore/batch"
	"github.com/groupwave/corestore/changelog"
)

// TombstoneID is the reserved sentinel value tagged under a document's
// mailbox-ids (or collection-parent) field to mark it vanished but not
// yet purged (spec.md §3's "Document ... tombstoned by tagging with a
// reserved sentinel").
var TombstoneID = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// TombstoneDocument appends the batch operations spec.md §4.4's
// "Tombstone write" describes: tag the document with TombstoneID under
// mailboxField, remove its mailbox index entry, and log a vanished-item
// entry carrying (containerID, itemUID). The caller commits b.
func TombstoneDocument(
	b *batch.Builder,
	accountID uint32,
	collection changelog.Collection,
	documentID uint32,
	mailboxField uint8,
	mailboxIndexKey []byte,
	containerID uint32,
	itemUID uint64,
) {
	b.AccountID(accountID).Collection(collection).DocumentID(documentID)
	b.Tag(mailboxField, TombstoneID, true)
	if mailboxIndexKey != nil {
		b.Unindex(mailboxField, mailboxIndexKey)
	}
	b.LogVanishedItem(collection.ToSync(), changelog.VanishedItem{ContainerID: containerID, ItemUID: itemUID})
}

// MessageRef is the minimal per-message view AutoExpunge needs: which
// mailbox it lives in, its sync identity, and when it was received.
type MessageRef struct {
	DocumentID uint32
	MailboxID  uint32
	UID        uint64
	ReceivedAt time.Time
	IndexKey   []byte // the mailbox-field index key to remove, if any
}

// MessageSource resolves the set of messages currently filed in a trash
// or junk mailbox for an account — the per-account message cache spec.md
// §4.4's "Auto-expunge" reads from. Implemented by the protocol layer
// (mailbox membership bookkeeping is out of this module's scope); purge
// only needs this seam.
type MessageSource interface {
	TrashJunkMessages(accountID uint32) ([]MessageRef, error)
}

// AutoExpunge tombstones every message in src that has sat in trash/junk
// longer than holdPeriod, chunked across commit points every chunkSize
// documents (spec.md §4.4: "collects document IDs, and tombstones them in
// chunks"). Returns the number of documents tombstoned.
func AutoExpunge(src MessageSource, b *batch.Builder, accountID uint32, mailboxField uint8, holdPeriod time.Duration, chunkSize int) (int, error) {
	msgs, err := src.TrashJunkMessages(accountID)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-holdPeriod)
	n := 0
	for _, m := range msgs {
		if m.ReceivedAt.After(cutoff) {
			continue
		}
		TombstoneDocument(b, accountID, changelog.CollectionEmail, m.DocumentID, mailboxField, m.IndexKey, m.MailboxID, m.UID)
		n++
		if chunkSize > 0 && n%chunkSize == 0 {
			b.CommitPoint()
		}
	}
	return n, nil
}
