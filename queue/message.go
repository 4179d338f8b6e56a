// Package queue implements the mail-transfer queue control loop (spec.md
// §4.5): per-message recipient scheduling, per-virtual-queue concurrency
// caps, lock-leasing with revisioning, and back-pressure.
package queue

import "time"

// RecipientStatus is the closed set of per-recipient delivery states.
type RecipientStatus uint8

const (
	Scheduled RecipientStatus = iota
	Completed
	TemporaryFailure
	PermanentFailure
)

// ExpiryKind discriminates QueueExpiry's two forms.
type ExpiryKind uint8

const (
	ExpiryDuration ExpiryKind = iota
	ExpiryCount
)

// QueueExpiry bounds how long (or how many attempts) a recipient may be
// retried before it is abandoned (spec.md §4.5).
type QueueExpiry struct {
	Kind     ExpiryKind
	Duration time.Duration
	Count    int
}

// IsExpired implements spec.md §4.5's expiry predicate:
// (Duration(d) ∧ created+d ≤ now) ∨ (Count(n) ∧ attempts ≥ n).
func (e QueueExpiry) IsExpired(created, now time.Time, attempts int) bool {
	switch e.Kind {
	case ExpiryDuration:
		return !created.Add(e.Duration).After(now)
	case ExpiryCount:
		return attempts >= e.Count
	default:
		return false
	}
}

// Recipient is one delivery target inside a Message, with its own
// independent retry/notify schedule and expiry.
type Recipient struct {
	Address      string
	Status       RecipientStatus
	RetryDue     time.Time
	NotifyDue    time.Time
	Expiry       QueueExpiry
	VirtualQueue string
	Attempts     int
}

func (r Recipient) expiresAt(created time.Time) time.Time {
	if r.Expiry.Kind == ExpiryDuration {
		return created.Add(r.Expiry.Duration)
	}
	return time.Time{}
}

// Message is one queued outbound-mail item.
type Message struct {
	QueueID    uint64
	BlobHash   string
	ReturnPath string
	Recipients []Recipient
	Priority   int
	Size       int64
	Created    time.Time
}

// NextEvent computes the earliest wake-up time across recipients in
// Scheduled or TemporaryFailure that belong to virtualQueue (spec.md
// §4.5's "min over recipients of min(retry.due, notify.due,
// expires_time(created))"). Returns ok=false if no recipient qualifies.
func (m *Message) NextEvent(virtualQueue string) (due time.Time, ok bool) {
	for _, r := range m.Recipients {
		if r.VirtualQueue != virtualQueue {
			continue
		}
		if r.Status != Scheduled && r.Status != TemporaryFailure {
			continue
		}
		candidates := []time.Time{r.RetryDue, r.NotifyDue}
		if exp := r.expiresAt(m.Created); !exp.IsZero() {
			candidates = append(candidates, exp)
		}
		for _, c := range candidates {
			if c.IsZero() {
				continue
			}
			if !ok || c.Before(due) {
				due, ok = c, true
			}
		}
	}
	return due, ok
}

// VirtualQueues returns the distinct virtual-queue names this message has
// recipients in.
func (m *Message) VirtualQueues() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.Recipients {
		if _, ok := seen[r.VirtualQueue]; ok {
			continue
		}
		seen[r.VirtualQueue] = struct{}{}
		out = append(out, r.VirtualQueue)
	}
	return out
}
