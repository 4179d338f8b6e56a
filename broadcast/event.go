package broadcast

// EventKind is the add-only event taxonomy spec.md §4.6 and §9 name
// ("the event taxonomy must remain compatible with older publishers").
type EventKind uint8

const (
	PushNotification EventKind = iota
	ReloadPushServers
	InvalidateAccessTokens
	InvalidateGroupwareCache
	ReloadSettings
	ReloadBlockedIps
	ReloadSpamFilter
)

func (k EventKind) String() string {
	switch k {
	case PushNotification:
		return "push_notification"
	case ReloadPushServers:
		return "reload_push_servers"
	case InvalidateAccessTokens:
		return "invalidate_access_tokens"
	case InvalidateGroupwareCache:
		return "invalidate_groupware_cache"
	case ReloadSettings:
		return "reload_settings"
	case ReloadBlockedIps:
		return "reload_blocked_ips"
	case ReloadSpamFilter:
		return "reload_spam_filter"
	default:
		return "unknown"
	}
}

// Event is one entry in a BroadcastBatch. Only the fields relevant to its
// Kind are populated.
type Event struct {
	Kind EventKind

	// ReloadPushServers
	AccountID uint32

	// InvalidateAccessTokens / InvalidateGroupwareCache
	IDs []uint32

	// PushNotification
	Payload []byte
}

// Batch frames a sender's node id with the sequence of events it is
// publishing, per spec.md §4.6.
type Batch struct {
	NodeID uint64
	Events []Event
}
