package broadcast

import (
	"reflect"
	"testing"
)

func TestBatchMarshalRoundTrip(t *testing.T) {
	b := &Batch{
		NodeID: 7,
		Events: []Event{
			{Kind: InvalidateGroupwareCache, IDs: []uint32{1, 2, 3}},
			{Kind: PushNotification, Payload: []byte("hello")},
			{Kind: ReloadPushServers, AccountID: 42},
		},
	}
	got, err := Unmarshal(b.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(b, got) {
		t.Fatalf("round-tripped batch = %+v, want %+v", got, b)
	}
}

func TestUnmarshalPreservesUnknownEventKind(t *testing.T) {
	b := &Batch{NodeID: 1, Events: []Event{{Kind: EventKind(200)}}}
	got, err := Unmarshal(b.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Events[0].Kind != EventKind(200) {
		t.Fatalf("Kind = %v, want 200 preserved verbatim", got.Events[0].Kind)
	}
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		PushNotification:         "push_notification",
		ReloadPushServers:        "reload_push_servers",
		InvalidateAccessTokens:   "invalidate_access_tokens",
		InvalidateGroupwareCache: "invalidate_groupware_cache",
		ReloadSettings:           "reload_settings",
		ReloadBlockedIps:         "reload_blocked_ips",
		ReloadSpamFilter:         "reload_spam_filter",
		EventKind(250):           "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
