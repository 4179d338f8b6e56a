// Package broadcast implements the cluster broadcast subscriber (spec.md
// §4.6): a single pub/sub topic carrying framed batches of invalidation
// and settings-reload events, with loopback suppression and exponential
// reconnect backoff.
package broadcast

import "context"

// Subscription is a live topic subscription; Messages delivers framed
// payloads until the subscription is closed or the underlying transport
// drops.
type Subscription interface {
	Messages() <-chan []byte
	Err() <-chan error
	Close() error
}

// PubSub is the minimal transport contract spec.md §1 requires ("a
// clustering transport beyond a topic-based pub/sub contract" is
// explicitly not prescribed further than this).
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}
