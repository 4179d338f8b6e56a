// Package redispubsub is a Redis PUB/SUB-backed broadcast.PubSub driver,
// the simplest topic-based transport satisfying spec.md §1's "a
// clustering transport beyond a topic-based pub/sub contract" constraint.
// Not a teacher dependency — named in DESIGN.md as an out-of-pack choice,
// since no retrieval-pack repo imports a pub/sub client directly.
package redispubsub

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/groupwave/corestore/broadcast"
)

type subscription struct {
	sub  *redis.PubSub
	msgs chan []byte
	errs chan error
	stop chan struct{}
}

func (s *subscription) Messages() <-chan []byte { return s.msgs }
func (s *subscription) Err() <-chan error        { return s.errs }
func (s *subscription) Close() error {
	close(s.stop)
	return s.sub.Close()
}

func (s *subscription) pump() {
	ch := s.sub.Channel()
	for {
		select {
		case <-s.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				select {
				case s.errs <- errClosed:
				default:
				}
				return
			}
			select {
			case s.msgs <- []byte(msg.Payload):
			case <-s.stop:
				return
			}
		}
	}
}

var errClosed = &redisClosedErr{}

type redisClosedErr struct{}

func (*redisClosedErr) Error() string { return "redispubsub: channel closed" }

// Driver wraps a *redis.Client as a broadcast.PubSub.
type Driver struct {
	client *redis.Client
}

func New(client *redis.Client) *Driver { return &Driver{client: client} }

func (d *Driver) Publish(ctx context.Context, topic string, payload []byte) error {
	return d.client.Publish(ctx, topic, payload).Err()
}

func (d *Driver) Subscribe(ctx context.Context, topic string) (broadcast.Subscription, error) {
	rsub := d.client.Subscribe(ctx, topic)
	if _, err := rsub.Receive(ctx); err != nil {
		return nil, err
	}
	s := &subscription{
		sub:  rsub,
		msgs: make(chan []byte, 64),
		errs: make(chan error, 1),
		stop: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

var _ broadcast.PubSub = (*Driver)(nil)
