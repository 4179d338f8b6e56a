// Package localpubsub is an in-process PubSub driver for single-node
// deployments and tests: Publish fans out synchronously to every live
// Subscribe call on the same topic.
package localpubsub

import (
	"context"
	"sync"

	"github.com/groupwave/corestore/broadcast"
)

type subscription struct {
	msgs chan []byte
	errs chan error
	once sync.Once
}

func (s *subscription) Messages() <-chan []byte { return s.msgs }
func (s *subscription) Err() <-chan error        { return s.errs }
func (s *subscription) Close() error {
	s.once.Do(func() { close(s.msgs) })
	return nil
}

// Bus is a process-local PubSub implementation.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
}

func New() *Bus { return &Bus{subs: make(map[string][]*subscription)} }

func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	targets := append([]*subscription{}, b.subs[topic]...)
	b.mu.Unlock()
	for _, s := range targets {
		select {
		case s.msgs <- payload:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, topic string) (broadcast.Subscription, error) {
	s := &subscription{msgs: make(chan []byte, 64), errs: make(chan error, 1)}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s, nil
}

var _ broadcast.PubSub = (*Bus)(nil)
