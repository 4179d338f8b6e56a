package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/groupwave/corestore/broadcast"
	"github.com/groupwave/corestore/broadcast/localpubsub"
)

func TestSubscriberDeliversEventsFromOtherNodes(t *testing.T) {
	bus := localpubsub.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan broadcast.Event, 1)
	sub := broadcast.New(bus, "cluster", 1, func(_ context.Context, ev broadcast.Event) {
		received <- ev
	}, time.Second)

	go sub.Run(ctx)
	time.Sleep(20 * time.Millisecond) // let Run register its Subscribe

	if err := broadcast.Publish(ctx, bus, "cluster", 2, []broadcast.Event{
		{Kind: broadcast.InvalidateAccessTokens, IDs: []uint32{9}},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Kind != broadcast.InvalidateAccessTokens || len(ev.IDs) != 1 || ev.IDs[0] != 9 {
			t.Fatalf("got event %+v, want InvalidateAccessTokens{IDs:[9]}", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered event")
	}
}

func TestSubscriberSuppressesLoopback(t *testing.T) {
	bus := localpubsub.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan broadcast.Event, 1)
	sub := broadcast.New(bus, "cluster", 1, func(_ context.Context, ev broadcast.Event) {
		received <- ev
	}, time.Second)

	go sub.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	if err := broadcast.Publish(ctx, bus, "cluster", 1, []broadcast.Event{
		{Kind: broadcast.ReloadSettings},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-received:
		t.Fatalf("expected loopback batch (same node id) to be dropped, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// fakePubSub fails Subscribe a bounded number of times before succeeding,
// to exercise Run's reconnect/backoff loop without a live transport.
type fakePubSub struct {
	mu          sync.Mutex
	failures    int
	subscribeN  int
	subscribedC chan struct{}
}

func (f *fakePubSub) Publish(context.Context, string, []byte) error { return nil }

func (f *fakePubSub) Subscribe(ctx context.Context, topic string) (broadcast.Subscription, error) {
	f.mu.Lock()
	f.subscribeN++
	n := f.subscribeN
	f.mu.Unlock()
	if n <= f.failures {
		return nil, errors.New("simulated connect failure")
	}
	if f.subscribedC != nil {
		close(f.subscribedC)
	}
	return &fakeSub{msgs: make(chan []byte), errs: make(chan error, 1)}, nil
}

type fakeSub struct {
	msgs chan []byte
	errs chan error
}

func (s *fakeSub) Messages() <-chan []byte { return s.msgs }
func (s *fakeSub) Err() <-chan error       { return s.errs }
func (s *fakeSub) Close() error            { return nil }

func TestSubscriberReconnectsAfterTransientSubscribeFailures(t *testing.T) {
	subscribed := make(chan struct{})
	fp := &fakePubSub{failures: 2, subscribedC: subscribed}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := broadcast.New(fp, "cluster", 1, func(context.Context, broadcast.Event) {}, 50*time.Millisecond)
	go sub.Run(ctx)

	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to eventually succeed in subscribing after transient failures")
	}
}

func TestSubscriberRunExitsWhenContextCancelled(t *testing.T) {
	bus := localpubsub.New()
	ctx, cancel := context.WithCancel(context.Background())

	sub := broadcast.New(bus, "cluster", 1, func(context.Context, broadcast.Event) {}, time.Second)
	done := make(chan struct{})
	go func() {
		sub.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}
