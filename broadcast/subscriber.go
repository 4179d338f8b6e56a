package broadcast

import (
	"context"
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/stats"
)

// Handler reacts to one non-loopback Event. Handlers are invoked in order
// within a Batch and return no error, so every event of a batch is
// dispatched.
type Handler func(ctx context.Context, ev Event)

// Subscriber is the cluster broadcast subscriber of spec.md §4.6: it
// subscribes to one topic, drops messages framed with the local node id
// (loopback suppression), dispatches the rest to Handler, and reconnects
// with exponential backoff capped at MaxBackoff on transport loss.
type Subscriber struct {
	ps         PubSub
	topic      string
	nodeID     uint64
	handler    Handler
	maxBackoff time.Duration
	metrics    *stats.Registry
}

// SetMetrics attaches a Prometheus registry Run reports received events
// and reconnect attempts to. Safe to skip.
func (s *Subscriber) SetMetrics(m *stats.Registry) { s.metrics = m }

// New constructs a Subscriber. maxBackoff defaults to
// cmn.Config.BroadcastMaxBackoff when zero.
func New(ps PubSub, topic string, nodeID uint64, handler Handler, maxBackoff time.Duration) *Subscriber {
	if maxBackoff <= 0 {
		maxBackoff = cmn.GCO.Get().BroadcastMaxBackoff
	}
	return &Subscriber{ps: ps, topic: topic, nodeID: nodeID, handler: handler, maxBackoff: maxBackoff}
}

// Run subscribes and processes messages until ctx is cancelled, retrying
// the subscription itself with exponential backoff on connection loss
// (grounded on the original's `1 << retry_count.max(6)` backoff, which
// saturates at 2^6=64s — the same value SPEC_FULL.md's BroadcastMaxBackoff
// default carries).
func (s *Subscriber) Run(ctx context.Context) {
	retry := 0
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := s.ps.Subscribe(ctx, s.topic)
		if err != nil {
			if retry > 0 && s.metrics != nil {
				s.metrics.BroadcastReconnectsN.Inc()
			}
			s.backoffSleep(ctx, &retry)
			continue
		}
		retry = 0
		if s.drain(ctx, sub) {
			sub.Close()
			return
		}
		sub.Close()
		if s.metrics != nil {
			s.metrics.BroadcastReconnectsN.Inc()
		}
		s.backoffSleep(ctx, &retry)
	}
}

// drain processes messages until the subscription errors or ctx is
// cancelled; returns true if the loop should exit entirely (ctx done).
func (s *Subscriber) drain(ctx context.Context, sub Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			glog.Warningf("broadcast: subscription to %q lost: %v", s.topic, err)
			return false
		case payload, ok := <-sub.Messages():
			if !ok {
				return false
			}
			s.handleMessage(ctx, payload)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload []byte) {
	batch, err := Unmarshal(payload)
	if err != nil {
		glog.Errorf("broadcast: malformed batch on %q: %v", s.topic, err)
		return
	}
	if batch.NodeID == s.nodeID {
		return // loopback suppression, spec.md §4.6 and testable property 9
	}
	for _, ev := range batch.Events {
		if s.metrics != nil {
			s.metrics.RecordBroadcastEvent(ev.Kind.String())
		}
		s.handler(ctx, ev)
	}
}

func (s *Subscriber) backoffSleep(ctx context.Context, retry *int) {
	backoff := time.Duration(1<<minInt(*retry, 6)) * time.Second
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	*retry++
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(backoff + jitter):
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Publish frames events under the local node id and publishes them to
// topic, for callers that both subscribe and originate events.
func Publish(ctx context.Context, ps PubSub, topic string, nodeID uint64, events []Event) error {
	batch := &Batch{NodeID: nodeID, Events: events}
	return ps.Publish(ctx, topic, batch.Marshal())
}
