package queue

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storedrv/memory"
)

var _ = Describe("QueueExpiry", func() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	It("expires a Duration expiry once created+duration has elapsed", func() {
		e := QueueExpiry{Kind: ExpiryDuration, Duration: time.Minute}
		Expect(e.IsExpired(base, base.Add(30*time.Second), 0)).To(BeFalse())
		Expect(e.IsExpired(base, base.Add(time.Minute), 0)).To(BeTrue())
	})

	It("expires a Count expiry once attempts reaches the limit", func() {
		e := QueueExpiry{Kind: ExpiryCount, Count: 3}
		Expect(e.IsExpired(base, base, 2)).To(BeFalse())
		Expect(e.IsExpired(base, base, 3)).To(BeTrue())
	})
})

var _ = Describe("Message.NextEvent", func() {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	It("returns the earliest due time among Scheduled/TemporaryFailure recipients in the named virtual queue", func() {
		msg := &Message{
			Created: created,
			Recipients: []Recipient{
				{VirtualQueue: "a", Status: Scheduled, RetryDue: created.Add(2 * time.Minute)},
				{VirtualQueue: "a", Status: TemporaryFailure, RetryDue: created.Add(time.Minute)},
				{VirtualQueue: "b", Status: Scheduled, RetryDue: created},
			},
		}
		due, ok := msg.NextEvent("a")
		Expect(ok).To(BeTrue())
		Expect(due).To(Equal(created.Add(time.Minute)))
	})

	It("ignores Completed and PermanentFailure recipients", func() {
		msg := &Message{
			Created: created,
			Recipients: []Recipient{
				{VirtualQueue: "a", Status: Completed, RetryDue: created},
				{VirtualQueue: "a", Status: PermanentFailure, RetryDue: created},
			},
		}
		_, ok := msg.NextEvent("a")
		Expect(ok).To(BeFalse())
	})

	It("considers the expiry time a candidate due time", func() {
		msg := &Message{
			Created: created,
			Recipients: []Recipient{
				{
					VirtualQueue: "a",
					Status:       Scheduled,
					RetryDue:     created.Add(time.Hour),
					NotifyDue:    created.Add(time.Hour),
					Expiry:       QueueExpiry{Kind: ExpiryDuration, Duration: time.Minute},
				},
			},
		}
		due, ok := msg.NextEvent("a")
		Expect(ok).To(BeTrue())
		Expect(due).To(Equal(created.Add(time.Minute)))
	})

	It("lists the distinct virtual queues a message has recipients in", func() {
		msg := &Message{Recipients: []Recipient{
			{VirtualQueue: "a"}, {VirtualQueue: "b"}, {VirtualQueue: "a"},
		}}
		Expect(msg.VirtualQueues()).To(Equal([]string{"a", "b"}))
	})
})

var _ = Describe("LockedMessages", func() {
	var locked *LockedMessages

	BeforeEach(func() {
		locked = NewLockedMessages()
	})

	It("reports a key as held immediately after Lock", func() {
		key := LockKey{QueueID: 1, Name: "default"}
		locked.Lock(key, time.Minute, 1)
		Expect(locked.Has(key)).To(BeTrue())
		Expect(locked.Len()).To(Equal(1))
	})

	It("releases a key on Remove", func() {
		key := LockKey{QueueID: 1, Name: "default"}
		locked.Lock(key, time.Minute, 1)
		locked.Remove(key)
		Expect(locked.Has(key)).To(BeFalse())
	})

	It("sweeps entries whose revision no longer matches, even before wall-clock expiry", func() {
		key := LockKey{QueueID: 1, Name: "default"}
		locked.Lock(key, time.Hour, 1)
		locked.ExpireStale(time.Now(), 2)
		Expect(locked.Has(key)).To(BeFalse())
	})

	It("keeps entries whose revision matches and whose expiry has not passed", func() {
		key := LockKey{QueueID: 1, Name: "default"}
		locked.Lock(key, time.Hour, 1)
		locked.ExpireStale(time.Now(), 1)
		Expect(locked.Has(key)).To(BeTrue())
	})
})

var _ = Describe("Stats.TryAdmit", func() {
	It("admits up to MaxInFlight concurrent dispatches", func() {
		s := NewStats(2)
		now := time.Now()
		admitted1, _ := s.TryAdmit(now, time.Minute)
		admitted2, _ := s.TryAdmit(now, time.Minute)
		Expect(admitted1).To(BeTrue())
		Expect(admitted2).To(BeTrue())
		Expect(s.InFlight.Load()).To(Equal(int32(2)))
	})

	It("throttles the back-pressure warning to at most once per interval", func() {
		s := NewStats(0)
		now := time.Now()
		admitted, warn1 := s.TryAdmit(now, time.Minute)
		Expect(admitted).To(BeFalse())
		Expect(warn1).To(BeTrue())

		_, warn2 := s.TryAdmit(now.Add(time.Second), time.Minute)
		Expect(warn2).To(BeFalse())

		_, warn3 := s.TryAdmit(now.Add(2*time.Minute), time.Minute)
		Expect(warn3).To(BeTrue())
	})

	It("decrements InFlight on Done", func() {
		s := NewStats(1)
		s.TryAdmit(time.Now(), time.Minute)
		s.Done()
		Expect(s.InFlight.Load()).To(Equal(int32(0)))
	})
})

var _ = Describe("Queue control loop", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		drv    storedrv.Driver
		cfg    *cmn.Config
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		drv = memory.New()
		cfg = cmn.DefaultConfig()
	})

	AfterEach(func() {
		cancel()
	})

	It("dispatches a due message and removes its lock once the worker reports completion", func() {
		msg := &Message{QueueID: 1, Recipients: []Recipient{
			{VirtualQueue: "default", Status: Scheduled},
		}}

		Expect(drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set(QueueEventKey(time.Now().Add(-time.Second), msg.QueueID, "default"), []byte{})
			return nil
		})).To(Succeed())

		var mu sync.Mutex
		dispatched := false
		dispatcher := func(_ context.Context, m *Message, vq string, report func(WorkerOutcome)) {
			mu.Lock()
			dispatched = true
			mu.Unlock()
			Expect(m.QueueID).To(Equal(msg.QueueID))
			Expect(vq).To(Equal("default"))
			report(OutcomeCompleted)
		}

		loader := func(_ context.Context, queueID uint64) (*Message, error) {
			Expect(queueID).To(Equal(msg.QueueID))
			return msg, nil
		}

		q := New(drv, cfg, loader, dispatcher)
		go q.Start(ctx)

		Eventually(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return dispatched
		}, time.Second, 5*time.Millisecond).Should(BeTrue())

		key := LockKey{QueueID: msg.QueueID, Name: "default"}
		Eventually(func() bool {
			return q.locked.Has(key)
		}, time.Second, 5*time.Millisecond).Should(BeFalse())
	})

	It("stops the loop when it receives a Stop event", func() {
		q := New(drv, cfg, func(context.Context, uint64) (*Message, error) { return nil, nil }, nil)
		done := make(chan struct{})
		go func() {
			q.Start(ctx)
			close(done)
		}()
		q.Control() <- StopEvent()
		Eventually(done, time.Second).Should(BeClosed())
	})

	It("bumps the revision and sweeps stale locks on ReloadSettingsEvent", func() {
		q := New(drv, cfg, func(context.Context, uint64) (*Message, error) { return nil, nil }, nil)
		key := LockKey{QueueID: 1, Name: "default"}
		q.locked.Lock(key, time.Hour, 0)
		Expect(q.handle(ctx, ReloadSettingsEvent())).To(BeTrue())
		Expect(q.locked.Has(key)).To(BeFalse())
		Expect(q.revision).To(Equal(uint64(1)))
	})

	It("parks the wake-up far in the future while paused", func() {
		q := New(drv, cfg, func(context.Context, uint64) (*Message, error) { return nil, nil }, nil)
		before := time.Now()
		Expect(q.handle(ctx, PausedEvent(true))).To(BeTrue())
		Expect(q.nextWakeUp).To(BeTemporally(">", before.Add(23*time.Hour)))
	})
})
