package queue

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/stats"
	"github.com/groupwave/corestore/storedrv"
)

// WorkerOutcome is what a delivery worker reports back through WorkerDone.
type WorkerOutcome uint8

const (
	OutcomeCompleted WorkerOutcome = iota
	OutcomeLocked
	OutcomeDeferred
)

func (o WorkerOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeLocked:
		return "locked"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

type controlKind uint8

const (
	evWorkerDone controlKind = iota
	evRefresh
	evPaused
	evReloadSettings
	evStop
)

// ControlEvent is one inbound event the control loop reacts to (spec.md
// §4.5 step 1).
type ControlEvent struct {
	kind    controlKind
	key     LockKey
	outcome WorkerOutcome
	paused  bool
}

func WorkerDoneEvent(key LockKey, outcome WorkerOutcome) ControlEvent {
	return ControlEvent{kind: evWorkerDone, key: key, outcome: outcome}
}
func RefreshEvent() ControlEvent        { return ControlEvent{kind: evRefresh} }
func PausedEvent(p bool) ControlEvent   { return ControlEvent{kind: evPaused, paused: p} }
func ReloadSettingsEvent() ControlEvent { return ControlEvent{kind: evReloadSettings} }
func StopEvent() ControlEvent           { return ControlEvent{kind: evStop} }

// Dispatcher hands a due message off to a delivery worker. The worker must
// eventually report back via the Queue's control channel using
// WorkerDoneEvent, even on failure.
type Dispatcher func(ctx context.Context, msg *Message, virtualQueue string, report func(WorkerOutcome))

// MessageLoader resolves a due queue-event key to the Message it refers
// to; out of scope here is how messages are archived (wire.go keeps them
// in the storedrv.SubspaceQueue subspace), this is just the seam queue
// needs.
type MessageLoader func(ctx context.Context, queueID uint64) (*Message, error)

// Queue is the single-threaded cooperative control loop of spec.md §4.5.
type Queue struct {
	cfg    *cmn.Config
	drv    storedrv.Driver
	load   MessageLoader
	notify Dispatcher

	stats  map[string]*Stats
	locked *LockedMessages
	metrics *stats.Registry

	control    chan ControlEvent
	nextWakeUp time.Time
	paused     bool
	revision   uint64
}

// SetMetrics attaches a Prometheus registry the control loop reports
// in-flight counts, dispatch outcomes, and back-pressure warnings to. Safe
// to skip; a nil registry means no metrics are recorded.
func (q *Queue) SetMetrics(m *stats.Registry) { q.metrics = m }

// New constructs a Queue. Every virtual queue starts with a concurrency
// cap of defaultMaxInFlight (4); callers may adjust per-queue caps via
// SetMaxInFlight before calling Start.
func New(drv storedrv.Driver, cfg *cmn.Config, load MessageLoader, notify Dispatcher) *Queue {
	if cfg == nil {
		cfg = cmn.GCO.Get()
	}
	return &Queue{
		cfg:     cfg,
		drv:     drv,
		load:    load,
		notify:  notify,
		stats:   make(map[string]*Stats),
		locked:  NewLockedMessages(),
		control: make(chan ControlEvent, 64),
	}
}

// Control returns the channel callers post ControlEvents to.
func (q *Queue) Control() chan<- ControlEvent { return q.control }

func (q *Queue) statsFor(virtualQueue string, maxInFlight int32) *Stats {
	s, ok := q.stats[virtualQueue]
	if !ok {
		s = NewStats(maxInFlight)
		q.stats[virtualQueue] = s
	}
	return s
}

// SetMaxInFlight sets virtualQueue's concurrency cap.
func (q *Queue) SetMaxInFlight(virtualQueue string, n int32) {
	q.statsFor(virtualQueue, n).MaxInFlight = n
}

// Start runs the control loop until ctx is cancelled or a Stop event is
// received (spec.md §4.5's five numbered steps).
func (q *Queue) Start(ctx context.Context) {
	q.nextWakeUp = time.Now()
	for {
		wait := time.Until(q.nextWakeUp)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev := <-q.control:
			timer.Stop()
			if !q.handle(ctx, ev) {
				return
			}
			continue
		case <-timer.C:
		}
		q.tick(ctx)
	}
}

func (q *Queue) handle(ctx context.Context, ev ControlEvent) (keepRunning bool) {
	switch ev.kind {
	case evStop:
		return false
	case evPaused:
		q.paused = ev.paused
		if q.paused {
			q.nextWakeUp = time.Now().Add(24 * time.Hour)
		} else {
			q.nextWakeUp = time.Now()
		}
	case evReloadSettings:
		q.revision++
		q.locked.ExpireStale(time.Now(), q.revision)
		q.nextWakeUp = time.Now()
	case evRefresh:
		q.nextWakeUp = time.Now()
	case evWorkerDone:
		q.onWorkerDone(ev)
	}
	return true
}

func (q *Queue) onWorkerDone(ev ControlEvent) {
	st, ok := q.stats[ev.key.Name]
	if ok {
		st.Done()
		if q.metrics != nil {
			q.metrics.SetQueueInFlight(ev.key.Name, st.InFlight.Load())
		}
	}
	if q.metrics != nil {
		q.metrics.RecordDispatch(ev.outcome.String())
	}
	switch ev.outcome {
	case OutcomeCompleted:
		q.locked.Remove(ev.key)
	case OutcomeLocked:
		q.locked.Lock(ev.key, q.cfg.QueueLockExpiry, q.revision)
	case OutcomeDeferred:
		q.locked.Remove(ev.key)
		q.nextWakeUp = time.Now()
	}
}

// tick implements spec.md §4.5 steps 2-3: pause check, then read due
// events, shuffle for fairness, and admit as concurrency allows.
func (q *Queue) tick(ctx context.Context) {
	if q.paused {
		q.nextWakeUp = time.Now().Add(24 * time.Hour)
		return
	}

	now := time.Now()
	q.locked.ExpireStale(now, q.revision)

	events, err := q.dueEvents(ctx, now)
	if err != nil {
		glog.Errorf("queue: reading due events: %v", err)
		q.nextWakeUp = now.Add(time.Second)
		return
	}
	rand.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	for _, due := range events {
		key := LockKey{QueueID: due.queueID, Name: due.queueName}
		if q.locked.Has(key) {
			continue
		}
		st := q.statsFor(due.queueName, defaultMaxInFlight)
		admitted, shouldWarn := st.TryAdmit(now, q.cfg.BackPressureWarn)
		if !admitted {
			if shouldWarn {
				glog.Warningf("queue: back-pressure on virtual queue %q (max_in_flight=%d)", due.queueName, st.MaxInFlight)
				if q.metrics != nil {
					q.metrics.QueueBackPressureN.Inc()
				}
			}
			q.locked.Remove(key)
			continue
		}
		if q.metrics != nil {
			q.metrics.SetQueueInFlight(due.queueName, st.InFlight.Load())
		}
		msg, err := q.load(ctx, due.queueID)
		if err != nil {
			glog.Errorf("queue: loading message %d: %v", due.queueID, err)
			st.Done()
			continue
		}
		q.locked.Lock(key, q.cfg.QueueLockExpiry, q.revision)
		go q.notify(ctx, msg, due.queueName, func(outcome WorkerOutcome) {
			q.control <- WorkerDoneEvent(key, outcome)
		})
	}

	q.nextWakeUp = now.Add(time.Second)
}

const defaultMaxInFlight int32 = 4

type dueEvent struct {
	queueID   uint64
	queueName string
}

// dueEvents scans the queue-event subspace for keys with due <= now,
// keyed (due_u64_be, queue_id_u64_be, queue_name_8_bytes) per spec.md §6.
func (q *Queue) dueEvents(ctx context.Context, now time.Time) ([]dueEvent, error) {
	prefix := []byte{byte(storedrv.SubspaceQueueEvent)}
	hi := make([]byte, 0, 9)
	hi = append(hi, prefix...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(now.Unix())+1)
	hi = append(hi, tmp[:]...)

	var out []dueEvent
	err := q.drv.Iterate(ctx, prefix, hi, false, func(k, _ []byte) (bool, error) {
		if len(k) != 1+8+8+8 {
			return true, nil
		}
		queueID := binary.BigEndian.Uint64(k[9:17])
		name := trimNameBytes(k[17:25])
		out = append(out, dueEvent{queueID: queueID, queueName: name})
		return true, nil
	})
	return out, err
}

func trimNameBytes(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// QueueEventKey encodes a queue-event key for a given due time, queue id,
// and virtual queue name (spec.md §6). Exposed so the batch write path
// that schedules a message can construct the matching key.
func QueueEventKey(due time.Time, queueID uint64, queueName string) []byte {
	key := make([]byte, 0, 1+8+8+8)
	key = append(key, byte(storedrv.SubspaceQueueEvent))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(due.Unix()))
	key = append(key, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], queueID)
	key = append(key, tmp[:]...)
	var nameBuf [8]byte
	copy(nameBuf[:], queueName)
	key = append(key, nameBuf[:]...)
	return key
}
