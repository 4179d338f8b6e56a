package queue

import (
	"time"

	"go.uber.org/atomic"
)

// Stats tracks one virtual queue's concurrency and back-pressure state.
// InFlight is a plain atomic counter (mirroring the teacher's use of
// go.uber.org/atomic for hot-path counters, e.g. ec/manager.go's
// targetCnt). The single-threaded control loop increments it in TryAdmit
// and decrements it in Done, on a WorkerDone event or a failed load.
type Stats struct {
	InFlight    atomic.Int32
	MaxInFlight int32

	// lastWarning is only ever touched from the single-threaded control
	// loop, so it needs no synchronization of its own.
	lastWarning time.Time
}

func NewStats(maxInFlight int32) *Stats {
	return &Stats{MaxInFlight: maxInFlight}
}

// TryAdmit increments InFlight and returns true if the virtual queue has
// spare concurrency; otherwise it throttles the back-pressure warning to
// at most once per warnInterval and returns false (spec.md §4.5 step 3,
// and testable property 8's "back-pressure warned at most once per 60s").
func (s *Stats) TryAdmit(now time.Time, warnInterval time.Duration) (admitted bool, shouldWarn bool) {
	if s.InFlight.Load() < s.MaxInFlight {
		s.InFlight.Inc()
		return true, false
	}
	if s.lastWarning.IsZero() || now.Sub(s.lastWarning) >= warnInterval {
		s.lastWarning = now
		return false, true
	}
	return false, false
}

// Done decrements InFlight after a worker completes.
func (s *Stats) Done() { s.InFlight.Dec() }
