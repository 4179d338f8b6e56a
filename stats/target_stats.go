// Package stats exposes the Prometheus metrics the queue manager, purge
// job, and broadcast subscriber register (SPEC_FULL.md's DOMAIN STACK),
// grounded on the teacher's own stats package: the same naming
// convention ("*.n" for a counter, "*.ns" for a latency, "*.size" for
// byte counts) translated from the teacher's StatsD tracker into
// Prometheus collector names, and the same registry-of-named-metrics
// shape the teacher's Tracker/CoreStats types provide.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "groupware"

// Registry holds every metric this module registers, mirroring the
// teacher's CoreStats: one struct constructed once at startup and handed
// to every package that needs to record against it.
type Registry struct {
	reg *prometheus.Registry

	QueueInFlight      *prometheus.GaugeVec
	QueueBackPressureN prometheus.Counter
	QueueDispatchedN   *prometheus.CounterVec

	PurgeTombstonedN prometheus.Counter
	PurgePurgedN     prometheus.Counter
	PurgeErrorsN     prometheus.Counter

	BatchCommitRetryN    prometheus.Counter
	BatchCommitFailuresN prometheus.Counter

	BroadcastEventsRxN   *prometheus.CounterVec
	BroadcastReconnectsN prometheus.Counter
}

// NewRegistry builds and registers every metric against a fresh
// prometheus.Registry (not the global DefaultRegisterer, so tests and
// multiple instances never collide — the teacher's own Trunner/Prunner
// split is the multi-instance case this avoids re-litigating here).
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.QueueInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "queue", Name: "in_flight",
		Help: "Messages currently dispatched per virtual queue.",
	}, []string{"virtual_queue"})

	r.QueueBackPressureN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "queue", Name: "back_pressure_total",
		Help: "Back-pressure warnings emitted (throttled to one per configured interval).",
	})

	r.QueueDispatchedN = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "queue", Name: "dispatched_total",
		Help: "Messages dispatched to a worker, by outcome.",
	}, []string{"outcome"})

	r.PurgeTombstonedN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "purge", Name: "tombstoned_total",
		Help: "Documents tombstoned by auto-expunge.",
	})
	r.PurgePurgedN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "purge", Name: "purged_total",
		Help: "Tombstoned documents reclaimed by PurgeTombstoned.",
	})
	r.PurgeErrorsN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "purge", Name: "errors_total",
		Help: "Per-document errors encountered during a purge pass.",
	})

	r.BatchCommitRetryN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "batch", Name: "commit_retry_total",
		Help: "Commit-point segment retries due to a transient backend error.",
	})
	r.BatchCommitFailuresN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "batch", Name: "commit_failures_total",
		Help: "Commit-point segments that exhausted their retry budget.",
	})

	r.BroadcastEventsRxN = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "broadcast", Name: "events_received_total",
		Help: "Broadcast events received, by kind.",
	}, []string{"kind"})
	r.BroadcastReconnectsN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "broadcast", Name: "reconnects_total",
		Help: "Subscriber reconnect attempts after a dropped subscription.",
	})

	r.reg.MustRegister(
		r.QueueInFlight, r.QueueBackPressureN, r.QueueDispatchedN,
		r.PurgeTombstonedN, r.PurgePurgedN, r.PurgeErrorsN,
		r.BatchCommitRetryN, r.BatchCommitFailuresN,
		r.BroadcastEventsRxN, r.BroadcastReconnectsN,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for an HTTP
// /metrics handler (promhttp.HandlerFor(registry.Gatherer(), ...)),
// kept out of this module's scope per spec.md's non-goals (no HTTP
// surface here) but available to whatever process wires it in.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
