package stats

// RecordDispatch records one queue dispatch outcome (spec.md §4.5's
// WorkerOutcome), named by its string form so callers in package queue
// don't need to import this package's Prometheus label values.
func (r *Registry) RecordDispatch(outcome string) {
	r.QueueDispatchedN.WithLabelValues(outcome).Inc()
}

// RecordBroadcastEvent records one broadcast event received, by kind.
func (r *Registry) RecordBroadcastEvent(kind string) {
	r.BroadcastEventsRxN.WithLabelValues(kind).Inc()
}

// SetQueueInFlight reports the current in-flight count for a virtual
// queue (spec.md §4.5's QueueStats.InFlight).
func (r *Registry) SetQueueInFlight(virtualQueue string, n int32) {
	r.QueueInFlight.WithLabelValues(virtualQueue).Set(float64(n))
}
