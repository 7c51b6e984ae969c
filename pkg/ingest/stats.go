// Package ingest pkg/ingest/stats.go exposes the pipeline counters consumed
// by the status API and shutdown logging.
package ingest

import "sync/atomic"

// Stats counts pipeline outcomes. All fields are updated atomically and may
// be read concurrently.
type Stats struct {
	GPSAccepted      atomic.Int64
	GPSRejected      atomic.Int64
	DecodedRegisters atomic.Int64
	HistoryWrites    atomic.Int64
	EventsEmitted    atomic.Int64
	TopicMismatches  atomic.Int64
	MalformedDropped atomic.Int64
	QueueDropped     atomic.Int64
	RetryAttempts    atomic.Int64
	StoreDropped     atomic.Int64
}

// Snapshot returns a point-in-time copy for serialization.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"gps_accepted":      s.GPSAccepted.Load(),
		"gps_rejected":      s.GPSRejected.Load(),
		"decoded_registers": s.DecodedRegisters.Load(),
		"history_writes":    s.HistoryWrites.Load(),
		"events_emitted":    s.EventsEmitted.Load(),
		"topic_mismatches":  s.TopicMismatches.Load(),
		"malformed_dropped": s.MalformedDropped.Load(),
		"queue_dropped":     s.QueueDropped.Load(),
		"retry_attempts":    s.RetryAttempts.Load(),
		"store_dropped":     s.StoreDropped.Load(),
	}
}
