package metrics

import "time"

// AssignmentRecord is one per-offer outcome to be recorded.
type AssignmentRecord struct {
	BookingID    string
	TechnicianID string
	ZoneID       string
	ServiceID    string
	// Outcome is one of "offered", "accepted", "rejected", "expired",
	// "failed", "forced".
	Outcome string
	Attempt int
	Latency time.Duration
	Time    time.Time
}

// Sink records assignment outcomes for observability purposes.
type Sink interface {
	RecordAssignments(records []AssignmentRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAssignments([]AssignmentRecord) error { return nil }
