package metrics

import coremetrics "github.com/homefixr/dispatch/core/metrics"

// MultiSink fans assignment records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignments forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignments(records []coremetrics.AssignmentRecord) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordAssignments(records); err != nil && first == nil {
			first = err
		}
	}
	return first
}
