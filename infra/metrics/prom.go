// Package metrics holds the assignment metrics sinks.
package metrics

import (
	coremetrics "github.com/homefixr/dispatch/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records assignment outcomes in Prometheus metrics.
type PromSink struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPromSink registers assignment metrics on the default Prometheus
// registerer. The Prometheus server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_outcomes_total",
		Help: "Total number of assignment offer outcomes",
	}, []string{"zone_id", "service_id", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assignment_outcome_latency_seconds",
		Help:    "Time between booking creation and offer outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	if err := reg.Register(outcomes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcomes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{outcomes: outcomes, latency: latency}, nil
}

// RecordAssignments increments the counters for each outcome.
func (s *PromSink) RecordAssignments(records []coremetrics.AssignmentRecord) error {
	for _, r := range records {
		s.outcomes.WithLabelValues(r.ZoneID, r.ServiceID, r.Outcome).Inc()
		if r.Latency > 0 {
			s.latency.WithLabelValues(r.Outcome).Observe(r.Latency.Seconds())
		}
	}
	return nil
}
