package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingsCreated     prometheus.Counter
	offersSent          prometheus.Counter
	offerOutcomes       *prometheus.CounterVec
	assignmentLatency   prometheus.Histogram
	activeOffers        prometheus.Gauge
	assignmentsFailed   prometheus.Counter
	notifyFailures      prometheus.Counter
	invariantViolations prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Number of bookings created",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offers_sent_total",
		Help: "Number of offers sent to technicians",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_outcomes_total",
		Help: "Offer outcomes by type",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assignment_latency_seconds",
		Help:    "Time from booking creation to technician acceptance",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_offers",
		Help: "Offers currently awaiting a technician response",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignments_failed_total",
		Help: "Bookings that exhausted their candidate queue",
	})
	notif := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notification deliveries that returned an error",
	})
	inv := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_invariant_violations_total",
		Help: "Aborted operations due to a booking invariant violation",
	})
	return created, sent, outcomes, latency, active, failed, notif, inv
}

func init() {
	bookingsCreated, offersSent, offerOutcomes, assignmentLatency, activeOffers,
		assignmentsFailed, notifyFailures, invariantViolations = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(bookingsCreated, offersSent, offerOutcomes, assignmentLatency,
		activeOffers, assignmentsFailed, notifyFailures, invariantViolations)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	bookingsCreated, offersSent, offerOutcomes, assignmentLatency, activeOffers,
		assignmentsFailed, notifyFailures, invariantViolations = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
