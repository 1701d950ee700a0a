package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/homefixr/dispatch/core/metrics"
)

func TestPromSink_RecordAssignments(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	rec := coremetrics.AssignmentRecord{
		BookingID:    "bkg-1",
		TechnicianID: "tech-a",
		ZoneID:       "z1",
		ServiceID:    "s1",
		Outcome:      "accepted",
		Attempt:      2,
		Latency:      150 * time.Millisecond,
		Time:         time.Now(),
	}
	if err := sink.RecordAssignments([]coremetrics.AssignmentRecord{rec}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP assignment_outcomes_total Total number of assignment offer outcomes
# TYPE assignment_outcomes_total counter
assignment_outcomes_total{outcome="accepted",service_id="s1",zone_id="z1"} 1
`
	if err := testutil.CollectAndCompare(sink.outcomes, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	if c := testutil.CollectAndCount(sink.latency); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSink_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}
