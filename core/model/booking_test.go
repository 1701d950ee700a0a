package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	for st := StatusRequested; st <= StatusTimeout; st++ {
		got, ok := ParseStatus(st.String())
		require.Truef(t, ok, "status %d", st)
		assert.Equal(t, st, got)
	}
	_, ok := ParseStatus("NOT_A_STATUS")
	assert.False(t, ok)
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(StatusAssignedPending)
	require.NoError(t, err)
	assert.Equal(t, `"ASSIGNED_PENDING"`, string(b))

	var st BookingStatus
	require.NoError(t, json.Unmarshal([]byte(`"EN_ROUTE"`), &st))
	assert.Equal(t, StatusEnRoute, st)

	err = json.Unmarshal([]byte(`"BOGUS"`), &st)
	var use *UnknownStatusError
	require.ErrorAs(t, err, &use)
}

func TestCloneIsDeep(t *testing.T) {
	final := 120.0
	loc := LatLng{Lat: 48.85, Lng: 2.35}
	b := &Booking{
		ID:                 "bkg-1",
		Status:             StatusInProgress,
		TechnicianID:       "tech-1",
		CandidateQueue:     []string{"tech-2"},
		RejectedCandidates: []string{"tech-3"},
		ExtraCharges:       []ExtraCharge{{ID: "chg-1", Status: ChargePending}},
		Timeline:           []TimelineEntry{{Status: StatusRequested}},
		Location:           &loc,
		Pricing:            Pricing{Estimated: 100, Final: &final},
	}
	cp := b.Clone()
	cp.CandidateQueue[0] = "other"
	cp.RejectedCandidates[0] = "other"
	cp.ExtraCharges[0].Status = ChargeApproved
	cp.Timeline[0].Status = StatusCancelled
	cp.Location.Lat = 0
	*cp.Pricing.Final = 999

	assert.Equal(t, "tech-2", b.CandidateQueue[0])
	assert.Equal(t, "tech-3", b.RejectedCandidates[0])
	assert.Equal(t, ChargePending, b.ExtraCharges[0].Status)
	assert.Equal(t, StatusRequested, b.Timeline[0].Status)
	assert.Equal(t, 48.85, b.Location.Lat)
	assert.Equal(t, 120.0, *b.Pricing.Final)
}

func TestChargeHelpers(t *testing.T) {
	b := &Booking{ExtraCharges: []ExtraCharge{
		{ID: "chg-1", Status: ChargePending},
		{ID: "chg-2", Status: ChargeApproved},
	}}
	assert.Equal(t, 1, b.PendingCharges())

	c, ok := b.Charge("chg-1")
	require.True(t, ok)
	c.Status = ChargeRejected
	assert.Equal(t, ChargeRejected, b.ExtraCharges[0].Status, "Charge must alias the slice element")

	_, ok = b.Charge("missing")
	assert.False(t, ok)
}

func TestCheckInvariants(t *testing.T) {
	ok := &Booking{ID: "b", Status: StatusAccepted, TechnicianID: "tech-1"}
	assert.NoError(t, ok.CheckInvariants())

	cases := []*Booking{
		{ID: "b", Status: StatusAccepted, ActiveCandidateID: "tech-1", TechnicianID: "tech-1"},
		{ID: "b", Status: StatusInProgress},
		{ID: "b", Status: StatusRequested, TechnicianID: "tech-1"},
		{ID: "b", Status: StatusCancelled, TechnicianID: "tech-1"},
		{ID: "b", Status: StatusRequested, RejectedCandidates: []string{"t1", "t1"}},
		{ID: "b", Status: StatusRequested, RejectedCandidates: []string{"t1"}, CandidateQueue: []string{"t1"}},
	}
	for i, b := range cases {
		assert.Errorf(t, b.CheckInvariants(), "case %d", i)
	}
}

func TestTechnicianHelpers(t *testing.T) {
	tech := Technician{
		ID:       "tech-1",
		ZoneIDs:  []string{"zone-a", "zone-b"},
		Services: []string{"svc-plumbing"},
	}
	assert.True(t, tech.ServesZone("zone-b"))
	assert.False(t, tech.ServesZone("zone-c"))
	assert.True(t, tech.Provides("svc-plumbing"))
	assert.False(t, tech.Provides("svc-electric"))
	assert.False(t, tech.Busy())
	tech.ActiveBookingID = "bkg-1"
	assert.True(t, tech.Busy())
}
