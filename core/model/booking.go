package model

import (
	"fmt"
	"time"
)

// ActorRole identifies who performed an action on a booking.
type ActorRole string

const (
	RoleCustomer   ActorRole = "CUSTOMER"
	RoleTechnician ActorRole = "TECHNICIAN"
	RoleAdmin      ActorRole = "ADMIN"
	RoleSystem     ActorRole = "SYSTEM"
)

// Actor is the explicit identity passed into every engine call. The engine
// never infers identity from ambient state.
type Actor struct {
	ID   string    `json:"id" bson:"id"`
	Role ActorRole `json:"role" bson:"role"`
}

// SystemActor is used for transitions initiated by the engine itself, such as
// offer timeouts.
var SystemActor = Actor{ID: "dispatch-engine", Role: RoleSystem}

// TimelineEntry records one committed status transition. Entries are append
// only and never rewritten.
type TimelineEntry struct {
	Status    BookingStatus `json:"status" bson:"status"`
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
	ChangedBy Actor         `json:"changed_by" bson:"changed_by"`
	Reason    string        `json:"reason,omitempty" bson:"reason,omitempty"`
}

// ChargeStatus is the approval state of an extra charge.
type ChargeStatus string

const (
	ChargePending  ChargeStatus = "PENDING"
	ChargeApproved ChargeStatus = "APPROVED"
	ChargeRejected ChargeStatus = "REJECTED"
)

// ExtraCharge is a technician-proposed additional cost requiring customer
// approval mid-job.
type ExtraCharge struct {
	ID     string       `json:"id" bson:"id"`
	Title  string       `json:"title" bson:"title"`
	Amount float64      `json:"amount" bson:"amount"`
	Status ChargeStatus `json:"status" bson:"status"`
}

// Pricing holds the estimated quote and, once the job closes, the final
// amount including approved extra charges.
type Pricing struct {
	Estimated float64  `json:"estimated" bson:"estimated"`
	Final     *float64 `json:"final,omitempty" bson:"final,omitempty"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Contact holds the customer-facing contact details for a booking.
type Contact struct {
	Name  string `json:"name" bson:"name"`
	Phone string `json:"phone" bson:"phone"`
}

// Booking is the aggregate root of the dispatch engine. All mutations go
// through the state machine's transition function; fields are never written
// directly by callers.
type Booking struct {
	ID         string `json:"id" bson:"_id"`
	CustomerID string `json:"customer_id" bson:"customer_id"`
	ServiceID  string `json:"service_id" bson:"service_id"`
	CategoryID string `json:"category_id" bson:"category_id"`
	ZoneID     string `json:"zone_id" bson:"zone_id"`

	Status BookingStatus `json:"status" bson:"status"`

	// TechnicianID is set only once a candidate accepts.
	TechnicianID string `json:"technician_id,omitempty" bson:"technician_id,omitempty"`
	// ActiveCandidateID is the technician currently holding an outstanding
	// offer. At most one non-empty value at a time, and only while the
	// booking is ASSIGNED_PENDING.
	ActiveCandidateID string `json:"active_candidate_id,omitempty" bson:"active_candidate_id,omitempty"`
	// CandidateQueue holds technicians not yet offered, in selection order.
	CandidateQueue []string `json:"candidate_queue,omitempty" bson:"candidate_queue,omitempty"`
	// RejectedCandidates are excluded from any re-offer for this booking.
	RejectedCandidates []string `json:"rejected_candidates,omitempty" bson:"rejected_candidates,omitempty"`

	// OfferEpoch increments each time a new offer is sent. Stale timer
	// callbacks compare their epoch before acting.
	OfferEpoch    int       `json:"offer_epoch" bson:"offer_epoch"`
	OfferDeadline time.Time `json:"offer_deadline,omitempty" bson:"offer_deadline,omitempty"`

	// JobOTP is the 4-digit code issued to the customer on acceptance and
	// required to start the job on site.
	JobOTP string `json:"-" bson:"job_otp,omitempty"`

	Pricing      Pricing         `json:"pricing" bson:"pricing"`
	ExtraCharges []ExtraCharge   `json:"extra_charges,omitempty" bson:"extra_charges,omitempty"`
	Timeline     []TimelineEntry `json:"timeline" bson:"timeline"`

	Location *LatLng `json:"location,omitempty" bson:"location,omitempty"`
	Contact  Contact `json:"contact" bson:"contact"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`

	// Version supports optimistic concurrency in the store. Incremented on
	// every successful compare-and-swap.
	Version int64 `json:"version" bson:"version"`
}

// Clone returns a deep copy of the booking, suitable for read-modify-write
// cycles against a versioned store.
func (b *Booking) Clone() *Booking {
	cp := *b
	cp.CandidateQueue = append([]string(nil), b.CandidateQueue...)
	cp.RejectedCandidates = append([]string(nil), b.RejectedCandidates...)
	cp.ExtraCharges = append([]ExtraCharge(nil), b.ExtraCharges...)
	cp.Timeline = append([]TimelineEntry(nil), b.Timeline...)
	if b.Location != nil {
		loc := *b.Location
		cp.Location = &loc
	}
	if b.ScheduledAt != nil {
		t := *b.ScheduledAt
		cp.ScheduledAt = &t
	}
	if b.Pricing.Final != nil {
		f := *b.Pricing.Final
		cp.Pricing.Final = &f
	}
	return &cp
}

// HasRejected reports whether the technician was already rejected or expired
// for this booking.
func (b *Booking) HasRejected(technicianID string) bool {
	for _, id := range b.RejectedCandidates {
		if id == technicianID {
			return true
		}
	}
	return false
}

// PendingCharges counts extra charges still awaiting a customer response.
func (b *Booking) PendingCharges() int {
	n := 0
	for _, c := range b.ExtraCharges {
		if c.Status == ChargePending {
			n++
		}
	}
	return n
}

// Charge returns the extra charge with the given id.
func (b *Booking) Charge(chargeID string) (*ExtraCharge, bool) {
	for i := range b.ExtraCharges {
		if b.ExtraCharges[i].ID == chargeID {
			return &b.ExtraCharges[i], true
		}
	}
	return nil, false
}

// CheckInvariants verifies the structural invariants of the aggregate. A
// violation indicates a programmer error, not bad input; callers should abort
// the operation rather than repair the state.
func (b *Booking) CheckInvariants() error {
	if b.ActiveCandidateID != "" && b.Status != StatusAssignedPending {
		return fmt.Errorf("booking %s: active candidate %s outside ASSIGNED_PENDING (status %s)",
			b.ID, b.ActiveCandidateID, b.Status)
	}
	if b.Status.Assigned() && b.TechnicianID == "" {
		return fmt.Errorf("booking %s: status %s without technician", b.ID, b.Status)
	}
	if !b.Status.Assigned() && b.TechnicianID != "" {
		return fmt.Errorf("booking %s: technician %s set in status %s", b.ID, b.TechnicianID, b.Status)
	}
	seen := make(map[string]bool, len(b.RejectedCandidates))
	for _, id := range b.RejectedCandidates {
		if seen[id] {
			return fmt.Errorf("booking %s: technician %s rejected twice", b.ID, id)
		}
		seen[id] = true
	}
	for _, id := range b.CandidateQueue {
		if seen[id] {
			return fmt.Errorf("booking %s: rejected technician %s still queued", b.ID, id)
		}
	}
	return nil
}
