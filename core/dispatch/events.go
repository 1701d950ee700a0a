package dispatch

import (
	"time"

	"github.com/homefixr/dispatch/core/model"
)

// BookingEvent is published on the event bus for each committed status
// transition.
type BookingEvent struct {
	BookingID    string
	Status       model.BookingStatus
	TechnicianID string
	Actor        model.Actor
	Reason       string
	Time         time.Time
}

// OfferEvent is published when an offer is sent or resolved.
type OfferEvent struct {
	BookingID    string
	TechnicianID string
	Attempt      int
	// Outcome is "offered", "accepted", "rejected" or "expired".
	Outcome string
	Time    time.Time
}
