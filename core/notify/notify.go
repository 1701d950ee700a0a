package notify

import (
	"context"
	"time"
)

// RecipientType identifies the audience of a notification.
type RecipientType string

const (
	RecipientCustomer   RecipientType = "customer"
	RecipientTechnician RecipientType = "technician"
	RecipientAdmin      RecipientType = "admin"
)

// EventType enumerates dispatch events observers care about.
type EventType string

const (
	EventOfferSent           EventType = "OFFER_SENT"
	EventOfferExpired        EventType = "OFFER_EXPIRED"
	EventBookingAccepted     EventType = "BOOKING_ACCEPTED"
	EventBookingCancelled    EventType = "BOOKING_CANCELLED"
	EventTechCancelled       EventType = "TECH_CANCELLED"
	EventNoTechsAvailable    EventType = "NO_TECHS_AVAILABLE"
	EventStatusUpdated       EventType = "STATUS_UPDATED"
	EventJobOTPIssued        EventType = "JOB_OTP_ISSUED"
	EventJobStarted          EventType = "JOB_STARTED"
	EventJobCompleted        EventType = "JOB_COMPLETED"
	EventExtraChargeProposed EventType = "EXTRA_CHARGE_PROPOSED"
	EventExtraChargeResolved EventType = "EXTRA_CHARGE_RESOLVED"
	EventJobResumed          EventType = "JOB_RESUMED"
)

// Notification is one fan-out message. RecipientID may be empty for
// role-level broadcast (the admin dashboard subscribes this way).
type Notification struct {
	RecipientID string            `json:"recipient_id,omitempty"`
	Recipient   RecipientType     `json:"recipient"`
	Event       EventType         `json:"event"`
	BookingID   string            `json:"booking_id"`
	Title       string            `json:"title,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	Time        time.Time         `json:"time"`
}

// Sink delivers notifications. Delivery is best effort: the engine logs sink
// errors and never lets them fail or roll back a committed state transition.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) Emit(context.Context, Notification) error { return nil }

// MultiSink fans a notification out to several sinks, returning the first
// error encountered after attempting all of them.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, n Notification) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.Emit(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
