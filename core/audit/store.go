package audit

import (
	"context"
	"time"

	"github.com/homefixr/dispatch/core/model"
)

// Record captures one committed dispatch decision: a status transition, an
// offer sent or an offer outcome. Together with the per-booking timeline it
// forms the forensic trail for disputes.
type Record struct {
	Timestamp    time.Time           `json:"timestamp"`
	BookingID    string              `json:"booking_id"`
	Status       model.BookingStatus `json:"status"`
	Actor        model.Actor         `json:"actor"`
	Reason       string              `json:"reason,omitempty"`
	TechnicianID string              `json:"technician_id,omitempty"`
	Attempt      int                 `json:"attempt,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	BookingID string
	Status    *model.BookingStatus
}

// LogStore persists Records and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards all records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                  { return nil }

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BookingID != "" && r.BookingID != q.BookingID {
		return false
	}
	if q.Status != nil && r.Status != *q.Status {
		return false
	}
	return true
}
