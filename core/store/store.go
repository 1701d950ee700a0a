package store

import (
	"context"
	"errors"

	"github.com/homefixr/dispatch/core/model"
)

var (
	// ErrNotFound is returned for lookups of unknown bookings.
	ErrNotFound = errors.New("booking not found")
	// ErrVersionConflict signals that the booking changed since it was
	// read; the caller should reload and retry its mutation.
	ErrVersionConflict = errors.New("booking version conflict")
	// ErrDuplicateID is returned when creating a booking whose id exists.
	ErrDuplicateID = errors.New("booking id already exists")
)

// ListFilter narrows List results.
type ListFilter struct {
	CustomerID   string
	TechnicianID string
	Status       *model.BookingStatus
}

// BookingStore persists bookings with optimistic concurrency. A successful
// CompareAndSwap increments the stored version by one; a mismatch between
// expectedVersion and the stored version fails with ErrVersionConflict and
// leaves the record untouched. This is the atomicity primitive the engine's
// read-modify-write cycle relies on.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	Get(ctx context.Context, id string) (*model.Booking, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, b *model.Booking) error
	List(ctx context.Context, f ListFilter) ([]*model.Booking, error)
}
