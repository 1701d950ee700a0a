package booking

import (
	"time"

	"github.com/homefixr/dispatch/core/model"
)

// transitions is the legal edge set of the booking lifecycle. The
// ASSIGNED_PENDING self-loop covers re-offering to the next candidate after a
// reject or timeout.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusRequested: {
		model.StatusAssignedPending,
		model.StatusFailedAssignment,
		model.StatusCancelled,
		model.StatusTimeout,
	},
	model.StatusAssignedPending: {
		model.StatusAssignedPending,
		model.StatusAccepted,
		model.StatusFailedAssignment,
		model.StatusCancelled,
		model.StatusTimeout,
	},
	model.StatusAccepted: {
		model.StatusEnRoute,
		model.StatusCancelled,
		model.StatusCancelledByTech,
		model.StatusTimeout,
	},
	model.StatusEnRoute: {
		model.StatusReached,
		model.StatusCancelled,
		model.StatusCancelledByTech,
		model.StatusTimeout,
	},
	model.StatusReached: {
		model.StatusInProgress,
		model.StatusCancelled,
		model.StatusCancelledByTech,
		model.StatusTimeout,
	},
	model.StatusInProgress: {
		model.StatusExtrasPending,
		model.StatusCompleted,
	},
	model.StatusExtrasPending: {
		model.StatusInProgress,
	},
	model.StatusCompleted: {
		model.StatusPaid,
	},
	// A technician cancellation re-enters candidate search or exhausts.
	model.StatusCancelledByTech: {
		model.StatusAssignedPending,
		model.StatusFailedAssignment,
		model.StatusTimeout,
	},
}

// edgeMessages carries exact user-facing wording for specific rejected edges.
var edgeMessages = map[model.BookingStatus]string{
	model.StatusEnRoute:    "Cannot mark En Route. Booking must be ACCEPTED first.",
	model.StatusReached:    "Cannot mark Reached. Booking must be EN_ROUTE first.",
	model.StatusInProgress: "Cannot start job. Booking must be REACHED first.",
}

// CanTransition reports whether the edge from -> to exists in the lifecycle
// graph.
func CanTransition(from, to model.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the edge from the booking's current status and applies
// it, appending a timeline entry. The booking is mutated in place; callers own
// persistence.
func Transition(b *model.Booking, to model.BookingStatus, actor model.Actor, reason string, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return &InvalidStatusError{From: b.Status, To: to, Message: edgeMessages[to]}
	}
	apply(b, to, actor, reason, now)
	return nil
}

// ForceTransition bypasses the edge check for administrative overrides. It
// still refuses to move a booking out of a settled terminal state: completed,
// paid and cancelled bookings are immutable even to admins.
func ForceTransition(b *model.Booking, to model.BookingStatus, actor model.Actor, reason string, now time.Time) error {
	if Settled(b.Status) {
		return &InvalidStatusError{From: b.Status, To: to}
	}
	apply(b, to, actor, reason, now)
	return nil
}

// Settled reports whether the status is immutable even to admin override.
// FAILED_ASSIGNMENT and TIMEOUT stay open so an admin can rescue the booking
// via force-assign.
func Settled(s model.BookingStatus) bool {
	switch s {
	case model.StatusCompleted, model.StatusPaid, model.StatusCancelled, model.StatusCancelledByTech:
		return true
	}
	return false
}

func apply(b *model.Booking, to model.BookingStatus, actor model.Actor, reason string, now time.Time) {
	b.Status = to
	b.UpdatedAt = now
	b.Timeline = append(b.Timeline, model.TimelineEntry{
		Status:    to,
		Timestamp: now,
		ChangedBy: actor,
		Reason:    reason,
	})
}
