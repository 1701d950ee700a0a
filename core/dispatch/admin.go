package dispatch

import (
	"context"
	"errors"

	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/booking"
	"github.com/homefixr/dispatch/core/directory"
	coremetrics "github.com/homefixr/dispatch/core/metrics"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/notify"
)

// ForceAssign binds a technician to the booking directly, bypassing the
// candidate queue. The technician must serve the booking's zone and must not
// be tied to another active job; settled bookings are refused.
func (e *Engine) ForceAssign(ctx context.Context, bookingID, technicianID, adminID string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: adminID, Role: model.RoleAdmin}
	var priorTech string
	var bound bool
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if booking.Settled(b.Status) {
			return &booking.InvalidStatusError{From: b.Status, To: model.StatusAccepted}
		}
		if b.TechnicianID == technicianID {
			return booking.ErrBookingAlreadyAssigned
		}
		tech, err := e.dir.Get(ctx, technicianID)
		if err != nil {
			return err
		}
		if !tech.ServesZone(b.ZoneID) {
			return booking.ErrZoneMismatch
		}
		// Zone and busy checks run under the booking lock, and the bind
		// itself arbitrates concurrent claims on the technician.
		if err := e.dir.TryBind(ctx, technicianID, b.ID); err != nil {
			if errors.Is(err, directory.ErrAlreadyBound) {
				return booking.ErrTechnicianBusy
			}
			return err
		}
		bound = true
		priorTech = b.TechnicianID
		b.TechnicianID = technicianID
		b.ActiveCandidateID = ""
		b.CandidateQueue = nil
		if b.JobOTP == "" {
			b.JobOTP = e.newOTP()
		}
		target := b.Status
		if !b.Status.Assigned() {
			target = model.StatusAccepted
		}
		return booking.ForceTransition(b, target, actor, "force-assigned by admin", e.now())
	})
	if err != nil {
		if bound {
			if derr := e.dir.Release(ctx, technicianID, bookingID); derr != nil {
				e.log.Errorf("directory: release technician %s: %v", technicianID, derr)
			}
		}
		return nil, err
	}

	e.cancelOfferTimer(bookingID)
	if priorTech != "" {
		if derr := e.dir.Release(ctx, priorTech, bookingID); derr != nil {
			e.log.Errorf("directory: release technician %s: %v", priorTech, derr)
		}
	}
	now := e.now()
	e.recordAssignment(coremetrics.AssignmentRecord{
		BookingID: bookingID, TechnicianID: technicianID, ZoneID: updated.ZoneID,
		ServiceID: updated.ServiceID, Outcome: "forced", Time: now,
	})
	e.appendAudit(ctx, audit.Record{
		Timestamp: now, BookingID: bookingID, Status: updated.Status, Actor: actor,
		TechnicianID: technicianID, Reason: "force-assigned by admin",
	})
	e.publish(BookingEvent{BookingID: bookingID, Status: updated.Status, TechnicianID: technicianID, Actor: actor, Time: now})
	e.emit(ctx, notify.Notification{
		RecipientID: technicianID, Recipient: notify.RecipientTechnician,
		Event: notify.EventStatusUpdated, BookingID: bookingID,
		Payload: map[string]string{"status": updated.Status.String(), "assigned": "true"},
	})
	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventBookingAccepted, BookingID: bookingID,
		Payload: map[string]string{"technician_id": technicianID},
	})
	e.log.Infof("booking %s: force-assigned to technician %s by admin %s", bookingID, technicianID, adminID)
	return updated, nil
}

// ForceStatusUpdate moves the booking to the given status without an edge
// check. Settled bookings stay immutable even to admins, and a target that
// implies an assigned technician is refused when none is bound.
func (e *Engine) ForceStatusUpdate(ctx context.Context, bookingID string, target model.BookingStatus, adminID, reason string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: adminID, Role: model.RoleAdmin}
	var priorTech string
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if target == model.StatusAssignedPending {
			// Would commit a search state with no active candidate and
			// no offer timer. Admins rescue bookings via force-assign.
			return &booking.ValidationError{Field: "status", Msg: "cannot force a booking into candidate search; use force-assign"}
		}
		if target.Assigned() && b.TechnicianID == "" {
			return &booking.InvalidStatusError{From: b.Status, To: target}
		}
		priorTech = b.TechnicianID
		if err := booking.ForceTransition(b, target, actor, reason, e.now()); err != nil {
			return err
		}
		b.ActiveCandidateID = ""
		if target.Terminal() {
			b.CandidateQueue = nil
		}
		if !target.Assigned() {
			b.TechnicianID = ""
			b.JobOTP = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.cancelOfferTimer(bookingID)
	if updated.TechnicianID == "" && priorTech != "" {
		if derr := e.dir.Release(ctx, priorTech, bookingID); derr != nil {
			e.log.Errorf("directory: release technician %s: %v", priorTech, derr)
		}
	}
	if updated.Status.Terminal() && updated.TechnicianID != "" {
		if derr := e.dir.Release(ctx, updated.TechnicianID, bookingID); derr != nil {
			e.log.Errorf("directory: release technician %s: %v", updated.TechnicianID, derr)
		}
	}
	e.afterTransition(ctx, updated, actor, reason)
	if priorTech != "" && priorTech != updated.TechnicianID {
		e.emit(ctx, notify.Notification{
			RecipientID: priorTech, Recipient: notify.RecipientTechnician,
			Event: notify.EventStatusUpdated, BookingID: bookingID,
			Payload: map[string]string{"status": updated.Status.String()},
		})
	}
	return updated, nil
}

// ForceCancel is a convenience wrapper over ForceStatusUpdate.
func (e *Engine) ForceCancel(ctx context.Context, bookingID, adminID string) (*model.Booking, error) {
	return e.ForceStatusUpdate(ctx, bookingID, model.StatusCancelled, adminID, "cancelled by admin")
}

// ForceComplete is a convenience wrapper over ForceStatusUpdate.
func (e *Engine) ForceComplete(ctx context.Context, bookingID, adminID string) (*model.Booking, error) {
	return e.ForceStatusUpdate(ctx, bookingID, model.StatusCompleted, adminID, "completed by admin")
}
