package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/homefixr/dispatch/core/booking"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/notify"
)

// ProposeExtraCharge records a technician-proposed additional cost and pauses
// the job until the customer responds. Multiple proposals may be outstanding
// at once; the booking stays EXTRAS_PENDING while any charge is PENDING.
func (e *Engine) ProposeExtraCharge(ctx context.Context, bookingID, technicianID, title string, amount float64) (*model.Booking, error) {
	if title == "" {
		return nil, &booking.ValidationError{Field: "title", Msg: "required"}
	}
	if amount <= 0 {
		return nil, &booking.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: technicianID, Role: model.RoleTechnician}
	var chargeID string
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.TechnicianID != technicianID {
			return booking.ErrNotAssignedTechnician
		}
		if b.Status != model.StatusInProgress && b.Status != model.StatusExtrasPending {
			return &booking.InvalidStatusError{From: b.Status, To: model.StatusExtrasPending}
		}
		chargeID = uuid.NewString()
		b.ExtraCharges = append(b.ExtraCharges, model.ExtraCharge{
			ID:     chargeID,
			Title:  title,
			Amount: amount,
			Status: model.ChargePending,
		})
		if b.Status == model.StatusInProgress {
			return booking.Transition(b, model.StatusExtrasPending, actor,
				fmt.Sprintf("extra charge proposed: %s", title), e.now())
		}
		b.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(BookingEvent{BookingID: bookingID, Status: updated.Status, TechnicianID: technicianID, Actor: actor, Time: e.now()})
	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventExtraChargeProposed, BookingID: bookingID,
		Title: "Additional Part Required",
		Payload: map[string]string{
			"charge_id": chargeID,
			"title":     title,
			"amount":    fmt.Sprintf("%.2f", amount),
		},
	})
	return updated, nil
}

// RespondExtraCharge applies the customer's decision for one pending charge.
// Once no charges remain pending the job resumes regardless of the outcome:
// whether to proceed without a declined part is the technician's call.
func (e *Engine) RespondExtraCharge(ctx context.Context, bookingID, customerID, chargeID string, approve bool) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: customerID, Role: model.RoleCustomer}
	var resumed bool
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		resumed = false
		if b.CustomerID != customerID {
			return &booking.ValidationError{Field: "actor", Msg: "not the booking's customer"}
		}
		if b.Status != model.StatusExtrasPending {
			return &booking.InvalidStatusError{From: b.Status, To: model.StatusInProgress}
		}
		charge, ok := b.Charge(chargeID)
		if !ok {
			return booking.ErrUnknownCharge
		}
		if charge.Status != model.ChargePending {
			return booking.ErrChargeResolved
		}
		if approve {
			charge.Status = model.ChargeApproved
		} else {
			charge.Status = model.ChargeRejected
		}
		if b.PendingCharges() == 0 {
			resumed = true
			return booking.Transition(b, model.StatusInProgress, actor, "Job Resumed", e.now())
		}
		b.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	decision := "rejected"
	if approve {
		decision = "approved"
	}
	e.publish(BookingEvent{BookingID: bookingID, Status: updated.Status, TechnicianID: updated.TechnicianID, Actor: actor, Time: e.now()})
	e.emit(ctx, notify.Notification{
		RecipientID: updated.TechnicianID, Recipient: notify.RecipientTechnician,
		Event: notify.EventExtraChargeResolved, BookingID: bookingID,
		Payload: map[string]string{"charge_id": chargeID, "decision": decision},
	})
	if resumed {
		e.emit(ctx, notify.Notification{
			RecipientID: updated.TechnicianID, Recipient: notify.RecipientTechnician,
			Event: notify.EventJobResumed, BookingID: bookingID, Title: "Job Resumed",
		})
	}
	return updated, nil
}
