package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/booking"
	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/lock"
	"github.com/homefixr/dispatch/core/logger"
	coremetrics "github.com/homefixr/dispatch/core/metrics"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/core/selector"
	"github.com/homefixr/dispatch/core/store"
	"github.com/homefixr/dispatch/internal/eventbus"
)

// errStaleTimer marks a timer callback that lost the race against a competing
// transition. It never leaves the engine.
var errStaleTimer = errors.New("stale offer timer")

// Engine is the booking dispatch engine: it owns the offer coordinator, drives
// the booking state machine and fans committed transitions out to observers.
// Every mutation of a booking runs under that booking's lock followed by a
// versioned compare-and-swap, so concurrent technician responses, timer fires
// and admin overrides serialize to exactly one winner.
type Engine struct {
	store    store.BookingStore
	dir      directory.Directory
	selector selector.Selector
	locks    lock.Locker
	sink     notify.Sink
	log      logger.Logger

	cfg Config

	metrics coremetrics.Sink
	auditor audit.LogStore
	bus     eventbus.EventBus

	// test seams
	now    func() time.Time
	newOTP func() string

	mu     sync.Mutex
	timers map[string]*offerTimer
	closed bool
}

type offerTimer struct {
	epoch int
	t     *time.Timer
}

// NewEngine creates a dispatch engine. Metrics, audit and event bus wiring are
// optional and configured through the setters below.
func NewEngine(st store.BookingStore, dir directory.Directory, sel selector.Selector, locks lock.Locker, sink notify.Sink, cfg Config, log logger.Logger) (*Engine, error) {
	if st == nil || dir == nil || sel == nil || locks == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	if sink == nil {
		sink = notify.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	cfg.SetDefaults()
	return &Engine{
		store:    st,
		dir:      dir,
		selector: sel,
		locks:    locks,
		sink:     sink,
		log:      log,
		cfg:      cfg,
		metrics:  coremetrics.NopSink{},
		auditor:  audit.NopStore{},
		now:      time.Now,
		newOTP:   func() string { return fmt.Sprintf("%04d", rand.IntN(10000)) },
		timers:   map[string]*offerTimer{},
	}, nil
}

// SetMetricsSink configures the sink used to record assignment outcomes.
func (e *Engine) SetMetricsSink(sink coremetrics.Sink) {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	e.mu.Lock()
	e.metrics = sink
	e.mu.Unlock()
}

// SetAuditStore configures the store used to persist dispatch decisions.
func (e *Engine) SetAuditStore(s audit.LogStore) {
	if s == nil {
		s = audit.NopStore{}
	}
	e.mu.Lock()
	e.auditor = s
	e.mu.Unlock()
}

// SetEventBus configures the bus dispatch events are published on.
func (e *Engine) SetEventBus(bus eventbus.EventBus) {
	e.mu.Lock()
	e.bus = bus
	e.mu.Unlock()
}

// Close stops all outstanding offer timers and closes the audit store.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	for id, ot := range e.timers {
		ot.t.Stop()
		delete(e.timers, id)
	}
	auditor := e.auditor
	e.mu.Unlock()
	return auditor.Close()
}

func (e *Engine) offerTimeout() time.Duration {
	return time.Duration(e.cfg.OfferTimeoutSeconds) * time.Second
}

// CreateRequest describes a new booking request from a customer.
type CreateRequest struct {
	CustomerID     string
	ServiceID      string
	CategoryID     string
	ZoneID         string
	EstimatedPrice float64
	Location       *model.LatLng
	Contact        model.Contact
	ScheduledAt    *time.Time
}

func (r CreateRequest) validate() error {
	switch {
	case r.CustomerID == "":
		return &booking.ValidationError{Field: "customer_id", Msg: "required"}
	case r.ServiceID == "":
		return &booking.ValidationError{Field: "service_id", Msg: "required"}
	case r.ZoneID == "":
		return &booking.ValidationError{Field: "zone_id", Msg: "required"}
	case r.EstimatedPrice < 0:
		return &booking.ValidationError{Field: "estimated_price", Msg: "must not be negative"}
	}
	return nil
}

// CreateBooking persists a new REQUESTED booking and immediately starts the
// assignment search. The returned booking reflects the kickoff outcome:
// ASSIGNED_PENDING with an active candidate, or FAILED_ASSIGNMENT when the
// zone has no eligible technicians.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := e.now()
	actor := model.Actor{ID: req.CustomerID, Role: model.RoleCustomer}
	b := &model.Booking{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		ServiceID:   req.ServiceID,
		CategoryID:  req.CategoryID,
		ZoneID:      req.ZoneID,
		Status:      model.StatusRequested,
		Pricing:     model.Pricing{Estimated: req.EstimatedPrice},
		Location:    req.Location,
		Contact:     req.Contact,
		CreatedAt:   now,
		UpdatedAt:   now,
		ScheduledAt: req.ScheduledAt,
		Timeline: []model.TimelineEntry{{
			Status:    model.StatusRequested,
			Timestamp: now,
			ChangedBy: actor,
			Reason:    "booking requested",
		}},
	}
	if err := e.store.Create(ctx, b); err != nil {
		return nil, err
	}
	bookingsCreated.Inc()
	e.appendAudit(ctx, audit.Record{
		Timestamp: now, BookingID: b.ID, Status: model.StatusRequested, Actor: actor,
	})
	e.publish(BookingEvent{BookingID: b.ID, Status: b.Status, Actor: actor, Time: now})

	return e.startAssignment(ctx, b.ID)
}

// startAssignment runs the first (or a fresh) candidate search for a booking.
func (e *Engine) startAssignment(ctx context.Context, bookingID string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var adv advanceResult
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		adv, err = e.advance(ctx, b, "searching for a technician", true)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.settleAdvance(ctx, updated, adv)
	return updated, nil
}

// Accept records a technician's acceptance of an outstanding offer. Only the
// active candidate can accept, and only while the booking is ASSIGNED_PENDING;
// when two technicians race, the transition that commits first wins and the
// loser observes ErrNotActiveCandidate. A technician holding offers on two
// bookings can accept only one: the directory bind refuses the second with
// ErrTechnicianBusy.
func (e *Engine) Accept(ctx context.Context, bookingID, technicianID string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: technicianID, Role: model.RoleTechnician}
	var bound bool
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.Status != model.StatusAssignedPending || b.ActiveCandidateID != technicianID {
			return booking.ErrNotActiveCandidate
		}
		// Claim the technician before committing. Two bookings hold two
		// different locks, so only the directory bind can arbitrate a
		// technician accepting offers on both at once.
		if err := e.dir.TryBind(ctx, technicianID, b.ID); err != nil {
			if errors.Is(err, directory.ErrAlreadyBound) {
				return booking.ErrTechnicianBusy
			}
			return err
		}
		bound = true
		b.ActiveCandidateID = ""
		b.CandidateQueue = nil
		b.TechnicianID = technicianID
		b.JobOTP = e.newOTP()
		b.OfferDeadline = time.Time{}
		return booking.Transition(b, model.StatusAccepted, actor, "offer accepted", e.now())
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
	now := e.now()
	latency := now.Sub(updated.CreatedAt)
	offerOutcomes.WithLabelValues("accepted").Inc()
	assignmentLatency.Observe(latency.Seconds())
	e.recordAssignment(coremetrics.AssignmentRecord{
		BookingID: bookingID, TechnicianID: technicianID, ZoneID: updated.ZoneID,
		ServiceID: updated.ServiceID, Outcome: "accepted", Attempt: updated.OfferEpoch,
		Latency: latency, Time: now,
	})
	e.appendAudit(ctx, audit.Record{
		Timestamp: now, BookingID: bookingID, Status: model.StatusAccepted,
		Actor: actor, TechnicianID: technicianID, Attempt: updated.OfferEpoch,
	})
	e.publish(BookingEvent{BookingID: bookingID, Status: updated.Status, TechnicianID: technicianID, Actor: actor, Time: now})
	e.publish(OfferEvent{BookingID: bookingID, TechnicianID: technicianID, Attempt: updated.OfferEpoch, Outcome: "accepted", Time: now})

	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventBookingAccepted, BookingID: bookingID,
		Payload: map[string]string{"technician_id": technicianID},
	})
	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventJobOTPIssued, BookingID: bookingID,
		Payload: map[string]string{"otp": updated.JobOTP},
	})
	e.emit(ctx, notify.Notification{
		Recipient: notify.RecipientAdmin, Event: notify.EventStatusUpdated,
		BookingID: bookingID, Payload: map[string]string{"status": updated.Status.String()},
	})
	e.log.Infof("booking %s accepted by technician %s after %d offer(s)", bookingID, technicianID, updated.OfferEpoch)
	return updated, nil
}

// Reject records an explicit rejection from the active candidate and advances
// to the next one. A rejecting technician is permanently excluded from this
// booking.
func (e *Engine) Reject(ctx context.Context, bookingID, technicianID string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var adv advanceResult
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.Status != model.StatusAssignedPending || b.ActiveCandidateID != technicianID {
			return booking.ErrNotActiveCandidate
		}
		b.RejectedCandidates = append(b.RejectedCandidates, technicianID)
		b.ActiveCandidateID = ""
		reason := fmt.Sprintf("technician %s rejected; searching for next candidate", technicianID)
		adv, err = e.advance(ctx, b, reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.cancelOfferTimer(bookingID)
	now := e.now()
	offerOutcomes.WithLabelValues("rejected").Inc()
	e.recordAssignment(coremetrics.AssignmentRecord{
		BookingID: bookingID, TechnicianID: technicianID, ZoneID: updated.ZoneID,
		ServiceID: updated.ServiceID, Outcome: "rejected", Time: now,
	})
	e.publish(OfferEvent{BookingID: bookingID, TechnicianID: technicianID, Outcome: "rejected", Time: now})
	e.settleAdvance(ctx, updated, adv)
	return updated, nil
}

// handleOfferTimeout fires when an offer window elapses. The epoch guard makes
// stale fires a strict no-op: any competing transition bumps the epoch or
// moves the booking out of ASSIGNED_PENDING first.
func (e *Engine) handleOfferTimeout(bookingID string, epoch int) {
	ctx := context.Background()
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return
	}
	defer release()

	var adv advanceResult
	var expired string
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.Status != model.StatusAssignedPending || b.OfferEpoch != epoch || b.ActiveCandidateID == "" {
			return errStaleTimer
		}
		expired = b.ActiveCandidateID
		b.RejectedCandidates = append(b.RejectedCandidates, expired)
		b.ActiveCandidateID = ""
		reason := fmt.Sprintf("offer to technician %s expired; searching for next candidate", expired)
		var aerr error
		adv, aerr = e.advance(ctx, b, reason, false)
		return aerr
	})
	if errors.Is(err, errStaleTimer) {
		return
	}
	if err != nil {
		e.log.Errorf("offer timeout for booking %s: %v", bookingID, err)
		return
	}

	e.dropOfferTimer(bookingID, epoch)
	now := e.now()
	offerOutcomes.WithLabelValues("expired").Inc()
	e.recordAssignment(coremetrics.AssignmentRecord{
		BookingID: bookingID, TechnicianID: expired, ZoneID: updated.ZoneID,
		ServiceID: updated.ServiceID, Outcome: "expired", Time: now,
	})
	e.publish(OfferEvent{BookingID: bookingID, TechnicianID: expired, Outcome: "expired", Time: now})
	e.emit(ctx, notify.Notification{
		RecipientID: expired, Recipient: notify.RecipientTechnician,
		Event: notify.EventOfferExpired, BookingID: bookingID,
	})
	e.settleAdvance(ctx, updated, adv)
}

// Cancel handles customer- and technician-initiated cancellation. A customer
// may cancel any pre-IN_PROGRESS booking. A technician cancelling after
// acceptance sends the booking back into candidate search, excluding them; if
// no replacement exists the booking fails.
func (e *Engine) Cancel(ctx context.Context, bookingID string, actor model.Actor, reason string) (*model.Booking, error) {
	if actor.Role != model.RoleCustomer && actor.Role != model.RoleTechnician {
		return nil, &booking.ValidationError{Field: "actor", Msg: "cancellation is customer- or technician-initiated; admins use force-cancel"}
	}
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var adv advanceResult
	var reSearch bool
	var priorTech string
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		adv, reSearch = advanceResult{}, false
		priorTech = b.TechnicianID
		now := e.now()
		if actor.Role == model.RoleCustomer {
			if b.CustomerID != actor.ID {
				return &booking.ValidationError{Field: "actor", Msg: "not the booking's customer"}
			}
			if err := booking.Transition(b, model.StatusCancelled, actor, reason, now); err != nil {
				return err
			}
			b.TechnicianID = ""
			b.ActiveCandidateID = ""
			b.CandidateQueue = nil
			b.JobOTP = ""
			return nil
		}
		// Technician cancellation after acceptance.
		if b.TechnicianID != actor.ID {
			return booking.ErrNotAssignedTechnician
		}
		if err := booking.Transition(b, model.StatusCancelledByTech, actor, reason, now); err != nil {
			return err
		}
		reSearch = true
		b.RejectedCandidates = append(b.RejectedCandidates, actor.ID)
		b.TechnicianID = ""
		b.JobOTP = ""
		var aerr error
		adv, aerr = e.advance(ctx, b, "technician cancelled; searching for replacement", true)
		return aerr
	})
	if err != nil {
		return nil, err
	}

	e.cancelOfferTimer(bookingID)
	if priorTech != "" {
		if derr := e.dir.Release(ctx, priorTech, bookingID); derr != nil {
			e.log.Errorf("directory: release technician %s: %v", priorTech, derr)
		}
	}
	now := e.now()
	e.appendAudit(ctx, audit.Record{
		Timestamp: now, BookingID: bookingID, Status: updated.Status, Actor: actor, Reason: reason,
	})
	e.publish(BookingEvent{BookingID: bookingID, Status: updated.Status, Actor: actor, Reason: reason, Time: now})
	if actor.Role == model.RoleCustomer {
		if priorTech != "" {
			e.emit(ctx, notify.Notification{
				RecipientID: priorTech, Recipient: notify.RecipientTechnician,
				Event: notify.EventBookingCancelled, BookingID: bookingID,
				Payload: map[string]string{"reason": reason},
			})
		}
		e.emit(ctx, notify.Notification{
			Recipient: notify.RecipientAdmin, Event: notify.EventBookingCancelled,
			BookingID: bookingID, Payload: map[string]string{"reason": reason},
		})
	} else {
		e.emit(ctx, notify.Notification{
			RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
			Event: notify.EventTechCancelled, BookingID: bookingID,
			Payload: map[string]string{"reason": reason},
		})
	}
	if reSearch {
		e.settleAdvance(ctx, updated, adv)
	}
	return updated, nil
}

// MarkEnRoute transitions an accepted booking when the technician departs.
func (e *Engine) MarkEnRoute(ctx context.Context, bookingID, technicianID string) (*model.Booking, error) {
	return e.progress(ctx, bookingID, technicianID, model.StatusEnRoute, "technician en route")
}

// MarkReached transitions an en-route booking on arrival.
func (e *Engine) MarkReached(ctx context.Context, bookingID, technicianID string) (*model.Booking, error) {
	return e.progress(ctx, bookingID, technicianID, model.StatusReached, "technician reached the location")
}

func (e *Engine) progress(ctx context.Context, bookingID, technicianID string, target model.BookingStatus, reason string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: technicianID, Role: model.RoleTechnician}
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.TechnicianID != technicianID {
			return booking.ErrNotAssignedTechnician
		}
		return booking.Transition(b, target, actor, reason, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.afterTransition(ctx, updated, actor, reason)
	return updated, nil
}

// StartJob verifies the customer's OTP and moves the booking to IN_PROGRESS.
// A wrong code leaves the booking and its timeline untouched.
func (e *Engine) StartJob(ctx context.Context, bookingID, technicianID, otp string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: technicianID, Role: model.RoleTechnician}
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.TechnicianID != technicianID {
			return booking.ErrNotAssignedTechnician
		}
		if !booking.CanTransition(b.Status, model.StatusInProgress) {
			return booking.Transition(b, model.StatusInProgress, actor, "", e.now())
		}
		if b.JobOTP == "" || otp != b.JobOTP {
			return booking.ErrOtpInvalidInput
		}
		return booking.Transition(b, model.StatusInProgress, actor, "job started, OTP verified", e.now())
	})
	if err != nil {
		return nil, err
	}
	e.afterTransition(ctx, updated, actor, "job started")
	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventJobStarted, BookingID: bookingID,
	})
	return updated, nil
}

// Complete closes the job and fixes the final price: the estimate plus all
// approved extra charges.
func (e *Engine) Complete(ctx context.Context, bookingID, technicianID string) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	actor := model.Actor{ID: technicianID, Role: model.RoleTechnician}
	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		if b.TechnicianID != technicianID {
			return booking.ErrNotAssignedTechnician
		}
		if err := booking.Transition(b, model.StatusCompleted, actor, "job completed", e.now()); err != nil {
			return err
		}
		final := b.Pricing.Estimated
		for _, c := range b.ExtraCharges {
			if c.Status == model.ChargeApproved {
				final += c.Amount
			}
		}
		b.Pricing.Final = &final
		return nil
	})
	if err != nil {
		return nil, err
	}
	if derr := e.dir.Release(ctx, technicianID, bookingID); derr != nil {
		e.log.Errorf("directory: release technician %s: %v", technicianID, derr)
	}
	e.afterTransition(ctx, updated, actor, "job completed")
	e.emit(ctx, notify.Notification{
		RecipientID: updated.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventJobCompleted, BookingID: bookingID,
		Payload: map[string]string{"final_amount": fmt.Sprintf("%.2f", *updated.Pricing.Final)},
	})
	return updated, nil
}

// MarkPaid flips a completed booking to PAID once payment settles upstream.
func (e *Engine) MarkPaid(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error) {
	release, err := e.locks.Acquire(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	updated, err := e.mutateLocked(ctx, bookingID, func(b *model.Booking) error {
		return booking.Transition(b, model.StatusPaid, actor, "payment received", e.now())
	})
	if err != nil {
		return nil, err
	}
	e.afterTransition(ctx, updated, actor, "payment received")
	return updated, nil
}

// GetBooking returns the current state of a booking.
func (e *Engine) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	return e.store.Get(ctx, bookingID)
}

// ListBookings returns bookings matching the filter.
func (e *Engine) ListBookings(ctx context.Context, f store.ListFilter) ([]*model.Booking, error) {
	return e.store.List(ctx, f)
}
