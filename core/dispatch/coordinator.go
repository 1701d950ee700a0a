package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/booking"
	coremetrics "github.com/homefixr/dispatch/core/metrics"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/core/selector"
	"github.com/homefixr/dispatch/core/store"
)

// advanceResult reports what the candidate-advancement step decided. Side
// effects (timers, notifications, metrics) run only after the state change has
// committed.
type advanceResult struct {
	offered string // technician now holding the offer, "" if none
	epoch   int
	failed  bool // booking moved to FAILED_ASSIGNMENT
	timeout bool // booking moved to TIMEOUT (attempt cap)
}

// advance pops the next candidate and sends it an offer, or settles the
// booking when no candidates remain. It mutates b in place; the caller commits.
// refill controls whether an empty queue triggers a fresh selector search
// (initial kickoff and post-cancellation re-search do; mid-queue advancement
// does not, so an explicit reject or expiry never re-offers the same pool).
func (e *Engine) advance(ctx context.Context, b *model.Booking, reason string, refill bool) (advanceResult, error) {
	now := e.now()
	if e.cfg.MaxOfferAttempts > 0 && b.OfferEpoch >= e.cfg.MaxOfferAttempts {
		if err := booking.Transition(b, model.StatusTimeout, model.SystemActor,
			fmt.Sprintf("no acceptance after %d offers", b.OfferEpoch), now); err != nil {
			return advanceResult{}, err
		}
		b.ActiveCandidateID = ""
		b.CandidateQueue = nil
		return advanceResult{timeout: true}, nil
	}

	if len(b.CandidateQueue) == 0 && refill {
		excluded := make(map[string]struct{}, len(b.RejectedCandidates))
		for _, id := range b.RejectedCandidates {
			excluded[id] = struct{}{}
		}
		queue, err := e.selector.Select(ctx, selector.Request{
			ZoneID:    b.ZoneID,
			ServiceID: b.ServiceID,
			Location:  b.Location,
			Excluded:  excluded,
		})
		if err != nil {
			return advanceResult{}, err
		}
		b.CandidateQueue = queue
	}

	next := e.popCandidate(ctx, b)
	if next == "" {
		failReason := "no technicians available"
		if b.Status == model.StatusCancelledByTech {
			failReason = "CANCELLED_BY_TECH: Tech cancelled & no replacements"
		}
		if err := booking.Transition(b, model.StatusFailedAssignment, model.SystemActor, failReason, now); err != nil {
			return advanceResult{}, err
		}
		b.ActiveCandidateID = ""
		return advanceResult{failed: true}, nil
	}

	b.ActiveCandidateID = next
	b.OfferEpoch++
	b.OfferDeadline = now.Add(e.offerTimeout())
	if err := booking.Transition(b, model.StatusAssignedPending, model.SystemActor,
		fmt.Sprintf("offer sent to technician %s (%s)", next, reason), now); err != nil {
		return advanceResult{}, err
	}
	return advanceResult{offered: next, epoch: b.OfferEpoch}, nil
}

// popCandidate returns the first queued technician that is still offerable,
// dropping any that went offline, got busy or were rejected meanwhile.
func (e *Engine) popCandidate(ctx context.Context, b *model.Booking) string {
	for len(b.CandidateQueue) > 0 {
		id := b.CandidateQueue[0]
		b.CandidateQueue = b.CandidateQueue[1:]
		if b.HasRejected(id) {
			continue
		}
		tech, err := e.dir.Get(ctx, id)
		if err != nil || !tech.Online || (tech.Busy() && tech.ActiveBookingID != b.ID) {
			continue
		}
		return id
	}
	return ""
}

// settleAdvance runs the post-commit effects of an advance step.
func (e *Engine) settleAdvance(ctx context.Context, b *model.Booking, adv advanceResult) {
	now := e.now()
	switch {
	case adv.offered != "":
		e.armOfferTimer(b.ID, adv.epoch)
		offersSent.Inc()
		e.recordAssignment(coremetrics.AssignmentRecord{
			BookingID: b.ID, TechnicianID: adv.offered, ZoneID: b.ZoneID,
			ServiceID: b.ServiceID, Outcome: "offered", Attempt: adv.epoch, Time: now,
		})
		e.appendAudit(ctx, audit.Record{
			Timestamp: now, BookingID: b.ID, Status: model.StatusAssignedPending,
			Actor: model.SystemActor, TechnicianID: adv.offered, Attempt: adv.epoch,
		})
		e.publish(OfferEvent{BookingID: b.ID, TechnicianID: adv.offered, Attempt: adv.epoch, Outcome: "offered", Time: now})
		e.publish(BookingEvent{BookingID: b.ID, Status: b.Status, Actor: model.SystemActor, Time: now})
		e.emit(ctx, notify.Notification{
			RecipientID: adv.offered, Recipient: notify.RecipientTechnician,
			Event: notify.EventOfferSent, BookingID: b.ID,
			Payload: map[string]string{
				"service_id": b.ServiceID,
				"zone_id":    b.ZoneID,
				"expires_at": b.OfferDeadline.Format(time.RFC3339),
			},
		})
		e.log.Infof("booking %s: offer %d sent to technician %s", b.ID, adv.epoch, adv.offered)
	case adv.failed:
		assignmentsFailed.Inc()
		e.recordAssignment(coremetrics.AssignmentRecord{
			BookingID: b.ID, ZoneID: b.ZoneID, ServiceID: b.ServiceID,
			Outcome: "failed", Attempt: b.OfferEpoch, Time: now,
		})
		e.appendAudit(ctx, audit.Record{
			Timestamp: now, BookingID: b.ID, Status: model.StatusFailedAssignment,
			Actor: model.SystemActor, Reason: lastReason(b),
		})
		e.publish(BookingEvent{BookingID: b.ID, Status: b.Status, Actor: model.SystemActor, Reason: lastReason(b), Time: now})
		e.emit(ctx, notify.Notification{
			RecipientID: b.CustomerID, Recipient: notify.RecipientCustomer,
			Event: notify.EventNoTechsAvailable, BookingID: b.ID,
		})
		e.emit(ctx, notify.Notification{
			Recipient: notify.RecipientAdmin, Event: notify.EventNoTechsAvailable, BookingID: b.ID,
		})
		e.log.Warnf("booking %s: assignment failed, no technicians available", b.ID)
	case adv.timeout:
		e.appendAudit(ctx, audit.Record{
			Timestamp: now, BookingID: b.ID, Status: model.StatusTimeout,
			Actor: model.SystemActor, Reason: lastReason(b),
		})
		e.publish(BookingEvent{BookingID: b.ID, Status: b.Status, Actor: model.SystemActor, Time: now})
		e.emit(ctx, notify.Notification{
			Recipient: notify.RecipientAdmin, Event: notify.EventStatusUpdated,
			BookingID: b.ID, Payload: map[string]string{"status": b.Status.String()},
		})
		e.log.Warnf("booking %s: timed out after %d offers", b.ID, b.OfferEpoch)
	}
}

// afterTransition runs the shared post-commit effects of a simple progression
// transition.
func (e *Engine) afterTransition(ctx context.Context, b *model.Booking, actor model.Actor, reason string) {
	now := e.now()
	e.appendAudit(ctx, audit.Record{
		Timestamp: now, BookingID: b.ID, Status: b.Status, Actor: actor,
		Reason: reason, TechnicianID: b.TechnicianID,
	})
	e.publish(BookingEvent{BookingID: b.ID, Status: b.Status, TechnicianID: b.TechnicianID, Actor: actor, Reason: reason, Time: now})
	e.emit(ctx, notify.Notification{
		RecipientID: b.CustomerID, Recipient: notify.RecipientCustomer,
		Event: notify.EventStatusUpdated, BookingID: b.ID,
		Payload: map[string]string{"status": b.Status.String()},
	})
	e.emit(ctx, notify.Notification{
		Recipient: notify.RecipientAdmin, Event: notify.EventStatusUpdated,
		BookingID: b.ID, Payload: map[string]string{"status": b.Status.String()},
	})
}

// mutateLocked runs a read-modify-write cycle under the caller-held booking
// lock: load, apply, verify invariants, compare-and-swap. Version conflicts
// retry the whole cycle so apply must be idempotent on its captured state.
func (e *Engine) mutateLocked(ctx context.Context, id string, apply func(*model.Booking) error) (*model.Booking, error) {
	var lastErr error
	for i := 0; i < e.cfg.CASRetries; i++ {
		cur, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		if err := next.CheckInvariants(); err != nil {
			invariantViolations.Inc()
			e.log.Errorf("aborting operation: %v", err)
			return nil, err
		}
		err = e.store.CompareAndSwap(ctx, id, cur.Version, next)
		if errors.Is(err, store.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, lastErr
}

// armOfferTimer schedules the timeout for the given offer epoch, replacing any
// previous timer for the booking.
func (e *Engine) armOfferTimer(bookingID string, epoch int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if old, ok := e.timers[bookingID]; ok {
		old.t.Stop()
	}
	t := time.AfterFunc(e.offerTimeout(), func() {
		e.handleOfferTimeout(bookingID, epoch)
	})
	e.timers[bookingID] = &offerTimer{epoch: epoch, t: t}
	activeOffers.Set(float64(len(e.timers)))
}

// cancelOfferTimer stops and removes the booking's offer timer, if any. A
// timer that already fired is harmless: its epoch guard makes it a no-op.
func (e *Engine) cancelOfferTimer(bookingID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ot, ok := e.timers[bookingID]; ok {
		ot.t.Stop()
		delete(e.timers, bookingID)
	}
	activeOffers.Set(float64(len(e.timers)))
}

// dropOfferTimer removes the timer entry for a fired epoch without touching a
// newer timer that may have replaced it.
func (e *Engine) dropOfferTimer(bookingID string, epoch int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ot, ok := e.timers[bookingID]; ok && ot.epoch == epoch {
		delete(e.timers, bookingID)
	}
	activeOffers.Set(float64(len(e.timers)))
}

// emit delivers a notification best effort. Sink failures are logged and
// counted, never propagated: a committed transition is never rolled back
// because an observer was unreachable.
func (e *Engine) emit(ctx context.Context, n notify.Notification) {
	if n.Time.IsZero() {
		n.Time = e.now()
	}
	if err := e.sink.Emit(ctx, n); err != nil {
		notifyFailures.Inc()
		e.log.Errorf("notification %s for booking %s: %v", n.Event, n.BookingID, err)
	}
}

func (e *Engine) publish(ev any) {
	e.mu.Lock()
	bus := e.bus
	e.mu.Unlock()
	if bus != nil {
		bus.Publish(ev)
	}
}

func (e *Engine) appendAudit(ctx context.Context, rec audit.Record) {
	e.mu.Lock()
	auditor := e.auditor
	e.mu.Unlock()
	if err := auditor.Append(ctx, rec); err != nil {
		e.log.Errorf("audit append for booking %s: %v", rec.BookingID, err)
	}
}

func (e *Engine) recordAssignment(rec coremetrics.AssignmentRecord) {
	e.mu.Lock()
	sink := e.metrics
	e.mu.Unlock()
	if err := sink.RecordAssignments([]coremetrics.AssignmentRecord{rec}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
}

func lastReason(b *model.Booking) string {
	if len(b.Timeline) == 0 {
		return ""
	}
	return b.Timeline[len(b.Timeline)-1].Reason
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
