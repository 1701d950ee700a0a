package booking

import (
	"errors"
	"fmt"

	"github.com/homefixr/dispatch/core/model"
)

// Sentinel errors surfaced by the engine. They are classified so the API
// layer can map them to user-facing responses deterministically.
var (
	// ErrNotActiveCandidate guards the single-active-candidate protocol:
	// only the technician currently holding the offer may respond.
	ErrNotActiveCandidate = errors.New("technician is not the active candidate for this booking")
	// ErrBookingAlreadyAssigned is returned when an assignment would
	// overwrite an existing technician binding.
	ErrBookingAlreadyAssigned = errors.New("booking already has an assigned technician")
	// ErrTechnicianBusy enforces the one-active-job-per-technician rule.
	ErrTechnicianBusy = errors.New("technician already has an active booking")
	// ErrNoTechsAvailable is raised when the candidate queue is exhausted
	// without an acceptance.
	ErrNoTechsAvailable = errors.New("no technicians available for this booking")
	// ErrOtpInvalidInput is returned when the job-start OTP does not match
	// the code issued to the customer.
	ErrOtpInvalidInput = errors.New("invalid OTP provided")
	// ErrZoneMismatch is returned when a technician does not serve the
	// booking's zone.
	ErrZoneMismatch = errors.New("technician does not serve the booking zone")
	// ErrNotAssignedTechnician is returned when a technician acts on a
	// booking assigned to someone else.
	ErrNotAssignedTechnician = errors.New("technician is not assigned to this booking")
	// ErrChargeResolved is returned when responding to an extra charge that
	// already has a customer decision.
	ErrChargeResolved = errors.New("extra charge already resolved")
	// ErrUnknownCharge is returned for responses to nonexistent charge ids.
	ErrUnknownCharge = errors.New("unknown extra charge")
)

// InvalidStatusError reports an illegal status transition. Message, when set,
// carries the exact user-facing wording for the rejected edge.
type InvalidStatusError struct {
	From    model.BookingStatus
	To      model.BookingStatus
	Message string
}

func (e *InvalidStatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid booking status: cannot transition from %s to %s", e.From, e.To)
}

// ValidationError reports malformed input rejected before any state mutation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Kind buckets engine failures for transport-level mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindExhausted
)

// Classify returns the failure kind for an engine error.
func Classify(err error) Kind {
	var ve *ValidationError
	var ise *InvalidStatusError
	var use *model.UnknownStatusError
	switch {
	case errors.As(err, &ve), errors.As(err, &use), errors.Is(err, ErrUnknownCharge):
		return KindValidation
	case errors.As(err, &ise),
		errors.Is(err, ErrNotActiveCandidate),
		errors.Is(err, ErrBookingAlreadyAssigned),
		errors.Is(err, ErrTechnicianBusy),
		errors.Is(err, ErrOtpInvalidInput),
		errors.Is(err, ErrZoneMismatch),
		errors.Is(err, ErrNotAssignedTechnician),
		errors.Is(err, ErrChargeResolved):
		return KindConflict
	case errors.Is(err, ErrNoTechsAvailable):
		return KindExhausted
	default:
		return KindInternal
	}
}
