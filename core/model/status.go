package model

// BookingStatus identifies the position of a booking in its lifecycle.
type BookingStatus int

const (
	StatusRequested BookingStatus = iota
	StatusAssignedPending
	StatusAccepted
	StatusEnRoute
	StatusReached
	StatusInProgress
	StatusExtrasPending
	StatusCompleted
	StatusPaid
	StatusCancelled
	StatusCancelledByTech
	StatusFailedAssignment
	StatusTimeout
)

// String returns the canonical wire representation of the status.
func (s BookingStatus) String() string {
	switch s {
	case StatusRequested:
		return "REQUESTED"
	case StatusAssignedPending:
		return "ASSIGNED_PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusEnRoute:
		return "EN_ROUTE"
	case StatusReached:
		return "REACHED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusExtrasPending:
		return "EXTRAS_PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusPaid:
		return "PAID"
	case StatusCancelled:
		return "CANCELLED"
	case StatusCancelledByTech:
		return "CANCELLED_BY_TECH"
	case StatusFailedAssignment:
		return "FAILED_ASSIGNMENT"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "unknown"
	}
}

// ParseStatus converts the wire representation back to a BookingStatus.
func ParseStatus(s string) (BookingStatus, bool) {
	for st := StatusRequested; st <= StatusTimeout; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Terminal reports whether the status ends a booking's lifecycle.
// COMPLETED still permits the payment flip to PAID.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPaid, StatusCancelled, StatusCancelledByTech,
		StatusFailedAssignment, StatusTimeout:
		return true
	}
	return false
}

// Assigned reports whether the status implies a technician is bound to the
// booking.
func (s BookingStatus) Assigned() bool {
	switch s {
	case StatusAccepted, StatusEnRoute, StatusReached, StatusInProgress,
		StatusExtrasPending, StatusCompleted, StatusPaid:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler so statuses serialize as their
// wire names in JSON payloads.
func (s BookingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BookingStatus) UnmarshalText(b []byte) error {
	st, ok := ParseStatus(string(b))
	if !ok {
		return &UnknownStatusError{Value: string(b)}
	}
	*s = st
	return nil
}

// UnknownStatusError reports an unrecognized status string.
type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return "unknown booking status: " + e.Value
}
