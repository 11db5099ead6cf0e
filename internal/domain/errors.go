package domain

import "errors"

// Kind classifies a domain error for propagation and transport mapping.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindCapacity      Kind = "capacity"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
)

// Error is a business-rule or validation failure with a stable code.
// Two errors are considered equal by errors.Is when their codes match, so a
// sentinel can be re-issued with a more specific message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports code equality with another *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg}
}

// Validation errors
var (
	ErrMissingField      = &Error{Kind: KindValidation, Code: "MISSING_FIELD", Message: "missing required field"}
	ErrInvalidTimeWindow = &Error{Kind: KindValidation, Code: "INVALID_TIME_WINDOW", Message: "end time must be after start time"}
	ErrInvalidPool       = &Error{Kind: KindValidation, Code: "INVALID_POOL", Message: "invalid parking pool"}
)

// Conflict errors
var (
	ErrVehicleHasActiveBooking = &Error{Kind: KindConflict, Code: "VEHICLE_HAS_ACTIVE_BOOKING", Message: "vehicle already has an active booking"}
	ErrPoolInactiveOrMissing   = &Error{Kind: KindConflict, Code: "POOL_INACTIVE_OR_MISSING", Message: "parking pool is inactive or does not exist"}
	ErrNoAvailableUnits        = &Error{Kind: KindConflict, Code: "NO_AVAILABLE_UNITS", Message: "no available spots in this parking pool"}
	ErrPoolHasActiveBookings   = &Error{Kind: KindConflict, Code: "POOL_HAS_ACTIVE_BOOKINGS", Message: "parking pool has active bookings"}
)

// Capacity errors
var (
	ErrInsufficientCapacity = &Error{Kind: KindCapacity, Code: "INSUFFICIENT_CAPACITY", Message: "insufficient capacity"}
	ErrCapacityBelowActive  = &Error{Kind: KindCapacity, Code: "CAPACITY_BELOW_ACTIVE", Message: "total units cannot drop below active bookings"}
)

// Authorization errors
var (
	ErrForbidden = &Error{Kind: KindAuthorization, Code: "FORBIDDEN", Message: "not authorized"}
)

// State errors
var (
	ErrAlreadyTerminal   = &Error{Kind: KindState, Code: "ALREADY_TERMINAL", Message: "booking is already cancelled or completed"}
	ErrInvalidTransition = &Error{Kind: KindState, Code: "INVALID_TRANSITION", Message: "invalid booking transition"}
)

// Not found errors
var (
	ErrNotFound     = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "booking not found"}
	ErrPoolNotFound = &Error{Kind: KindNotFound, Code: "POOL_NOT_FOUND", Message: "parking pool not found"}
)

// AsError extracts the domain error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
