package ledger

import "errors"

// Validation errors. All of them are recoverable by the caller.
var (
	ErrInvalidLineItem     = errors.New("invalid line item")
	ErrInvalidServiceFee   = errors.New("service fee percentage must be between 0 and 1")
	ErrInvalidStrategy     = errors.New("invalid division strategy")
	ErrExceedsRemaining    = errors.New("amount exceeds remaining balance")
	ErrUnknownLineItem     = errors.New("line item is not part of the session")
	ErrAlreadyCovered      = errors.New("line item already paid")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConcurrentAdmission = errors.New("balance was claimed by another payment")
	ErrNothingDue          = errors.New("nothing left to pay")
	ErrSessionNotOpen      = errors.New("session is not open")
	ErrInvalidSession      = errors.New("invalid session")
)

var rejections = []error{
	ErrInvalidLineItem, ErrInvalidServiceFee, ErrInvalidStrategy, ErrExceedsRemaining,
	ErrUnknownLineItem, ErrAlreadyCovered, ErrInvalidTransition, ErrConcurrentAdmission,
	ErrNothingDue, ErrSessionNotOpen, ErrInvalidSession,
}

// IsRejection reports whether err is a validation error the caller can
// correct, as opposed to a lookup miss or a store failure.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrDivisionNotFound   = errors.New("division not found")
	ErrLineItemNotFound   = errors.New("line item not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrMenuItemNotFound   = errors.New("menu item not found")
)

// ErrUnavailable marks persistence failures. Callers should retry with backoff
// instead of treating them as a rejection.
var ErrUnavailable = errors.New("ledger store unavailable")

// IsNotFound reports whether err is one of the lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrDivisionNotFound) ||
		errors.Is(err, ErrLineItemNotFound) ||
		errors.Is(err, ErrRestaurantNotFound) ||
		errors.Is(err, ErrMenuItemNotFound)
}
