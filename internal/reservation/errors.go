package reservation

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable rejects a reserve or reschedule whose slot is
	// already taken.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrReservationNotFound means no usable record exists for the key.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationExpired means the temporary hold lapsed before the
	// operation ran.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrRemarcationLimitReached rejects a second reschedule of the
	// same record.
	ErrRemarcationLimitReached = errors.New("remarcation limit reached")
)

// ConflictError carries the admission check's reason while still
// matching ErrSlotUnavailable.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot unavailable: %s", e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrSlotUnavailable
}
