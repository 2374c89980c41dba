package booking

import (
	"errors"

	"marcador/internal/overlap"
	"marcador/internal/reservation"
)

// The engine's error taxonomy. Callers branch with errors.Is; the
// ledger and parsing sentinels are surfaced here so callers depend on
// a single package.
var (
	ErrSlotUnavailable         = reservation.ErrSlotUnavailable
	ErrReservationNotFound     = reservation.ErrReservationNotFound
	ErrReservationExpired      = reservation.ErrReservationExpired
	ErrRemarcationLimitReached = reservation.ErrRemarcationLimitReached
	ErrInvalidDate             = overlap.ErrInvalidDate
	ErrInvalidTime             = overlap.ErrInvalidTime

	// ErrCustomerHasActive rejects a reserve while the customer already
	// holds a live or confirmed booking.
	ErrCustomerHasActive = errors.New("customer already has an active booking")

	// ErrRateLimited rejects a reserve burst from one customer.
	ErrRateLimited = errors.New("too many reserve attempts")
)
