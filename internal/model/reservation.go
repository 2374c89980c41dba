package model

import (
	"fmt"
	"time"
)

// DateLayout and TimeLayout are the wire formats for calendar dates and
// slot times throughout the engine.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Reservation statuses. Reserved is the only non-terminal status.
const (
	StatusReserved  = "reserved"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Reservation is a single row of the booking ledger.
type Reservation struct {
	Key                    string     `json:"key"`
	Date                   string     `json:"date"` // 2006-01-02
	Time                   string     `json:"time"` // 15:04
	CustomerID             string     `json:"customer_id"`
	ServiceID              string     `json:"service_id"`
	ServiceDurationMinutes int        `json:"service_duration_minutes"`
	Status                 string     `json:"status"`
	CreatedAt              time.Time  `json:"created_at"`
	ReservedUntil          time.Time  `json:"reserved_until"`
	ConfirmedAt            *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt            *time.Time `json:"cancelled_at,omitempty"`
	RemarcationCount       int        `json:"remarcation_count"`
}

// ReservationKey derives the ledger key for a (date, time, customer) triple.
// The key is regenerated on reschedule; the row identity persists.
func ReservationKey(date, timeStr, customerID string) string {
	return fmt.Sprintf("%s_%s_%s", date, timeStr, customerID)
}

// IsTerminal reports whether no further status transition is permitted.
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusConfirmed || r.Status == StatusCancelled || r.Status == StatusExpired
}

// IsActive reports whether the reservation still occupies its slot
// for admission purposes (a live hold or a confirmed booking).
func (r *Reservation) IsActive() bool {
	return r.Status == StatusReserved || r.Status == StatusConfirmed
}

// HoldExpired reports whether a Reserved row's TTL has lapsed at the
// given instant. Inert for any other status.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.Status == StatusReserved && now.After(r.ReservedUntil)
}

// StartsAt combines Date and Time into a wall-clock instant.
func (r *Reservation) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, r.Date+" "+r.Time, loc)
}
