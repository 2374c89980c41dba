// Package overlap computes the time intervals a service occupies and
// decides whether two bookings collide. Fractioned services occupy the
// provider only during their occupying stages; the idle stages in
// between are usable by other bookings.
package overlap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marcador/internal/model"
)

var (
	// ErrInvalidDate marks a date string that does not parse as 2006-01-02.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidTime marks a time string that does not parse as 15:04.
	ErrInvalidTime = errors.New("invalid time")
)

// Interval is a half-open [Start, End) window in minutes from midnight.
type Interval struct {
	Start            int
	End              int
	Stage            string
	OccupiesProvider bool
}

// ParseDate validates a 2006-01-02 date string.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// ParseTimeOfDay converts a 15:04 string to minutes from midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour*60 + minute, nil
}

// FormatMinutes renders minutes from midnight as 15:04.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// StageIntervals walks the service's stages from startMinutes and
// returns the resulting intervals in order. A simple service yields a
// single fully-occupying interval spanning the whole duration.
func StageIntervals(svc *model.ServiceDefinition, startMinutes int) []Interval {
	if !svc.IsFractioned() {
		return []Interval{{
			Start:            startMinutes,
			End:              startMinutes + svc.DurationMinutes,
			Stage:            svc.Name,
			OccupiesProvider: true,
		}}
	}
	intervals := make([]Interval, 0, len(svc.Stages))
	cursor := startMinutes
	for _, st := range svc.Stages {
		intervals = append(intervals, Interval{
			Start:            cursor,
			End:              cursor + st.DurationMinutes,
			Stage:            st.Name,
			OccupiesProvider: st.OccupiesProvider,
		})
		cursor += st.DurationMinutes
	}
	return intervals
}

// OccupyingIntervals returns only the intervals during which the
// provider is busy. These are the ones that matter for admission.
func OccupyingIntervals(svc *model.ServiceDefinition, startMinutes int) []Interval {
	var out []Interval
	for _, iv := range StageIntervals(svc, startMinutes) {
		if iv.OccupiesProvider {
			out = append(out, iv)
		}
	}
	return out
}

// IntervalsConflict reports half-open interval overlap. Touching
// endpoints do not conflict.
func IntervalsConflict(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Catalog resolves service definitions for conflict checks.
type Catalog interface {
	Get(serviceID string) (*model.ServiceDefinition, error)
}

// Engine decides conflicts between a candidate booking and the
// existing reservations of a day.
type Engine struct {
	catalog Catalog
}

// NewEngine creates an overlap engine backed by the given catalog.
func NewEngine(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// ServiceConflicts checks a candidate (serviceID, startTime) against
// existing reservations. Reservations on other dates or in terminal
// released states must be filtered out by the caller; cancelled and
// expired rows that slip through are skipped. Returns a
// user-presentable reason for the first conflict found, or "" when the
// slot is admissible.
func (e *Engine) ServiceConflicts(serviceID, startTime string, existing []model.Reservation) (string, error) {
	svc, err := e.catalog.Get(serviceID)
	if err != nil {
		return "", err
	}
	start, err := ParseTimeOfDay(startTime)
	if err != nil {
		return "", err
	}
	candidate := OccupyingIntervals(svc, start)

	for i := range existing {
		res := &existing[i]
		if !res.IsActive() {
			continue
		}
		taken, err := e.reservationIntervals(res)
		if err != nil {
			return "", err
		}
		for _, a := range candidate {
			for _, b := range taken {
				if IntervalsConflict(a.Start, a.End, b.Start, b.End) {
					return conflictReason(res, b), nil
				}
			}
		}
	}
	return "", nil
}

// reservationIntervals computes the occupying intervals of an existing
// row. When its service is no longer in the catalog, the duration
// recorded on the row is used as a single occupying block.
func (e *Engine) reservationIntervals(res *model.Reservation) ([]Interval, error) {
	start, err := ParseTimeOfDay(res.Time)
	if err != nil {
		return nil, err
	}
	svc, err := e.catalog.Get(res.ServiceID)
	if err != nil {
		dur := res.ServiceDurationMinutes
		if dur <= 0 {
			dur = 30
		}
		return []Interval{{Start: start, End: start + dur, OccupiesProvider: true}}, nil
	}
	return OccupyingIntervals(svc, start), nil
}

func conflictReason(res *model.Reservation, iv Interval) string {
	return fmt.Sprintf("conflicts with booking at %s (occupied %s-%s)",
		res.Time, FormatMinutes(iv.Start), FormatMinutes(iv.End))
}
