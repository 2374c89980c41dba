// Package availability computes the bookable slots of a date for a
// service: the schedule layering provides the candidate grid, the
// overlap engine marks slots taken by live reservations.
package availability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"marcador/internal/model"
	"marcador/internal/overlap"
	"marcador/internal/schedule"
)

// Ledger is the resolver's view of the reservation store.
type Ledger interface {
	ActiveOnDate(ctx context.Context, date string) ([]model.Reservation, error)
}

// Slot is one annotated entry of a day's grid.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// DayAvailability is the free slots of one date.
type DayAvailability struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// Resolver answers "which slots are free" questions.
type Resolver struct {
	schedule *schedule.Store
	catalog  overlap.Catalog
	ledger   Ledger
	overlaps *overlap.Engine
	cache    *Cache
	logger   *zerolog.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(sched *schedule.Store, cat overlap.Catalog, ledger Ledger, cache *Cache, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		schedule: sched,
		catalog:  cat,
		ledger:   ledger,
		overlaps: overlap.NewEngine(cat),
		cache:    cache,
		logger:   logger,
	}
}

// AnnotatedSlots returns the full day grid for a service with each
// entry marked available or not. Past dates, blocked dates, inactive
// weekdays and dates beyond the advance window all yield an empty
// list, not an error. Malformed input does error, so callers can tell
// "no slots" from "bad request".
func (r *Resolver) AnnotatedSlots(ctx context.Context, date, serviceID string) ([]Slot, error) {
	day, err := overlap.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := r.catalog.Get(serviceID); err != nil {
		return nil, err
	}

	if slots, ok := r.cache.Get(ctx, date, serviceID); ok {
		return slots, nil
	}

	now := time.Now()
	cfg := r.schedule.Get(false)
	if outsideWindow(day, now, cfg.GeneralSettings.MaxAdvanceDays) {
		return []Slot{}, nil
	}

	resolved, err := r.schedule.ResolveDay(date)
	if err != nil {
		return nil, err
	}
	candidates := resolved.Times
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	if date == now.Format(model.DateLayout) {
		candidates = r.sameDayFilter(candidates, now, cfg.GeneralSettings.SameDayCutoffTime)
		if len(candidates) == 0 {
			return []Slot{}, nil
		}
	}

	existing, err := r.ledger.ActiveOnDate(ctx, date)
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(candidates))
	for _, t := range candidates {
		if resolved.EndMinutes > 0 {
			fits, err := r.fitsBeforeClose(serviceID, t, resolved.EndMinutes)
			if err != nil {
				return nil, err
			}
			if !fits {
				slots = append(slots, Slot{Time: t, Reason: "runs past closing time"})
				continue
			}
		}
		reason, err := r.overlaps.ServiceConflicts(serviceID, t, existing)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			slots = append(slots, Slot{Time: t, Reason: reason})
			continue
		}
		slots = append(slots, Slot{Time: t, Available: true})
	}

	r.cache.Set(ctx, date, serviceID, slots)
	return slots, nil
}

// GenerateSlots returns only the free slot start times, in
// chronological order. This is the booking-path projection of
// AnnotatedSlots.
func (r *Resolver) GenerateSlots(ctx context.Context, date, serviceID string) ([]string, error) {
	annotated, err := r.AnnotatedSlots(ctx, date, serviceID)
	if err != nil {
		return nil, err
	}
	free := make([]string, 0, len(annotated))
	for _, s := range annotated {
		if s.Available {
			free = append(free, s.Time)
		}
	}
	return free, nil
}

// CountAvailable returns how many slots are free for the date.
func (r *Resolver) CountAvailable(ctx context.Context, date, serviceID string) (int, error) {
	slots, err := r.GenerateSlots(ctx, date, serviceID)
	if err != nil {
		return 0, err
	}
	return len(slots), nil
}

// NextAvailableTime returns the first free slot of the date at or
// after afterTime, or "" when the rest of the day is taken. Used to
// propose an alternative when a chosen slot was just lost.
func (r *Resolver) NextAvailableTime(ctx context.Context, date, serviceID, afterTime string) (string, error) {
	after := 0
	if afterTime != "" {
		m, err := overlap.ParseTimeOfDay(afterTime)
		if err != nil {
			return "", err
		}
		after = m
	}

	slots, err := r.GenerateSlots(ctx, date, serviceID)
	if err != nil {
		return "", err
	}
	for _, t := range slots {
		m, err := overlap.ParseTimeOfDay(t)
		if err != nil {
			continue
		}
		if m >= after {
			return t, nil
		}
	}
	return "", nil
}

// NextAvailable scans forward from fromDate (today when empty) to the
// edge of the advance window and returns the first date with at least
// one free slot, or nil when the whole window is full.
func (r *Resolver) NextAvailable(ctx context.Context, serviceID, fromDate string) (*DayAvailability, error) {
	now := time.Now()
	start := now
	if fromDate != "" {
		parsed, err := overlap.ParseDate(fromDate)
		if err != nil {
			return nil, err
		}
		if parsed.After(start) {
			start = parsed
		}
	}

	cfg := r.schedule.Get(false)
	horizon := now.AddDate(0, 0, cfg.GeneralSettings.MaxAdvanceDays)

	for day := start; !day.After(horizon); day = day.AddDate(0, 0, 1) {
		date := day.Format(model.DateLayout)
		slots, err := r.GenerateSlots(ctx, date, serviceID)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &DayAvailability{Date: date, Slots: slots}, nil
		}
	}
	return nil, nil
}

// sameDayFilter drops slots that already started and, past the cutoff
// time, drops the whole day.
func (r *Resolver) sameDayFilter(candidates []string, now time.Time, cutoff string) []string {
	nowMinutes := now.Hour()*60 + now.Minute()

	if cutoff != "" {
		cutoffMinutes, err := overlap.ParseTimeOfDay(cutoff)
		if err == nil && nowMinutes >= cutoffMinutes {
			return nil
		}
	}

	var out []string
	for _, t := range candidates {
		m, err := overlap.ParseTimeOfDay(t)
		if err != nil {
			continue
		}
		if m > nowMinutes {
			out = append(out, t)
		}
	}
	return out
}

// fitsBeforeClose checks the service's last stage ends by closing time.
func (r *Resolver) fitsBeforeClose(serviceID, startTime string, endMinutes int) (bool, error) {
	svc, err := r.catalog.Get(serviceID)
	if err != nil {
		return false, err
	}
	start, err := overlap.ParseTimeOfDay(startTime)
	if err != nil {
		return false, err
	}
	intervals := overlap.StageIntervals(svc, start)
	last := intervals[len(intervals)-1]
	return last.End <= endMinutes, nil
}

func outsideWindow(day time.Time, now time.Time, maxAdvanceDays int) bool {
	today, _ := overlap.ParseDate(now.Format(model.DateLayout))
	if day.Before(today) {
		return true
	}
	horizon := today.AddDate(0, 0, maxAdvanceDays)
	return day.After(horizon)
}
