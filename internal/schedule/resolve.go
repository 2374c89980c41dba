package schedule

import (
	"strings"

	"marcador/internal/model"
	"marcador/internal/overlap"
)

// Source tags where a day's slots came from.
type Source string

const (
	SourceBlocked  Source = "blocked"
	SourceCustom   Source = "custom"
	SourceWeekly   Source = "weekly"
	SourceInactive Source = "inactive"
)

// DaySchedule is the resolved schedule for a single date.
type DaySchedule struct {
	Date        string
	Source      Source
	BlockReason string
	// Times is the candidate slot grid in 15:04 strings, already
	// sliced at the configured granularity with breaks removed.
	Times       []string
	Granularity int
	// EndMinutes is the closing time in minutes from midnight for a
	// weekly-sourced day, 0 otherwise.
	EndMinutes int
}

// ResolveDay applies the layering for a date: punctual block wins over
// a custom slot list, which wins over the weekday default.
func (s *Store) ResolveDay(date string) (*DaySchedule, error) {
	day, err := overlap.ParseDate(date)
	if err != nil {
		return nil, err
	}

	cfg := s.Get(false)
	out := &DaySchedule{Date: date, Granularity: cfg.GeneralSettings.SlotGranularityMinutes}

	if block, blocked := cfg.BlockFor(date); blocked {
		out.Source = SourceBlocked
		out.BlockReason = block.Reason
		return out, nil
	}

	if slots, ok := cfg.CustomSlots[date]; ok {
		out.Source = SourceCustom
		out.Times = append([]string(nil), slots...)
		return out, nil
	}

	weekday := strings.ToLower(day.Weekday().String())
	hours, ok := cfg.WeeklyHours[weekday]
	if !ok || !hours.Active {
		out.Source = SourceInactive
		return out, nil
	}

	times, err := slotGrid(hours, cfg.GeneralSettings.SlotGranularityMinutes)
	if err != nil {
		return nil, err
	}
	end, err := overlap.ParseTimeOfDay(hours.End)
	if err != nil {
		return nil, err
	}
	out.Source = SourceWeekly
	out.Times = times
	out.EndMinutes = end
	return out, nil
}

// slotGrid slices [start, end) at the granularity, dropping any slot
// whose start falls inside a break window.
func slotGrid(hours model.WeekdayHours, granularity int) ([]string, error) {
	start, err := overlap.ParseTimeOfDay(hours.Start)
	if err != nil {
		return nil, err
	}
	end, err := overlap.ParseTimeOfDay(hours.End)
	if err != nil {
		return nil, err
	}

	type window struct{ start, end int }
	breaks := make([]window, 0, len(hours.Breaks))
	for _, b := range hours.Breaks {
		bs, err := overlap.ParseTimeOfDay(b.Start)
		if err != nil {
			return nil, err
		}
		be, err := overlap.ParseTimeOfDay(b.End)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, window{bs, be})
	}

	var times []string
	for cursor := start; cursor < end; cursor += granularity {
		inBreak := false
		for _, w := range breaks {
			if cursor >= w.start && cursor < w.end {
				inBreak = true
				break
			}
		}
		if !inBreak {
			times = append(times, overlap.FormatMinutes(cursor))
		}
	}
	return times, nil
}
