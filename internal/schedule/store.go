// Package schedule loads, caches and mutates the layered schedule
// configuration: weekly defaults, punctual full-day blocks and
// per-date custom slot lists.
package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"marcador/internal/model"
	"marcador/internal/overlap"
)

// DefaultCacheWindow bounds how stale a cached config may be before the
// store reloads from disk.
const DefaultCacheWindow = 60 * time.Second

// Store is the schedule configuration store. Reads go through a short
// time-based cache; every successful mutation invalidates it.
type Store struct {
	path        string
	cacheWindow time.Duration
	logger      *zerolog.Logger

	mu       sync.Mutex
	cached   *model.ScheduleConfig
	cachedAt time.Time
}

// NewStore creates a store backed by the YAML document at path.
func NewStore(path string, cacheWindow time.Duration, logger *zerolog.Logger) *Store {
	if cacheWindow <= 0 {
		cacheWindow = DefaultCacheWindow
	}
	return &Store{path: path, cacheWindow: cacheWindow, logger: logger}
}

// DefaultConfig is the built-in fallback used when the document cannot
// be loaded: weekdays 08:00-18:00 with a lunch break, Saturday morning,
// Sunday closed.
func DefaultConfig() *model.ScheduleConfig {
	lunch := []model.Break{{Start: "12:00", End: "13:00"}}
	weekly := make(map[string]model.WeekdayHours, len(model.Weekdays))
	for _, day := range model.Weekdays {
		switch day {
		case "saturday":
			weekly[day] = model.WeekdayHours{Active: true, Start: "08:00", End: "14:00"}
		case "sunday":
			weekly[day] = model.WeekdayHours{Active: false, Start: "08:00", End: "18:00"}
		default:
			weekly[day] = model.WeekdayHours{Active: true, Start: "08:00", End: "18:00", Breaks: lunch}
		}
	}
	return &model.ScheduleConfig{
		WeeklyHours: weekly,
		GeneralSettings: model.GeneralSettings{
			SlotGranularityMinutes: 30,
			MaxAdvanceDays:         30,
			SameDayCutoffTime:      "18:00",
		},
		CustomSlots: map[string][]string{},
	}
}

// Get returns the schedule configuration, reloading from disk when the
// cache window has elapsed or force is set. A load failure degrades to
// the built-in default rather than failing the caller.
func (s *Store) Get(force bool) *model.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(force).Clone()
}

func (s *Store) getLocked(force bool) *model.ScheduleConfig {
	if !force && s.cached != nil && time.Since(s.cachedAt) < s.cacheWindow {
		return s.cached
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to read schedule config, using defaults")
		}
		return DefaultConfig()
	}

	cfg := &model.ScheduleConfig{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to parse schedule config, using defaults")
		return DefaultConfig()
	}
	if cfg.WeeklyHours == nil {
		cfg.WeeklyHours = map[string]model.WeekdayHours{}
	}
	if cfg.CustomSlots == nil {
		cfg.CustomSlots = map[string][]string{}
	}
	if cfg.GeneralSettings.SlotGranularityMinutes <= 0 {
		cfg.GeneralSettings.SlotGranularityMinutes = 30
	}
	if cfg.GeneralSettings.MaxAdvanceDays <= 0 {
		cfg.GeneralSettings.MaxAdvanceDays = 30
	}

	s.cached = cfg
	s.cachedAt = time.Now()
	return s.cached
}

// Save persists the configuration and invalidates the cache.
func (s *Store) Save(cfg *model.ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(cfg)
}

func (s *Store) saveLocked(cfg *model.ScheduleConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal schedule config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write schedule config: %w", err)
	}
	s.cached = nil
	s.cachedAt = time.Time{}
	return nil
}

// AddBlock closes a date entirely. Adding a block for an already
// blocked date fails.
func (s *Store) AddBlock(date, reason string) (bool, error) {
	if _, err := overlap.ParseDate(date); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	if _, blocked := cfg.BlockFor(date); blocked {
		return false, nil
	}
	cfg.BlockedDates = append(cfg.BlockedDates, model.Block{Date: date, Reason: reason})
	if err := s.saveLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveBlock reopens a blocked date. Removing a non-blocked date fails.
func (s *Store) RemoveBlock(date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	kept := cfg.BlockedDates[:0]
	removed := false
	for _, b := range cfg.BlockedDates {
		if b.Date == date {
			removed = true
			continue
		}
		kept = append(kept, b)
	}
	if !removed {
		return false, nil
	}
	cfg.BlockedDates = kept
	if err := s.saveLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// SetCustomSlots replaces the slot list for a date, overriding the
// weekday default entirely.
func (s *Store) SetCustomSlots(date string, slots []string) (bool, error) {
	if _, err := overlap.ParseDate(date); err != nil {
		return false, err
	}
	normalized := make([]string, 0, len(slots))
	for _, t := range slots {
		m, err := overlap.ParseTimeOfDay(t)
		if err != nil {
			return false, err
		}
		normalized = append(normalized, overlap.FormatMinutes(m))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	cfg.CustomSlots[date] = normalized
	if err := s.saveLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// ClearCustomSlots reverts a date to its weekday default.
func (s *Store) ClearCustomSlots(date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	if _, ok := cfg.CustomSlots[date]; !ok {
		return false, nil
	}
	delete(cfg.CustomSlots, date)
	if err := s.saveLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// WeeklyUpdate is a partial update of one weekday entry. Nil fields
// keep their previous value.
type WeeklyUpdate struct {
	Active *bool
	Start  *string
	End    *string
	Breaks *[]model.Break
}

// UpdateWeekly applies a partial update to the weekday's default hours.
func (s *Store) UpdateWeekly(weekday string, upd WeeklyUpdate) (bool, error) {
	if !validWeekday(weekday) {
		return false, fmt.Errorf("unknown weekday %q", weekday)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	entry, ok := cfg.WeeklyHours[weekday]
	if !ok {
		entry = model.WeekdayHours{Active: true, Start: "08:00", End: "18:00"}
	}
	if upd.Active != nil {
		entry.Active = *upd.Active
	}
	if upd.Start != nil {
		if _, err := overlap.ParseTimeOfDay(*upd.Start); err != nil {
			return false, err
		}
		entry.Start = *upd.Start
	}
	if upd.End != nil {
		if _, err := overlap.ParseTimeOfDay(*upd.End); err != nil {
			return false, err
		}
		entry.End = *upd.End
	}
	if upd.Breaks != nil {
		entry.Breaks = append([]model.Break(nil), (*upd.Breaks)...)
	}
	cfg.WeeklyHours[weekday] = entry
	if err := s.saveLocked(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// PruneOldBlocks drops blocks older than the given number of days and
// returns how many were removed. Unparseable block dates are kept.
func (s *Store) PruneOldBlocks(olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(true).Clone()
	kept := cfg.BlockedDates[:0]
	removed := 0
	for _, b := range cfg.BlockedDates {
		d, err := overlap.ParseDate(b.Date)
		if err != nil || !d.Before(cutoff) {
			kept = append(kept, b)
			continue
		}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	cfg.BlockedDates = kept
	if err := s.saveLocked(cfg); err != nil {
		return 0, err
	}
	return removed, nil
}

func validWeekday(day string) bool {
	for _, d := range model.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}
