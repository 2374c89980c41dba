package model

// Break is a window inside a working day when no slots are offered.
type Break struct {
	Start string `yaml:"start" json:"start"` // 15:04
	End   string `yaml:"end" json:"end"`
}

// WeekdayHours is the default working-hours entry for one weekday.
type WeekdayHours struct {
	Active bool    `yaml:"active" json:"active"`
	Start  string  `yaml:"start" json:"start"`
	End    string  `yaml:"end" json:"end"`
	Breaks []Break `yaml:"breaks,omitempty" json:"breaks,omitempty"`
}

// Block is a punctual full-day closure.
type Block struct {
	Date   string `yaml:"date" json:"date"` // 2006-01-02
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// GeneralSettings holds the grid and booking-window parameters.
type GeneralSettings struct {
	SlotGranularityMinutes int    `yaml:"slot_granularity_minutes" json:"slot_granularity_minutes"`
	MaxAdvanceDays         int    `yaml:"max_advance_days" json:"max_advance_days"`
	SameDayCutoffTime      string `yaml:"same_day_cutoff_time" json:"same_day_cutoff_time"`
}

// ScheduleConfig is the layered schedule document. Weekday keys are
// lowercase English day names ("monday".."sunday").
type ScheduleConfig struct {
	WeeklyHours     map[string]WeekdayHours `yaml:"weekly_hours" json:"weekly_hours"`
	GeneralSettings GeneralSettings         `yaml:"general_settings" json:"general_settings"`
	BlockedDates    []Block                 `yaml:"blocked_dates" json:"blocked_dates"`
	CustomSlots     map[string][]string     `yaml:"custom_slots" json:"custom_slots"`
}

// Weekdays in schedule-document order.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// BlockFor returns the punctual block covering date, if any.
func (c *ScheduleConfig) BlockFor(date string) (Block, bool) {
	for _, b := range c.BlockedDates {
		if b.Date == date {
			return b, true
		}
	}
	return Block{}, false
}

// Clone returns a deep copy so cached configs can be handed out without
// aliasing the store's internal state.
func (c *ScheduleConfig) Clone() *ScheduleConfig {
	out := &ScheduleConfig{
		GeneralSettings: c.GeneralSettings,
		WeeklyHours:     make(map[string]WeekdayHours, len(c.WeeklyHours)),
		CustomSlots:     make(map[string][]string, len(c.CustomSlots)),
		BlockedDates:    append([]Block(nil), c.BlockedDates...),
	}
	for day, h := range c.WeeklyHours {
		h.Breaks = append([]Break(nil), h.Breaks...)
		out.WeeklyHours[day] = h
	}
	for date, slots := range c.CustomSlots {
		out.CustomSlots[date] = append([]string(nil), slots...)
	}
	return out
}
