package schedule

import (
	"testing"
	"time"

	"marcador/internal/model"
)

// nextWeekday returns the next date falling on the given weekday, at
// least a day out.
func nextWeekday(day time.Weekday) string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(model.DateLayout)
}

func TestResolveDayWeekly(t *testing.T) {
	s := newTestStore(t)

	monday := nextWeekday(time.Monday)
	got, err := s.ResolveDay(monday)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if got.Source != SourceWeekly {
		t.Fatalf("source = %s", got.Source)
	}

	// 08:00-18:00 at 30 minutes is 20 starts; the 12:00-13:00 lunch
	// removes 12:00 and 12:30.
	if len(got.Times) != 18 {
		t.Errorf("slot count = %d, want 18", len(got.Times))
	}
	if got.Times[0] != "08:00" {
		t.Errorf("first slot = %s", got.Times[0])
	}
	if got.Times[len(got.Times)-1] != "17:30" {
		t.Errorf("last slot = %s", got.Times[len(got.Times)-1])
	}
	for _, slot := range got.Times {
		if slot == "12:00" || slot == "12:30" {
			t.Errorf("lunch slot %s should be removed", slot)
		}
	}
	if got.EndMinutes != 18*60 {
		t.Errorf("EndMinutes = %d", got.EndMinutes)
	}
}

func TestResolveDayGridWithoutBreaks(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultConfig()
	cfg.WeeklyHours["monday"] = model.WeekdayHours{Active: true, Start: "08:00", End: "18:00"}
	if err := s.Save(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.ResolveDay(nextWeekday(time.Monday))
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if len(got.Times) != 20 {
		t.Errorf("slot count = %d, want 20", len(got.Times))
	}
}

func TestResolveDayInactive(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ResolveDay(nextWeekday(time.Sunday))
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if got.Source != SourceInactive {
		t.Errorf("source = %s", got.Source)
	}
	if len(got.Times) != 0 {
		t.Errorf("inactive day has %d slots", len(got.Times))
	}
}

func TestResolveDayLayering(t *testing.T) {
	s := newTestStore(t)
	monday := nextWeekday(time.Monday)

	if _, err := s.SetCustomSlots(monday, []string{"10:00", "15:00"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ResolveDay(monday)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if got.Source != SourceCustom {
		t.Fatalf("source = %s, want custom over weekly", got.Source)
	}
	if len(got.Times) != 2 || got.Times[0] != "10:00" {
		t.Errorf("custom times = %v", got.Times)
	}

	// A punctual block beats the custom list.
	if _, err := s.AddBlock(monday, "closed for works"); err != nil {
		t.Fatal(err)
	}
	got, err = s.ResolveDay(monday)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if got.Source != SourceBlocked {
		t.Fatalf("source = %s, want blocked over custom", got.Source)
	}
	if got.BlockReason != "closed for works" {
		t.Errorf("reason = %q", got.BlockReason)
	}
	if len(got.Times) != 0 {
		t.Errorf("blocked day has %d slots", len(got.Times))
	}
}

func TestResolveDayInvalidDate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ResolveDay("tomorrow"); err == nil {
		t.Error("expected invalid date error")
	}
}
