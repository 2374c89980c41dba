package availability

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marcador/internal/catalog"
	"marcador/internal/database"
	"marcador/internal/model"
	"marcador/internal/overlap"
	"marcador/internal/reservation"
	"marcador/internal/schedule"
)

func testServices() []model.ServiceDefinition {
	return []model.ServiceDefinition{
		{ID: "corte", Name: "Haircut", Type: model.ServiceSimple, DurationMinutes: 30, Price: 45},
		{
			ID: "quimica", Name: "Chemical treatment", Type: model.ServiceFractioned,
			DurationMinutes: 60, Price: 120,
			Stages: []model.Stage{
				{Name: "application", DurationMinutes: 20, OccupiesProvider: true},
				{Name: "processing", DurationMinutes: 30, OccupiesProvider: false},
				{Name: "finish", DurationMinutes: 10, OccupiesProvider: true},
			},
		},
	}
}

type fixture struct {
	resolver *Resolver
	store    *reservation.Store
	schedule *schedule.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.Static(testServices()...)
	require.NoError(t, err)

	sched := schedule.NewStore(filepath.Join(t.TempDir(), "schedule.yaml"), time.Millisecond, &logger)
	store := reservation.NewStore(db, cat, time.Minute, nil, &logger)
	resolver := NewResolver(sched, cat, store, nil, &logger)
	return &fixture{resolver: resolver, store: store, schedule: sched}
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(model.DateLayout)
}

func TestGenerateSlotsCustomDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "11:00", "15:00"})
	require.NoError(t, err)

	slots, err := f.resolver.GenerateSlots(ctx, date, "corte")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "11:00", "15:00"}, slots)
}

func TestGenerateSlotsDropsReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "11:00"})
	require.NoError(t, err)

	_, err = f.store.Reserve(ctx, date, "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	slots, err := f.resolver.GenerateSlots(ctx, date, "corte")
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, slots)
}

func TestGenerateSlotsFractionedGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "10:20", "10:30", "11:00"})
	require.NoError(t, err)

	_, err = f.store.Reserve(ctx, date, "10:00", "c1", "quimica", 0)
	require.NoError(t, err)

	slots, err := f.resolver.GenerateSlots(ctx, date, "corte")
	require.NoError(t, err)
	// 10:20-10:50 fits inside the processing gap, 10:30-11:00 would
	// cross the finish stage at 10:50.
	assert.Equal(t, []string{"10:20", "11:00"}, slots)
}

func TestGenerateSlotsBlockedDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.AddBlock(date, "holiday")
	require.NoError(t, err)

	slots, err := f.resolver.GenerateSlots(ctx, date, "corte")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlotsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.resolver.GenerateSlots(ctx, futureDate(-1), "corte")
	require.NoError(t, err)
	assert.Empty(t, slots, "past dates yield nothing")

	slots, err = f.resolver.GenerateSlots(ctx, futureDate(40), "corte")
	require.NoError(t, err)
	assert.Empty(t, slots, "dates beyond the advance window yield nothing")
}

func TestGenerateSlotsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.GenerateSlots(ctx, "next tuesday", "corte")
	assert.ErrorIs(t, err, overlap.ErrInvalidDate)

	_, err = f.resolver.GenerateSlots(ctx, futureDate(7), "massagem")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestGenerateSlotsServiceMustFitBeforeClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Next Monday is within the 30-day window; weekly hours end 18:00.
	date := nextWeekday(time.Monday)

	slots, err := f.resolver.GenerateSlots(ctx, date, "quimica")
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "17:00", slots[len(slots)-1],
		"a 60-minute service cannot start after 17:00 on an 18:00 close")

	haircuts, err := f.resolver.GenerateSlots(ctx, date, "corte")
	require.NoError(t, err)
	assert.Equal(t, "17:30", haircuts[len(haircuts)-1])
}

func nextWeekday(day time.Weekday) string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(model.DateLayout)
}

func TestAnnotatedSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "11:00"})
	require.NoError(t, err)
	_, err = f.store.Reserve(ctx, date, "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	slots, err := f.resolver.AnnotatedSlots(ctx, date, "corte")
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, "10:00", slots[0].Time)
	assert.False(t, slots[0].Available)
	assert.NotEmpty(t, slots[0].Reason)

	assert.Equal(t, "11:00", slots[1].Time)
	assert.True(t, slots[1].Available)
	assert.Empty(t, slots[1].Reason)
}

func TestNextAvailableTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "11:00", "12:00"})
	require.NoError(t, err)
	_, err = f.store.Reserve(ctx, date, "11:00", "c1", "corte", 0)
	require.NoError(t, err)

	got, err := f.resolver.NextAvailableTime(ctx, date, "corte", "10:30")
	require.NoError(t, err)
	assert.Equal(t, "12:00", got)

	got, err = f.resolver.NextAvailableTime(ctx, date, "corte", "")
	require.NoError(t, err)
	assert.Equal(t, "10:00", got)

	got, err = f.resolver.NextAvailableTime(ctx, date, "corte", "12:30")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = f.resolver.NextAvailableTime(ctx, date, "corte", "half past ten")
	assert.ErrorIs(t, err, overlap.ErrInvalidTime)
}

func TestCountAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate(7)

	_, err := f.schedule.SetCustomSlots(date, []string{"10:00", "11:00", "12:00"})
	require.NoError(t, err)

	n, err := f.resolver.CountAvailable(ctx, date, "corte")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.store.Reserve(ctx, date, "11:00", "c1", "corte", 0)
	require.NoError(t, err)

	n, err = f.resolver.CountAvailable(ctx, date, "corte")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNextAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Close everything except one custom date a week out.
	cfg := schedule.DefaultConfig()
	for _, day := range model.Weekdays {
		entry := cfg.WeeklyHours[day]
		entry.Active = false
		cfg.WeeklyHours[day] = entry
	}
	require.NoError(t, f.schedule.Save(cfg))

	target := futureDate(7)
	_, err := f.schedule.SetCustomSlots(target, []string{"10:00"})
	require.NoError(t, err)

	day, err := f.resolver.NextAvailable(ctx, "corte", "")
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.Equal(t, target, day.Date)
	assert.Equal(t, []string{"10:00"}, day.Slots)

	// Searching from beyond the only open date finds nothing.
	day, err = f.resolver.NextAvailable(ctx, "corte", futureDate(8))
	require.NoError(t, err)
	assert.Nil(t, day)
}

func TestSameDayFilter(t *testing.T) {
	f := newFixture(t)

	now := time.Date(2026, 9, 8, 10, 15, 0, 0, time.UTC)
	got := f.resolver.sameDayFilter([]string{"09:00", "10:00", "10:30", "11:00"}, now, "18:00")
	assert.Equal(t, []string{"10:30", "11:00"}, got)

	// Past the cutoff the whole day is closed for new bookings.
	evening := time.Date(2026, 9, 8, 18, 30, 0, 0, time.UTC)
	got = f.resolver.sameDayFilter([]string{"19:00", "19:30"}, evening, "18:00")
	assert.Nil(t, got)
}
