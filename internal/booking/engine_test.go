package booking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marcador/internal/availability"
	"marcador/internal/catalog"
	"marcador/internal/database"
	"marcador/internal/events"
	"marcador/internal/model"
	"marcador/internal/reservation"
	"marcador/internal/schedule"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, customerID, text string) error {
	args := m.Called(ctx, customerID, text)
	return args.Error(0)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) CreateCharge(ctx context.Context, reservationKey string, amountCents int64) (string, error) {
	args := m.Called(ctx, reservationKey, amountCents)
	return args.String(0), args.Error(1)
}

func testServices() []model.ServiceDefinition {
	return []model.ServiceDefinition{
		{ID: "corte", Name: "Haircut", Type: model.ServiceSimple, DurationMinutes: 30, Price: 45},
		{ID: "barba", Name: "Beard trim", Type: model.ServiceSimple, DurationMinutes: 30, Price: 19.99},
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *events.EventBus) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.Static(testServices()...)
	require.NoError(t, err)

	sched := schedule.NewStore(filepath.Join(t.TempDir(), "schedule.yaml"), time.Millisecond, &logger)
	store := reservation.NewStore(db, cat, time.Minute, nil, &logger)
	resolver := availability.NewResolver(sched, cat, store, nil, &logger)
	bus := events.NewEventBus()
	return NewEngine(resolver, store, cat, bus, opts, &logger), bus
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(model.DateLayout)
}

func TestReservePublishesEvent(t *testing.T) {
	engine, bus := newTestEngine(t, Options{})
	ctx := context.Background()

	var seen []events.Event
	bus.Subscribe(events.TypeReservationCreated, func(ev events.Event) error {
		seen = append(seen, ev)
		return nil
	})

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, res.Key, seen[0].Key)
	assert.NotEmpty(t, seen[0].ID)
	assert.NotEmpty(t, seen[0].Payload)
}

func TestReserveSingleActiveRule(t *testing.T) {
	engine, _ := newTestEngine(t, Options{SingleActive: true})
	ctx := context.Background()

	_, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, futureDate(8), "11:00", "c1", "corte", 0)
	assert.ErrorIs(t, err, ErrCustomerHasActive)

	// Another customer is unaffected.
	_, err = engine.Reserve(ctx, futureDate(8), "11:00", "c2", "corte", 0)
	assert.NoError(t, err)
}

func TestReserveAfterCancelAllowedAgain(t *testing.T) {
	engine, _ := newTestEngine(t, Options{SingleActive: true})
	ctx := context.Background()

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, res.Key)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, futureDate(8), "11:00", "c1", "corte", 0)
	assert.NoError(t, err)
}

func TestReserveRateLimit(t *testing.T) {
	engine, _ := newTestEngine(t, Options{ReserveEvery: time.Hour, ReserveBurst: 1})
	ctx := context.Background()

	_, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, futureDate(7), "11:00", "c1", "corte", 0)
	assert.ErrorIs(t, err, ErrRateLimited)

	// The bucket is per customer.
	_, err = engine.Reserve(ctx, futureDate(7), "11:00", "c2", "corte", 0)
	assert.NoError(t, err)
}

func TestConfirmNotifiesAndCharges(t *testing.T) {
	sender := &mockSender{}
	payments := &mockPayments{}
	engine, bus := newTestEngine(t, Options{Messaging: sender, Payments: payments})
	ctx := context.Background()

	var confirmedEvents int
	bus.Subscribe(events.TypeReservationConfirmed, func(events.Event) error {
		confirmedEvents++
		return nil
	})

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	payments.On("CreateCharge", mock.Anything, res.Key, int64(4500)).Return("charge-1", nil)
	sender.On("Send", mock.Anything, "c1", mock.AnythingOfType("string")).Return(nil)

	_, err = engine.Confirm(ctx, res.Key)
	require.NoError(t, err)

	payments.AssertExpectations(t)
	sender.AssertExpectations(t)
	assert.Equal(t, 1, confirmedEvents)
}

func TestConfirmChargeRoundsToCents(t *testing.T) {
	payments := &mockPayments{}
	engine, _ := newTestEngine(t, Options{Payments: payments})
	ctx := context.Background()

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "barba", 0)
	require.NoError(t, err)

	// 19.99 must charge 1999 cents, not the truncated 1998.
	payments.On("CreateCharge", mock.Anything, res.Key, int64(1999)).Return("charge-1", nil)

	_, err = engine.Confirm(ctx, res.Key)
	require.NoError(t, err)
	payments.AssertExpectations(t)
}

func TestConfirmSurvivesSenderFailure(t *testing.T) {
	sender := &mockSender{}
	engine, _ := newTestEngine(t, Options{Messaging: sender})
	ctx := context.Background()

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	sender.On("Send", mock.Anything, "c1", mock.AnythingOfType("string")).
		Return(assert.AnError)

	confirmed, err := engine.Confirm(ctx, res.Key)
	require.NoError(t, err, "a notification failure must not fail the confirmation")
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
}

func TestRescheduleFacade(t *testing.T) {
	engine, bus := newTestEngine(t, Options{})
	ctx := context.Background()

	var moved int
	bus.Subscribe(events.TypeReservationRescheduled, func(events.Event) error {
		moved++
		return nil
	})

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	got, err := engine.Reschedule(ctx, res.Key, futureDate(8), "14:00")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemarcationCount)
	assert.Equal(t, 1, moved)

	_, err = engine.Reschedule(ctx, got.Key, futureDate(9), "14:00")
	assert.ErrorIs(t, err, ErrRemarcationLimitReached)
}

func TestStatusAndServices(t *testing.T) {
	engine, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	_, err := engine.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	res, err := engine.Reserve(ctx, futureDate(7), "10:00", "c1", "corte", 0)
	require.NoError(t, err)

	got, err := engine.Status(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, got.Status)

	services := engine.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "barba", services[0].ID)
	assert.Equal(t, "corte", services[1].ID)
}
