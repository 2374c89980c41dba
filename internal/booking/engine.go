// Package booking is the engine facade: availability questions and
// reservation commands behind one API, with lifecycle events and
// per-customer rate limiting on top of the ledger.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"marcador/internal/availability"
	"marcador/internal/catalog"
	"marcador/internal/events"
	"marcador/internal/model"
	"marcador/internal/reservation"
)

// MessagingSender delivers a notification to a customer over whatever
// channel the host application wires in.
type MessagingSender interface {
	Send(ctx context.Context, customerID, text string) error
}

// PaymentProvider opens a charge for a confirmed booking and returns a
// provider reference.
type PaymentProvider interface {
	CreateCharge(ctx context.Context, reservationKey string, amountCents int64) (string, error)
}

// CustomerRegistry resolves customer display data owned by the host
// application.
type CustomerRegistry interface {
	DisplayName(ctx context.Context, customerID string) (string, error)
}

// Options are the facade's optional collaborators and tunables. Any
// nil collaborator is simply skipped.
type Options struct {
	Messaging MessagingSender
	Payments  PaymentProvider
	Customers CustomerRegistry

	// ReserveEvery and ReserveBurst shape the per-customer token
	// bucket on reserve. Zero values fall back to 2s / 3.
	ReserveEvery time.Duration
	ReserveBurst int
	SingleActive bool
}

// Engine is the booking engine facade.
type Engine struct {
	resolver *availability.Resolver
	store    *reservation.Store
	catalog  *catalog.Catalog
	bus      *events.EventBus
	opts     Options
	logger   *zerolog.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewEngine wires the facade. bus may be nil to disable events.
func NewEngine(resolver *availability.Resolver, store *reservation.Store, cat *catalog.Catalog, bus *events.EventBus, opts Options, logger *zerolog.Logger) *Engine {
	if opts.ReserveEvery <= 0 {
		opts.ReserveEvery = 2 * time.Second
	}
	if opts.ReserveBurst <= 0 {
		opts.ReserveBurst = 3
	}
	return &Engine{
		resolver: resolver,
		store:    store,
		catalog:  cat,
		bus:      bus,
		opts:     opts,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// GenerateSlots lists the free slot start times for a date and service.
func (e *Engine) GenerateSlots(ctx context.Context, date, serviceID string) ([]string, error) {
	return e.resolver.GenerateSlots(ctx, date, serviceID)
}

// AnnotatedSlots lists the full day grid with availability flags, for
// operator views.
func (e *Engine) AnnotatedSlots(ctx context.Context, date, serviceID string) ([]availability.Slot, error) {
	return e.resolver.AnnotatedSlots(ctx, date, serviceID)
}

// NextAvailableTime proposes the first free slot of the date at or
// after afterTime.
func (e *Engine) NextAvailableTime(ctx context.Context, date, serviceID, afterTime string) (string, error) {
	return e.resolver.NextAvailableTime(ctx, date, serviceID, afterTime)
}

// NextAvailable returns the first date at or after fromDate with free
// slots, or nil when the advance window is full.
func (e *Engine) NextAvailable(ctx context.Context, serviceID, fromDate string) (*availability.DayAvailability, error) {
	return e.resolver.NextAvailable(ctx, serviceID, fromDate)
}

// CountAvailable returns the number of free slots for a date.
func (e *Engine) CountAvailable(ctx context.Context, date, serviceID string) (int, error) {
	return e.resolver.CountAvailable(ctx, date, serviceID)
}

// Reserve places a temporary hold on a slot for the customer, valid
// for ttl (the store default when zero).
func (e *Engine) Reserve(ctx context.Context, date, timeStr, customerID, serviceID string, ttl time.Duration) (*model.Reservation, error) {
	if !e.allow(customerID) {
		return nil, fmt.Errorf("%w: customer %s", ErrRateLimited, customerID)
	}

	if e.opts.SingleActive {
		active, err := e.store.ActiveForCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, fmt.Errorf("%w: %s on %s at %s", ErrCustomerHasActive, active.Key, active.Date, active.Time)
		}
	}

	res, err := e.store.Reserve(ctx, date, timeStr, customerID, serviceID, ttl)
	if err != nil {
		return nil, err
	}

	e.publish(events.TypeReservationCreated, res)
	return res, nil
}

// Confirm promotes a hold to a confirmed booking, opens a payment
// charge when a provider is wired in, and notifies the customer.
func (e *Engine) Confirm(ctx context.Context, key string) (*model.Reservation, error) {
	res, err := e.store.Confirm(ctx, key)
	if err != nil {
		return nil, err
	}

	if e.opts.Payments != nil {
		if svc, svcErr := e.catalog.Get(res.ServiceID); svcErr == nil && svc.Price > 0 {
			ref, chargeErr := e.opts.Payments.CreateCharge(ctx, res.Key, int64(math.Round(svc.Price*100)))
			if chargeErr != nil {
				e.logger.Error().Err(chargeErr).Str("key", res.Key).Msg("charge creation failed")
			} else {
				e.logger.Info().Str("key", res.Key).Str("charge", ref).Msg("charge created")
			}
		}
	}

	e.publish(events.TypeReservationConfirmed, res)
	e.notify(ctx, res.CustomerID, fmt.Sprintf("Your booking on %s at %s is confirmed.", res.Date, res.Time))
	return res, nil
}

// Cancel releases a reservation. Safe to retry.
func (e *Engine) Cancel(ctx context.Context, key string) (*model.Reservation, error) {
	res, err := e.store.Cancel(ctx, key)
	if err != nil {
		return nil, err
	}
	e.publish(events.TypeReservationCancelled, res)
	return res, nil
}

// Reschedule moves a reservation to a new slot. At most one
// remarcation per record.
func (e *Engine) Reschedule(ctx context.Context, key, newDate, newTime string) (*model.Reservation, error) {
	res, err := e.store.Reschedule(ctx, key, newDate, newTime)
	if err != nil {
		return nil, err
	}
	e.publish(events.TypeReservationRescheduled, res)
	e.notify(ctx, res.CustomerID, fmt.Sprintf("Your booking moved to %s at %s. Please confirm it.", res.Date, res.Time))
	return res, nil
}

// Status returns the current ledger record for a key.
func (e *Engine) Status(ctx context.Context, key string) (*model.Reservation, error) {
	return e.store.Get(ctx, key)
}

// ActiveForCustomer returns the customer's upcoming active booking.
func (e *Engine) ActiveForCustomer(ctx context.Context, customerID string) (*model.Reservation, error) {
	return e.store.ActiveForCustomer(ctx, customerID)
}

// Services lists the bookable service definitions.
func (e *Engine) Services() []model.ServiceDefinition {
	return e.catalog.List()
}

func (e *Engine) allow(customerID string) bool {
	e.limiterMu.Lock()
	defer e.limiterMu.Unlock()
	lim, ok := e.limiters[customerID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(e.opts.ReserveEvery), e.opts.ReserveBurst)
		e.limiters[customerID] = lim
	}
	return lim.Allow()
}

func (e *Engine) publish(eventType string, res *model.Reservation) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		e.logger.Error().Err(err).Str("key", res.Key).Msg("event payload marshal failed")
		return
	}
	e.bus.Publish(events.Event{Type: eventType, Key: res.Key, Payload: payload})
}

func (e *Engine) notify(ctx context.Context, customerID, text string) {
	if e.opts.Messaging == nil {
		return
	}
	if e.opts.Customers != nil {
		if name, err := e.opts.Customers.DisplayName(ctx, customerID); err == nil && name != "" {
			text = fmt.Sprintf("%s, %s", name, text)
		}
	}
	if err := e.opts.Messaging.Send(ctx, customerID, text); err != nil {
		e.logger.Error().Err(err).Str("customer", customerID).Msg("notification send failed")
	}
}
