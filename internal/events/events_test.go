package events

import (
	"errors"
	"testing"
)

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	bus := NewEventBus()

	var got Event
	bus.Subscribe(TypeReservationCreated, func(ev Event) error {
		got = ev
		return nil
	})

	bus.Publish(Event{Type: TypeReservationCreated, Key: "2026-09-08_10:00_c1"})

	if got.ID == "" {
		t.Error("event ID not assigned")
	}
	if got.CreatedAt.IsZero() {
		t.Error("event timestamp not assigned")
	}
	if got.Key != "2026-09-08_10:00_c1" {
		t.Errorf("key = %s", got.Key)
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewEventBus()

	created, cancelled := 0, 0
	bus.Subscribe(TypeReservationCreated, func(Event) error {
		created++
		return nil
	})
	bus.Subscribe(TypeReservationCancelled, func(Event) error {
		cancelled++
		return nil
	})

	bus.Publish(Event{Type: TypeReservationCreated})
	bus.Publish(Event{Type: TypeReservationCreated})
	bus.Publish(Event{Type: TypeReservationExpired})

	if created != 2 || cancelled != 0 {
		t.Errorf("created = %d, cancelled = %d", created, cancelled)
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()

	reached := false
	bus.Subscribe(TypeReservationConfirmed, func(Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(TypeReservationConfirmed, func(Event) error {
		reached = true
		return nil
	})

	bus.Publish(Event{Type: TypeReservationConfirmed})

	if !reached {
		t.Error("second handler not reached after first errored")
	}
}
