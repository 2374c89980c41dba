// Package events is the in-process pub/sub bus for booking lifecycle
// events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Booking lifecycle event types.
const (
	TypeReservationCreated     = "reservation.created"
	TypeReservationConfirmed   = "reservation.confirmed"
	TypeReservationCancelled   = "reservation.cancelled"
	TypeReservationRescheduled = "reservation.rescheduled"
	TypeReservationExpired     = "reservation.expired"
)

// Event is a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. A missing ID or
// timestamp is filled in.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}
