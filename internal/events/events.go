// Package events provides a small in-process event bus for call lifecycle
// notifications. Subscribers run on their own goroutine per event so a slow
// consumer cannot block the webhook path.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a call lifecycle event.
type Type string

const (
	CallCompleted Type = "call.completed"
	CallEscalated Type = "call.escalated"
	CallFailed    Type = "call.failed"
)

// CallEvent describes a terminal call outcome.
type CallEvent struct {
	Type           Type
	CallID         string
	CallRecordID   uuid.UUID
	QuoteRequestID uuid.UUID
	SupplierID     uuid.UUID
	OrganizationID uuid.UUID
	Reason         string
	OccurredAt     time.Time
}

// Handler consumes a call event. Handlers must be safe for concurrent use.
type Handler func(ctx context.Context, ev CallEvent)

// Bus fans call events out to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every handler asynchronously.
func (b *Bus) Publish(ctx context.Context, ev CallEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(ctx, ev)
	}
}
