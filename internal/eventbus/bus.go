// Package eventbus routes committed back-office events (issued documents,
// register open/close, ledger movements) to in-process consumers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventbus: nil event")
	// ErrInvalidEventType is returned when the event type cannot be determined
	// or a handler receives a value of the wrong type.
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
)

// InMemoryBus fans events out to in-process handlers, keyed by event type.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish runs every handler registered for the event's type. All handlers
// run even when one fails; the failures are joined and tagged with the type.
// A panicking handler is reported as a failure so the dispatcher loop
// survives it.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var failures []error
	for _, handler := range handlers {
		if err := deliver(ctx, handler, event); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("eventbus: %s: %w", eventType, errors.Join(failures...))
}

func deliver(ctx context.Context, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// EventType names the dynamic type of event, pointers dereferenced. The
// name is what the outbox stores, so it must stay stable across releases.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf names T the same way EventType names its values.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
