package eventing

import (
	"context"

	"backoffice/internal/eventbus"
)

// ProcessedStore remembers which consumer already handled which event.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Consumer is a named reaction to one kind of committed event. The name
// scopes idempotency: a redelivered event reaches each consumer once.
type Consumer struct {
	Name      string
	EventType string
	Handle    eventbus.EventHandler
}

// Consume builds a consumer of events of type T.
func Consume[T any](name string, handle func(ctx context.Context, event T) error) Consumer {
	return Consumer{
		Name:      name,
		EventType: eventbus.EventTypeOf[T](),
		Handle: func(ctx context.Context, event any) error {
			typed, ok := event.(T)
			if !ok {
				return eventbus.ErrInvalidEventType
			}
			return handle(ctx, typed)
		},
	}
}

// Subscribe registers consumers on bus. With a store, each consumer skips
// events it already processed.
func Subscribe(bus eventbus.EventBus, store ProcessedStore, consumers ...Consumer) {
	for _, consumer := range consumers {
		handler := consumer.Handle
		if store != nil {
			handler = once(consumer.Name, handler, store)
		}
		bus.Subscribe(consumer.EventType, handler)
	}
}

// once marks an event processed only after the handler succeeded, so a
// failed delivery is retried.
func once(consumerName string, handler eventbus.EventHandler, store ProcessedStore) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
