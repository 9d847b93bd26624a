package eventing

import (
	"context"

	"backoffice/internal/eventbus"
)

// Publisher writes events to the outbox. The insert joins the unit of work
// carried by ctx, so an event is stored only if the state change that
// produced it commits. Delivery is left to the Dispatcher.
type Publisher struct {
	outbox OutboxWriter
	sub    Subscriber
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.EventHandler)
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, sub Subscriber) *Publisher {
	return &Publisher{outbox: outbox, sub: sub}
}

// Publish writes the event to the outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	_, err = p.outbox.Insert(ctx, env)
	return err
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler eventbus.EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
