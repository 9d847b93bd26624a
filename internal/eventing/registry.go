package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"backoffice/internal/eventbus"
)

// ErrUnknownEventType is returned when an envelope names an unregistered type.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry maps event type names to decoders.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() any
}

// NewRegistry constructs a registry, registering samples if given.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{factories: make(map[string]func() any)}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

// Register registers an event type given a value or pointer sample.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.factories[eventbus.EventType(sample)] = func() any {
		return reflect.New(t).Interface()
	}
	r.mu.Unlock()
}

// DecodePayload decodes the envelope payload into its concrete event value.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	factory := r.factories[env.EventType]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := factory()
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, err
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}
