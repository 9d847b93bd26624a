package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/eventbus"
)

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	ActorID       string          `json:"actor_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	ActorID       string
	SchemaVersion int
}

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope constructs an envelope from an event and its metadata.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	occurredAt := meta.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = extractTimeField(event, "OccurredAt")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	eventID := meta.EventID
	if eventID == "" {
		eventID = NewEventID()
	}
	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}
	actorID := meta.ActorID
	if actorID == "" {
		actorID = extractStringField(event, "ActorID")
	}
	schemaVersion := meta.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = 1
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventbus.EventType(event),
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
		ActorID:       actorID,
		SchemaVersion: schemaVersion,
		Payload:       payload,
	}, nil
}

func structValue(event any) (reflect.Value, bool) {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return reflect.Value{}, false
		}
		value = value.Elem()
	}
	return value, value.Kind() == reflect.Struct
}

func extractStringField(event any, name string) string {
	value, ok := structValue(event)
	if !ok {
		return ""
	}
	field := value.FieldByName(name)
	if field.IsValid() && field.Kind() == reflect.String {
		return field.String()
	}
	return ""
}

func extractTimeField(event any, name string) time.Time {
	value, ok := structValue(event)
	if !ok {
		return time.Time{}
	}
	field := value.FieldByName(name)
	if !field.IsValid() {
		return time.Time{}
	}
	if t, ok := field.Interface().(time.Time); ok {
		return t
	}
	return time.Time{}
}
