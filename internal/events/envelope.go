package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the monorepo's shared v1 wrapper around every published
// event. Waitlist events are keyed by subscription id.
type EventEnvelope struct {
	EventName     string          `json:"eventName"`
	EventVersion  int             `json:"eventVersion"`
	EventID       string          `json:"eventId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Producer      string          `json:"producer"`
	PartitionKey  string          `json:"partitionKey"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Schema        string          `json:"schema"`
	Payload       json.RawMessage `json:"payload"`
}

func newEnvelope(producer string, meta EventMeta, name, schema, subscriptionID string, at time.Time, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return EventEnvelope{
		EventName:     name,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  subscriptionID,
		OccurredAt:    at,
		Schema:        schema,
		Payload:       raw,
	}, nil
}

// DecodeOutcome parses a published waitlist event named name and decodes its
// payload into dst.
func DecodeOutcome(body []byte, name string, dst any) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	var errs []error
	if env.EventName != name {
		errs = append(errs, fmt.Errorf("eventName %q, want %q", env.EventName, name))
	}
	if env.EventVersion != 1 {
		errs = append(errs, fmt.Errorf("eventVersion %d, want 1", env.EventVersion))
	}
	if env.EventID == "" || env.PartitionKey == "" {
		errs = append(errs, errors.New("eventId and partitionKey are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return EventEnvelope{}, err
	}

	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return EventEnvelope{}, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return env, nil
}
