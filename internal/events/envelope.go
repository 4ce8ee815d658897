package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the transport form of an outbox entry published to brokers.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	BusinessID      string          `json:"business_id"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeFor wraps an outbox entry. The outbox id doubles as the event id
// so consumers can de-duplicate redeliveries.
func EnvelopeFor(entry OutboxEntry) Envelope {
	return Envelope{
		EventID:         entry.ID,
		EventType:       entry.Type,
		BusinessID:      entry.BusinessID,
		TimestampMicros: entry.CreatedAt.UTC().UnixMicro(),
		Payload:         entry.Payload,
	}
}

func marshalEnvelope(entry OutboxEntry) ([]byte, error) {
	data, err := json.Marshal(EnvelopeFor(entry))
	if err != nil {
		return nil, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return data, nil
}
