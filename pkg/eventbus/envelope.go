package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a published payload with the enrichment fields spec.md
// §4.2 requires whenever they are absent: a unique event_id, an ISO-8601 UTC
// timestamp, and a source tag identifying the publishing process.
type Envelope struct {
	EventID    string         `json:"event_id"`
	Timestamp  string         `json:"timestamp"`
	Source     string         `json:"source"`
	RoutingKey string         `json:"routing_key"`
	Payload    map[string]any `json:"payload"`
}

// NewEnvelope enriches payload fields with event_id/timestamp/source,
// mirroring teacher pkg/events/publisher.go's enrich-before-send convention.
// Fields already present in payload are left untouched (spec.md §4.2:
// "adds envelope fields if absent").
func NewEnvelope(routingKey, source string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	eventID, _ := payload["event_id"].(string)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	timestamp, _ := payload["timestamp"].(string)
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if src, _ := payload["source"].(string); src != "" {
		source = src
	}
	return Envelope{
		EventID:    eventID,
		Timestamp:  timestamp,
		Source:     source,
		RoutingKey: routingKey,
		Payload:    payload,
	}
}
