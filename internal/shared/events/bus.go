// Package events publishes domain events to KurrentDB.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/kurrentdb"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Event types
const (
	TypeSummaryGenerated = "interpretation.summary_generated"
	TypeRiskFlagged      = "interpretation.risk_flagged"
)

const streamPrefix = "healthflow"

// Event represents a domain event. Data never carries lab values or model
// output.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	CorrelationID string   `json:"correlation_id,omitempty"`
	ActorID       types.ID `json:"actor_id,omitempty"`

	Data any `json:"data"`
}

// SummaryGenerated is the payload of TypeSummaryGenerated.
type SummaryGenerated struct {
	ResultID types.ID `json:"result_id"`
	Model    string   `json:"model"`
}

// RiskFlagged is the payload of TypeRiskFlagged.
type RiskFlagged struct {
	ResultID     types.ID `json:"result_id"`
	RiskLevel    string   `json:"risk_level"`
	RiskScore    int      `json:"risk_score"`
	FlaggedCount int      `json:"flagged_count"`
	Model        string   `json:"model"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the acting user
func (e Event) WithActor(actorID types.ID) Event {
	e.ActorID = actorID
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events. It is used when KurrentDB is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// Bus publishes events to one KurrentDB stream per event type.
type Bus struct {
	client *kurrentdb.Client
	prefix string
}

// NewBus creates a new event bus on an existing KurrentDB connection
func NewBus(client *kurrentdb.Client) *Bus {
	return &Bus{client: client, prefix: streamPrefix}
}

// Publish publishes an event to the bus
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	_, err = b.client.DB().AppendToStream(ctx, StreamName(b.prefix, event.Type), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdb.EventData{
		EventID:     eventID,
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// StreamName converts an event type to a stream name:
// interpretation.risk_flagged -> healthflow-interpretation-risk_flagged
func StreamName(prefix, eventType string) string {
	return prefix + "-" + strings.ReplaceAll(eventType, ".", "-")
}
