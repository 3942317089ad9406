package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "healthflow-interpretation-risk_flagged", StreamName(streamPrefix, TypeRiskFlagged))
	assert.Equal(t, "x-a-b-c", StreamName("x", "a.b.c"))
}

func TestNewEvent(t *testing.T) {
	actor := types.NewID()
	e := NewEvent(TypeSummaryGenerated, "interpretation", SummaryGenerated{ResultID: types.NewID(), Model: "m"}).
		WithActor(actor).
		WithCorrelation("req-1")

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, actor, e.ActorID)
	assert.Equal(t, "req-1", e.CorrelationID)
	assert.False(t, e.Timestamp.IsZero())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"interpretation.summary_generated"`)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
