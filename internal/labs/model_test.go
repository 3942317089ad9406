package labs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

func TestHasFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags json.RawMessage
		want  bool
	}{
		{"nil", nil, false},
		{"json null", json.RawMessage(`null`), false},
		{"object", json.RawMessage(`{"riskLevel":"low","flaggedTests":[]}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &BloodTestResult{AIFlags: tt.flags}
			assert.Equal(t, tt.want, r.HasFlags())
		})
	}
}

func TestNewBloodTestResult(t *testing.T) {
	user := types.NewID()
	r := NewBloodTestResult(user, SourceUpload, json.RawMessage(`{"tests":[]}`))

	assert.False(t, r.ID.IsZero())
	assert.Equal(t, user, r.UserID)
	assert.Equal(t, SourceUpload, r.Source)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)
	assert.False(t, r.HasFlags())
}
