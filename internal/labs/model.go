// Package labs stores blood test result records.
package labs

import (
	"encoding/json"
	"time"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Sources of a result record.
const (
	SourceUpload  = "upload"
	SourceHeliant = "heliant"
)

// BloodTestResult is a stored lab result. Results holds the raw record,
// which may carry personal data and never leaves the service as-is.
type BloodTestResult struct {
	ID            types.ID        `json:"id"`
	UserID        types.ID        `json:"user_id"`
	Results       json.RawMessage `json:"results"`
	SampleDate    *string         `json:"sample_date,omitempty"`
	Source        string          `json:"source"`
	SourceRef     *string         `json:"source_ref,omitempty"`
	AISummary     *string         `json:"ai_summary,omitempty"`
	AIFlags       json.RawMessage `json:"ai_flags,omitempty"`
	AIRiskScore   *int            `json:"ai_risk_score,omitempty"`
	AIGeneratedAt *time.Time      `json:"ai_generated_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasFlags reports whether a risk assessment is already stored.
func (r *BloodTestResult) HasFlags() bool {
	return len(r.AIFlags) > 0 && string(r.AIFlags) != "null"
}

// NewBloodTestResult creates a record for an imported or uploaded result.
func NewBloodTestResult(userID types.ID, source string, results json.RawMessage) *BloodTestResult {
	now := time.Now().UTC()
	return &BloodTestResult{
		ID:        types.NewID(),
		UserID:    userID,
		Results:   results,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
