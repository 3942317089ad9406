// Package interpretation turns stored blood test results into AI summaries
// and risk assessments.
package interpretation

import (
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// RiskLevel is the closed risk vocabulary.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether l is one of the three allowed levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// RiskAssessment is the validated risk-flag output of the model.
type RiskAssessment struct {
	RiskLevel    RiskLevel `json:"riskLevel"`
	FlaggedTests []string  `json:"flaggedTests"`
	Reasoning    string    `json:"reasoning,omitempty"`
}

// SummaryResult is returned by Service.Summarize.
type SummaryResult struct {
	ResultID types.ID
	Summary  string
}

// RiskResult is returned by Service.FlagRisk. Existing is set when the
// record was already flagged and no model call was made for this response.
type RiskResult struct {
	ResultID   types.ID
	Assessment RiskAssessment
	Score      int
	Existing   bool
}

// InterpretRequest is the body of both interpretation endpoints.
type InterpretRequest struct {
	ResultID string `json:"resultId"`
}

// SummaryResponse is the 200 body of the summary endpoint.
type SummaryResponse struct {
	AISummary string `json:"ai_summary"`
}

// RiskFlagsResponse is the 200 body of the risk-flags endpoint.
type RiskFlagsResponse struct {
	AIFlags     RiskAssessment `json:"ai_flags"`
	AIRiskScore int            `json:"ai_risk_score"`
}
