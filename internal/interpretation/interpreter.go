package interpretation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
)

var riskScores = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// ParseSummary returns the completion verbatim. Summaries are read by a
// person, so no structure is enforced beyond being non-empty.
func ParseSummary(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.EmptyAIResponse()
	}
	return text, nil
}

// ParseRiskAssessment strictly decodes a risk-flag completion. Text that is
// not a JSON object is malformed; an object with an unknown riskLevel or
// ill-typed fields is an invalid assessment. No text scraping is attempted.
func ParseRiskAssessment(text string) (*RiskAssessment, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.MalformedAIResponse(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.MalformedAIResponse(fmt.Errorf("trailing data after JSON object"))
	}
	if fields == nil {
		return nil, errors.MalformedAIResponse(fmt.Errorf("not a JSON object"))
	}

	var level string
	if err := json.Unmarshal(fields["riskLevel"], &level); err != nil {
		return nil, errors.InvalidRiskAssessment("")
	}
	if !RiskLevel(level).Valid() {
		return nil, errors.InvalidRiskAssessment(level)
	}

	assessment := &RiskAssessment{RiskLevel: RiskLevel(level), FlaggedTests: []string{}}

	if raw, ok := fields["flaggedTests"]; ok && !isNull(raw) {
		var flagged []string
		if err := json.Unmarshal(raw, &flagged); err != nil {
			return nil, errors.InvalidRiskAssessment(level)
		}
		if flagged != nil {
			assessment.FlaggedTests = flagged
		}
	}

	if raw, ok := fields["reasoning"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &assessment.Reasoning); err != nil {
			return nil, errors.InvalidRiskAssessment(level)
		}
	}

	return assessment, nil
}

// RiskScore maps a validated level to its score: low=1, medium=2, high=3.
func RiskScore(level RiskLevel) (int, bool) {
	score, ok := riskScores[level]
	return score, ok
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
