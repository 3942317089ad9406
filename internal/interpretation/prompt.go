package interpretation

import (
	"strings"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/privacy"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
)

// SummarySystemPrompt instructs the model for patient-facing summaries.
const SummarySystemPrompt = `You are a helpful medical assistant explaining blood test results to a patient. ` +
	`Use ONLY the anonymised test values provided. Never ask for, guess or infer the identity of the patient. ` +
	`Write 2-4 sentences in plain, friendly language without medical jargon. ` +
	`Include one practical next step, such as "Discuss these results with your GP." ` +
	`End with this exact sentence: "This summary is for information only and is not a medical diagnosis."`

// RiskSystemPrompt instructs the model to return a strict JSON assessment.
const RiskSystemPrompt = `You are a clinical decision-support assistant reviewing anonymised blood test results. ` +
	`Respond with strict JSON only, with no prose and no code fences, using exactly these keys: ` +
	`{"riskLevel": "low" | "medium" | "high", "flaggedTests": ["<test name>"], "reasoning": "<one short sentence>"}. ` +
	`riskLevel must be exactly one of "low", "medium" or "high". ` +
	`Only include a test name in flaggedTests when its value is significantly outside its reference range. ` +
	`Use ONLY the values provided and never infer the identity of the patient.`

const userPromptHeader = "Blood test results:"

// Prompt is the two-part instruction sent to the model.
type Prompt struct {
	System string
	User   string
}

// BuildSummaryPrompt renders the summary prompt.
func BuildSummaryPrompt(p privacy.Payload) (Prompt, error) {
	return build(SummarySystemPrompt, p)
}

// BuildRiskPrompt renders the risk-flag prompt.
func BuildRiskPrompt(p privacy.Payload) (Prompt, error) {
	return build(RiskSystemPrompt, p)
}

func build(system string, p privacy.Payload) (Prompt, error) {
	if len(p.Tests) == 0 {
		return Prompt{}, errors.NoValidTestData()
	}
	return Prompt{System: system, User: UserPrompt(p.Tests)}, nil
}

// UserPrompt renders one bullet line per test, in input order.
func UserPrompt(tests []privacy.TestEntry) string {
	var b strings.Builder
	b.WriteString(userPromptHeader)
	for _, t := range tests {
		b.WriteString("\n• ")
		b.WriteString(string(t.Name))
		b.WriteString(": ")
		b.WriteString(t.Value.String())
		if t.Unit != nil && *t.Unit != "" {
			b.WriteString(" ")
			b.WriteString(*t.Unit)
		}
		if t.Reference != nil && *t.Reference != "" {
			b.WriteString(" (Reference: ")
			b.WriteString(*t.Reference)
			b.WriteString(")")
		}
	}
	return b.String()
}
