package interpretation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/ai"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/audit"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/events"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

const sampleResults = `{
	"patient_name": "John Doe",
	"tests": [
		{"name": "LDL", "value": 4.9, "unit": "mmol/L", "reference": "<3.0"},
		{"name": "Glucose", "value": "5.4", "unit": "mmol/L"}
	]
}`

type fakeConsent struct {
	err   error
	calls int
}

func (f *fakeConsent) Check(ctx context.Context, userID types.ID) error {
	f.calls++
	return f.err
}

type fakeStore struct {
	records    map[types.ID]*labs.BloodTestResult
	summaries  int
	flagWrites int
	// beforeFlagSave runs inside SaveFlagsIfAbsent to simulate a concurrent writer.
	beforeFlagSave func(rec *labs.BloodTestResult)
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[types.ID]*labs.BloodTestResult{}}
}

func (s *fakeStore) add(userID types.ID, results string) *labs.BloodTestResult {
	rec := labs.NewBloodTestResult(userID, labs.SourceUpload, json.RawMessage(results))
	s.records[rec.ID] = rec
	return rec
}

func (s *fakeStore) FindForUser(ctx context.Context, userID, id types.ID) (*labs.BloodTestResult, error) {
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return nil, errors.ResultNotFound(id.String())
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) SaveSummary(ctx context.Context, userID, id types.ID, summary string, at time.Time) error {
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return errors.ResultNotFound(id.String())
	}
	s.summaries++
	rec.AISummary = &summary
	rec.AIGeneratedAt = &at
	return nil
}

func (s *fakeStore) SaveFlagsIfAbsent(ctx context.Context, userID, id types.ID, flags json.RawMessage, score int, at time.Time) (bool, error) {
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return false, errors.ResultNotFound(id.String())
	}
	if s.beforeFlagSave != nil {
		s.beforeFlagSave(rec)
	}
	if rec.HasFlags() {
		return false, nil
	}
	s.flagWrites++
	rec.AIFlags = flags
	rec.AIRiskScore = &score
	rec.AIGeneratedAt = &at
	return true, nil
}

type fakeAI struct {
	text  string
	err   error
	calls int
	last  ai.CompletionRequest
}

func (f *fakeAI) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	f.calls++
	f.last = req
	return f.text, f.err
}

func (f *fakeAI) Model() string { return "test-model" }

type fakeAudit struct {
	entries []audit.RecordInput
}

func (f *fakeAudit) Record(ctx context.Context, in audit.RecordInput) {
	f.entries = append(f.entries, in)
}

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.events = append(f.events, event)
	return f.err
}

type fixture struct {
	consent   *fakeConsent
	store     *fakeStore
	ai        *fakeAI
	audit     *fakeAudit
	publisher *fakePublisher
	service   *Service
	user      types.ID
}

func newFixture() *fixture {
	f := &fixture{
		consent:   &fakeConsent{},
		store:     newFakeStore(),
		ai:        &fakeAI{},
		audit:     &fakeAudit{},
		publisher: &fakePublisher{},
		user:      types.NewID(),
	}
	f.service = NewService(f.consent, f.store, f.ai, f.audit, f.publisher, Options{}, zerolog.Nop())
	return f
}

func TestSummarize(t *testing.T) {
	f := newFixture()
	rec := f.store.add(f.user, sampleResults)
	f.ai.text = "Your LDL cholesterol is above the reference range."

	res, err := f.service.Summarize(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Your LDL cholesterol is above the reference range.", res.Summary)

	assert.Equal(t, 1, f.ai.calls)
	assert.Equal(t, SummarySystemPrompt, f.ai.last.System)
	assert.Equal(t, "Blood test results:\n• LDL: 4.9 mmol/L (Reference: <3.0)\n• Glucose: 5.4 mmol/L", f.ai.last.User)
	assert.Equal(t, 300, f.ai.last.MaxTokens)
	assert.NotContains(t, f.ai.last.User, "John Doe")

	require.NotNil(t, f.store.records[rec.ID].AISummary)
	assert.Equal(t, res.Summary, *f.store.records[rec.ID].AISummary)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, audit.VariantSummary, f.audit.entries[0].Variant)
	assert.Equal(t, "test-model", f.audit.entries[0].Model)
	assert.Equal(t, rec.ID, f.audit.entries[0].ResultID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeSummaryGenerated, f.publisher.events[0].Type)
}

func TestFlagRisk(t *testing.T) {
	f := newFixture()
	rec := f.store.add(f.user, sampleResults)
	f.ai.text = `{"riskLevel":"medium","flaggedTests":["LDL"],"reasoning":"LDL above range"}`

	res, err := f.service.FlagRisk(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, res.Assessment.RiskLevel)
	assert.Equal(t, []string{"LDL"}, res.Assessment.FlaggedTests)
	assert.Equal(t, 2, res.Score)
	assert.False(t, res.Existing)

	assert.Equal(t, RiskSystemPrompt, f.ai.last.System)
	assert.Equal(t, 200, f.ai.last.MaxTokens)

	stored := f.store.records[rec.ID]
	require.NotNil(t, stored.AIRiskScore)
	assert.Equal(t, 2, *stored.AIRiskScore)
	assert.JSONEq(t, `{"riskLevel":"medium","flaggedTests":["LDL"],"reasoning":"LDL above range"}`, string(stored.AIFlags))

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, audit.VariantRiskFlags, f.audit.entries[0].Variant)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeRiskFlagged, f.publisher.events[0].Type)
}

func TestFlagRiskReturnsExistingFlagsWithoutModelCall(t *testing.T) {
	f := newFixture()
	rec := f.store.add(f.user, sampleResults)
	score := 3
	rec.AIFlags = json.RawMessage(`{"riskLevel":"high","flaggedTests":["LDL"]}`)
	rec.AIRiskScore = &score

	res, err := f.service.FlagRisk(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Equal(t, RiskHigh, res.Assessment.RiskLevel)
	assert.Equal(t, 3, res.Score)

	assert.Zero(t, f.ai.calls)
	assert.Zero(t, f.store.flagWrites)
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.publisher.events)
}

func TestFlagRiskLosesRaceToConcurrentWriter(t *testing.T) {
	f := newFixture()
	rec := f.store.add(f.user, sampleResults)
	f.ai.text = `{"riskLevel":"low","flaggedTests":[]}`
	f.store.beforeFlagSave = func(r *labs.BloodTestResult) {
		score := 3
		r.AIFlags = json.RawMessage(`{"riskLevel":"high","flaggedTests":["LDL"]}`)
		r.AIRiskScore = &score
	}

	res, err := f.service.FlagRisk(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, res.Assessment.RiskLevel)
	assert.Equal(t, 3, res.Score)
	assert.True(t, res.Existing)

	assert.Zero(t, f.store.flagWrites)
	assert.Len(t, f.audit.entries, 1, "the generation still happened and is audited")
	assert.Empty(t, f.publisher.events)
}

func TestPipelineStopsBeforeModelCall(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture) types.ID
		wantCode string
	}{
		{
			name: "consent not granted",
			setup: func(f *fixture) types.ID {
				f.consent.err = errors.ConsentRequired()
				return f.store.add(f.user, sampleResults).ID
			},
			wantCode: errors.CodeConsentRequired,
		},
		{
			name: "profile lookup failure",
			setup: func(f *fixture) types.ID {
				f.consent.err = errors.ProfileLookup(assert.AnError)
				return f.store.add(f.user, sampleResults).ID
			},
			wantCode: errors.CodeProfileLookupFailed,
		},
		{
			name: "unknown result",
			setup: func(f *fixture) types.ID {
				return types.NewID()
			},
			wantCode: errors.CodeResultNotFound,
		},
		{
			name: "result owned by another user",
			setup: func(f *fixture) types.ID {
				return f.store.add(types.NewID(), sampleResults).ID
			},
			wantCode: errors.CodeResultNotFound,
		},
		{
			name: "no allow-listed tests",
			setup: func(f *fixture) types.ID {
				return f.store.add(f.user, `{"patient_name":"John Doe","tests":[{"name":"Genome","value":"ACGT"}]}`).ID
			},
			wantCode: errors.CodeNoValidTestData,
		},
		{
			name: "empty tests",
			setup: func(f *fixture) types.ID {
				return f.store.add(f.user, `{"tests":[]}`).ID
			},
			wantCode: errors.CodeNoValidTestData,
		},
		{
			name: "malformed record",
			setup: func(f *fixture) types.ID {
				return f.store.add(f.user, `"not an object"`).ID
			},
			wantCode: errors.CodeNoValidTestData,
		},
	}

	for _, tt := range tests {
		for _, variant := range []string{"summary", "risk"} {
			t.Run(tt.name+"/"+variant, func(t *testing.T) {
				f := newFixture()
				f.ai.text = `{"riskLevel":"low"}`
				id := tt.setup(f)

				var err error
				if variant == "summary" {
					_, err = f.service.Summarize(context.Background(), f.user, id)
				} else {
					_, err = f.service.FlagRisk(context.Background(), f.user, id)
				}

				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				assert.Zero(t, f.ai.calls)
				assert.Zero(t, f.store.summaries)
				assert.Zero(t, f.store.flagWrites)
				assert.Empty(t, f.audit.entries)
				assert.Empty(t, f.publisher.events)
			})
		}
	}
}

func TestPipelineFailsAfterModelCallWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name     string
		variant  string
		text     string
		err      error
		wantCode string
	}{
		{"gateway unavailable summary", "summary", "", errors.AIServiceUnavailable(503, nil), errors.CodeAIServiceUnavailable},
		{"gateway unavailable risk", "risk", "", errors.AIServiceUnavailable(503, nil), errors.CodeAIServiceUnavailable},
		{"empty summary", "summary", "   ", nil, errors.CodeEmptyAIResponse},
		{"risk prose", "risk", "Risk is low.", nil, errors.CodeMalformedAIResponse},
		{"risk unknown level", "risk", `{"riskLevel":"severe","flaggedTests":[]}`, nil, errors.CodeInvalidRiskAssessment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.store.add(f.user, sampleResults)
			f.ai.text = tt.text
			f.ai.err = tt.err

			var err error
			if tt.variant == "summary" {
				_, err = f.service.Summarize(context.Background(), f.user, rec.ID)
			} else {
				_, err = f.service.FlagRisk(context.Background(), f.user, rec.ID)
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.Equal(t, 1, f.ai.calls)

			stored := f.store.records[rec.ID]
			assert.Nil(t, stored.AISummary)
			assert.Nil(t, stored.AIFlags)
			assert.Nil(t, stored.AIRiskScore)
			assert.Empty(t, f.audit.entries)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture()
	rec := f.store.add(f.user, sampleResults)
	f.ai.text = "Normal results."
	f.publisher.err = assert.AnError

	_, err := f.service.Summarize(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Len(t, f.publisher.events, 1)
}

func TestNewServiceDefaultsPublisher(t *testing.T) {
	f := newFixture()
	svc := NewService(f.consent, f.store, f.ai, f.audit, nil, Options{SummaryMaxTokens: 50}, zerolog.Nop())
	rec := f.store.add(f.user, sampleResults)
	f.ai.text = "ok"

	_, err := svc.Summarize(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, f.ai.last.MaxTokens)
}
