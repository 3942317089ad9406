package interpretation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/ai"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/audit"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/privacy"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/events"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/metrics"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

var tracer = otel.Tracer("healthflow/interpretation")

// ConsentChecker gates every request.
type ConsentChecker interface {
	Check(ctx context.Context, userID types.ID) error
}

// ResultStore reads and updates result records owned by a user.
type ResultStore interface {
	FindForUser(ctx context.Context, userID, id types.ID) (*labs.BloodTestResult, error)
	SaveSummary(ctx context.Context, userID, id types.ID, summary string, at time.Time) error
	SaveFlagsIfAbsent(ctx context.Context, userID, id types.ID, flags json.RawMessage, score int, at time.Time) (bool, error)
}

// Completer is the AI gateway.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
	Model() string
}

// AuditRecorder records generations. It never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, in audit.RecordInput)
}

// Options tunes the token budgets per variant.
type Options struct {
	SummaryMaxTokens int
	RiskMaxTokens    int
}

// Service runs the interpretation pipeline: consent, record lookup,
// anonymization, prompt, model call, parsing, persistence, audit and event.
// Every stage fails fast; only the audit write and event publish are
// allowed to fail silently.
type Service struct {
	consent ConsentChecker
	results ResultStore
	ai      Completer
	audit   AuditRecorder
	events  events.Publisher
	scanner *privacy.Scanner
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates a new interpretation service
func NewService(
	consent ConsentChecker,
	results ResultStore,
	completer Completer,
	recorder AuditRecorder,
	publisher events.Publisher,
	opts Options,
	log zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.SummaryMaxTokens <= 0 {
		opts.SummaryMaxTokens = 300
	}
	if opts.RiskMaxTokens <= 0 {
		opts.RiskMaxTokens = 200
	}
	return &Service{
		consent: consent,
		results: results,
		ai:      completer,
		audit:   recorder,
		events:  publisher,
		scanner: privacy.NewScanner(),
		opts:    opts,
		log:     log.With().Str("component", "interpretation").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Summarize generates and stores a plain-language summary.
func (s *Service) Summarize(ctx context.Context, userID, resultID types.ID) (res *SummaryResult, err error) {
	ctx, span := s.start(ctx, "interpretation.summarize", audit.VariantSummary, resultID)
	defer func() { s.finish(span, audit.VariantSummary, resultID, err) }()

	record, err := s.load(ctx, userID, resultID)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prepare(ctx, record, BuildSummaryPrompt)
	if err != nil {
		return nil, err
	}

	text, err := s.ai.Complete(ctx, ai.CompletionRequest{
		Variant:   string(audit.VariantSummary),
		System:    prompt.System,
		User:      prompt.User,
		MaxTokens: s.opts.SummaryMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	summary, err := ParseSummary(text)
	if err != nil {
		return nil, err
	}

	if err := s.results.SaveSummary(ctx, userID, resultID, summary, s.now()); err != nil {
		return nil, internal(err)
	}
	span.AddEvent("persisted")

	s.audit.Record(ctx, audit.RecordInput{
		ResultID: resultID,
		UserID:   userID,
		Variant:  audit.VariantSummary,
		Model:    s.ai.Model(),
		Response: text,
	})

	s.publish(ctx, events.NewEvent(events.TypeSummaryGenerated, "interpretation", events.SummaryGenerated{
		ResultID: resultID,
		Model:    s.ai.Model(),
	}).WithActor(userID))

	return &SummaryResult{ResultID: resultID, Summary: summary}, nil
}

// FlagRisk generates and stores a risk assessment. A record that already
// carries flags is answered from storage without calling the model.
func (s *Service) FlagRisk(ctx context.Context, userID, resultID types.ID) (res *RiskResult, err error) {
	ctx, span := s.start(ctx, "interpretation.flag_risk", audit.VariantRiskFlags, resultID)
	defer func() { s.finish(span, audit.VariantRiskFlags, resultID, err) }()

	record, err := s.load(ctx, userID, resultID)
	if err != nil {
		return nil, err
	}

	if record.HasFlags() {
		span.AddEvent("existing_flags")
		return existingFlags(record)
	}

	prompt, err := s.prepare(ctx, record, BuildRiskPrompt)
	if err != nil {
		return nil, err
	}

	text, err := s.ai.Complete(ctx, ai.CompletionRequest{
		Variant:   string(audit.VariantRiskFlags),
		System:    prompt.System,
		User:      prompt.User,
		MaxTokens: s.opts.RiskMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	assessment, err := ParseRiskAssessment(text)
	if err != nil {
		return nil, err
	}
	score, ok := RiskScore(assessment.RiskLevel)
	if !ok {
		return nil, errors.InvalidRiskAssessment(string(assessment.RiskLevel))
	}

	flags, err := json.Marshal(assessment)
	if err != nil {
		return nil, internal(err)
	}

	stored, err := s.results.SaveFlagsIfAbsent(ctx, userID, resultID, flags, score, s.now())
	if err != nil {
		return nil, internal(err)
	}

	s.audit.Record(ctx, audit.RecordInput{
		ResultID: resultID,
		UserID:   userID,
		Variant:  audit.VariantRiskFlags,
		Model:    s.ai.Model(),
		Response: text,
	})

	if !stored {
		// A concurrent request flagged the record first; its result wins.
		s.log.Info().Str("result_id", resultID.String()).Msg("risk flags already stored by concurrent request")
		record, err := s.results.FindForUser(ctx, userID, resultID)
		if err != nil {
			return nil, err
		}
		return existingFlags(record)
	}
	span.AddEvent("persisted")

	s.publish(ctx, events.NewEvent(events.TypeRiskFlagged, "interpretation", events.RiskFlagged{
		ResultID:     resultID,
		RiskLevel:    string(assessment.RiskLevel),
		RiskScore:    score,
		FlaggedCount: len(assessment.FlaggedTests),
		Model:        s.ai.Model(),
	}).WithActor(userID))

	return &RiskResult{ResultID: resultID, Assessment: *assessment, Score: score}, nil
}

// load checks consent, then fetches the record.
func (s *Service) load(ctx context.Context, userID, resultID types.ID) (*labs.BloodTestResult, error) {
	if err := s.consent.Check(ctx, userID); err != nil {
		return nil, err
	}

	record, err := s.results.FindForUser(ctx, userID, resultID)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, internal(err)
	}
	return record, nil
}

// prepare anonymizes the record and builds the prompt. The builder is never
// reached with an empty test list.
func (s *Service) prepare(ctx context.Context, record *labs.BloodTestResult, build func(privacy.Payload) (Prompt, error)) (Prompt, error) {
	_, span := tracer.Start(ctx, "interpretation.anonymize")
	defer span.End()

	payload := privacy.AnonymizeJSON(record.Results)
	span.SetAttributes(attribute.Int("tests.kept", len(payload.Tests)))

	var raw any
	if err := json.Unmarshal(record.Results, &raw); err == nil {
		metrics.RecordTestsDropped(privacy.Dropped(raw, payload))
	}

	if len(payload.Tests) == 0 {
		return Prompt{}, errors.NoValidTestData()
	}

	prompt, err := build(payload)
	if err != nil {
		return Prompt{}, err
	}

	for _, f := range s.scanner.Scan(prompt.User) {
		metrics.RecordPIIFinding(string(f.Field))
		s.log.Warn().
			Str("result_id", record.ID.String()).
			Str("field", string(f.Field)).
			Str("masked", f.MaskedValue).
			Msg("possible personal data in outbound prompt")
	}

	return prompt, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish event")
	}
}

func (s *Service) start(ctx context.Context, name string, variant audit.Variant, resultID types.ID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("interpretation.variant", string(variant)),
		attribute.String("result.id", resultID.String()),
	))
}

func (s *Service) finish(span trace.Span, variant audit.Variant, resultID types.ID, err error) {
	defer span.End()

	if err == nil {
		metrics.RecordInterpretation(string(variant), "ok")
		s.log.Info().Str("result_id", resultID.String()).Str("variant", string(variant)).Msg("interpretation completed")
		return
	}

	code := errors.CodeOf(err)
	metrics.RecordInterpretation(string(variant), code)
	span.SetStatus(codes.Error, code)

	evt := s.log.Warn()
	if appErr, ok := errors.As(err); !ok || appErr.HTTPStatus >= 500 {
		evt = s.log.Error().Err(err)
	}
	evt.Str("result_id", resultID.String()).Str("variant", string(variant)).Str("code", code).Msg("interpretation failed")
}

func existingFlags(record *labs.BloodTestResult) (*RiskResult, error) {
	var assessment RiskAssessment
	if err := json.Unmarshal(record.AIFlags, &assessment); err != nil {
		return nil, internal(err)
	}
	if assessment.FlaggedTests == nil {
		assessment.FlaggedTests = []string{}
	}

	score := 0
	if record.AIRiskScore != nil {
		score = *record.AIRiskScore
	} else if sc, ok := RiskScore(assessment.RiskLevel); ok {
		score = sc
	}

	return &RiskResult{ResultID: record.ID, Assessment: assessment, Score: score, Existing: true}, nil
}

func internal(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err)
}
