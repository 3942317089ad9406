package labs

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Repository handles result persistence. Every read and write is scoped to
// the owning user.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new result repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindForUser returns the result if it exists and belongs to userID.
func (r *Repository) FindForUser(ctx context.Context, userID, id types.ID) (*BloodTestResult, error) {
	query := `
		SELECT id, user_id, results, sample_date, source, source_ref,
			ai_summary, ai_flags, ai_risk_score, ai_generated_at,
			created_at, updated_at
		FROM blood_test_results
		WHERE id = $1 AND user_id = $2`

	var res BloodTestResult
	var results, flags []byte
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&res.ID, &res.UserID, &results, &res.SampleDate, &res.Source, &res.SourceRef,
		&res.AISummary, &flags, &res.AIRiskScore, &res.AIGeneratedAt,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ResultNotFound(id.String())
		}
		return nil, errors.Wrap(err, "failed to find result")
	}
	res.Results = results
	if len(flags) > 0 {
		res.AIFlags = flags
	}

	return &res, nil
}

// SaveSummary stores a generated summary.
func (r *Repository) SaveSummary(ctx context.Context, userID, id types.ID, summary string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_test_results
		SET ai_summary = $3, ai_generated_at = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`,
		id, userID, summary, at,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save summary")
	}
	if tag.RowsAffected() == 0 {
		return errors.ResultNotFound(id.String())
	}
	return nil
}

// SaveFlagsIfAbsent stores a risk assessment unless one is already present.
// It returns false when another writer got there first.
func (r *Repository) SaveFlagsIfAbsent(ctx context.Context, userID, id types.ID, flags json.RawMessage, score int, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_test_results
		SET ai_flags = $3, ai_risk_score = $4, ai_generated_at = $5, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND ai_flags IS NULL`,
		id, userID, []byte(flags), score, at,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to save risk flags")
	}
	return tag.RowsAffected() == 1, nil
}

// Create inserts a result. Imported records are unique per source reference;
// a duplicate is skipped and reported as false.
func (r *Repository) Create(ctx context.Context, res *BloodTestResult) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO blood_test_results (
			id, user_id, results, sample_date, source, source_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, source_ref) WHERE source_ref IS NOT NULL DO NOTHING`,
		res.ID, res.UserID, []byte(res.Results), res.SampleDate, res.Source, res.SourceRef,
		res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to create result")
	}
	return tag.RowsAffected() == 1, nil
}
