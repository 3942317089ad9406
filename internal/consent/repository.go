package consent

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Repository reads profiles from PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new profile repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AIConsent returns the ai_consent flag. A NULL flag counts as not granted.
func (r *Repository) AIConsent(ctx context.Context, userID types.ID) (bool, error) {
	var consent *bool
	err := r.pool.QueryRow(ctx, `SELECT ai_consent FROM profiles WHERE id = $1`, userID).Scan(&consent)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return false, errors.NotFound("profile", userID.String())
		}
		return false, errors.Wrap(err, "failed to read profile")
	}
	return consent != nil && *consent, nil
}
