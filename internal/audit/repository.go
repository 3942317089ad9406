package audit

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// PostgresRepository stores the audit log in ai_audit_log. A trigger rejects
// updates and deletes.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastHash string
}

// NewPostgresRepository creates a new audit repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Initialize loads the last hash from the database
func (r *PostgresRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM ai_audit_log
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&hash)
	if err != nil && !stderrors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, "failed to get last audit hash")
	}

	r.lastHash = hash
	return nil
}

// Append appends a new audit entry (thread-safe)
func (r *PostgresRepository) Append(ctx context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.calculateHash()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO ai_audit_log (
			id, result_id, user_id, variant, model, response_snippet,
			hash, prev_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sequence`,
		entry.ID, entry.ResultID, entry.UserID, entry.Variant, entry.Model, entry.ResponseSnippet,
		entry.Hash, entry.PrevHash, entry.Timestamp,
	).Scan(&entry.Sequence)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	return nil
}

const selectEntries = `
	SELECT id, sequence, result_id, user_id, variant, model, response_snippet,
		hash, COALESCE(prev_hash, ''), created_at
	FROM ai_audit_log`

// ListByResult returns entries for a result, newest first (read-only)
func (r *PostgresRepository) ListByResult(ctx context.Context, resultID types.ID, limit int) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, selectEntries+`
		WHERE result_id = $1
		ORDER BY sequence DESC
		LIMIT $2`, resultID, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return scanEntries(rows)
}

// ListRecent returns the latest entries, oldest first (read-only)
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT * FROM (`+selectEntries+`
			ORDER BY sequence DESC
			LIMIT $1
		) recent ORDER BY sequence ASC`, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]AuditEntry, error) {
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(
			&e.ID, &e.Sequence, &e.ResultID, &e.UserID, &e.Variant, &e.Model, &e.ResponseSnippet,
			&e.Hash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read audit entries")
	}
	return entries, nil
}
