package audit

import (
	"context"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Repository is append-only audit storage. Implementations link each entry
// to the previous one before writing it.
type Repository interface {
	// Initialize loads the last hash and sequence
	Initialize(ctx context.Context) error

	// Append appends a new audit entry
	Append(ctx context.Context, entry *AuditEntry) error

	// ListByResult returns entries for a result, newest first
	ListByResult(ctx context.Context, resultID types.ID, limit int) ([]AuditEntry, error)

	// ListRecent returns the latest entries in ascending sequence order
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}

// Ensure implementations satisfy the interface
var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*KurrentDBRepository)(nil)
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
