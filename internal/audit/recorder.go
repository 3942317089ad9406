package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/metrics"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

const writeTimeout = 5 * time.Second

// RecordInput describes a successful generation.
type RecordInput struct {
	ResultID types.ID
	UserID   types.ID
	Variant  Variant
	Model    string
	Response string
}

// Recorder appends audit entries after generations. A failed write is
// logged and counted but never returned: the generated result has already
// been stored and is served regardless.
type Recorder struct {
	repo Repository
	log  zerolog.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo Repository, log zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, log: log.With().Str("component", "audit").Logger()}
}

// Record writes one entry. The write outlives a cancelled request.
func (r *Recorder) Record(ctx context.Context, in RecordInput) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	entry := NewAuditEntry(in.ResultID, in.UserID, in.Variant, in.Model, in.Response)
	if err := r.repo.Append(ctx, entry); err != nil {
		metrics.RecordAuditWriteFailure()
		r.log.Error().
			Err(errors.AuditWriteFailed(err)).
			Str("result_id", in.ResultID.String()).
			Str("variant", string(in.Variant)).
			Msg("audit write failed")
		return
	}

	metrics.RecordAuditEntry()
}
