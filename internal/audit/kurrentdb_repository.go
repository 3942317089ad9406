package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/kurrentdb"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

const (
	// AuditStreamName is the stream where all audit entries are stored
	AuditStreamName = "ai-audit"
	// AuditEventType is the event type for audit entries
	AuditEventType = "AIAuditEntry"

	maxScan = 10000
)

// KurrentDBRepository keeps the audit log in a single KurrentDB stream.
// Events in KurrentDB cannot be modified, only appended.
type KurrentDBRepository struct {
	client   *kurrentdb.Client
	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewKurrentDBRepository creates a new KurrentDB-based audit repository
func NewKurrentDBRepository(client *kurrentdb.Client) *KurrentDBRepository {
	return &KurrentDBRepository{client: client}
}

// Initialize loads the last hash and sequence from KurrentDB
func (r *KurrentDBRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastHash = ""
	r.sequence = 0

	stream, err := r.client.DB().ReadStream(ctx, AuditStreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, 1)
	if err != nil {
		if kurrentdb.IsStreamNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		if kurrentdb.IsStreamNotFound(err) || kurrentdb.IsEndOfStream(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read audit stream")
	}

	if entry, ok := decodeEntry(event); ok {
		r.lastHash = entry.Hash
		r.sequence = entry.Sequence
	}
	return nil
}

// Append appends a new audit entry (thread-safe)
func (r *KurrentDBRepository) Append(ctx context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Sequence = r.sequence + 1
	entry.PrevHash = r.lastHash
	entry.Hash = entry.calculateHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   AuditEventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    []byte(fmt.Sprintf(`{"sequence":%d,"hash":"%s"}`, entry.Sequence, entry.Hash)),
	}

	_, err = r.client.DB().AppendToStream(ctx, AuditStreamName, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.sequence = entry.Sequence
	r.lastHash = entry.Hash
	return nil
}

// ListByResult scans the stream backwards and keeps entries for resultID.
func (r *KurrentDBRepository) ListByResult(ctx context.Context, resultID types.ID, limit int) ([]AuditEntry, error) {
	limit = clampLimit(limit)
	entries := []AuditEntry{}

	err := r.scanBackwards(ctx, maxScan, func(e AuditEntry) bool {
		if e.ResultID == resultID {
			entries = append(entries, e)
		}
		return len(entries) < limit
	})
	return entries, err
}

// ListRecent returns the latest entries, oldest first.
func (r *KurrentDBRepository) ListRecent(ctx context.Context, limit int) ([]AuditEntry, error) {
	limit = clampLimit(limit)
	var newest []AuditEntry

	err := r.scanBackwards(ctx, uint64(limit), func(e AuditEntry) bool {
		newest = append(newest, e)
		return true
	})
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		entries = append(entries, newest[i])
	}
	return entries, nil
}

// scanBackwards calls fn for each entry, newest first, until fn returns false.
func (r *KurrentDBRepository) scanBackwards(ctx context.Context, count uint64, fn func(AuditEntry) bool) error {
	stream, err := r.client.DB().ReadStream(ctx, AuditStreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, count)
	if err != nil {
		if kurrentdb.IsStreamNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err != nil {
			if kurrentdb.IsEndOfStream(err) || kurrentdb.IsStreamNotFound(err) {
				return nil
			}
			return errors.Wrap(err, "failed to read audit stream")
		}

		entry, ok := decodeEntry(event)
		if !ok {
			continue
		}
		if !fn(entry) {
			return nil
		}
	}
}

func decodeEntry(event *esdb.ResolvedEvent) (AuditEntry, bool) {
	var entry AuditEntry
	if event == nil || event.Event == nil || event.Event.EventType != AuditEventType {
		return entry, false
	}
	if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
		return entry, false
	}
	return entry, true
}
