package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// MaxSnippetLength caps the stored model output, in characters.
const MaxSnippetLength = 200

// Variant is the kind of generation that was audited.
type Variant string

const (
	VariantSummary   Variant = "summary"
	VariantRiskFlags Variant = "risk_flags"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// Hashes must not depend on map iteration order or JSONB key reordering.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// AuditEntry is an immutable record of one AI generation.
type AuditEntry struct {
	ID              types.ID  `json:"id"`
	Sequence        int64     `json:"sequence"`
	ResultID        types.ID  `json:"result_id"`
	UserID          types.ID  `json:"user_id,omitempty"`
	Variant         Variant   `json:"variant"`
	Model           string    `json:"model"`
	ResponseSnippet string    `json:"response_snippet"`
	Timestamp       time.Time `json:"timestamp"`
	Hash            string    `json:"hash"`
	PrevHash        string    `json:"prev_hash,omitempty"`
}

// NewAuditEntry creates an entry holding at most MaxSnippetLength
// characters of the model response.
func NewAuditEntry(resultID, userID types.ID, variant Variant, model, response string) *AuditEntry {
	entry := &AuditEntry{
		ID:              types.NewID(),
		ResultID:        resultID,
		UserID:          userID,
		Variant:         variant,
		Model:           model,
		ResponseSnippet: Snippet(response),
		Timestamp:       time.Now().UTC().Truncate(time.Microsecond), // PostgreSQL precision
	}
	entry.Hash = entry.calculateHash()
	return entry
}

// Snippet returns the first MaxSnippetLength characters of s.
func Snippet(s string) string {
	n := 0
	for i := range s {
		if n == MaxSnippetLength {
			return s[:i]
		}
		n++
	}
	return s
}

// calculateHash hashes the entry content and its link to the previous entry.
// Timestamps are always hashed in UTC.
func (e *AuditEntry) calculateHash() string {
	data := map[string]any{
		"id":               e.ID,
		"timestamp":        e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":        e.PrevHash,
		"result_id":        e.ResultID,
		"variant":          e.Variant,
		"model":            e.Model,
		"response_snippet": e.ResponseSnippet,
	}
	if !e.UserID.IsZero() {
		data["user_id"] = e.UserID
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *AuditEntry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// ComputeHash computes and returns the correct hash for this entry
func (e *AuditEntry) ComputeHash() string {
	return e.calculateHash()
}

// VerifyResult reports hash chain integrity over a run of entries.
type VerifyResult struct {
	Valid          bool     `json:"valid"`
	Checked        int      `json:"checked"`
	ContentInvalid int      `json:"content_invalid"`
	LinkageInvalid int      `json:"linkage_invalid"`
	Violations     []string `json:"violations,omitempty"`
}

// VerifyChain checks entries ordered by ascending sequence: every hash must
// match its content and every prev_hash the hash before it.
func VerifyChain(entries []AuditEntry) VerifyResult {
	result := VerifyResult{Valid: true}

	for i, e := range entries {
		result.Checked++

		if !e.VerifyHash() {
			result.Valid = false
			result.ContentInvalid++
			result.Violations = append(result.Violations, "content tampered: entry "+e.ID.String())
		}

		if i > 0 && e.PrevHash != entries[i-1].Hash {
			result.Valid = false
			result.LinkageInvalid++
			result.Violations = append(result.Violations, "chain broken: entry "+e.ID.String())
		}
	}

	return result
}
