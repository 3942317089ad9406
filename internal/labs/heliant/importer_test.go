package heliant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/privacy"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

type fakeFetcher struct {
	rows []LabRow
}

func (f *fakeFetcher) FetchLabResults(ctx context.Context, patientNumber string, from, to time.Time) ([]LabRow, error) {
	return f.rows, nil
}

type fakeStore struct {
	seen    map[string]bool
	created []*labs.BloodTestResult
}

func (s *fakeStore) Create(ctx context.Context, res *labs.BloodTestResult) (bool, error) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[*res.SourceRef] {
		return false, nil
	}
	s.seen[*res.SourceRef] = true
	s.created = append(s.created, res)
	return true, nil
}

var (
	morning = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	later   = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
)

func sampleRows() []LabRow {
	return []LabRow{
		{ID: "L-20", TestName: "Holesterol", LOINCCode: "2093-3", Value: "4.2", Unit: "mmol/L", ReferenceMax: "5.0", CollectedAt: later},
		{ID: "L-11", TestName: "Glukoza", LOINCCode: "2345-7", Value: "5.4", Unit: "mmol/L", ReferenceMin: "3.9", ReferenceMax: "6.1", CollectedAt: morning},
		{ID: "L-10", TestName: "Patient barcode", Value: "PX-99812", CollectedAt: morning, Laboratory: "Central Lab"},
	}
}

func TestGroupBySample(t *testing.T) {
	samples := GroupBySample(sampleRows(), "KC")

	require.Len(t, samples, 2)
	assert.Equal(t, morning, samples[0].CollectedAt)
	assert.Equal(t, "KC/L-10", samples[0].Ref)
	assert.Len(t, samples[0].Rows, 2)
	assert.Equal(t, "KC/L-20", samples[1].Ref)
}

func TestGroupBySampleOrdersNumericIDsByValue(t *testing.T) {
	rows := []LabRow{
		{ID: "10", LOINCCode: "2093-3", Value: "4.2", CollectedAt: morning},
		{ID: "9", LOINCCode: "2345-7", Value: "5.4", CollectedAt: morning},
		{ID: "100", LOINCCode: "2345-7", Value: "5.1", CollectedAt: later},
		{ID: "X-1", LOINCCode: "2093-3", Value: "4.0", CollectedAt: later},
	}

	samples := GroupBySample(rows, "KC")

	require.Len(t, samples, 2)
	assert.Equal(t, "KC/9", samples[0].Ref)
	assert.Equal(t, "KC/100", samples[1].Ref, "mixed ids fall back to string order")
}

func TestSampleRecordAnonymizes(t *testing.T) {
	samples := GroupBySample(sampleRows(), "KC")
	raw, err := samples[0].Record()
	require.NoError(t, err)

	payload := privacy.AnonymizeJSON(raw)
	require.Len(t, payload.Tests, 1)
	assert.Equal(t, privacy.TestGlucose, payload.Tests[0].Name)
	assert.Equal(t, privacy.Number(5.4), payload.Tests[0].Value)
	require.NotNil(t, payload.Tests[0].Reference)
	assert.Equal(t, "3.9 - 6.1", *payload.Tests[0].Reference)
	require.NotNil(t, payload.SampleDate)
	assert.Equal(t, "2024-03-01", *payload.SampleDate)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "PX-99812")
	assert.NotContains(t, string(data), "Central Lab")
}

func TestImportSkipsDuplicates(t *testing.T) {
	store := &fakeStore{}
	imp := NewImporter(&fakeFetcher{rows: sampleRows()}, store, "KC", zerolog.Nop())
	user := types.NewID()

	stats, err := imp.Import(context.Background(), user, "P-1", morning.AddDate(0, -1, 0), later)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Rows: 3, Samples: 2, Created: 2}, stats)

	stats, err = imp.Import(context.Background(), user, "P-1", morning.AddDate(0, -1, 0), later)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Created)

	require.Len(t, store.created, 2)
	assert.Equal(t, user, store.created[0].UserID)
	assert.Equal(t, labs.SourceHeliant, store.created[0].Source)
	assert.Equal(t, "2024-03-01", *store.created[0].SampleDate)
}

func TestReferenceRange(t *testing.T) {
	assert.Equal(t, "1 - 2", referenceRange("1", "2"))
	assert.Equal(t, "< 2", referenceRange("", "2"))
	assert.Equal(t, "> 1", referenceRange(" 1 ", ""))
	assert.Equal(t, "", referenceRange("", ""))
}
