package heliant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/privacy"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/metrics"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// loincNames maps LOINC codes to the names used in stored records.
var loincNames = map[string]privacy.TestName{
	"2093-3":  privacy.TestCholesterol,
	"2085-9":  privacy.TestHDL,
	"13457-7": privacy.TestLDL,
	"2089-1":  privacy.TestLDL,
	"2571-8":  privacy.TestTriglycerides,
	"3016-3":  privacy.TestTSH,
	"3024-7":  privacy.TestT4,
	"2345-7":  privacy.TestGlucose,
	"4548-4":  privacy.TestHbA1c,
	"6690-2":  privacy.TestWBC,
	"789-8":   privacy.TestRBC,
	"718-7":   privacy.TestHaemoglobin,
	"777-3":   privacy.TestPlatelets,
	"2276-4":  privacy.TestFerritin,
	"62292-8": privacy.TestVitaminD,
	"2132-9":  privacy.TestVitaminB12,
	"2160-0":  privacy.TestCreatinine,
	"33914-3": privacy.TestEGFR,
	"1742-6":  privacy.TestALT,
	"1988-5":  privacy.TestCRP,
}

// Fetcher reads lab rows for a patient.
type Fetcher interface {
	FetchLabResults(ctx context.Context, patientNumber string, from, to time.Time) ([]LabRow, error)
}

// ResultStore persists imported records.
type ResultStore interface {
	Create(ctx context.Context, res *labs.BloodTestResult) (bool, error)
}

// Sample is all rows collected at the same time.
type Sample struct {
	Ref         string
	CollectedAt time.Time
	Rows        []LabRow
}

// ImportStats summarises an import run.
type ImportStats struct {
	Rows    int `json:"rows"`
	Samples int `json:"samples"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Importer copies LIS results into blood_test_results.
type Importer struct {
	source      Fetcher
	store       ResultStore
	institution string
	log         zerolog.Logger
}

// NewImporter creates a new importer
func NewImporter(source Fetcher, store ResultStore, institution string, log zerolog.Logger) *Importer {
	return &Importer{
		source:      source,
		store:       store,
		institution: institution,
		log:         log.With().Str("component", "heliant_import").Logger(),
	}
}

// Import stores one result record per sample for userID. Samples that were
// imported before are skipped.
func (i *Importer) Import(ctx context.Context, userID types.ID, patientNumber string, from, to time.Time) (ImportStats, error) {
	var stats ImportStats

	rows, err := i.source.FetchLabResults(ctx, patientNumber, from, to)
	if err != nil {
		return stats, err
	}
	stats.Rows = len(rows)

	samples := GroupBySample(rows, i.institution)
	stats.Samples = len(samples)

	for _, s := range samples {
		raw, err := s.Record()
		if err != nil {
			return stats, fmt.Errorf("failed to encode sample %s: %w", s.Ref, err)
		}

		res := labs.NewBloodTestResult(userID, labs.SourceHeliant, raw)
		date := s.CollectedAt.UTC().Format("2006-01-02")
		ref := s.Ref
		res.SampleDate = &date
		res.SourceRef = &ref

		created, err := i.store.Create(ctx, res)
		if err != nil {
			return stats, err
		}
		if created {
			stats.Created++
		} else {
			stats.Skipped++
		}
	}

	metrics.RecordLabsImported(stats.Created)
	i.log.Info().
		Int("rows", stats.Rows).
		Int("samples", stats.Samples).
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Msg("lab import finished")

	return stats, nil
}

// GroupBySample groups rows by collection time, oldest first. A sample's
// reference is derived from its lowest row id so re-imports are stable.
func GroupBySample(rows []LabRow, institution string) []Sample {
	byTime := make(map[time.Time]*Sample)
	var order []time.Time

	for _, r := range rows {
		key := r.CollectedAt.UTC()
		s, ok := byTime[key]
		if !ok {
			s = &Sample{CollectedAt: key}
			byTime[key] = s
			order = append(order, key)
		}
		s.Rows = append(s.Rows, r)
	}

	sort.Slice(order, func(a, b int) bool { return order[a].Before(order[b]) })

	samples := make([]Sample, 0, len(order))
	for _, key := range order {
		s := byTime[key]
		minID := s.Rows[0].ID
		for _, r := range s.Rows[1:] {
			if rowIDLess(r.ID, minID) {
				minID = r.ID
			}
		}
		s.Ref = institution + "/" + minID
		samples = append(samples, *s)
	}
	return samples
}

// rowIDLess orders numeric ids by value and anything else lexicographically.
func rowIDLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// Record renders the sample in the stored record shape.
func (s Sample) Record() (json.RawMessage, error) {
	tests := make([]map[string]any, 0, len(s.Rows))
	for _, r := range s.Rows {
		entry := map[string]any{
			"name":  testName(r),
			"value": r.Value,
			"code":  r.TestCode,
		}
		if r.Unit != "" {
			entry["unit"] = r.Unit
		}
		if ref := referenceRange(r.ReferenceMin, r.ReferenceMax); ref != "" {
			entry["reference"] = ref
		}
		tests = append(tests, entry)
	}

	record := map[string]any{
		"tests":       tests,
		"sample_date": s.CollectedAt.UTC().Format("2006-01-02"),
		"source":      labs.SourceHeliant,
	}
	if len(s.Rows) > 0 && s.Rows[0].Laboratory != "" {
		record["laboratory"] = s.Rows[0].Laboratory
	}

	return json.Marshal(record)
}

func testName(r LabRow) string {
	if n, ok := loincNames[strings.TrimSpace(r.LOINCCode)]; ok {
		return string(n)
	}
	return strings.TrimSpace(r.TestName)
}

func referenceRange(lo, hi string) string {
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	switch {
	case lo != "" && hi != "":
		return lo + " - " + hi
	case hi != "":
		return "< " + hi
	case lo != "":
		return "> " + lo
	default:
		return ""
	}
}
