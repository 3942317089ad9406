// Package heliant imports laboratory results from a Heliant hospital
// information system (SQL Server).
package heliant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
)

// LabRow is one analyte row from the LIS.
type LabRow struct {
	ID           string
	TestCode     string
	TestName     string
	LOINCCode    string
	Value        string
	Unit         string
	ReferenceMin string
	ReferenceMax string
	CollectedAt  time.Time
	Laboratory   string
}

// Source reads lab rows from the LIS database.
type Source struct {
	db  *sql.DB
	cfg config.LabImportConfig
}

// Open connects to the LIS and verifies the connection.
func Open(ctx context.Context, cfg config.LabImportConfig) (*Source, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.User,
		cfg.Password,
	)
	if cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Source{db: db, cfg: cfg}, nil
}

// Close closes the connection pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// FetchLabResults retrieves lab rows for a patient number collected in [from, to].
func (s *Source) FetchLabResults(ctx context.Context, patientNumber string, from, to time.Time) ([]LabRow, error) {
	query := fmt.Sprintf(`
		SELECT
			l.LabResultID,
			l.TestCode,
			l.TestName,
			l.LOINCCode,
			l.Value,
			l.Unit,
			l.ReferenceMin,
			l.ReferenceMax,
			l.CollectedAt,
			l.Laboratory
		FROM %s l
		INNER JOIN %s p ON l.PatientID = p.PatientID
		WHERE p.PatientNumber = @patient
		  AND l.CollectedAt >= @from
		  AND l.CollectedAt <= @to
		ORDER BY l.CollectedAt, l.LabResultID
	`, s.cfg.LabResultTable, s.cfg.PatientTable)

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("patient", patientNumber),
		sql.Named("from", from),
		sql.Named("to", to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lab results: %w", err)
	}
	defer rows.Close()

	var results []LabRow
	for rows.Next() {
		var r LabRow
		var loinc, unit, refMin, refMax, lab sql.NullString

		if err := rows.Scan(
			&r.ID,
			&r.TestCode,
			&r.TestName,
			&loinc,
			&r.Value,
			&unit,
			&refMin,
			&refMax,
			&r.CollectedAt,
			&lab,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lab result: %w", err)
		}

		r.LOINCCode = loinc.String
		r.Unit = unit.String
		r.ReferenceMin = refMin.String
		r.ReferenceMax = refMax.String
		r.Laboratory = lab.String

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lab results: %w", err)
	}

	return results, nil
}
