package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"001_profiles.sql",
		"002_blood_test_results.sql",
		"003_ai_audit_log.sql",
	}, files)
}
