package db_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/db"
)

func TestRequiresMigrationError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_baseline.sql')`)
	require.NoError(t, err)

	migErr := database.RequiresMigrationError()
	require.Error(t, migErr)

	errStr := migErr.Error()
	assert.Contains(t, errStr, dbPath)
	assert.Contains(t, errStr, "000001_baseline.sql")
	assert.Contains(t, errStr, "pending migration")
	assert.Contains(t, errStr, "partymerge migrate")
}

func TestRequiresMigrationErrorFreshDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	require.NoError(t, err)
	defer database.Close()

	migErr := database.RequiresMigrationError()
	require.Error(t, migErr)
	assert.Contains(t, migErr.Error(), "version: none")
	assert.Contains(t, migErr.Error(), dbPath)
}

func TestRequiresMigrationErrorFullyMigrated(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.Migrate())
	assert.NoError(t, database.RequiresMigrationError())

	// Migrating again is a no-op.
	applied, err := database.MigrateWithInfo()
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestForeignKeysEnforced(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate())

	_, err = database.Exec(`INSERT INTO address (party_id, city) VALUES (999, 'Nowhere')`)
	assert.Error(t, err, "foreign keys must be enforced on every connection")
}
