package appctx

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/db"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/render"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "Database path")
	cmd.Flags().String("as", "", "Actor")
	cmd.Flags().String("output", "", "Output format")
	cmd.Flags().String("policy", "", "Merge policy")
	return cmd
}

func migratedDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	database.Close()
	return dbPath
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARTYMERGE_ACTOR", "")
	t.Setenv("PARTYMERGE_OUTPUT", "")
	t.Setenv("PARTYMERGE_MERGE_POLICY", "")
	t.Setenv("PARTYMERGE_SCHEMA_OVERLAY", "")
	t.Setenv("PARTYMERGE_LOG_LEVEL", "error")
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	isolate(t)
	t.Setenv("PARTYMERGE_DB_PATH", filepath.Join(t.TempDir(), "test.db"))

	app, err := Bootstrap(testCommand(), Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Config)
	assert.NotNil(t, app.Logger)
	assert.Nil(t, app.DB)
	assert.Nil(t, app.Store)
	assert.Equal(t, render.FormatTable, app.Format)
}

func TestBootstrap_WithDB(t *testing.T) {
	isolate(t)
	t.Setenv("PARTYMERGE_DB_PATH", migratedDB(t))

	app, err := Bootstrap(testCommand(), DefaultOptions())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.DB)
	assert.NotNil(t, app.Store)
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PARTYMERGE_DB_PATH", migratedDB(t))
	overridePath := migratedDB(t)

	cmd := testCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--db", overridePath, "--as", "alice", "--output", "json", "--policy", "hard"}))

	app, err := Bootstrap(cmd, DefaultOptions())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, overridePath, app.Config.DBPath)
	assert.Equal(t, "alice", app.Actor)
	assert.Equal(t, render.FormatJSON, app.Format)

	policy, err := app.Policy(cmd)
	require.NoError(t, err)
	assert.Equal(t, domain.MergePolicyHard, policy)
}

func TestBootstrap_PendingMigrations(t *testing.T) {
	isolate(t)
	t.Setenv("PARTYMERGE_DB_PATH", filepath.Join(t.TempDir(), "fresh.db"))

	_, err := Bootstrap(testCommand(), DefaultOptions())
	assert.ErrorContains(t, err, "requires migration")

	app, err := Bootstrap(testCommand(), Options{NeedsDB: true, SkipMigrationCheck: true})
	require.NoError(t, err)
	app.Close()
}
