package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the partymerge database",
	Long: `Initialize creates the SQLite database and its parent directory and
applies every migration. Running it against an existing database only
applies pending migrations.`,
	RunE: appctx.WithApp(appctx.Options{}, runInit),
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(app *appctx.App, cmd *cobra.Command, args []string) error {
	dbPath := app.Config.DBPath
	out := cmd.OutOrStdout()

	dbExists := false
	if _, err := os.Stat(dbPath); err == nil {
		dbExists = true
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	app.Logger.Debug("initializing database")
	database, err := openForMigration(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !dbExists {
		fmt.Fprintf(out, "✓ Initialized new database at %s\n", dbPath)
	} else {
		fmt.Fprintf(out, "✓ Database already initialized at %s\n", dbPath)
	}
	fmt.Fprintf(out, "✓ %d migration(s) applied\n", len(applied))
	return nil
}
