// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, database opening and store
// construction to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/config"
	"github.com/lherron/partymerge/internal/db"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/logging"
	"github.com/lherron/partymerge/internal/render"
	"github.com/lherron/partymerge/internal/schema"
	"github.com/lherron/partymerge/internal/store"
	"github.com/lherron/partymerge/internal/webhooks"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	Logger *zap.Logger

	// DB is the opened database connection (nil if NeedsDB is false)
	DB *db.DB

	// Store wraps DB (nil if NeedsDB is false)
	Store *store.Store

	// Actor is recorded on events and merge audit rows
	Actor string

	Format render.Format

	// Notifier posts committed merges to the configured webhooks
	Notifier *webhooks.Dispatcher
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// Renderer returns a renderer writing to the command's output.
func (a *App) Renderer(cmd *cobra.Command) *render.Renderer {
	return render.NewRenderer(cmd.OutOrStdout(), a.Format)
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	NeedsDB bool

	// SkipMigrationCheck opens a database with pending migrations.
	SkipMigrationCheck bool
}

// DefaultOptions returns default options (DB required).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if dbPath := flagValue(cmd, "db"); dbPath != "" {
		app.Config.DBPath = dbPath
	}

	app.Actor = flagValue(cmd, "as")
	if app.Actor == "" {
		app.Actor = cfg.GetActor()
	}

	output := flagValue(cmd, "output")
	if output == "" {
		output = cfg.Output
	}
	if app.Format, err = render.ParseFormat(output); err != nil {
		return nil, err
	}

	if app.Logger, err = logging.New(cfg.LogLevel); err != nil {
		return nil, err
	}
	app.Notifier = webhooks.New(cfg.WebhookURLs, webhooks.WithLogger(app.Logger.Named("webhooks")))

	if !opts.NeedsDB {
		return app, nil
	}

	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.DB = database

	if !opts.SkipMigrationCheck {
		if err := database.RequiresMigrationError(); err != nil {
			app.Close()
			return nil, err
		}
	}

	overlay, err := schema.LoadOverlay(cfg.SchemaOverlay)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Store = store.New(database,
		store.WithLogger(app.Logger),
		store.WithOverlay(overlay),
		store.WithMergePolicy(cfg.Policy()),
	)

	return app, nil
}

// Policy returns the merge policy named by the command's --policy flag,
// falling back to the configured default.
func (a *App) Policy(cmd *cobra.Command) (domain.MergePolicy, error) {
	if p := flagValue(cmd, "policy"); p != "" {
		return domain.ParseMergePolicy(p)
	}
	return a.Config.Policy(), nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
