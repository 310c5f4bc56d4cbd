package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/config"
	"github.com/lherron/partymerge/internal/daemon"
	"github.com/lherron/partymerge/internal/db"
	"github.com/lherron/partymerge/internal/logging"
	"github.com/lherron/partymerge/internal/schema"
	"github.com/lherron/partymerge/internal/store"
	"github.com/lherron/partymerge/internal/webhooks"
)

// DaemonOptions configures the partymergd daemon. Empty fields fall back
// to the configuration.
type DaemonOptions struct {
	Addr   string
	Token  string
	DBPath string
}

// ServeDaemon starts the partymergd daemon and blocks until SIGINT or
// SIGTERM.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.Addr != "" {
		cfg.DaemonAddr = opts.Addr
	}
	if opts.Token != "" {
		cfg.DaemonToken = opts.Token
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RequiresMigrationError(); err != nil {
		return err
	}

	overlay, err := schema.LoadOverlay(cfg.SchemaOverlay)
	if err != nil {
		return err
	}

	s := store.New(database,
		store.WithLogger(logger),
		store.WithOverlay(overlay),
		store.WithMergePolicy(cfg.Policy()),
	)

	if cfg.DaemonToken == "" {
		logger.Warn("daemon running without a token", zap.String("addr", cfg.DaemonAddr))
	}

	srv := daemon.New(s, daemon.Options{
		Token:        cfg.DaemonToken,
		DefaultActor: cfg.GetActor(),
		Logger:       logger,
		Notifier:     webhooks.New(cfg.WebhookURLs, webhooks.WithLogger(logger.Named("webhooks"))),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx, cfg.DaemonAddr)
}
