package cli

import (
	"context"
	"log/slog"

	"github.com/stagehand-bot/stagehand/internal/config"
	"github.com/stagehand-bot/stagehand/internal/conversation"
	"github.com/stagehand-bot/stagehand/internal/db"
	"github.com/stagehand-bot/stagehand/internal/engine"
)

// app bundles the wired process components. The entry point owns their
// lifecycle: openApp constructs and connects, close disposes.
type app struct {
	cfg      config.Config
	database db.Database
	store    *conversation.Store
	engine   *engine.Engine
}

// openApp loads configuration, opens the backend, connects it, and wires the
// store and engine. All selection logic (engine, mode) lives in the db
// factory; a bad config fails here, before any message is handled.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	database, err := db.Open(cfg.DB())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if err := database.Connect(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
	}

	store := conversation.NewStore(database)
	eng := engine.New(store,
		engine.WithTimeout(cfg.IdleTimeout()),
		engine.WithLogger(slog.Default()),
	)

	return &app{cfg: cfg, database: database, store: store, engine: eng}, nil
}

func (a *app) close() {
	if err := a.database.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
