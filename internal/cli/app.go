package cli

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/license"
	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/sync"
	"github.com/akyairhashvil/tally/internal/util"
	"github.com/akyairhashvil/tally/internal/widget"
)

// App bundles the resources one command invocation operates on.
type App struct {
	Config     *config.Config
	DB         *database.Database
	Gate       *license.Gate
	LicenseKey ed25519.PublicKey
	Sync       *sync.Controller // nil when no mirror is configured or reachable
	Widget     *widget.Writer   // nil when the widget file is disabled
	Log        *slog.Logger
}

// openApp loads configuration and opens the store, degrading tier by tier:
// mirror-attached, then local-only, then in-memory. Commands always get a
// working App unless even the volatile store cannot start.
func openApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuration", err)
	}

	log := newLogger(cfg.Log, opts.Verbose)
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Warn("cannot create data dir", "path", cfg.DataDir, "error", err)
	}
	db, err := database.OpenFallback(ctx, cfg.DBPath())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open store", err)
	}

	app := &App{Config: cfg, DB: db, Log: log}
	app.LicenseKey = license.DefaultPublicKey()
	app.Gate = license.LoadGate(cfg.LicensePath, app.LicenseKey, log)
	if cfg.Widget.Enabled {
		app.Widget = widget.NewWriter(cfg.WidgetPath(), log)
	}

	if cfg.Sync.Enabled && db.Tier() != database.TierMemory {
		remote, err := sync.NewS3Remote(ctx, cfg.Sync)
		if err != nil {
			log.Warn("cloud mirror unavailable, running local-only", "error", err)
		} else {
			db.SetTier(database.TierRemote)
			engine := sync.NewEngine(db, remote, log)
			app.Sync = sync.NewController(engine, cfg.Sync.Interval, log)
			if app.Widget != nil {
				app.Sync.OnSynced = func(ctx context.Context) {
					app.Widget.RefreshQuiet(ctx, app.DB)
				}
			}
		}
	}

	log.Debug("store ready", "tier", db.Tier(), "path", db.Path())
	if db.Tier() == database.TierMemory {
		log.Warn("running on the in-memory store, changes will not persist")
	}
	return app, nil
}

// Close releases the store handle.
func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("closing store", "error", err)
	}
}

// afterMutation refreshes the widget snapshot and, when sync.auto is on,
// runs a bounded best-effort sync pass. Failures are logged, never fatal:
// the local write already succeeded.
func (a *App) afterMutation(ctx context.Context) {
	if a.Widget != nil {
		a.Widget.RefreshQuiet(ctx, a.DB)
	}
	if a.Sync != nil && a.Config.Sync.Auto {
		a.Sync.AutoSync(ctx)
	}
}

// resolveActivity finds an activity by name or ID.
func resolveActivity(ctx context.Context, app *App, ref string) (models.Activity, error) {
	a, err := app.DB.FindActivity(ctx, ref)
	if errors.Is(err, database.ErrNotFound) {
		return models.Activity{}, NewExitError(ExitCommandError, fmt.Sprintf("no activity named %q", ref))
	}
	if err != nil {
		return models.Activity{}, WrapExitError(ExitFailure, "look up activity", err)
	}
	return a, nil
}

// storeExitErr maps store errors onto exit codes: bad input and unknown
// references are command errors, anything else is a runtime failure.
func storeExitErr(msg string, err error) error {
	code := ExitFailure
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalid) {
		code = ExitCommandError
	}
	return WrapExitError(code, msg, err)
}

// newLogger builds the slog logger from config, with --verbose forcing
// debug level. Logs go to stderr so stdout stays parseable.
func newLogger(cfg config.LogConfig, verbose bool) *slog.Logger {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	return util.NewLogger(os.Stderr, level, cfg.Format)
}
