package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/sync"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Daemon bool
}

// syncResultJSON is the JSON shape for one sync pass.
type syncResultJSON struct {
	Pushed   int       `json:"pushed"`
	Pulled   int       `json:"pulled"`
	Deleted  int       `json:"deleted"`
	Skipped  int       `json:"skipped"`
	Deferred int       `json:"deferred"`
	SyncedAt time.Time `json:"synced_at"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push and pull changes through the cloud mirror",
		Long: `Run one sync pass against the configured S3 bucket: pull remote
changes first, then push local dirty records. With --daemon, keep
syncing on the configured interval until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runSync(cmd.Context(), app, opts.formatter(cmd), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Daemon, "daemon", false, "keep syncing on the configured interval")

	return cmd
}

func runSync(ctx context.Context, app *App, f *OutputFormatter, opts *SyncOptions) error {
	if app.Sync == nil {
		if !app.Config.Sync.Enabled {
			return NewExitError(ExitCommandError, "sync is disabled: set sync.enabled and sync.bucket in the config file")
		}
		return NewExitError(ExitFailure, "the cloud mirror is unreachable; check the sync settings and credentials")
	}

	if opts.Daemon {
		return runSyncDaemon(ctx, app, f)
	}

	res, err := app.Sync.SyncNow(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync", err)
	}
	return f.Emit(resultToJSON(res), renderSyncResult(res))
}

// runSyncDaemon blocks on the periodic sync loop until the context is
// canceled (Ctrl-C), then drains the in-flight pass.
func runSyncDaemon(ctx context.Context, app *App, f *OutputFormatter) error {
	f.VerboseLog("syncing every %s, Ctrl-C to stop", app.Config.Sync.Interval)
	fmt.Fprintf(f.GetErrWriter(), "Syncing every %s. Press Ctrl-C to stop.\n", app.Config.Sync.Interval)

	go app.Sync.Start(ctx)
	<-ctx.Done()
	app.Sync.Wait()

	return f.Emit(map[string]string{"status": "stopped"}, "Sync daemon stopped.")
}

func resultToJSON(res *sync.Result) syncResultJSON {
	return syncResultJSON{
		Pushed:   res.Pushed,
		Pulled:   res.Pulled,
		Deleted:  res.Deleted,
		Skipped:  res.Skipped,
		Deferred: res.Deferred,
		SyncedAt: time.Now().UTC(),
	}
}

func renderSyncResult(res *sync.Result) string {
	if res.Empty() {
		return "Already in sync."
	}
	var parts []string
	if res.Pushed > 0 {
		parts = append(parts, fmt.Sprintf("pushed %d", res.Pushed))
	}
	if res.Pulled > 0 {
		parts = append(parts, fmt.Sprintf("pulled %d", res.Pulled))
	}
	if res.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d", res.Deleted))
	}
	if res.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("skipped %d", res.Skipped))
	}
	if res.Deferred > 0 {
		parts = append(parts, fmt.Sprintf("deferred %d", res.Deferred))
	}
	return "Synced: " + strings.Join(parts, ", ")
}
