package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/license"
)

// statusJSON is the JSON shape for the status command.
type statusJSON struct {
	Tier       string `json:"tier"` // remote, local, memory
	StorePath  string `json:"store_path"`
	DeviceID   string `json:"device_id"`
	License    string `json:"license"` // free or pro
	Activities int    `json:"activities"`
	Archived   int    `json:"archived"`
	Dirty      int    `json:"dirty"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
	WidgetPath string `json:"widget_path,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store tier, pending uploads, and sync state",
		Long: `Show which persistence tier the store landed on (cloud mirror, local
only, or in-memory), how many records wait for upload, and when the
last sync finished.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runStatus(cmd.Context(), app, rootOpts.formatter(cmd))
		},
	}
	return cmd
}

func runStatus(ctx context.Context, app *App, f *OutputFormatter) error {
	all, err := app.DB.ListActivities(ctx, true)
	if err != nil {
		return storeExitErr("status", err)
	}
	active, archived := 0, 0
	for _, a := range all {
		if a.Active {
			active++
		} else {
			archived++
		}
	}

	dirty, err := countDirty(ctx, app)
	if err != nil {
		return err
	}
	device, err := app.DB.DeviceID(ctx)
	if err != nil {
		return storeExitErr("status", err)
	}
	lastSync, err := app.DB.LastSyncAt(ctx)
	if err != nil {
		return storeExitErr("status", err)
	}

	tier := "free"
	if _, err := license.Load(app.Config.LicensePath, app.LicenseKey); err == nil {
		tier = "pro"
	}

	payload := statusJSON{
		Tier:       string(app.DB.Tier()),
		StorePath:  app.DB.Path(),
		DeviceID:   device,
		License:    tier,
		Activities: active,
		Archived:   archived,
		Dirty:      dirty,
	}
	if !lastSync.IsZero() {
		payload.LastSyncAt = lastSync.Format(time.RFC3339)
	}
	if app.Widget != nil {
		payload.WidgetPath = app.Widget.Path()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "store     %s (%s)\n", app.DB.Tier(), app.DB.Path())
	fmt.Fprintf(&b, "device    %s\n", device)
	fmt.Fprintf(&b, "license   %s\n", tier)
	fmt.Fprintf(&b, "tracking  %d active, %d archived\n", active, archived)
	if dirty == 0 {
		fmt.Fprintf(&b, "pending   nothing to upload\n")
	} else {
		fmt.Fprintf(&b, "pending   %d records to upload\n", dirty)
	}
	switch {
	case app.Sync != nil && !lastSync.IsZero():
		fmt.Fprintf(&b, "last sync %s", lastSync.Local().Format("2006-01-02 15:04:05"))
	case app.Sync != nil:
		fmt.Fprintf(&b, "last sync never")
	case app.Config.Sync.Enabled:
		fmt.Fprintf(&b, "sync      configured but unreachable")
	default:
		fmt.Fprintf(&b, "sync      disabled")
	}

	return f.Emit(payload, b.String())
}

// countDirty totals the records waiting for upload across all kinds.
func countDirty(ctx context.Context, app *App) (int, error) {
	acts, err := app.DB.DirtyActivityRecords(ctx)
	if err != nil {
		return 0, storeExitErr("status", err)
	}
	sess, err := app.DB.DirtySessionRecords(ctx)
	if err != nil {
		return 0, storeExitErr("status", err)
	}
	tombs, err := app.DB.DirtyTombstoneRecords(ctx)
	if err != nil {
		return 0, storeExitErr("status", err)
	}
	return len(acts) + len(sess) + len(tombs), nil
}
