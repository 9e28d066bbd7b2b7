package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/database"
)

// NewTimerCommand creates the timer command group.
func NewTimerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run a live timer against a timer activity",
		Long: `Start, stop, and inspect the live timer. At most one timer runs at a
time; starting a new one stops the old one first. The open run stays on
this device until stopped, then syncs like any other session.`,
	}

	cmd.AddCommand(newTimerStartCommand(rootOpts))
	cmd.AddCommand(newTimerStopCommand(rootOpts))
	cmd.AddCommand(newTimerStatusCommand(rootOpts))

	return cmd
}

func newTimerStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "start <activity>",
		Short:         "Start timing an activity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runTimerStart(cmd.Context(), app, rootOpts.formatter(cmd), args[0])
		},
	}
}

func runTimerStart(ctx context.Context, app *App, f *OutputFormatter, ref string) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}
	s, err := app.DB.StartTimer(ctx, a.ID)
	if err != nil {
		return storeExitErr("start timer", err)
	}
	app.afterMutation(ctx)
	return f.Emit(sessionToJSON(s, a.Name), fmt.Sprintf("Timer started for %s", a.Name))
}

func newTimerStopCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stop",
		Short:         "Stop the running timer and record the session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runTimerStop(cmd.Context(), app, rootOpts.formatter(cmd))
		},
	}
}

func runTimerStop(ctx context.Context, app *App, f *OutputFormatter) error {
	s, err := app.DB.StopTimer(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return NewExitError(ExitCommandError, "no timer is running")
	}
	if err != nil {
		return storeExitErr("stop timer", err)
	}
	app.afterMutation(ctx)

	a, err := app.DB.GetActivity(ctx, s.ActivityID)
	if err != nil {
		return storeExitErr("stop timer", err)
	}
	text := fmt.Sprintf("Stopped %s at %s", a.Name, FormatDuration(time.Duration(s.DurationSec)*time.Second))
	if s.Completed {
		text += "  " + styleDone.Render("✓ goal met")
	}
	return f.Emit(sessionToJSON(s, a.Name), text)
}

func newTimerStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the running timer, if any",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runTimerStatus(cmd.Context(), app, rootOpts.formatter(cmd))
		},
	}
}

// timerStatusJSON is the JSON shape for timer status.
type timerStatusJSON struct {
	Running    bool   `json:"running"`
	Activity   string `json:"activity,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	ElapsedSec int64  `json:"elapsed_seconds,omitempty"`
}

func runTimerStatus(ctx context.Context, app *App, f *OutputFormatter) error {
	open, err := app.DB.OpenRun(ctx)
	if err != nil {
		return storeExitErr("timer status", err)
	}
	if open == nil {
		return f.Emit(timerStatusJSON{Running: false}, styleDim.Render("No timer running."))
	}

	a, err := app.DB.GetActivity(ctx, open.ActivityID)
	if err != nil {
		return storeExitErr("timer status", err)
	}
	elapsed := open.DurationSec + int64(time.Since(*open.StartedAt)/time.Second)
	payload := timerStatusJSON{
		Running:    true,
		Activity:   a.Name,
		ActivityID: a.ID,
		StartedAt:  open.StartedAt.Format(time.RFC3339),
		ElapsedSec: elapsed,
	}
	text := fmt.Sprintf("%s running for %s", a.Name, FormatDuration(time.Duration(elapsed)*time.Second))
	return f.Emit(payload, text)
}
