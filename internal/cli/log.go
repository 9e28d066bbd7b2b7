package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

// sessionJSON is the CLI's JSON shape for one session.
type sessionJSON struct {
	ID          string  `json:"id"`
	ActivityID  string  `json:"activity_id"`
	Activity    string  `json:"activity,omitempty"`
	Day         string  `json:"day"`
	Value       float64 `json:"value,omitempty"`
	DurationSec int64   `json:"duration_seconds,omitempty"`
	Completed   bool    `json:"completed"`
	Note        string  `json:"note,omitempty"`
	Running     bool    `json:"running,omitempty"`
}

func sessionToJSON(s models.Session, activityName string) sessionJSON {
	out := sessionJSON{
		ID:          s.ID,
		ActivityID:  s.ActivityID,
		Activity:    activityName,
		Day:         s.Day,
		Value:       s.Value,
		DurationSec: s.DurationSec,
		Completed:   s.Completed,
		Running:     s.Running(),
	}
	if s.Note != nil {
		out.Note = *s.Note
	}
	return out
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Duration string
	Note     string
	Day      string
}

// NewLogCommand creates the log command and its list/delete subcommands.
// Bare arguments record progress; the subcommands inspect history.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <activity> [value]",
		Short: "Record progress against an activity",
		Long: `Record a session. Counters take a numeric value (default 1); timers
take --duration.

Example:
  tally log read 25
  tally log meditate --duration 10m --note "before work"
  tally log read 10 --day 2026-08-20`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			valueArg := ""
			if len(args) == 2 {
				valueArg = args[1]
			}
			return runLog(cmd.Context(), app, opts.formatter(cmd), opts, args[0], valueArg)
		},
	}

	cmd.Flags().StringVar(&opts.Duration, "duration", "", "time spent, for timer activities (25m, 1h30m)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note to attach to the session")
	cmd.Flags().StringVar(&opts.Day, "day", "", "day to credit (YYYY-MM-DD, default today)")

	cmd.AddCommand(newLogListCommand(rootOpts))
	cmd.AddCommand(newLogDeleteCommand(rootOpts))

	return cmd
}

func runLog(ctx context.Context, app *App, f *OutputFormatter, opts *LogOptions, ref, valueArg string) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}

	seed := database.SessionSeed{ActivityID: a.ID, Day: opts.Day, Note: opts.Note}
	switch a.Kind {
	case models.KindTimer:
		if valueArg != "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s is a timer: pass --duration instead of a value", a.Name))
		}
		if opts.Duration == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s is a timer: pass --duration 25m, or use tally timer start", a.Name))
		}
		d, err := time.ParseDuration(opts.Duration)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid duration", err)
		}
		if d <= 0 {
			return NewExitError(ExitCommandError, "duration must be positive")
		}
		seed.DurationSec = int64(d / time.Second)
	default:
		if opts.Duration != "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s is a counter: pass a value instead of --duration", a.Name))
		}
		value := 1.0
		if valueArg != "" {
			value, err = strconv.ParseFloat(valueArg, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("value must be a number, got %q", valueArg))
			}
		}
		seed.Value = value
	}

	s, err := app.DB.AddSession(ctx, seed)
	if err != nil {
		return storeExitErr("log session", err)
	}
	app.afterMutation(ctx)

	text := fmt.Sprintf("Logged %s for %s on %s", formatMeasure(a, s.Measure(a.Kind)), a.Name, s.Day)
	if s.Completed {
		text += "  " + styleDone.Render("✓ goal met")
	}
	return f.Emit(sessionToJSON(s, a.Name), text)
}

// --- log list ---

// LogListOptions holds flags for the log list subcommand.
type LogListOptions struct {
	*RootOptions
	From  string
	To    string
	Limit int
}

func newLogListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list [activity]",
		Short:         "Show recorded sessions, newest first",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runLogList(cmd.Context(), app, opts.formatter(cmd), opts, ref)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "earliest day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "latest day to include (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum sessions to show (0 = all)")

	return cmd
}

func runLogList(ctx context.Context, app *App, f *OutputFormatter, opts *LogListOptions, ref string) error {
	filter := database.SessionFilter{From: opts.From, To: opts.To, Limit: opts.Limit}
	if ref != "" {
		a, err := resolveActivity(ctx, app, ref)
		if err != nil {
			return err
		}
		filter.ActivityID = a.ID
	}

	sessions, err := app.DB.ListSessions(ctx, filter)
	if err != nil {
		return storeExitErr("list sessions", err)
	}
	names, kinds, err := activityIndex(ctx, app)
	if err != nil {
		return err
	}

	rows := make([]sessionJSON, 0, len(sessions))
	var lines []string
	for _, s := range sessions {
		rows = append(rows, sessionToJSON(s, names[s.ActivityID]))

		a := models.Activity{Kind: kinds[s.ActivityID], Unit: ""}
		measure := formatMeasure(a, s.Measure(a.Kind))
		line := fmt.Sprintf("%s  %-16s %-10s", s.Day, names[s.ActivityID], measure)
		if s.Running() {
			line += " (running)"
		}
		if s.Note != nil {
			line += "  " + styleDim.Render(*s.Note)
		}
		line += "  " + styleDim.Render(s.ID)
		lines = append(lines, line)
	}

	text := strings.Join(lines, "\n")
	if len(lines) == 0 {
		text = styleDim.Render("No sessions recorded.")
	}
	return f.Emit(rows, text)
}

// activityIndex maps activity IDs to names and kinds, archived included,
// so session listings can label rows without per-row lookups.
func activityIndex(ctx context.Context, app *App) (map[string]string, map[string]models.ActivityKind, error) {
	activities, err := app.DB.ListActivities(ctx, true)
	if err != nil {
		return nil, nil, storeExitErr("list activities", err)
	}
	names := make(map[string]string, len(activities))
	kinds := make(map[string]models.ActivityKind, len(activities))
	for _, a := range activities {
		names[a.ID] = a.Name
		kinds[a.ID] = a.Kind
	}
	return names, kinds, nil
}

// --- log delete ---

func newLogDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <session-id>",
		Short:         "Delete one recorded session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runLogDelete(cmd.Context(), app, rootOpts.formatter(cmd), args[0])
		},
	}
	return cmd
}

func runLogDelete(ctx context.Context, app *App, f *OutputFormatter, id string) error {
	s, err := app.DB.GetSession(ctx, id)
	if err != nil {
		return storeExitErr("delete session", err)
	}
	names, kinds, err := activityIndex(ctx, app)
	if err != nil {
		return err
	}
	if err := app.DB.DeleteSession(ctx, id); err != nil {
		return storeExitErr("delete session", err)
	}
	app.afterMutation(ctx)

	a := models.Activity{Kind: kinds[s.ActivityID]}
	text := fmt.Sprintf("Deleted %s session from %s (%s)", names[s.ActivityID], s.Day, formatMeasure(a, s.Measure(a.Kind)))
	return f.Emit(sessionToJSON(s, names[s.ActivityID]), text)
}
