package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/license"
	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

// activityJSON is the CLI's JSON shape for one activity.
type activityJSON struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Color         string  `json:"color"`
	Kind          string  `json:"kind"`
	Unit          string  `json:"unit,omitempty"`
	Goal          float64 `json:"goal,omitempty"`
	Active        bool    `json:"active"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

func activityToJSON(a models.Activity) activityJSON {
	return activityJSON{
		ID:            a.ID,
		Name:          a.Name,
		Color:         a.Color,
		Kind:          string(a.Kind),
		Unit:          a.Unit,
		Goal:          a.Goal,
		Active:        a.Active,
		CurrentStreak: a.CurrentStreak,
		BestStreak:    a.BestStreak,
	}
}

// parseGoal reads a goal flag in the activity's terms: a duration string
// for timers ("25m", "1h30m"), a number for counters.
func parseGoal(kind models.ActivityKind, s string) (float64, error) {
	if kind == models.KindTimer {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("timer goals are durations like 25m or 1h30m, got %q", s)
		}
		if d < 0 {
			return 0, fmt.Errorf("goal cannot be negative")
		}
		return d.Seconds(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("counter goals are numbers, got %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("goal cannot be negative")
	}
	return v, nil
}

// --- add ---

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Kind  string
	Color string
	Unit  string
	Goal  string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a new activity",
		Long: `Create a new tracked activity.

Counters measure numeric progress (pages read, kilometers run); timers
measure time spent. The kind cannot change later.

Example:
  tally add read --unit pages --goal 20
  tally add meditate --kind timer --goal 10m --color violet`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runAdd(cmd.Context(), app, opts.formatter(cmd), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "counter", "activity kind (counter|timer)")
	cmd.Flags().StringVar(&opts.Color, "color", "", "palette color (sky, mint, amber, rose, violet, slate, coral, lime)")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "display unit for counters (pages, km, ...)")
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "daily target: a number, or a duration for timers")

	return cmd
}

func runAdd(ctx context.Context, app *App, f *OutputFormatter, opts *AddOptions, name string) error {
	count, err := app.DB.CountActiveActivities(ctx)
	if err != nil {
		return storeExitErr("count activities", err)
	}
	if err := app.Gate.CanAddActivity(count); err != nil {
		return WrapExitError(ExitCommandError, "cannot add activity", limitHint(err))
	}

	seed := database.ActivitySeed{
		Name:  name,
		Color: opts.Color,
		Kind:  models.ActivityKind(opts.Kind),
		Unit:  opts.Unit,
	}
	if opts.Goal != "" {
		goal, err := parseGoal(seed.Kind, opts.Goal)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid goal", err)
		}
		seed.Goal = goal
	}

	a, err := app.DB.AddActivity(ctx, seed)
	if err != nil {
		return storeExitErr("add activity", err)
	}
	app.afterMutation(ctx)

	text := fmt.Sprintf("Added %s %s (%s)", colorStyle(a.Color).Render("●"), a.Name, a.Kind)
	if a.Goal > 0 {
		text += ", goal " + formatMeasure(a, a.Goal) + " per day"
	}
	return f.Emit(activityToJSON(a), text)
}

// --- list ---

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	All    bool
	Filter string
}

// listRow is the JSON shape for one list line.
type listRow struct {
	activityJSON
	Today     float64 `json:"today"`
	Sessions  int     `json:"sessions"`
	Completed bool    `json:"completed"`
	Running   bool    `json:"running,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "Show activities and today's progress",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runList(cmd.Context(), app, opts.formatter(cmd), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "include archived activities")
	cmd.Flags().StringVarP(&opts.Filter, "filter", "f", "", "narrow by tag:, kind:, color: terms and name text")

	return cmd
}

func runList(ctx context.Context, app *App, f *OutputFormatter, opts *ListOptions) error {
	progress, err := app.DB.TodayProgress(ctx)
	if err != nil {
		return storeExitErr("list activities", err)
	}

	var matched map[string]bool
	if opts.Filter != "" {
		found, err := app.DB.SearchActivities(ctx, util.ParseSearchQuery(opts.Filter), opts.All)
		if err != nil {
			return storeExitErr("list activities", err)
		}
		matched = make(map[string]bool, len(found))
		for _, a := range found {
			matched[a.ID] = true
		}
		kept := make([]database.ActivityProgress, 0, len(progress))
		for _, p := range progress {
			if matched[p.Activity.ID] {
				kept = append(kept, p)
			}
		}
		progress = kept
	}

	rows := make([]listRow, 0, len(progress))
	for _, p := range progress {
		rows = append(rows, listRow{
			activityJSON: activityToJSON(p.Activity),
			Today:        p.Today,
			Sessions:     p.Sessions,
			Completed:    p.Completed,
			Running:      p.OpenRun != nil,
		})
	}
	text := renderProgressList(progress)
	if matched != nil && len(progress) == 0 {
		text = ""
	}

	if opts.All {
		all, err := app.DB.ListActivities(ctx, true)
		if err != nil {
			return storeExitErr("list activities", err)
		}
		var archived []string
		for _, a := range all {
			if a.Active {
				continue
			}
			if matched != nil && !matched[a.ID] {
				continue
			}
			rows = append(rows, listRow{activityJSON: activityToJSON(a)})
			archived = append(archived, styleDim.Render(fmt.Sprintf("● %s (archived)", a.Name)))
		}
		if len(archived) > 0 {
			if text == "" {
				text = strings.Join(archived, "\n")
			} else {
				text += "\n" + strings.Join(archived, "\n")
			}
		}
	}

	if matched != nil && len(rows) == 0 {
		text = styleDim.Render("No activities match.")
	}

	return f.Emit(rows, text)
}

// --- edit ---

// EditOptions holds flags for the edit command. Only flags the user set
// are applied; changed tracks which ones those were.
type EditOptions struct {
	*RootOptions
	Name    string
	Color   string
	Unit    string
	Goal    string
	changed map[string]bool
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "edit <activity>",
		Short:         "Change an activity's name, color, unit, or goal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.changed = map[string]bool{}
			cmd.Flags().Visit(func(fl *pflag.Flag) { opts.changed[fl.Name] = true })

			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runEdit(cmd.Context(), app, opts.formatter(cmd), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "new name")
	cmd.Flags().StringVar(&opts.Color, "color", "", "new palette color")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "new display unit (counters)")
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "new daily target (0 clears it)")

	return cmd
}

func runEdit(ctx context.Context, app *App, f *OutputFormatter, opts *EditOptions, ref string) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}

	var upd database.ActivityUpdate
	if opts.changed["name"] {
		upd.Name = &opts.Name
	}
	if opts.changed["color"] {
		upd.Color = &opts.Color
	}
	if opts.changed["unit"] {
		upd.Unit = &opts.Unit
	}
	if opts.changed["goal"] {
		goal, err := parseGoal(a.Kind, opts.Goal)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid goal", err)
		}
		upd.Goal = &goal
	}
	if upd.Name == nil && upd.Color == nil && upd.Unit == nil && upd.Goal == nil {
		return NewExitError(ExitCommandError, "nothing to change: pass --name, --color, --unit, or --goal")
	}

	if err := app.DB.UpdateActivity(ctx, a.ID, upd); err != nil {
		return storeExitErr("edit activity", err)
	}
	updated, err := app.DB.GetActivity(ctx, a.ID)
	if err != nil {
		return storeExitErr("edit activity", err)
	}
	app.afterMutation(ctx)

	return f.Emit(activityToJSON(updated), fmt.Sprintf("Updated %s", updated.Name))
}

// --- move ---

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <activity> <up|down>",
		Short: "Reorder an activity in the list",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return []string{"up", "down"}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveDefault
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runMove(cmd.Context(), app, rootOpts.formatter(cmd), args[0], args[1])
		},
	}
	return cmd
}

func runMove(ctx context.Context, app *App, f *OutputFormatter, ref, direction string) error {
	if direction != "up" && direction != "down" {
		return NewExitError(ExitCommandError, fmt.Sprintf("direction must be up or down, got %q", direction))
	}
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}

	activities, err := app.DB.ListActivities(ctx, false)
	if err != nil {
		return storeExitErr("move activity", err)
	}
	idx := -1
	for i, other := range activities {
		if other.ID == a.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is archived; restore it before reordering", a.Name))
	}

	swap := idx - 1
	if direction == "down" {
		swap = idx + 1
	}
	if swap < 0 || swap >= len(activities) {
		return f.Emit(activityToJSON(a), fmt.Sprintf("%s is already at the %s", a.Name, boundaryName(direction)))
	}

	if err := app.DB.SwapActivityOrder(ctx, a.ID, activities[swap].ID); err != nil {
		return storeExitErr("move activity", err)
	}
	app.afterMutation(ctx)

	return f.Emit(activityToJSON(a), fmt.Sprintf("Moved %s %s", a.Name, direction))
}

func boundaryName(direction string) string {
	if direction == "up" {
		return "top"
	}
	return "bottom"
}

// --- archive / restore ---

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <activity>",
		Short: "Archive an activity, keeping its history",
		Long: `Archive an activity. Archived activities disappear from listings and
the widget but keep their sessions, and can be restored later.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runArchive(cmd.Context(), app, rootOpts.formatter(cmd), args[0])
		},
	}
	return cmd
}

func runArchive(ctx context.Context, app *App, f *OutputFormatter, ref string) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}
	if err := app.DB.ArchiveActivity(ctx, a.ID); err != nil {
		return storeExitErr("archive activity", err)
	}
	app.afterMutation(ctx)
	return f.Emit(activityToJSON(a), fmt.Sprintf("Archived %s (restore with: tally restore %q)", a.Name, a.Name))
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "restore <activity>",
		Short:         "Bring an archived activity back",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runRestore(cmd.Context(), app, rootOpts.formatter(cmd), args[0])
		},
	}
	return cmd
}

func runRestore(ctx context.Context, app *App, f *OutputFormatter, ref string) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}
	if a.Active {
		return f.Emit(activityToJSON(a), fmt.Sprintf("%s is not archived", a.Name))
	}

	// Restoring counts against the free tier the same as adding.
	count, err := app.DB.CountActiveActivities(ctx)
	if err != nil {
		return storeExitErr("count activities", err)
	}
	if err := app.Gate.CanAddActivity(count); err != nil {
		return WrapExitError(ExitCommandError, "cannot restore activity", limitHint(err))
	}

	if err := app.DB.RestoreActivity(ctx, a.ID); err != nil {
		return storeExitErr("restore activity", err)
	}
	app.afterMutation(ctx)
	return f.Emit(activityToJSON(a), fmt.Sprintf("Restored %s", a.Name))
}

// --- delete ---

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Yes bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <activity>",
		Short: "Delete an activity and all its sessions",
		Long: `Delete an activity permanently, cascading its sessions. The deletion
propagates to other devices on the next sync. Prefer archive to keep
history.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runDelete(cmd.Context(), app, opts.formatter(cmd), opts, args[0], cmd.InOrStdin())
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runDelete(ctx context.Context, app *App, f *OutputFormatter, opts *DeleteOptions, ref string, in io.Reader) error {
	a, err := resolveActivity(ctx, app, ref)
	if err != nil {
		return err
	}

	sessions, err := app.DB.ListSessions(ctx, database.SessionFilter{ActivityID: a.ID})
	if err != nil {
		return storeExitErr("delete activity", err)
	}

	if !opts.Yes {
		fmt.Fprintf(f.GetErrWriter(), "Delete %s and its %d sessions? [y/N]: ", a.Name, len(sessions))
		answer, _ := bufio.NewReader(in).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return f.Emit(nil, "Aborted.")
		}
	}

	if err := app.DB.DeleteActivity(ctx, a.ID); err != nil {
		return storeExitErr("delete activity", err)
	}
	app.afterMutation(ctx)
	return f.Emit(activityToJSON(a), fmt.Sprintf("Deleted %s (%d sessions)", a.Name, len(sessions)))
}

// limitHint is appended to limit errors so the failure explains the fix.
func limitHint(err error) error {
	if errors.Is(err, license.ErrLimitReached) {
		return fmt.Errorf("%w; archive an activity or activate a Pro license", err)
	}
	return err
}
