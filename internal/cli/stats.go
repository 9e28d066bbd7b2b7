package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	From string
	To   string
}

// rangeStatsJSON is the JSON shape for one activity's range summary.
type rangeStatsJSON struct {
	Activity      string  `json:"activity"`
	ActivityID    string  `json:"activity_id"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Total         float64 `json:"total"`
	Sessions      int     `json:"sessions"`
	ActiveDays    int     `json:"active_days"`
	CompletedDays int     `json:"completed_days"`
	BestDay       string  `json:"best_day,omitempty"`
	BestDayTotal  float64 `json:"best_day_total,omitempty"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

func rangeStatsToJSON(a models.Activity, rs database.RangeStats) rangeStatsJSON {
	return rangeStatsJSON{
		Activity:      a.Name,
		ActivityID:    a.ID,
		From:          rs.From,
		To:            rs.To,
		Total:         rs.Total,
		Sessions:      rs.Sessions,
		ActiveDays:    rs.ActiveDays,
		CompletedDays: rs.CompletedDays,
		BestDay:       rs.BestDay,
		BestDayTotal:  rs.BestDayTotal,
		CurrentStreak: a.CurrentStreak,
		BestStreak:    a.BestStreak,
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats [activity]",
		Short: "Summarize progress over a day range",
		Long: `Summarize sessions over a day range: totals, active and completed
days, best day, streaks. Without an activity, every active activity is
summarized. The default range is the last 30 days.`,
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
			return runStats(cmd.Context(), app, opts.formatter(cmd), opts, ref)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day of the range (YYYY-MM-DD)")

	return cmd
}

// statsRange fills and validates the day range, defaulting to the last 30
// days ending today.
func statsRange(opts *StatsOptions) (string, string, error) {
	now := time.Now().Local()
	from, to := opts.From, opts.To
	if to == "" {
		to = now.Format(models.DayLayout)
	}
	if from == "" {
		from = now.AddDate(0, 0, -29).Format(models.DayLayout)
	}
	for _, day := range []string{from, to} {
		if _, err := time.Parse(models.DayLayout, day); err != nil {
			return "", "", NewExitError(ExitCommandError, fmt.Sprintf("days look like 2026-08-25, got %q", day))
		}
	}
	if from > to {
		return "", "", NewExitError(ExitCommandError, fmt.Sprintf("range starts after it ends (%s > %s)", from, to))
	}
	return from, to, nil
}

func runStats(ctx context.Context, app *App, f *OutputFormatter, opts *StatsOptions, ref string) error {
	from, to, err := statsRange(opts)
	if err != nil {
		return err
	}

	if ref != "" {
		a, err := resolveActivity(ctx, app, ref)
		if err != nil {
			return err
		}
		rs, err := app.DB.RangeStatsFor(ctx, a.ID, from, to)
		if err != nil {
			return storeExitErr("stats", err)
		}
		return f.Emit(rangeStatsToJSON(a, rs), renderRangeStats(a, rs))
	}

	activities, err := app.DB.ListActivities(ctx, false)
	if err != nil {
		return storeExitErr("stats", err)
	}
	if len(activities) == 0 {
		return f.Emit([]rangeStatsJSON{}, styleDim.Render("No activities yet."))
	}

	rows := make([]rangeStatsJSON, 0, len(activities))
	var blocks []string
	for _, a := range activities {
		rs, err := app.DB.RangeStatsFor(ctx, a.ID, from, to)
		if err != nil {
			return storeExitErr("stats", err)
		}
		rows = append(rows, rangeStatsToJSON(a, rs))

		line := fmt.Sprintf("%s %-16s %-12s %2d days active", colorStyle(a.Color).Render("●"), a.Name, formatMeasure(a, rs.Total), rs.ActiveDays)
		if a.Goal > 0 {
			line += fmt.Sprintf(", %d completed", rs.CompletedDays)
		}
		if a.CurrentStreak > 0 {
			line += "  " + styleStreak.Render(fmt.Sprintf("↑%dd", a.CurrentStreak))
		}
		blocks = append(blocks, line)
	}

	header := styleHeader.Render(fmt.Sprintf("%s to %s", from, to))
	return f.Emit(rows, header+"\n"+strings.Join(blocks, "\n"))
}

// --- calendar ---

// CalendarOptions holds flags for the calendar command.
type CalendarOptions struct {
	*RootOptions
	Month string
}

// calendarDayJSON is the JSON shape for one calendar day.
type calendarDayJSON struct {
	Day       string  `json:"day"`
	Total     float64 `json:"total,omitempty"`
	Sessions  int     `json:"sessions,omitempty"`
	Completed int     `json:"completed"`
}

// NewCalendarCommand creates the calendar command.
func NewCalendarCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalendarOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calendar [activity]",
		Short: "Show a month of progress as a calendar grid",
		Long: `Render one month as a calendar. With an activity, completed days show
in its color; without one, days where any activity completed are
highlighted.`,
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
			return runCalendar(cmd.Context(), app, opts.formatter(cmd), opts, ref)
		},
	}

	cmd.Flags().StringVar(&opts.Month, "month", "", "month to render (YYYY-MM, default current)")

	return cmd
}

// parseMonth reads a YYYY-MM flag, defaulting to the current local month.
func parseMonth(s string) (int, time.Month, error) {
	if s == "" {
		now := time.Now().Local()
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("months look like 2026-08, got %q", s))
	}
	return t.Year(), t.Month(), nil
}

func runCalendar(ctx context.Context, app *App, f *OutputFormatter, opts *CalendarOptions, ref string) error {
	year, month, err := parseMonth(opts.Month)
	if err != nil {
		return err
	}

	if ref != "" {
		a, err := resolveActivity(ctx, app, ref)
		if err != nil {
			return err
		}
		totals, err := app.DB.MonthTotals(ctx, a.ID, year, month)
		if err != nil {
			return storeExitErr("calendar", err)
		}
		days := make([]calendarDayJSON, 0, len(totals))
		for _, dt := range totals {
			completed := 0
			if dt.Completed {
				completed = 1
			}
			days = append(days, calendarDayJSON{Day: dt.Day, Total: dt.Total, Sessions: dt.Sessions, Completed: completed})
		}
		return f.Emit(days, renderActivityCalendar(a, year, month, totals))
	}

	overview, err := app.DB.MonthOverview(ctx, year, month)
	if err != nil {
		return storeExitErr("calendar", err)
	}
	days := make([]calendarDayJSON, 0, len(overview))
	for _, ov := range overview {
		days = append(days, calendarDayJSON{Day: ov.Day, Sessions: ov.Sessions, Completed: ov.Completed})
	}
	return f.Emit(days, renderOverviewCalendar(year, month, overview))
}
