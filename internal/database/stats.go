package database

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/akyairhashvil/tally/internal/models"
)

// DayTotal is one calendar day's aggregate for an activity.
type DayTotal struct {
	Day       string
	Total     float64
	Sessions  int
	Completed bool
}

// RangeStats folds a span of days into headline numbers.
type RangeStats struct {
	From          string
	To            string
	Total         float64
	Sessions      int
	ActiveDays    int
	CompletedDays int
	BestDay       string
	BestDayTotal  float64
}

// ActivityProgress is one activity's standing for the current day.
type ActivityProgress struct {
	Activity  models.Activity
	Today     float64
	Sessions  int
	Completed bool
	OpenRun   *models.Session
}

// DayTotals aggregates an activity's sessions per day over an inclusive
// range. Day completion is derived from the day's total against the
// activity's goal, so retroactive edits are reflected.
func (d *Database) DayTotals(ctx context.Context, activityID, from, to string) ([]DayTotal, error) {
	a, err := d.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, `
		SELECT day, COALESCE(SUM(value + duration_seconds), 0), COUNT(1)
		FROM sessions
		WHERE activity_id = ? AND day >= ? AND day <= ?
		GROUP BY day
		ORDER BY day ASC`, activityID, from, to)
	if err != nil {
		return nil, wrapSessionErr("day totals", a.Name, err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var dt DayTotal
		if err := rows.Scan(&dt.Day, &dt.Total, &dt.Sessions); err != nil {
			return nil, wrapSessionErr("day totals", a.Name, err)
		}
		dt.Completed = a.TargetMet(dt.Total)
		out = append(out, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSessionErr("day totals", a.Name, err)
	}
	return out, nil
}

// MonthTotals is DayTotals over one calendar month.
func (d *Database) MonthTotals(ctx context.Context, activityID string, year int, month time.Month) ([]DayTotal, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return d.DayTotals(ctx, activityID, first.Format(models.DayLayout), last.Format(models.DayLayout))
}

// DayOverview is one calendar day's aggregate across all activities.
type DayOverview struct {
	Day       string
	Sessions  int
	Completed int // activities whose goal was met that day
}

// MonthOverview aggregates every activity's sessions per day over one
// calendar month. Archived activities still count on days they have
// history for.
func (d *Database) MonthOverview(ctx context.Context, year int, month time.Month) ([]DayOverview, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, `
		SELECT s.day, a.goal, COALESCE(SUM(s.value + s.duration_seconds), 0), COUNT(1)
		FROM sessions s
		JOIN activities a ON a.id = s.activity_id
		WHERE s.day >= ? AND s.day <= ?
		GROUP BY s.day, s.activity_id
		ORDER BY s.day ASC`,
		first.Format(models.DayLayout), last.Format(models.DayLayout))
	if err != nil {
		return nil, wrapSessionErr("month overview", "", err)
	}
	defer rows.Close()

	var out []DayOverview
	for rows.Next() {
		var day string
		var goal, total float64
		var sessions int
		if err := rows.Scan(&day, &goal, &total, &sessions); err != nil {
			return nil, wrapSessionErr("month overview", "", err)
		}
		if len(out) == 0 || out[len(out)-1].Day != day {
			out = append(out, DayOverview{Day: day})
		}
		ov := &out[len(out)-1]
		ov.Sessions += sessions
		if (models.Activity{Goal: goal}).TargetMet(total) {
			ov.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSessionErr("month overview", "", err)
	}
	return out, nil
}

// RangeStatsFor summarizes an activity over an inclusive day range.
func (d *Database) RangeStatsFor(ctx context.Context, activityID, from, to string) (RangeStats, error) {
	totals, err := d.DayTotals(ctx, activityID, from, to)
	if err != nil {
		return RangeStats{}, err
	}
	rs := RangeStats{From: from, To: to}
	for _, dt := range totals {
		rs.Total += dt.Total
		rs.Sessions += dt.Sessions
		rs.ActiveDays++
		if dt.Completed {
			rs.CompletedDays++
		}
		if dt.Total > rs.BestDayTotal {
			rs.BestDay = dt.Day
			rs.BestDayTotal = dt.Total
		}
	}
	return rs, nil
}

// TodayProgress returns every active activity's standing for the current
// local day, in manual sort order. Open runs report their accumulated
// duration only; live elapsed time is the caller's concern.
func (d *Database) TodayProgress(ctx context.Context) ([]ActivityProgress, error) {
	activities, err := d.ListActivities(ctx, false)
	if err != nil {
		return nil, err
	}
	open, err := d.OpenRun(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, `
		SELECT activity_id, COALESCE(SUM(value + duration_seconds), 0), COUNT(1)
		FROM sessions
		WHERE day = ?
		GROUP BY activity_id`, d.today())
	if err != nil {
		return nil, wrapSessionErr("today", "", err)
	}
	defer rows.Close()

	type agg struct {
		total    float64
		sessions int
	}
	totals := make(map[string]agg)
	for rows.Next() {
		var id string
		var a agg
		if err := rows.Scan(&id, &a.total, &a.sessions); err != nil {
			return nil, wrapSessionErr("today", "", err)
		}
		totals[id] = a
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSessionErr("today", "", err)
	}

	out := make([]ActivityProgress, 0, len(activities))
	for _, a := range activities {
		p := ActivityProgress{Activity: a}
		if agg, ok := totals[a.ID]; ok {
			p.Today = agg.total
			p.Sessions = agg.sessions
			p.Completed = a.TargetMet(agg.total)
		}
		if open != nil && open.ActivityID == a.ID {
			run := *open
			p.OpenRun = &run
		}
		out = append(out, p)
	}
	return out, nil
}

// --- Streak caches ---

// recomputeStreaksTx refreshes an activity's streak columns from its
// sessions. Streaks are pure derived state: the update does not bump
// updated_at or the dirty flag, so cache refreshes never cause sync
// traffic.
func (d *Database) recomputeStreaksTx(ctx context.Context, tx *sql.Tx, a models.Activity) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT day, COALESCE(SUM(value + duration_seconds), 0)
		FROM sessions
		WHERE activity_id = ?
		GROUP BY day`, a.ID)
	if err != nil {
		return err
	}
	completed := make(map[string]bool)
	var days []string
	for rows.Next() {
		var day string
		var total float64
		if err := rows.Scan(&day, &total); err != nil {
			rows.Close()
			return err
		}
		if a.TargetMet(total) {
			completed[day] = true
			days = append(days, day)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	current := currentStreak(completed, d.today())
	best := bestStreak(days)
	_, err = tx.ExecContext(ctx, "UPDATE activities SET current_streak = ?, best_streak = ? WHERE id = ?", current, best, a.ID)
	return err
}

func prevDay(day string) string {
	t, err := time.Parse(models.DayLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, -1).Format(models.DayLayout)
}

// currentStreak counts consecutive completed days ending today. A day in
// progress does not break the streak: when today is not yet completed the
// walk starts from yesterday.
func currentStreak(completed map[string]bool, today string) int {
	day := today
	if !completed[day] {
		day = prevDay(day)
	}
	n := 0
	for completed[day] {
		n++
		day = prevDay(day)
	}
	return n
}

// bestStreak finds the longest run of consecutive completed days.
func bestStreak(days []string) int {
	if len(days) == 0 {
		return 0
	}
	sort.Strings(days)
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if prevDay(days[i]) == days[i-1] {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
