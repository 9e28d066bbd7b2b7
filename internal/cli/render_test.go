package cli

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{59 * time.Second, "59s"},
		{time.Minute, "1m"},
		{90 * time.Second, "1m"},
		{45 * time.Minute, "45m"},
		{time.Hour, "1h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatMeasure(t *testing.T) {
	counter := models.Activity{Kind: models.KindCounter, Unit: "pages"}
	if got := formatMeasure(counter, 12.5); got != "12.5 pages" {
		t.Fatalf("unexpected counter measure %q", got)
	}

	bare := models.Activity{Kind: models.KindCounter}
	if got := formatMeasure(bare, 3); got != "3" {
		t.Fatalf("unexpected bare measure %q", got)
	}

	timer := models.Activity{Kind: models.KindTimer}
	if got := formatMeasure(timer, 1500); got != "25m" {
		t.Fatalf("unexpected timer measure %q", got)
	}
}

func TestFormatGoal(t *testing.T) {
	reading := models.Activity{Kind: models.KindCounter, Unit: "pages", Goal: 20}
	if got := formatGoal(reading, 5); got != "5 / 20 pages" {
		t.Fatalf("unexpected goal line %q", got)
	}

	meditate := models.Activity{Kind: models.KindTimer, Goal: 600}
	if got := formatGoal(meditate, 300); got != "5m / 10m" {
		t.Fatalf("unexpected goal line %q", got)
	}

	goalless := models.Activity{Kind: models.KindCounter}
	if got := formatGoal(goalless, 7); got != "7" {
		t.Fatalf("unexpected goal line %q", got)
	}
}

func TestRenderProgressListEmpty(t *testing.T) {
	out := renderProgressList(nil)
	if !strings.Contains(out, "No activities yet") {
		t.Fatalf("unexpected empty listing %q", out)
	}
}

func TestRenderProgressList(t *testing.T) {
	rows := []database.ActivityProgress{
		{
			Activity:  models.Activity{Name: "Reading", Kind: models.KindCounter, Unit: "pages", Goal: 20, CurrentStreak: 4},
			Today:     25,
			Sessions:  2,
			Completed: true,
		},
		{
			Activity: models.Activity{Name: "Meditate", Kind: models.KindTimer, Goal: 600},
		},
	}
	out := renderProgressList(rows)
	for _, want := range []string{"Reading", "Meditate", "25 / 20 pages", "2 sessions", "↑4d"} {
		if !strings.Contains(out, want) {
			t.Fatalf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestMonthGridMondayFirst(t *testing.T) {
	plain := func(day int) string { return fmt.Sprintf("%3d", day) }

	// June 2026 starts on a Monday: day 1 sits in the first column.
	june := monthGrid(2026, time.June, plain)
	lines := strings.Split(june, "\n")
	if len(lines) < 2 {
		t.Fatalf("unexpected grid:\n%s", june)
	}
	if !strings.HasPrefix(lines[1], "  1 ") {
		t.Fatalf("expected June 1st in the Monday column, got %q", lines[1])
	}

	// August 2026 starts on a Saturday: five leading blanks.
	august := monthGrid(2026, time.August, plain)
	lines = strings.Split(august, "\n")
	blanks := strings.Repeat("    ", 5)
	if !strings.HasPrefix(lines[1], blanks+"  1 ") {
		t.Fatalf("expected August 1st in the Saturday column, got %q", lines[1])
	}
}

func TestMonthGridCoversAllDays(t *testing.T) {
	seen := map[int]bool{}
	monthGrid(2026, time.February, func(day int) string {
		seen[day] = true
		return fmt.Sprintf("%3d", day)
	})
	if len(seen) != 28 {
		t.Fatalf("expected 28 cells for February 2026, got %d", len(seen))
	}

	seen = map[int]bool{}
	monthGrid(2024, time.February, func(day int) string {
		seen[day] = true
		return fmt.Sprintf("%3d", day)
	})
	if len(seen) != 29 {
		t.Fatalf("expected 29 cells for February 2024, got %d", len(seen))
	}
}

func TestRenderActivityCalendar(t *testing.T) {
	a := models.Activity{Name: "Reading", Color: "mint", Kind: models.KindCounter, Goal: 20}
	totals := []database.DayTotal{
		{Day: "2026-07-10", Total: 25, Sessions: 1, Completed: true},
		{Day: "2026-07-11", Total: 5, Sessions: 1},
	}
	out := renderActivityCalendar(a, 2026, time.July, totals)
	for _, want := range []string{"July 2026", "Reading", "10", "31"} {
		if !strings.Contains(out, want) {
			t.Fatalf("calendar missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRangeStats(t *testing.T) {
	a := models.Activity{Name: "Reading", Kind: models.KindCounter, Unit: "pages", Goal: 20, CurrentStreak: 3, BestStreak: 9}
	rs := database.RangeStats{
		From: "2026-08-01", To: "2026-08-31",
		Total: 40, Sessions: 3, ActiveDays: 2, CompletedDays: 1,
		BestDay: "2026-08-10", BestDayTotal: 25,
	}
	out := renderRangeStats(a, rs)
	for _, want := range []string{"Reading", "40 pages", "best day    2026-08-10", "3d", "9d"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestRenderProgressListMarksCompletion(t *testing.T) {
	out := renderProgressList([]database.ActivityProgress{{
		Activity: models.Activity{Name: "Reading", Kind: models.KindCounter},
		Today:    1, Sessions: 1, Completed: true,
	}})
	if !strings.Contains(out, "✓") {
		t.Fatalf("expected the completion marker, got %q", out)
	}
}
