package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

// --- Styles ---

var (
	styleHeader = lipgloss.NewStyle().Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleDone   = lipgloss.NewStyle().Foreground(lipgloss.Color("84")).Bold(true)
	styleStreak = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// paletteColors maps activity color names onto terminal colors.
var paletteColors = map[string]lipgloss.Color{
	"sky":    lipgloss.Color("39"),
	"mint":   lipgloss.Color("84"),
	"amber":  lipgloss.Color("214"),
	"rose":   lipgloss.Color("205"),
	"violet": lipgloss.Color("135"),
	"slate":  lipgloss.Color("245"),
	"coral":  lipgloss.Color("209"),
	"lime":   lipgloss.Color("154"),
}

func colorStyle(name string) lipgloss.Style {
	c, ok := paletteColors[name]
	if !ok {
		c = paletteColors[config.DefaultColor]
	}
	return lipgloss.NewStyle().Foreground(c)
}

// --- Value formatting ---

// FormatDuration formats a duration for display (e.g., "2h 15m", "45s").
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatCount renders a counter value without trailing zero noise.
func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatMeasure renders a raw measure in the activity's terms: durations
// for timers, counts (with the optional unit) for counters.
func formatMeasure(a models.Activity, v float64) string {
	if a.Kind == models.KindTimer {
		return FormatDuration(time.Duration(v) * time.Second)
	}
	if a.Unit != "" {
		return formatCount(v) + " " + a.Unit
	}
	return formatCount(v)
}

// formatGoal renders "<today> / <goal>" or just the total when no goal is set.
func formatGoal(a models.Activity, today float64) string {
	if a.Goal <= 0 {
		return formatMeasure(a, today)
	}
	if a.Kind == models.KindTimer {
		return FormatDuration(time.Duration(today)*time.Second) + " / " + FormatDuration(time.Duration(a.Goal)*time.Second)
	}
	s := formatCount(today) + " / " + formatCount(a.Goal)
	if a.Unit != "" {
		s += " " + a.Unit
	}
	return s
}

// --- Today listing ---

// renderProgressList lays out one line per activity: colored marker, name,
// progress against goal, session count, streak.
func renderProgressList(rows []database.ActivityProgress) string {
	if len(rows) == 0 {
		return styleDim.Render("No activities yet. Create one with: tally add <name>")
	}

	nameWidth := 0
	for _, r := range rows {
		if len(r.Activity.Name) > nameWidth {
			nameWidth = len(r.Activity.Name)
		}
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := colorStyle(r.Activity.Color).Render("●")
		name := fmt.Sprintf("%-*s", nameWidth, r.Activity.Name)
		check := " "
		if r.Completed {
			check = styleDone.Render("✓")
		}
		progress := formatGoal(r.Activity, r.Today)
		if r.OpenRun != nil {
			progress += styleDim.Render(" (running)")
		}
		line := fmt.Sprintf("%s %s %s  %-24s", marker, name, check, progress)
		if r.Sessions > 0 {
			line += styleDim.Render(fmt.Sprintf(" %d sessions", r.Sessions))
		}
		if r.Activity.CurrentStreak > 0 {
			line += "  " + styleStreak.Render(fmt.Sprintf("↑%dd", r.Activity.CurrentStreak))
		}
		b.WriteString(strings.TrimRight(line, " "))
	}
	return b.String()
}

// --- Calendar grid ---

// monthGrid lays out one calendar month, weeks starting Monday. The cell
// function styles each day number (three characters wide).
func monthGrid(year int, month time.Month, cell func(day int) string) string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	daysIn := first.AddDate(0, 1, -1).Day()
	offset := (int(first.Weekday()) + 6) % 7 // Monday-first column index

	var b strings.Builder
	b.WriteString(styleDim.Render(" Mo  Tu  We  Th  Fr  Sa  Su"))
	b.WriteByte('\n')

	col := 0
	for ; col < offset; col++ {
		b.WriteString("    ")
	}
	for day := 1; day <= daysIn; day++ {
		b.WriteString(cell(day))
		b.WriteByte(' ')
		col++
		if col == 7 && day < daysIn {
			b.WriteByte('\n')
			col = 0
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// renderActivityCalendar colors each day by its standing: activity color
// for completed days, plain for partial progress, dim for blanks.
func renderActivityCalendar(a models.Activity, year int, month time.Month, totals []database.DayTotal) string {
	byDay := make(map[int]database.DayTotal, len(totals))
	for _, dt := range totals {
		if t, err := time.Parse(models.DayLayout, dt.Day); err == nil {
			byDay[t.Day()] = dt
		}
	}

	title := fmt.Sprintf("%s %d · %s", month, year, a.Name)
	done := lipgloss.NewStyle().Foreground(paletteColor(a.Color)).Bold(true)
	grid := monthGrid(year, month, func(day int) string {
		label := fmt.Sprintf("%3d", day)
		dt, ok := byDay[day]
		switch {
		case ok && dt.Completed:
			return done.Render(label)
		case ok && dt.Total > 0:
			return label
		default:
			return styleDim.Render(label)
		}
	})
	return styleHeader.Render(title) + "\n" + grid
}

// renderOverviewCalendar colors each day by how many activities completed.
func renderOverviewCalendar(year int, month time.Month, overview []database.DayOverview) string {
	byDay := make(map[int]database.DayOverview, len(overview))
	for _, ov := range overview {
		if t, err := time.Parse(models.DayLayout, ov.Day); err == nil {
			byDay[t.Day()] = ov
		}
	}

	title := fmt.Sprintf("%s %d", month, year)
	grid := monthGrid(year, month, func(day int) string {
		label := fmt.Sprintf("%3d", day)
		ov, ok := byDay[day]
		switch {
		case ok && ov.Completed > 0:
			return styleDone.Render(label)
		case ok && ov.Sessions > 0:
			return label
		default:
			return styleDim.Render(label)
		}
	})
	return styleHeader.Render(title) + "\n" + grid
}

func paletteColor(name string) lipgloss.Color {
	if c, ok := paletteColors[name]; ok {
		return c
	}
	return paletteColors[config.DefaultColor]
}

// --- Range statistics ---

// renderRangeStats lays out the headline numbers for one activity's range.
func renderRangeStats(a models.Activity, rs database.RangeStats) string {
	var b strings.Builder
	b.WriteString(styleHeader.Render(fmt.Sprintf("%s · %s to %s", a.Name, rs.From, rs.To)))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  total       %s\n", formatMeasure(a, rs.Total))
	fmt.Fprintf(&b, "  sessions    %d\n", rs.Sessions)
	fmt.Fprintf(&b, "  active days %d\n", rs.ActiveDays)
	if a.Goal > 0 {
		fmt.Fprintf(&b, "  completed   %d\n", rs.CompletedDays)
	}
	if rs.BestDay != "" {
		fmt.Fprintf(&b, "  best day    %s (%s)\n", rs.BestDay, formatMeasure(a, rs.BestDayTotal))
	}
	fmt.Fprintf(&b, "  streak      %s now, %s best",
		styleStreak.Render(fmt.Sprintf("%dd", a.CurrentStreak)),
		styleStreak.Render(fmt.Sprintf("%dd", a.BestStreak)))
	return b.String()
}
