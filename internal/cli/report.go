package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/util"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Month  string
	Output string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a monthly PDF summary",
		Long: `Write a PDF report for one month: per-activity totals, completed
days, best day, and streaks. Archived activities appear when they have
sessions in the month.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runReport(cmd.Context(), app, opts.formatter(cmd), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Month, "month", "", "month to report (YYYY-MM, default current)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default tally-report-<month>.pdf in Documents/TALLY)")

	return cmd
}

func runReport(ctx context.Context, app *App, f *OutputFormatter, opts *ReportOptions) error {
	year, month, err := parseMonth(opts.Month)
	if err != nil {
		return err
	}

	activities, err := app.DB.ListActivities(ctx, true)
	if err != nil {
		return storeExitErr("report", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("tally - %s %d", month, year))
	pdf.Ln(12)

	totalSessions := 0
	totalCompleted := 0
	reported := 0

	for _, a := range activities {
		totals, err := app.DB.MonthTotals(ctx, a.ID, year, month)
		if err != nil {
			return storeExitErr("report", err)
		}
		if len(totals) == 0 && !a.Active {
			continue
		}
		reported++

		var sum, bestTotal float64
		var sessions, completed int
		bestDay := ""
		for _, dt := range totals {
			sum += dt.Total
			sessions += dt.Sessions
			if dt.Completed {
				completed++
			}
			if dt.Total > bestTotal {
				bestTotal = dt.Total
				bestDay = dt.Day
			}
		}
		totalSessions += sessions
		totalCompleted += completed

		// Header
		pdf.SetFont("Arial", "B", 14)
		header := fmt.Sprintf("%s (%s)", a.Name, a.Kind)
		if !a.Active {
			header += " - archived"
		}
		pdf.Cell(0, 10, header)
		pdf.Ln(8)

		// Numbers
		pdf.SetFont("Arial", "", 12)
		if sessions == 0 {
			pdf.Cell(0, 8, "  No sessions this month.")
			pdf.Ln(8)
			continue
		}
		pdf.Cell(0, 8, fmt.Sprintf("  Total: %s over %d sessions on %d days", formatMeasure(a, sum), sessions, len(totals)))
		pdf.Ln(6)
		if a.Goal > 0 {
			pdf.Cell(0, 8, fmt.Sprintf("  Goal met on %d of %d days", completed, daysInMonth(year, month)))
			pdf.Ln(6)
		}
		if bestDay != "" {
			pdf.Cell(0, 8, fmt.Sprintf("  Best day: %s (%s)", bestDay, formatMeasure(a, bestTotal)))
			pdf.Ln(6)
		}
		pdf.Cell(0, 8, fmt.Sprintf("  Streak: %d days now, %d best", a.CurrentStreak, a.BestStreak))
		pdf.Ln(10)
	}

	if reported == 0 {
		pdf.SetFont("Arial", "", 12)
		pdf.Cell(0, 8, "Nothing tracked this month.")
		pdf.Ln(8)
	}

	// Summary
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Total: %d sessions, %d completed activity-days", totalSessions, totalCompleted))

	out := opts.Output
	if out == "" {
		dir := util.ReportsDir(config.AppName)
		if err := util.EnsureDir(dir); err != nil {
			return WrapExitError(ExitFailure, "create reports dir", err)
		}
		out = filepath.Join(dir, fmt.Sprintf("tally-report-%d-%02d.pdf", year, int(month)))
	}
	if err := pdf.OutputFileAndClose(out); err != nil {
		return WrapExitError(ExitFailure, "write report", err)
	}

	absPath, err := filepath.Abs(out)
	if err != nil {
		absPath = out
	}
	payload := map[string]interface{}{"path": absPath, "activities": reported, "month": fmt.Sprintf("%d-%02d", year, int(month))}
	return f.Emit(payload, fmt.Sprintf("PDF report generated: %s", absPath))
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}
