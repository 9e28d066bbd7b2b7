// Package widget publishes a daily progress snapshot to a shared
// directory. A home-screen widget (or anything else) renders the file
// without opening the database.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

// SchemaVersion bumps when the snapshot shape changes; widgets skip
// files they do not understand instead of rendering garbage.
const SchemaVersion = 1

// Row is one activity's standing for the day.
type Row struct {
	ActivityID    string     `json:"activity_id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Kind          string     `json:"kind"`
	Unit          string     `json:"unit,omitempty"`
	Goal          float64    `json:"goal,omitempty"`
	Today         float64    `json:"today"`
	Sessions      int        `json:"sessions"`
	Completed     bool       `json:"completed"`
	CurrentStreak int        `json:"current_streak"`
	RunningSince  *time.Time `json:"running_since,omitempty"`
}

// Snapshot is the widget file payload. Tier tells the widget whether it
// is looking at mirrored, local-only, or volatile data.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Day           string    `json:"day"`
	Tier          string    `json:"tier"`
	Rows          []Row     `json:"rows"`
}

// ProgressSource is the slice of the store the writer reads.
type ProgressSource interface {
	TodayProgress(ctx context.Context) ([]database.ActivityProgress, error)
	Tier() database.Tier
}

var _ ProgressSource = (*database.Database)(nil)

// Writer renders snapshots into the shared directory.
type Writer struct {
	path string
	log  *slog.Logger
	now  func() time.Time
}

// NewWriter targets the snapshot file path.
func NewWriter(path string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{path: path, log: log, now: time.Now}
}

// Path returns the snapshot file location.
func (w *Writer) Path() string {
	return w.path
}

// Refresh rebuilds the snapshot from the store and swaps it into place.
// The write is atomic so a widget never reads a half-written file.
func (w *Writer) Refresh(ctx context.Context, src ProgressSource) error {
	progress, err := src.TodayProgress(ctx)
	if err != nil {
		return fmt.Errorf("widget: %w", err)
	}

	now := w.now()
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   now.UTC(),
		Day:           now.Local().Format(models.DayLayout),
		Tier:          string(src.Tier()),
		Rows:          make([]Row, 0, len(progress)),
	}
	for _, p := range progress {
		row := Row{
			ActivityID:    p.Activity.ID,
			Name:          p.Activity.Name,
			Color:         p.Activity.Color,
			Kind:          string(p.Activity.Kind),
			Unit:          p.Activity.Unit,
			Goal:          p.Activity.Goal,
			Today:         p.Today,
			Sessions:      p.Sessions,
			Completed:     p.Completed,
			CurrentStreak: p.Activity.CurrentStreak,
		}
		if p.OpenRun != nil {
			row.RunningSince = p.OpenRun.StartedAt
		}
		snap.Rows = append(snap.Rows, row)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("widget: %w", err)
	}
	return w.write(data)
}

// RefreshQuiet is Refresh for callers that must not fail on widget
// trouble; mutating commands finish their real work either way.
func (w *Writer) RefreshQuiet(ctx context.Context, src ProgressSource) {
	if err := w.Refresh(ctx, src); err != nil {
		w.log.Warn("widget snapshot refresh failed", "error", err)
	}
}

func (w *Writer) write(data []byte) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("widget: %w", err)
	}

	// Same-directory temp file keeps the rename on one filesystem.
	tmp, err := os.CreateTemp(dir, ".today-*.json")
	if err != nil {
		return fmt.Errorf("widget: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("widget: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("widget: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("widget: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("widget: %w", err)
	}
	return nil
}
