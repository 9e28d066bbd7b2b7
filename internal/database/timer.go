package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

// StartTimer opens a timer run on the activity. Any run already open, on
// any activity, is stopped first so at most one run exists at a time. The
// new row stays clean until StopTimer folds time into it; an open run is
// device-local state and never reaches the mirror.
func (d *Database) StartTimer(ctx context.Context, activityID string) (models.Session, error) {
	a, err := d.GetActivity(ctx, activityID)
	if err != nil {
		return models.Session{}, err
	}
	if !a.Active {
		return models.Session{}, wrapSessionErr("start timer", a.Name, invalidf("activity is archived"))
	}
	if a.Kind != models.KindTimer {
		return models.Session{}, wrapSessionErr("start timer", a.Name, invalidf("activity %q does not use a timer", a.Name))
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	now := d.now()
	s := models.Session{
		ID:         uuid.NewString(),
		ActivityID: a.ID,
		Day:        d.today(),
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := d.stopOpenRunsTx(ctx, tx, "", now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, activity_id, day, value, duration_seconds, completed, started_at, created_at, updated_at, dirty)
			VALUES (?, ?, ?, 0, 0, 0, ?, ?, ?, 0)`,
			s.ID, s.ActivityID, s.Day, toMillis(now), toMillis(now), toMillis(now),
		)
		return err
	})
	if err != nil {
		return models.Session{}, wrapSessionErr("start timer", a.Name, err)
	}
	return s, nil
}

// StopTimer closes the open run, folds the elapsed time into the session's
// duration, and marks it dirty. Returns ErrNotFound when no run is open.
func (d *Database) StopTimer(ctx context.Context) (models.Session, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var stopped []models.Session
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		stopped, err = d.stopOpenRunsTx(ctx, tx, "", d.now())
		return err
	})
	if err != nil {
		return models.Session{}, wrapSessionErr("stop timer", "", err)
	}
	if len(stopped) == 0 {
		return models.Session{}, wrapSessionErr("stop timer", "", ErrNotFound)
	}
	return stopped[0], nil
}

// OpenRun returns the session with an open timer run, or nil when none.
func (d *Database) OpenRun(ctx context.Context) (*models.Session, error) {
	query, args := NewSessionQuery().WhereRunning().Limit(1).Build()
	sessions, err := d.querySessions(ctx, "open run", query, args...)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// stopOpenRunsTx closes open runs, all of them or just one activity's.
// Elapsed time is credited to the day the run started on, even across
// midnight. Runs shorter than a second leave no trace; their rows never
// synced, so no tombstone is needed.
func (d *Database) stopOpenRunsTx(ctx context.Context, tx *sql.Tx, activityID string, now time.Time) ([]models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE started_at IS NOT NULL"
	var args []interface{}
	if activityID != "" {
		query += " AND activity_id = ?"
		args = append(args, activityID)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var open []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		open = append(open, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var stopped []models.Session
	for _, s := range open {
		elapsed := int64(now.Sub(*s.StartedAt) / time.Second)
		if elapsed <= 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", s.ID); err != nil {
				return nil, err
			}
			continue
		}

		row := tx.QueryRowContext(ctx, "SELECT "+activityColumns+" FROM activities WHERE id = ?", s.ActivityID)
		a, err := scanActivity(row)
		if err != nil {
			return nil, err
		}
		total, err := dayTotalTx(ctx, tx, s.ActivityID, s.Day)
		if err != nil {
			return nil, err
		}

		s.DurationSec += elapsed
		s.Completed = a.TargetMet(total + float64(elapsed))
		s.StartedAt = nil
		s.UpdatedAt = now
		s.Dirty = true
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET duration_seconds = ?, completed = ?, started_at = NULL, updated_at = ?, dirty = 1
			WHERE id = ?`,
			s.DurationSec, util.BoolToInt(s.Completed), toMillis(now), s.ID,
		); err != nil {
			return nil, err
		}
		if err := d.recomputeStreaksTx(ctx, tx, a); err != nil {
			return nil, err
		}
		stopped = append(stopped, s)
	}
	return stopped, nil
}
