package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

const sessionColumns = `id, activity_id, day, value, duration_seconds, completed, note, started_at, created_at, updated_at, dirty`

func scanSession(row interface{ Scan(...interface{}) error }) (models.Session, error) {
	var s models.Session
	var completed, dirty int
	var note *string
	var startedAt *int64
	var createdAt, updatedAt int64
	if err := row.Scan(
		&s.ID,
		&s.ActivityID,
		&s.Day,
		&s.Value,
		&s.DurationSec,
		&completed,
		&note,
		&startedAt,
		&createdAt,
		&updatedAt,
		&dirty,
	); err != nil {
		return models.Session{}, err
	}
	s.Completed = util.IntToBool(completed)
	s.Note = note
	s.StartedAt = timeFromNullableMillis(startedAt)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	s.Dirty = util.IntToBool(dirty)
	return s, nil
}

// SessionSeed carries the caller-supplied fields for a new session.
// Day defaults to the current local date when empty.
type SessionSeed struct {
	ActivityID  string
	Day         string
	Value       float64
	DurationSec int64
	Note        string
}

// today is the current local calendar day.
func (d *Database) today() string {
	return d.now().Local().Format(models.DayLayout)
}

func (d *Database) resolveDay(day string) (string, error) {
	if day == "" {
		return d.today(), nil
	}
	t, err := time.Parse(models.DayLayout, day)
	if err != nil {
		return "", invalidf("invalid day %q, want YYYY-MM-DD", day)
	}
	return t.Format(models.DayLayout), nil
}

func validateMeasure(kind models.ActivityKind, value float64, durationSec int64) error {
	switch kind {
	case models.KindCounter:
		if value == 0 {
			return invalidf("counter session needs a non-zero value")
		}
		if durationSec != 0 {
			return invalidf("counter session must not carry a duration")
		}
	case models.KindTimer:
		if durationSec <= 0 {
			return invalidf("timer session needs a positive duration")
		}
		if value != 0 {
			return invalidf("timer session must not carry a value")
		}
	default:
		return invalidf("unknown activity kind %q", kind)
	}
	return nil
}

// AddSession records progress against an activity. The completed flag is
// fixed at write time: it reports whether the day's total, including this
// session, meets the activity's goal. Streak caches are refreshed in the
// same transaction.
func (d *Database) AddSession(ctx context.Context, seed SessionSeed) (models.Session, error) {
	day, err := d.resolveDay(seed.Day)
	if err != nil {
		return models.Session{}, wrapSessionErr("add", seed.ActivityID, err)
	}
	note := strings.TrimSpace(seed.Note)
	if len(note) > config.MaxNoteLen {
		return models.Session{}, wrapSessionErr("add", seed.ActivityID, invalidf("note exceeds %d characters", config.MaxNoteLen))
	}

	a, err := d.GetActivity(ctx, seed.ActivityID)
	if err != nil {
		return models.Session{}, err
	}
	if !a.Active {
		return models.Session{}, wrapSessionErr("add", a.Name, invalidf("activity is archived"))
	}
	if err := validateMeasure(a.Kind, seed.Value, seed.DurationSec); err != nil {
		return models.Session{}, wrapSessionErr("add", a.Name, err)
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	now := d.now()
	s := models.Session{
		ID:          uuid.NewString(),
		ActivityID:  a.ID,
		Day:         day,
		Value:       seed.Value,
		DurationSec: seed.DurationSec,
		CreatedAt:   now,
		UpdatedAt:   now,
		Dirty:       true,
	}
	if note != "" {
		s.Note = &note
	}
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		total, err := dayTotalTx(ctx, tx, a.ID, day)
		if err != nil {
			return err
		}
		s.Completed = a.TargetMet(total + s.Measure(a.Kind))
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, activity_id, day, value, duration_seconds, completed, note, created_at, updated_at, dirty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			s.ID, s.ActivityID, s.Day, s.Value, s.DurationSec, util.BoolToInt(s.Completed), toNullableArg(s.Note),
			toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
		); err != nil {
			return err
		}
		return d.recomputeStreaksTx(ctx, tx, a)
	})
	if err != nil {
		return models.Session{}, wrapSessionErr("add", a.Name, err)
	}
	return s, nil
}

// dayTotalTx sums the measure of all sessions an activity has on one day.
// Timer rows contribute duration, counter rows contribute value; summing
// both columns works because each kind keeps the other column at zero.
func dayTotalTx(ctx context.Context, tx *sql.Tx, activityID, day string) (float64, error) {
	var total float64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value + duration_seconds), 0) FROM sessions
		WHERE activity_id = ? AND day = ?`, activityID, day).Scan(&total)
	return total, err
}

// GetSession retrieves a session by ID.
func (d *Database) GetSession(ctx context.Context, id string) (models.Session, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	row := d.DB.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, wrapSessionErr("get", id, ErrNotFound)
	}
	if err != nil {
		return models.Session{}, wrapSessionErr("get", id, err)
	}
	return s, nil
}

// SessionFilter narrows ListSessions. Zero values mean no constraint.
type SessionFilter struct {
	ActivityID string
	From       string // inclusive day bound, YYYY-MM-DD
	To         string // inclusive day bound, YYYY-MM-DD
	Limit      int
}

// ListSessions returns sessions newest first.
func (d *Database) ListSessions(ctx context.Context, f SessionFilter) ([]models.Session, error) {
	q := NewSessionQuery().OrderBy("day DESC, created_at DESC")
	if f.ActivityID != "" {
		q.WhereActivity(f.ActivityID)
	}
	switch {
	case f.From != "" && f.To != "":
		q.WhereDayRange(f.From, f.To)
	case f.From != "":
		q.Where("day >= ?", f.From)
	case f.To != "":
		q.Where("day <= ?", f.To)
	}
	if f.Limit > 0 {
		q.Limit(f.Limit)
	}
	query, args := q.Build()
	return d.querySessions(ctx, "list", query, args...)
}

func (d *Database) querySessions(ctx context.Context, op, query string, args ...interface{}) ([]models.Session, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSessionErr(op, "", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrapSessionErr(op, "", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSessionErr(op, "", err)
	}
	return out, nil
}

// DeleteSession removes a session and leaves a tombstone. Streak caches of
// the owning activity are refreshed.
func (d *Database) DeleteSession(ctx context.Context, id string) error {
	s, err := d.GetSession(ctx, id)
	if err != nil {
		return err
	}
	a, err := d.GetActivity(ctx, s.ActivityID)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if err := addTombstoneTx(ctx, tx, models.EntitySession, id, d.now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return err
		}
		return d.recomputeStreaksTx(ctx, tx, a)
	})
	return wrapSessionErr("delete", id, err)
}

// addTombstoneTx records a deletion. INSERT OR REPLACE keeps repeated
// deletes of the same ID idempotent.
func addTombstoneTx(ctx context.Context, tx *sql.Tx, entity, id string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tombstones (id, entity, deleted_at, dirty)
		VALUES (?, ?, ?, 1)`, id, entity, toMillis(at)); err != nil {
		return fmt.Errorf("tombstone %s %s: %w", entity, id, err)
	}
	return nil
}
