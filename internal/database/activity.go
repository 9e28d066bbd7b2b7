package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

const activityColumns = `id, name, color, kind, unit, goal, active, sort_order, current_streak, best_streak, created_at, updated_at, archived_at, dirty`

func scanActivity(row interface{ Scan(...interface{}) error }) (models.Activity, error) {
	var a models.Activity
	var kind string
	var unit *string
	var active, dirty int
	var createdAt, updatedAt int64
	var archivedAt *int64
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Color,
		&kind,
		&unit,
		&a.Goal,
		&active,
		&a.SortOrder,
		&a.CurrentStreak,
		&a.BestStreak,
		&createdAt,
		&updatedAt,
		&archivedAt,
		&dirty,
	); err != nil {
		return models.Activity{}, err
	}
	a.Kind = models.ActivityKind(kind)
	if unit != nil {
		a.Unit = *unit
	}
	a.Active = util.IntToBool(active)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.ArchivedAt = timeFromNullableMillis(archivedAt)
	a.Dirty = util.IntToBool(dirty)
	return a, nil
}

// ActivitySeed carries the caller-supplied fields for a new activity.
type ActivitySeed struct {
	Name  string
	Color string
	Kind  models.ActivityKind
	Unit  string
	Goal  float64
}

func (s *ActivitySeed) normalize() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return invalidf("activity name is required")
	}
	if len(s.Name) > config.MaxActivityNameLen {
		return invalidf("activity name exceeds %d characters", config.MaxActivityNameLen)
	}
	if !s.Kind.Valid() {
		return invalidf("unknown activity kind %q", s.Kind)
	}
	if s.Color == "" {
		s.Color = config.DefaultColor
	}
	if !config.ValidColor(s.Color) {
		return invalidf("unknown color %q", s.Color)
	}
	if s.Goal < 0 {
		return invalidf("goal must not be negative")
	}
	return nil
}

// AddActivity inserts a new activity and returns it. The record starts
// dirty so it reaches the mirror on the next sync.
func (d *Database) AddActivity(ctx context.Context, seed ActivitySeed) (models.Activity, error) {
	if err := seed.normalize(); err != nil {
		return models.Activity{}, wrapActivityErr("add", seed.Name, err)
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var maxSort int
	if err := d.DB.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), 0) FROM activities").Scan(&maxSort); err != nil {
		return models.Activity{}, wrapActivityErr("add", seed.Name, err)
	}

	now := d.now()
	a := models.Activity{
		ID:        uuid.NewString(),
		Name:      seed.Name,
		Color:     seed.Color,
		Kind:      seed.Kind,
		Unit:      seed.Unit,
		Goal:      seed.Goal,
		Active:    true,
		SortOrder: maxSort + 1,
		CreatedAt: now,
		UpdatedAt: now,
		Dirty:     true,
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO activities (id, name, color, kind, unit, goal, active, sort_order, created_at, updated_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, 1)`,
		a.ID, a.Name, a.Color, string(a.Kind), nullableString(a.Unit), a.Goal, a.SortOrder,
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		return models.Activity{}, wrapActivityErr("add", seed.Name, err)
	}
	return a, nil
}

// GetActivity retrieves an activity by ID.
func (d *Database) GetActivity(ctx context.Context, id string) (models.Activity, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	row := d.DB.QueryRowContext(ctx, "SELECT "+activityColumns+" FROM activities WHERE id = ?", id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Activity{}, wrapActivityErr("get", id, ErrNotFound)
	}
	if err != nil {
		return models.Activity{}, wrapActivityErr("get", id, err)
	}
	return a, nil
}

// GetActivityByName retrieves an activity by exact name, preferring active
// records when an archived one shares the name.
func (d *Database) GetActivityByName(ctx context.Context, name string) (models.Activity, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	row := d.DB.QueryRowContext(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE name = ?
		ORDER BY active DESC, sort_order ASC
		LIMIT 1`, name)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Activity{}, wrapActivityErr("get", name, ErrNotFound)
	}
	if err != nil {
		return models.Activity{}, wrapActivityErr("get", name, err)
	}
	return a, nil
}

// FindActivity resolves a user-supplied reference: an ID first, then a name.
func (d *Database) FindActivity(ctx context.Context, ref string) (models.Activity, error) {
	if _, err := uuid.Parse(ref); err == nil {
		if a, err := d.GetActivity(ctx, ref); err == nil {
			return a, nil
		}
	}
	return d.GetActivityByName(ctx, ref)
}

// ListActivities returns activities in manual sort order. Archived records
// are excluded unless includeArchived is set.
func (d *Database) ListActivities(ctx context.Context, includeArchived bool) ([]models.Activity, error) {
	q := NewActivityQuery().OrderBy("sort_order ASC, created_at ASC")
	if !includeArchived {
		q.WhereActive()
	}
	query, args := q.Build()
	return d.queryActivities(ctx, "list", query, args...)
}

func (d *Database) queryActivities(ctx context.Context, op, query string, args ...interface{}) ([]models.Activity, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapActivityErr(op, "", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, wrapActivityErr(op, "", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapActivityErr(op, "", err)
	}
	return out, nil
}

// ActivityUpdate lists the editable fields; nil means leave unchanged.
type ActivityUpdate struct {
	Name  *string
	Color *string
	Unit  *string
	Goal  *float64
}

// UpdateActivity applies the non-nil fields, bumps updated_at, and marks
// the record dirty. The kind is immutable.
func (d *Database) UpdateActivity(ctx context.Context, id string, upd ActivityUpdate) error {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return wrapActivityErr("update", id, invalidf("activity name is required"))
		}
		if len(name) > config.MaxActivityNameLen {
			return wrapActivityErr("update", id, invalidf("activity name exceeds %d characters", config.MaxActivityNameLen))
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if upd.Color != nil {
		if !config.ValidColor(*upd.Color) {
			return wrapActivityErr("update", id, invalidf("unknown color %q", *upd.Color))
		}
		sets = append(sets, "color = ?")
		args = append(args, *upd.Color)
	}
	if upd.Unit != nil {
		sets = append(sets, "unit = ?")
		args = append(args, nullableString(*upd.Unit))
	}
	if upd.Goal != nil {
		if *upd.Goal < 0 {
			return wrapActivityErr("update", id, invalidf("goal must not be negative"))
		}
		sets = append(sets, "goal = ?")
		args = append(args, *upd.Goal)
	}
	if len(sets) == 0 {
		return wrapActivityErr("update", id, invalidf("nothing to update"))
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	sets = append(sets, "updated_at = ?", "dirty = 1")
	args = append(args, toMillis(d.now()), id)
	res, err := d.DB.ExecContext(ctx, "UPDATE activities SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return wrapActivityErr("update", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapActivityErr("update", id, ErrNotFound)
	}
	return nil
}

// SwapActivityOrder exchanges the sort positions of two activities.
func (d *Database) SwapActivityOrder(ctx context.Context, id1, id2 string) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var order1, order2 int
		if err := tx.QueryRowContext(ctx, "SELECT sort_order FROM activities WHERE id = ?", id1).Scan(&order1); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.QueryRowContext(ctx, "SELECT sort_order FROM activities WHERE id = ?", id2).Scan(&order2); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		now := toMillis(d.now())
		if _, err := tx.ExecContext(ctx, "UPDATE activities SET sort_order = ?, updated_at = ?, dirty = 1 WHERE id = ?", order2, now, id1); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE activities SET sort_order = ?, updated_at = ?, dirty = 1 WHERE id = ?", order1, now, id2); err != nil {
			return err
		}
		return nil
	})
	return wrapActivityErr("swap order", id1, err)
}

// ArchiveActivity soft-deletes an activity. History is kept; the record
// drops out of default listings and the widget. An open timer run on the
// activity is stopped first.
func (d *Database) ArchiveActivity(ctx context.Context, id string) error {
	a, err := d.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if !a.Active {
		return nil
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		now := d.now()
		if _, err := d.stopOpenRunsTx(ctx, tx, id, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE activities SET active = 0, archived_at = ?, updated_at = ?, dirty = 1
			WHERE id = ?`, toMillis(now), toMillis(now), id)
		return err
	})
	return wrapActivityErr("archive", id, err)
}

// RestoreActivity brings an archived activity back.
func (d *Database) RestoreActivity(ctx context.Context, id string) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	res, err := d.DB.ExecContext(ctx, `
		UPDATE activities SET active = 1, archived_at = NULL, updated_at = ?, dirty = 1
		WHERE id = ?`, toMillis(d.now()), id)
	if err != nil {
		return wrapActivityErr("restore", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapActivityErr("restore", id, ErrNotFound)
	}
	return nil
}

// DeleteActivity permanently removes an activity and its sessions, leaving
// tombstones so the deletes propagate to the mirror.
func (d *Database) DeleteActivity(ctx context.Context, id string) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM activities WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		rows, err := tx.QueryContext(ctx, "SELECT id FROM sessions WHERE activity_id = ?", id)
		if err != nil {
			return err
		}
		var sessionIDs []string
		for rows.Next() {
			var sid string
			if err := rows.Scan(&sid); err != nil {
				rows.Close()
				return err
			}
			sessionIDs = append(sessionIDs, sid)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		now := d.now()
		for _, sid := range sessionIDs {
			if err := addTombstoneTx(ctx, tx, models.EntitySession, sid, now); err != nil {
				return err
			}
		}
		if err := addTombstoneTx(ctx, tx, models.EntityActivity, id, now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM activities WHERE id = ?", id)
		return err
	})
	return wrapActivityErr("delete", id, err)
}

// CountActiveActivities feeds the purchase gate.
func (d *Database) CountActiveActivities(ctx context.Context) (int, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var count int
	err := d.DB.QueryRowContext(ctx, "SELECT COUNT(1) FROM activities WHERE active = 1").Scan(&count)
	if err != nil {
		return 0, wrapActivityErr("count", "", err)
	}
	return count, nil
}
