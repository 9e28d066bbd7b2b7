package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

// Wire records are the JSON shapes stored on the mirror and in vault
// exports. Timestamps serialize as RFC3339; comparisons happen on the
// parsed times, never on the strings. Streak caches and open timer runs
// are device-local and stay off the wire.

type ActivityRecord struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Color      string     `json:"color"`
	Kind       string     `json:"kind"`
	Unit       string     `json:"unit,omitempty"`
	Goal       float64    `json:"goal,omitempty"`
	Active     bool       `json:"active"`
	SortOrder  int        `json:"sort_order"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

type SessionRecord struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activity_id"`
	Day         string    `json:"day"`
	Value       float64   `json:"value,omitempty"`
	DurationSec int64     `json:"duration_seconds,omitempty"`
	Completed   bool      `json:"completed"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TombstoneRecord struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	DeletedAt time.Time `json:"deleted_at"`
}

func recordFromActivity(a models.Activity) ActivityRecord {
	return ActivityRecord{
		ID:         a.ID,
		Name:       a.Name,
		Color:      a.Color,
		Kind:       string(a.Kind),
		Unit:       a.Unit,
		Goal:       a.Goal,
		Active:     a.Active,
		SortOrder:  a.SortOrder,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		ArchivedAt: a.ArchivedAt,
	}
}

func recordFromSession(s models.Session) SessionRecord {
	return SessionRecord{
		ID:          s.ID,
		ActivityID:  s.ActivityID,
		Day:         s.Day,
		Value:       s.Value,
		DurationSec: s.DurationSec,
		Completed:   s.Completed,
		Note:        s.Note,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func recordFromTombstone(t models.Tombstone) TombstoneRecord {
	return TombstoneRecord{ID: t.ID, Entity: t.Entity, DeletedAt: t.DeletedAt}
}

// --- Dirty queries ---

// DirtyActivityRecords returns the activities waiting for upload. The
// UpdatedAt in each record doubles as the snapshot for ClearActivityDirty.
func (d *Database) DirtyActivityRecords(ctx context.Context) ([]ActivityRecord, error) {
	query, args := NewActivityQuery().WhereDirty().OrderBy("updated_at ASC").Build()
	activities, err := d.queryActivities(ctx, "dirty", query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityRecord, 0, len(activities))
	for _, a := range activities {
		out = append(out, recordFromActivity(a))
	}
	return out, nil
}

// DirtySessionRecords returns the sessions waiting for upload. Open timer
// runs are never dirty, so they never appear here.
func (d *Database) DirtySessionRecords(ctx context.Context) ([]SessionRecord, error) {
	query, args := NewSessionQuery().WhereDirty().OrderBy("updated_at ASC").Build()
	sessions, err := d.querySessions(ctx, "dirty", query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, recordFromSession(s))
	}
	return out, nil
}

// DirtyTombstoneRecords returns the deletions waiting for upload.
func (d *Database) DirtyTombstoneRecords(ctx context.Context) ([]TombstoneRecord, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, "SELECT id, entity, deleted_at FROM tombstones WHERE dirty = 1 ORDER BY deleted_at ASC")
	if err != nil {
		return nil, wrapTombstoneErr("dirty", "", err)
	}
	defer rows.Close()

	var out []TombstoneRecord
	for rows.Next() {
		var rec TombstoneRecord
		var deletedAt int64
		if err := rows.Scan(&rec.ID, &rec.Entity, &deletedAt); err != nil {
			return nil, wrapTombstoneErr("dirty", "", err)
		}
		rec.DeletedAt = fromMillis(deletedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTombstoneErr("dirty", "", err)
	}
	return out, nil
}

// --- Dirty clearing ---

// ClearActivityDirty marks an activity as uploaded, but only when the row
// has not changed since the asOf snapshot. An edit that lands mid-push
// keeps the flag set for the next cycle.
func (d *Database) ClearActivityDirty(ctx context.Context, id string, asOf time.Time) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	_, err := d.DB.ExecContext(ctx, "UPDATE activities SET dirty = 0 WHERE id = ? AND updated_at = ?", id, toMillis(asOf))
	return wrapActivityErr("clear dirty", id, err)
}

// ClearSessionDirty is ClearActivityDirty for sessions.
func (d *Database) ClearSessionDirty(ctx context.Context, id string, asOf time.Time) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	_, err := d.DB.ExecContext(ctx, "UPDATE sessions SET dirty = 0 WHERE id = ? AND updated_at = ?", id, toMillis(asOf))
	return wrapSessionErr("clear dirty", id, err)
}

// ClearTombstoneDirty marks a tombstone as uploaded. Tombstones never
// change after creation, so no snapshot guard is needed.
func (d *Database) ClearTombstoneDirty(ctx context.Context, id string) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	_, err := d.DB.ExecContext(ctx, "UPDATE tombstones SET dirty = 0 WHERE id = ?", id)
	return wrapTombstoneErr("clear dirty", id, err)
}

// --- Merging ---

// MergeOutcome reports what a merge did with an incoming record.
type MergeOutcome int

const (
	// MergeApplied means the record was inserted or overwrote the local row.
	MergeApplied MergeOutcome = iota
	// MergeStale means the local row was newer and was kept.
	MergeStale
	// MergeBlocked means a tombstone stopped the record from resurrecting.
	MergeBlocked
	// MergeDeferred means a session arrived before its activity; the caller
	// should hold the pull cursor so the record is fetched again.
	MergeDeferred
)

// MergeActivityRecord applies an incoming activity under last-writer-wins:
// only a strictly newer updated_at overwrites. A tie is almost always this
// device's own upload listed back by the mirror, so the local row stays.
// Merged rows arrive clean and keep their local streak caches until
// recomputed.
func (d *Database) MergeActivityRecord(ctx context.Context, rec ActivityRecord) (MergeOutcome, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var outcome MergeOutcome
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		outcome, err = d.mergeActivityRecordTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return outcome, wrapActivityErr("merge", rec.ID, err)
	}
	return outcome, nil
}

func (d *Database) mergeActivityRecordTx(ctx context.Context, tx *sql.Tx, rec ActivityRecord) (MergeOutcome, error) {
	blocked, err := tombstoneBlocksTx(ctx, tx, rec.ID, rec.UpdatedAt)
	if err != nil {
		return MergeApplied, err
	}
	if blocked {
		return MergeBlocked, nil
	}

	var localUpdated int64
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM activities WHERE id = ?", rec.ID).Scan(&localUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return MergeApplied, err
	}
	if err == nil && toMillis(rec.UpdatedAt) <= localUpdated {
		return MergeStale, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO activities (id, name, color, kind, unit, goal, active, sort_order, created_at, updated_at, archived_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			kind = excluded.kind,
			unit = excluded.unit,
			goal = excluded.goal,
			active = excluded.active,
			sort_order = excluded.sort_order,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			archived_at = excluded.archived_at,
			dirty = 0`,
		rec.ID, rec.Name, rec.Color, rec.Kind, nullableString(rec.Unit), rec.Goal,
		util.BoolToInt(rec.Active), rec.SortOrder,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt), nullableMillis(rec.ArchivedAt),
	)
	if err != nil {
		return MergeApplied, err
	}
	return MergeApplied, dropOutrankedTombstoneTx(ctx, tx, rec.ID, rec.UpdatedAt)
}

// MergeSessionRecord applies an incoming session under last-writer-wins.
// A session whose activity has not arrived yet is deferred, not an error.
// An open timer run on the local row survives the overwrite.
func (d *Database) MergeSessionRecord(ctx context.Context, rec SessionRecord) (MergeOutcome, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var outcome MergeOutcome
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		outcome, err = d.mergeSessionRecordTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return outcome, wrapSessionErr("merge", rec.ID, err)
	}
	return outcome, nil
}

func (d *Database) mergeSessionRecordTx(ctx context.Context, tx *sql.Tx, rec SessionRecord) (MergeOutcome, error) {
	blocked, err := tombstoneBlocksTx(ctx, tx, rec.ID, rec.UpdatedAt)
	if err != nil {
		return MergeApplied, err
	}
	if blocked {
		return MergeBlocked, nil
	}

	var parent int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM activities WHERE id = ?", rec.ActivityID).Scan(&parent); err != nil {
		return MergeApplied, err
	}
	if parent == 0 {
		return MergeDeferred, nil
	}

	var localUpdated int64
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM sessions WHERE id = ?", rec.ID).Scan(&localUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return MergeApplied, err
	}
	if err == nil && toMillis(rec.UpdatedAt) <= localUpdated {
		return MergeStale, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, activity_id, day, value, duration_seconds, completed, note, created_at, updated_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			activity_id = excluded.activity_id,
			day = excluded.day,
			value = excluded.value,
			duration_seconds = excluded.duration_seconds,
			completed = excluded.completed,
			note = excluded.note,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			dirty = 0`,
		rec.ID, rec.ActivityID, rec.Day, rec.Value, rec.DurationSec,
		util.BoolToInt(rec.Completed), toNullableArg(rec.Note),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return MergeApplied, err
	}
	return MergeApplied, dropOutrankedTombstoneTx(ctx, tx, rec.ID, rec.UpdatedAt)
}

// MergeTombstone applies an incoming deletion. The local row goes away
// unless it was edited after the delete, in which case the edit wins and
// the next push restores the record on the mirror.
func (d *Database) MergeTombstone(ctx context.Context, rec TombstoneRecord) (MergeOutcome, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var outcome MergeOutcome
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		outcome, err = d.mergeTombstoneTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return outcome, wrapTombstoneErr("merge", rec.ID, err)
	}
	return outcome, nil
}

func (d *Database) mergeTombstoneTx(ctx context.Context, tx *sql.Tx, rec TombstoneRecord) (MergeOutcome, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tombstones (id, entity, deleted_at, dirty)
		VALUES (?, ?, ?, 0)`, rec.ID, rec.Entity, toMillis(rec.DeletedAt)); err != nil {
		return MergeApplied, err
	}

	table := "sessions"
	if rec.Entity == models.EntityActivity {
		table = "activities"
	}
	var localUpdated int64
	err := tx.QueryRowContext(ctx, "SELECT updated_at FROM "+table+" WHERE id = ?", rec.ID).Scan(&localUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return MergeApplied, nil
	}
	if err != nil {
		return MergeApplied, err
	}
	if localUpdated > toMillis(rec.DeletedAt) {
		return MergeStale, nil
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", rec.ID)
	return MergeApplied, err
}

// tombstoneBlocksTx reports whether a deletion outranks an incoming record.
func tombstoneBlocksTx(ctx context.Context, tx *sql.Tx, id string, updatedAt time.Time) (bool, error) {
	var deletedAt int64
	err := tx.QueryRowContext(ctx, "SELECT deleted_at FROM tombstones WHERE id = ?", id).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deletedAt >= toMillis(updatedAt), nil
}

// dropOutrankedTombstoneTx removes a tombstone that lost to a resurrected
// record. Left in place, a dirty one would push the dead deletion back to
// the mirror on the next pass.
func dropOutrankedTombstoneTx(ctx context.Context, tx *sql.Tx, id string, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM tombstones WHERE id = ? AND deleted_at < ?", id, toMillis(updatedAt))
	return err
}

// --- Streak refresh after merges ---

// RecomputeStreaks refreshes one activity's streak caches.
func (d *Database) RecomputeStreaks(ctx context.Context, activityID string) error {
	a, err := d.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		return d.recomputeStreaksTx(ctx, tx, a)
	})
	return wrapActivityErr("recompute streaks", activityID, err)
}

// RecomputeAllStreaks refreshes streak caches for every activity. Callers
// run it after a merge batch rather than tracking which activities moved.
func (d *Database) RecomputeAllStreaks(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		return d.recomputeAllStreaksTx(ctx, tx)
	})
	return wrapActivityErr("recompute streaks", "", err)
}

func (d *Database) recomputeAllStreaksTx(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "SELECT "+activityColumns+" FROM activities")
	if err != nil {
		return err
	}
	var activities []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, a := range activities {
		if err := d.recomputeStreaksTx(ctx, tx, a); err != nil {
			return err
		}
	}
	return nil
}
