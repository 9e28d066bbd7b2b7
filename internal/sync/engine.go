package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
)

// Result summarizes one sync pass.
type Result struct {
	Pushed   int // records uploaded
	Pulled   int // remote changes merged in
	Deleted  int // tombstones pushed
	Skipped  int // remote records that lost to local state
	Deferred int // sessions still waiting for their activity
}

// Empty reports whether the pass moved nothing in either direction.
func (r *Result) Empty() bool {
	return r.Pushed == 0 && r.Pulled == 0 && r.Deleted == 0
}

// Engine runs push/pull passes against a remote mirror.
//
// Pull runs before push. A row edited on two devices has to lose locally
// first; pushing first would overwrite the newer mirror copy with a
// stale one and no later pass could tell.
type Engine struct {
	db     *database.Database
	remote RemoteStore
	log    *slog.Logger
	skew   time.Duration
	now    func() time.Time
}

// NewEngine wires the local store to a remote mirror.
func NewEngine(db *database.Database, remote RemoteStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, remote: remote, log: log, skew: config.PullSkew, now: time.Now}
}

// Sync runs one full pull/push pass.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	res := &Result{}
	if err := e.pull(ctx, res); err != nil {
		return res, err
	}
	if err := e.push(ctx, res); err != nil {
		return res, err
	}
	if err := e.db.SetLastSyncAt(ctx, e.now().UTC()); err != nil {
		return res, err
	}
	e.log.Debug("sync pass finished",
		"pushed", res.Pushed, "pulled", res.Pulled,
		"deleted", res.Deleted, "skipped", res.Skipped, "deferred", res.Deferred)
	return res, nil
}

// --- Pull ---

func (e *Engine) pull(ctx context.Context, res *Result) error {
	since, err := e.db.LastPullAt(ctx)
	if err != nil {
		return err
	}
	var cutoff time.Time
	if !since.IsZero() {
		// Widened by the skew so listing timestamps that lag the cursor
		// do not hide an object forever.
		cutoff = since.Add(-e.skew)
	}
	start := e.now().UTC()

	// Activities land before the sessions that reference them, and
	// tombstones go last so a deletion outranks the record it covers.
	for _, kind := range []string{KindActivities, KindSessions, KindTombstones} {
		if err := e.pullKind(ctx, kind, cutoff, res); err != nil {
			return err
		}
	}

	if res.Pulled > 0 {
		if err := e.db.RecomputeAllStreaks(ctx); err != nil {
			return err
		}
	}

	// A deferred session gets fetched again on the next pass, so the
	// cursor holds until everything in the window has landed.
	if res.Deferred == 0 {
		return e.db.SetLastPullAt(ctx, start)
	}
	return nil
}

func (e *Engine) pullKind(ctx context.Context, kind string, cutoff time.Time, res *Result) error {
	infos, err := e.remote.List(ctx, kind)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if !cutoff.IsZero() && info.LastModified.Before(cutoff) {
			continue
		}
		data, err := e.remote.Get(ctx, info.Key)
		if errors.Is(err, ErrKeyNotFound) {
			// Deleted between the listing and the fetch; its tombstone
			// arrives in this or the next pass.
			continue
		}
		if err != nil {
			return err
		}

		rec, err := decodeRecord(kind, data)
		if err != nil {
			// A payload that does not decode cannot improve on a retry.
			e.log.Warn("skipping undecodable object", "key", info.Key, "error", err)
			res.Skipped++
			continue
		}
		outcome, err := e.mergeRecord(ctx, rec)
		if err != nil {
			return err
		}
		switch outcome {
		case database.MergeApplied:
			res.Pulled++
		case database.MergeDeferred:
			res.Deferred++
		default:
			res.Skipped++
		}
	}
	return nil
}

func decodeRecord(kind string, data []byte) (interface{}, error) {
	switch kind {
	case KindActivities:
		var rec database.ActivityRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		if rec.ID == "" {
			return nil, errors.New("activity record has no id")
		}
		return rec, nil
	case KindSessions:
		var rec database.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		if rec.ID == "" || rec.ActivityID == "" {
			return nil, errors.New("session record has no id")
		}
		return rec, nil
	case KindTombstones:
		var rec database.TombstoneRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		if rec.ID == "" || rec.Entity == "" {
			return nil, errors.New("tombstone record has no id")
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown object kind %q", kind)
	}
}

func (e *Engine) mergeRecord(ctx context.Context, rec interface{}) (database.MergeOutcome, error) {
	switch r := rec.(type) {
	case database.ActivityRecord:
		return e.db.MergeActivityRecord(ctx, r)
	case database.SessionRecord:
		return e.db.MergeSessionRecord(ctx, r)
	case database.TombstoneRecord:
		return e.db.MergeTombstone(ctx, r)
	default:
		return database.MergeStale, fmt.Errorf("unknown record type %T", rec)
	}
}

// --- Push ---

func (e *Engine) push(ctx context.Context, res *Result) error {
	acts, err := e.db.DirtyActivityRecords(ctx)
	if err != nil {
		return err
	}
	for _, rec := range acts {
		if err := e.putJSON(ctx, objectKey(KindActivities, rec.ID), rec); err != nil {
			return err
		}
		// Clears only while the row still matches the uploaded snapshot;
		// an edit that lands mid-push stays queued.
		if err := e.db.ClearActivityDirty(ctx, rec.ID, rec.UpdatedAt); err != nil {
			return err
		}
		res.Pushed++
	}

	sessions, err := e.db.DirtySessionRecords(ctx)
	if err != nil {
		return err
	}
	for _, rec := range sessions {
		if err := e.putJSON(ctx, objectKey(KindSessions, rec.ID), rec); err != nil {
			return err
		}
		if err := e.db.ClearSessionDirty(ctx, rec.ID, rec.UpdatedAt); err != nil {
			return err
		}
		res.Pushed++
	}

	tombs, err := e.db.DirtyTombstoneRecords(ctx)
	if err != nil {
		return err
	}
	for _, rec := range tombs {
		// The record object goes away and the tombstone takes its place,
		// so other devices see the deletion even after their cursor has
		// moved past the record.
		if err := e.remote.Delete(ctx, objectKey(kindForEntity(rec.Entity), rec.ID)); err != nil {
			return err
		}
		if err := e.putJSON(ctx, objectKey(KindTombstones, rec.ID), rec); err != nil {
			return err
		}
		if err := e.db.ClearTombstoneDirty(ctx, rec.ID); err != nil {
			return err
		}
		res.Deleted++
	}
	return nil
}

func (e *Engine) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return e.remote.Put(ctx, key, data)
}

func objectKey(kind, id string) string {
	return kind + "/" + id + ".json"
}

func kindForEntity(entity string) string {
	if entity == models.EntityActivity {
		return KindActivities
	}
	return KindSessions
}
