package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akyairhashvil/tally/internal/models"
)

func TestMergeActivityRecordInsert(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := ActivityRecord{
		ID:        uuid.NewString(),
		Name:      "Reading",
		Color:     "sky",
		Kind:      "counter",
		Goal:      10,
		Active:    true,
		SortOrder: 1,
		CreatedAt: base,
		UpdatedAt: base,
	}
	outcome, err := db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected MergeApplied, got %v", outcome)
	}

	got, err := db.GetActivity(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if got.Name != "Reading" || got.Goal != 10 {
		t.Fatalf("unexpected merged activity: %+v", got)
	}
	if got.Dirty {
		t.Fatalf("merged record must arrive clean")
	}
	if !got.UpdatedAt.Equal(base) {
		t.Fatalf("expected updated_at %v, got %v", base, got.UpdatedAt)
	}
}

func TestMergeActivityRecordLWW(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	local, err := db.AddActivity(ctx, ActivitySeed{Name: "Local", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	rec := recordFromActivity(local)

	// Older incoming record loses.
	rec.Name = "Stale"
	rec.UpdatedAt = base.Add(-time.Hour)
	outcome, err := db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeStale {
		t.Fatalf("expected MergeStale, got %v", outcome)
	}
	got, _ := db.GetActivity(ctx, local.ID)
	if got.Name != "Local" {
		t.Fatalf("stale merge must not overwrite, got %q", got.Name)
	}

	// Newer incoming record wins.
	rec.Name = "Remote"
	rec.UpdatedAt = base.Add(time.Hour)
	outcome, err = db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected MergeApplied, got %v", outcome)
	}
	got, _ = db.GetActivity(ctx, local.ID)
	if got.Name != "Remote" || got.Dirty {
		t.Fatalf("expected clean remote overwrite, got %+v", got)
	}

	// Equal timestamps keep the local row: a tie is this device's own
	// upload echoing back, and rewriting it would count every pass as
	// a pull.
	rec.Name = "Tiebreak"
	outcome, err = db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeStale {
		t.Fatalf("expected tie to keep local, got %v", outcome)
	}
	got, _ = db.GetActivity(ctx, local.ID)
	if got.Name != "Remote" {
		t.Fatalf("tie must not overwrite, got %q", got.Name)
	}
}

func TestMergeSessionDeferredWithoutParent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := SessionRecord{
		ID:         uuid.NewString(),
		ActivityID: uuid.NewString(),
		Day:        "2025-03-10",
		Value:      5,
		CreatedAt:  base,
		UpdatedAt:  base,
	}
	outcome, err := db.MergeSessionRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeSessionRecord failed: %v", err)
	}
	if outcome != MergeDeferred {
		t.Fatalf("expected MergeDeferred, got %v", outcome)
	}
	if _, err := db.GetSession(ctx, rec.ID); err == nil {
		t.Fatalf("deferred session must not be written")
	}
}

func TestMergeSessionPreservesOpenRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }

	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Running", Kind: models.KindTimer})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}
	run, err := db.StartTimer(ctx, a.ID)
	if err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	rec := SessionRecord{
		ID:          run.ID,
		ActivityID:  a.ID,
		Day:         run.Day,
		DurationSec: 300,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   base.Add(time.Hour),
	}
	outcome, err := db.MergeSessionRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeSessionRecord failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected MergeApplied, got %v", outcome)
	}
	got, err := db.GetSession(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DurationSec != 300 {
		t.Fatalf("expected merged duration, got %d", got.DurationSec)
	}
	if got.StartedAt == nil {
		t.Fatalf("merge must not clobber the open run")
	}
}

func TestMergeTombstone(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	ts := TombstoneRecord{ID: a.ID, Entity: models.EntityActivity, DeletedAt: base.Add(time.Hour)}
	outcome, err := db.MergeTombstone(ctx, ts)
	if err != nil {
		t.Fatalf("MergeTombstone failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected MergeApplied, got %v", outcome)
	}
	if _, err := db.GetActivity(ctx, a.ID); err == nil {
		t.Fatalf("expected activity deleted")
	}

	// An older record cannot crawl back past the tombstone.
	rec := recordFromActivity(a)
	outcome, err = db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeBlocked {
		t.Fatalf("expected MergeBlocked, got %v", outcome)
	}

	// A genuinely newer edit outranks the deletion.
	rec.UpdatedAt = base.Add(2 * time.Hour)
	outcome, err = db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected newer edit to apply, got %v", outcome)
	}
	if _, err := db.GetActivity(ctx, a.ID); err != nil {
		t.Fatalf("expected activity restored: %v", err)
	}
}

func TestMergeTombstoneKeepsNewerLocal(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base.Add(2 * time.Hour) }
	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	ts := TombstoneRecord{ID: a.ID, Entity: models.EntityActivity, DeletedAt: base.Add(time.Hour)}
	outcome, err := db.MergeTombstone(ctx, ts)
	if err != nil {
		t.Fatalf("MergeTombstone failed: %v", err)
	}
	if outcome != MergeStale {
		t.Fatalf("expected MergeStale, got %v", outcome)
	}
	if _, err := db.GetActivity(ctx, a.ID); err != nil {
		t.Fatalf("expected local edit to survive the delete: %v", err)
	}
}

func TestMergeResurrectionDropsLocalTombstone(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}
	if err := db.DeleteActivity(ctx, a.ID); err != nil {
		t.Fatalf("DeleteActivity failed: %v", err)
	}

	// Another device edited the activity after this one deleted it. The
	// edit wins, and the pending deletion must not outlive it.
	rec := recordFromActivity(a)
	rec.UpdatedAt = base.Add(time.Hour)
	outcome, err := db.MergeActivityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	if outcome != MergeApplied {
		t.Fatalf("expected MergeApplied, got %v", outcome)
	}
	if _, err := db.GetActivity(ctx, a.ID); err != nil {
		t.Fatalf("expected activity restored: %v", err)
	}

	tombs, err := db.DirtyTombstoneRecords(ctx)
	if err != nil {
		t.Fatalf("DirtyTombstoneRecords failed: %v", err)
	}
	for _, ts := range tombs {
		if ts.ID == a.ID {
			t.Fatalf("outranked tombstone still queued for upload")
		}
	}
}

func TestDirtyLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	dirty, err := db.DirtyActivityRecords(ctx)
	if err != nil {
		t.Fatalf("DirtyActivityRecords failed: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != a.ID {
		t.Fatalf("expected one dirty activity, got %+v", dirty)
	}

	// A mismatched snapshot leaves the flag alone.
	if err := db.ClearActivityDirty(ctx, a.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("ClearActivityDirty failed: %v", err)
	}
	dirty, _ = db.DirtyActivityRecords(ctx)
	if len(dirty) != 1 {
		t.Fatalf("expected stale snapshot to keep the flag, got %d", len(dirty))
	}

	// The matching snapshot clears it.
	if err := db.ClearActivityDirty(ctx, a.ID, dirty[0].UpdatedAt); err != nil {
		t.Fatalf("ClearActivityDirty failed: %v", err)
	}
	dirty, _ = db.DirtyActivityRecords(ctx)
	if len(dirty) != 0 {
		t.Fatalf("expected no dirty activities, got %d", len(dirty))
	}

	// An edit landing mid-push keeps the record queued.
	snapshot := a.UpdatedAt
	db.now = func() time.Time { return base.Add(time.Hour) }
	name := "Evening Reading"
	if err := db.UpdateActivity(ctx, a.ID, ActivityUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}
	if err := db.ClearActivityDirty(ctx, a.ID, snapshot); err != nil {
		t.Fatalf("ClearActivityDirty failed: %v", err)
	}
	dirty, _ = db.DirtyActivityRecords(ctx)
	if len(dirty) != 1 {
		t.Fatalf("expected edited record to stay dirty, got %d", len(dirty))
	}
}

func TestClearSessionAndTombstoneDirty(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}
	s, err := db.AddSession(ctx, SessionSeed{ActivityID: a.ID, Value: 2})
	if err != nil {
		t.Fatalf("AddSession failed: %v", err)
	}

	dirtySessions, err := db.DirtySessionRecords(ctx)
	if err != nil {
		t.Fatalf("DirtySessionRecords failed: %v", err)
	}
	if len(dirtySessions) != 1 {
		t.Fatalf("expected one dirty session, got %d", len(dirtySessions))
	}
	if err := db.ClearSessionDirty(ctx, s.ID, dirtySessions[0].UpdatedAt); err != nil {
		t.Fatalf("ClearSessionDirty failed: %v", err)
	}
	dirtySessions, _ = db.DirtySessionRecords(ctx)
	if len(dirtySessions) != 0 {
		t.Fatalf("expected session flag cleared, got %d", len(dirtySessions))
	}

	if err := db.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	tombstones, err := db.DirtyTombstoneRecords(ctx)
	if err != nil {
		t.Fatalf("DirtyTombstoneRecords failed: %v", err)
	}
	if len(tombstones) != 1 {
		t.Fatalf("expected one dirty tombstone, got %d", len(tombstones))
	}
	if err := db.ClearTombstoneDirty(ctx, tombstones[0].ID); err != nil {
		t.Fatalf("ClearTombstoneDirty failed: %v", err)
	}
	tombstones, _ = db.DirtyTombstoneRecords(ctx)
	if len(tombstones) != 0 {
		t.Fatalf("expected tombstone flag cleared, got %d", len(tombstones))
	}
}

func TestRecomputeStreaksKeepsRecordsClean(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }

	a := ActivityRecord{
		ID:        uuid.NewString(),
		Name:      "Reading",
		Color:     "sky",
		Kind:      "counter",
		Active:    true,
		CreatedAt: base,
		UpdatedAt: base,
	}
	if _, err := db.MergeActivityRecord(ctx, a); err != nil {
		t.Fatalf("MergeActivityRecord failed: %v", err)
	}
	s := SessionRecord{
		ID:         uuid.NewString(),
		ActivityID: a.ID,
		Day:        db.today(),
		Value:      3,
		Completed:  true,
		CreatedAt:  base,
		UpdatedAt:  base,
	}
	if _, err := db.MergeSessionRecord(ctx, s); err != nil {
		t.Fatalf("MergeSessionRecord failed: %v", err)
	}

	if err := db.RecomputeAllStreaks(ctx); err != nil {
		t.Fatalf("RecomputeAllStreaks failed: %v", err)
	}
	got, err := db.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if got.CurrentStreak != 1 {
		t.Fatalf("expected streak 1 after merge, got %d", got.CurrentStreak)
	}
	if got.Dirty {
		t.Fatalf("streak refresh must not mark the record dirty")
	}
	dirty, err := db.DirtyActivityRecords(ctx)
	if err != nil {
		t.Fatalf("DirtyActivityRecords failed: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("expected no sync traffic from cache refresh, got %d", len(dirty))
	}
}
