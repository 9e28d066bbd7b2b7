package database

import (
	"context"
	"testing"
	"time"

	"github.com/akyairhashvil/tally/internal/models"
)

func TestVaultExportImport(t *testing.T) {
	ctx := context.Background()
	builder := NewTestDataBuilder(t).
		WithActivity("Reading", models.KindCounter, 0).
		WithSessions(3, 5)
	source := builder.Build()

	// A deletion travels with the vault as a tombstone.
	sessions, err := source.ListSessions(ctx, SessionFilter{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if err := source.DeleteSession(ctx, sessions[0].ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	payload, err := source.ExportVault(ctx, ExportOptions{})
	if err != nil {
		t.Fatalf("ExportVault failed: %v", err)
	}

	target := setupTestDB(t, ctx)
	res, err := target.ImportVault(ctx, payload)
	if err != nil {
		t.Fatalf("ImportVault failed: %v", err)
	}
	if res.Activities != 1 || res.Sessions != 2 || res.Tombstones != 1 {
		t.Fatalf("unexpected import counts: %+v", res)
	}

	imported, err := target.ListActivities(ctx, true)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if len(imported) != 1 {
		t.Fatalf("expected 1 activity after import, got %d", len(imported))
	}
	// Streak caches are derived locally, not carried by the vault.
	if imported[0].CurrentStreak == 0 {
		t.Fatalf("expected streaks recomputed after import")
	}

	// The tombstoned session must not come back.
	if _, err := target.GetSession(ctx, sessions[0].ID); err == nil {
		t.Fatalf("expected deleted session to stay deleted")
	}
}

func TestImportOldBackupKeepsNewerLocal(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	a, err := db.AddActivity(ctx, ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	payload, err := db.ExportVault(ctx, ExportOptions{})
	if err != nil {
		t.Fatalf("ExportVault failed: %v", err)
	}

	// Local keeps moving after the backup was taken.
	db.now = func() time.Time { return base.Add(time.Hour) }
	name := "Deep Reading"
	if err := db.UpdateActivity(ctx, a.ID, ActivityUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}

	res, err := db.ImportVault(ctx, payload)
	if err != nil {
		t.Fatalf("ImportVault failed: %v", err)
	}
	if res.Skipped == 0 {
		t.Fatalf("expected stale records skipped, got %+v", res)
	}
	got, err := db.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if got.Name != "Deep Reading" {
		t.Fatalf("expected newer local edit to survive import, got %q", got.Name)
	}
}

func TestImportVaultRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)
	if _, err := db.ImportVault(ctx, []byte(`{"schema_version": 99}`)); err == nil {
		t.Fatalf("expected error for newer schema version")
	}
}
