package database

import (
	"context"
	"testing"
	"time"
)

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	if _, ok, err := db.GetSetting(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := db.SetSetting(ctx, "theme", "dark"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	value, ok, err := db.GetSetting(ctx, "theme")
	if err != nil || !ok || value != "dark" {
		t.Fatalf("expected dark, got %q ok=%v err=%v", value, ok, err)
	}
	if err := db.SetSetting(ctx, "theme", "light"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	value, _, _ = db.GetSetting(ctx, "theme")
	if value != "light" {
		t.Fatalf("expected overwrite to light, got %q", value)
	}
}

func TestDeviceIDStable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	first, err := db.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if first == "" {
		t.Fatalf("expected minted device ID")
	}
	second, err := db.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable device ID, got %q then %q", first, second)
	}
}

func TestPullCursor(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, ctx)

	cursor, err := db.LastPullAt(ctx)
	if err != nil {
		t.Fatalf("LastPullAt failed: %v", err)
	}
	if !cursor.IsZero() {
		t.Fatalf("expected zero cursor before first pull, got %v", cursor)
	}

	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	if err := db.SetLastPullAt(ctx, at); err != nil {
		t.Fatalf("SetLastPullAt failed: %v", err)
	}
	cursor, err = db.LastPullAt(ctx)
	if err != nil {
		t.Fatalf("LastPullAt failed: %v", err)
	}
	if !cursor.Equal(at) {
		t.Fatalf("expected cursor %v, got %v", at, cursor)
	}

	if err := db.SetLastSyncAt(ctx, at.Add(time.Minute)); err != nil {
		t.Fatalf("SetLastSyncAt failed: %v", err)
	}
	synced, err := db.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if !synced.Equal(at.Add(time.Minute)) {
		t.Fatalf("expected sync time %v, got %v", at.Add(time.Minute), synced)
	}
}
