package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Settings keys used by the sync machinery.
const (
	settingDeviceID   = "device_id"
	settingLastPullAt = "last_pull_at"
	settingLastSyncAt = "last_sync_at"
)

// GetSetting reads one key from the settings table. The second return
// value reports whether the key exists.
func (d *Database) GetSetting(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var value string
	err := d.DB.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting writes one key to the settings table.
func (d *Database) SetSetting(ctx context.Context, key, value string) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	_, err := d.DB.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// DeviceID returns this installation's stable identifier, minting one on
// first use. The ID names the device in export metadata and mirror logs.
func (d *Database) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := d.GetSetting(ctx, settingDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = uuid.NewString()
	if err := d.SetSetting(ctx, settingDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// LastPullAt returns the pull cursor: the newest mirror modification time
// already merged. Zero time means no pull has finished yet.
func (d *Database) LastPullAt(ctx context.Context) (time.Time, error) {
	raw, ok, err := d.GetSetting(ctx, settingLastPullAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SetLastPullAt advances the pull cursor.
func (d *Database) SetLastPullAt(ctx context.Context, t time.Time) error {
	return d.SetSetting(ctx, settingLastPullAt, t.UTC().Format(time.RFC3339Nano))
}

// LastSyncAt returns when the last full sync cycle finished, for status
// output. Zero time means never.
func (d *Database) LastSyncAt(ctx context.Context) (time.Time, error) {
	raw, ok, err := d.GetSetting(ctx, settingLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SetLastSyncAt records a finished sync cycle.
func (d *Database) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return d.SetSetting(ctx, settingLastSyncAt, t.UTC().Format(time.RFC3339Nano))
}
