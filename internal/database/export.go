package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akyairhashvil/tally/internal/config"
)

type ExportOptions struct {
	EncryptOutput bool
	Passphrase    string
}

// VaultExport is the portable snapshot of everything a device knows.
// Activities precede sessions so a one-pass import always finds parents.
type VaultExport struct {
	SchemaVersion int               `json:"schema_version"`
	ExportedAt    time.Time         `json:"exported_at"`
	Device        string            `json:"device"`
	Activities    []ActivityRecord  `json:"activities"`
	Sessions      []SessionRecord   `json:"sessions"`
	Tombstones    []TombstoneRecord `json:"tombstones,omitempty"`
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Activities int
	Sessions   int
	Tombstones int
	Skipped    int
}

func (d *Database) allActivityRecords(ctx context.Context) ([]ActivityRecord, error) {
	query, args := NewActivityQuery().OrderBy("created_at ASC").Build()
	activities, err := d.queryActivities(ctx, "export", query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityRecord, 0, len(activities))
	for _, a := range activities {
		out = append(out, recordFromActivity(a))
	}
	return out, nil
}

func (d *Database) allSessionRecords(ctx context.Context) ([]SessionRecord, error) {
	query, args := NewSessionQuery().OrderBy("day ASC, created_at ASC").Build()
	sessions, err := d.querySessions(ctx, "export", query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, recordFromSession(s))
	}
	return out, nil
}

func (d *Database) allTombstoneRecords(ctx context.Context) ([]TombstoneRecord, error) {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	rows, err := d.DB.QueryContext(ctx, "SELECT id, entity, deleted_at FROM tombstones ORDER BY deleted_at ASC")
	if err != nil {
		return nil, wrapTombstoneErr("export", "", err)
	}
	defer rows.Close()

	var out []TombstoneRecord
	for rows.Next() {
		var rec TombstoneRecord
		var deletedAt int64
		if err := rows.Scan(&rec.ID, &rec.Entity, &deletedAt); err != nil {
			return nil, wrapTombstoneErr("export", "", err)
		}
		rec.DeletedAt = fromMillis(deletedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTombstoneErr("export", "", err)
	}
	return out, nil
}

// ExportVault serializes the whole store, optionally sealed with a
// passphrase. Tombstones ride along so restoring a backup cannot
// resurrect records deleted elsewhere.
func (d *Database) ExportVault(ctx context.Context, opts ExportOptions) ([]byte, error) {
	device, err := d.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	activities, err := d.allActivityRecords(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := d.allSessionRecords(ctx)
	if err != nil {
		return nil, err
	}
	tombstones, err := d.allTombstoneRecords(ctx)
	if err != nil {
		return nil, err
	}

	export := VaultExport{
		SchemaVersion: config.VaultSchemaVersion,
		ExportedAt:    d.now(),
		Device:        device,
		Activities:    activities,
		Sessions:      sessions,
		Tombstones:    tombstones,
	}
	jsonData, err := json.Marshal(export)
	if err != nil {
		return nil, err
	}
	if opts.EncryptOutput && opts.Passphrase != "" {
		return encryptData(jsonData, opts.Passphrase)
	}
	return jsonData, nil
}

// ImportVault merges exported data into the database. Records obey the
// same last-writer-wins rules as a sync pull, so importing an old backup
// never clobbers newer local work. Streak caches are refreshed once at
// the end.
func (d *Database) ImportVault(ctx context.Context, payload []byte) (ImportResult, error) {
	var export VaultExport
	if err := json.Unmarshal(payload, &export); err != nil {
		return ImportResult{}, fmt.Errorf("import vault: %w", err)
	}
	if export.SchemaVersion > config.VaultSchemaVersion {
		return ImportResult{}, fmt.Errorf("import vault: schema version %d is newer than this build understands", export.SchemaVersion)
	}

	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()

	var res ImportResult
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range export.Activities {
			outcome, err := d.mergeActivityRecordTx(ctx, tx, rec)
			if err != nil {
				return fmt.Errorf("import activity %s: %w", rec.ID, err)
			}
			if outcome == MergeApplied {
				res.Activities++
			} else {
				res.Skipped++
			}
		}
		for _, rec := range export.Sessions {
			outcome, err := d.mergeSessionRecordTx(ctx, tx, rec)
			if err != nil {
				return fmt.Errorf("import session %s: %w", rec.ID, err)
			}
			if outcome == MergeApplied {
				res.Sessions++
			} else {
				res.Skipped++
			}
		}
		for _, rec := range export.Tombstones {
			outcome, err := d.mergeTombstoneTx(ctx, tx, rec)
			if err != nil {
				return fmt.Errorf("import tombstone %s: %w", rec.ID, err)
			}
			if outcome == MergeApplied {
				res.Tombstones++
			} else {
				res.Skipped++
			}
		}
		return d.recomputeAllStreaksTx(ctx, tx)
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}
