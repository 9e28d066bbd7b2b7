// Package sync mirrors the local store to a remote object store and
// merges remote changes back, newest write winning.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Object kinds group records under the mirror prefix. The key layout is
// <kind>/<record id>.json.
const (
	KindActivities = "activities"
	KindSessions   = "sessions"
	KindTombstones = "tombstones"
)

// ErrKeyNotFound reports a missing object. Pulls treat it as an object
// deleted between the listing and the fetch.
var ErrKeyNotFound = errors.New("sync: key not found")

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// RemoteStore is the object store the engine mirrors against. Keys are
// relative to the mirror root; implementations own bucket and prefix.
//
//go:generate mockgen -source=remote.go -destination=mock_remote_test.go -package=sync
type RemoteStore interface {
	List(ctx context.Context, kind string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// SyncError carries the operation and key of a failed remote call.
type SyncError struct {
	Op  string
	Key string
	Err error
}

func (e *SyncError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func wrapSyncErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &SyncError{Op: op, Key: key, Err: err}
}
