package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/akyairhashvil/tally/internal/database"
	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/sync"
)

// memRemote is an in-memory RemoteStore for wiring a real sync pass
// through the command without a bucket.
type memRemote struct {
	objects map[string][]byte
}

func newMemRemote() *memRemote {
	return &memRemote{objects: map[string][]byte{}}
}

func (m *memRemote) List(ctx context.Context, kind string) ([]sync.ObjectInfo, error) {
	var infos []sync.ObjectInfo
	for key := range m.objects {
		if strings.HasPrefix(key, kind+"/") {
			infos = append(infos, sync.ObjectInfo{Key: key, LastModified: time.Now()})
		}
	}
	return infos, nil
}

func (m *memRemote) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, sync.ErrKeyNotFound
	}
	return data, nil
}

func (m *memRemote) Put(ctx context.Context, key string, data []byte) error {
	m.objects[key] = data
	return nil
}

func (m *memRemote) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// attachMirror wires a controller over an in-memory remote, the shape
// openApp builds when the bucket is reachable.
func attachMirror(t *testing.T, app *App) *memRemote {
	t.Helper()
	remote := newMemRemote()
	engine := sync.NewEngine(app.DB, remote, app.Log)
	app.Sync = sync.NewController(engine, time.Minute, app.Log)
	app.Config.Sync.Enabled = true
	app.DB.SetTier(database.TierRemote)
	return remote
}

func TestRunSyncDisabled(t *testing.T) {
	ctx := context.Background()
	app := testApp(t, ctx)

	f, _ := textOutput()
	err := runSync(ctx, app, f, &SyncOptions{})
	exitErr := wantExitCode(t, err, ExitCommandError)
	if !strings.Contains(exitErr.Message, "sync is disabled") {
		t.Fatalf("unexpected message %q", exitErr.Message)
	}
}

func TestRunSyncUnreachable(t *testing.T) {
	ctx := context.Background()
	app := testApp(t, ctx)
	app.Config.Sync.Enabled = true // configured, but no controller came up

	f, _ := textOutput()
	err := runSync(ctx, app, f, &SyncOptions{})
	exitErr := wantExitCode(t, err, ExitFailure)
	if !strings.Contains(exitErr.Message, "unreachable") {
		t.Fatalf("unexpected message %q", exitErr.Message)
	}
}

func TestRunSyncPushesDirtyRecords(t *testing.T) {
	ctx := context.Background()
	app := testApp(t, ctx)
	remote := attachMirror(t, app)

	a := seedActivity(t, ctx, app, database.ActivitySeed{Name: "Reading", Kind: models.KindCounter})
	if _, err := app.DB.AddSession(ctx, database.SessionSeed{ActivityID: a.ID, Value: 5}); err != nil {
		t.Fatalf("AddSession failed: %v", err)
	}

	f, buf := textOutput()
	if err := runSync(ctx, app, f, &SyncOptions{}); err != nil {
		t.Fatalf("runSync failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Synced: pushed 2") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if len(remote.objects) != 2 {
		t.Fatalf("expected 2 mirrored objects, got %d", len(remote.objects))
	}

	// Nothing left to move on the second pass.
	f2, buf2 := textOutput()
	if err := runSync(ctx, app, f2, &SyncOptions{}); err != nil {
		t.Fatalf("second runSync failed: %v", err)
	}
	if !strings.Contains(buf2.String(), "Already in sync.") {
		t.Fatalf("unexpected output %q", buf2.String())
	}
}

func TestRunSyncPullsRemoteRecords(t *testing.T) {
	ctx := context.Background()

	// Device one pushes its state.
	source := testApp(t, ctx)
	remote := attachMirror(t, source)
	a := seedActivity(t, ctx, source, database.ActivitySeed{Name: "Reading", Kind: models.KindCounter, Goal: 20})
	if _, err := source.DB.AddSession(ctx, database.SessionSeed{ActivityID: a.ID, Day: "2026-08-20", Value: 25}); err != nil {
		t.Fatalf("AddSession failed: %v", err)
	}
	f, _ := textOutput()
	if err := runSync(ctx, source, f, &SyncOptions{}); err != nil {
		t.Fatalf("source sync failed: %v", err)
	}

	// Device two pulls it down through the same mirror.
	target := testApp(t, ctx)
	engine := sync.NewEngine(target.DB, remote, target.Log)
	target.Sync = sync.NewController(engine, time.Minute, target.Log)
	target.Config.Sync.Enabled = true

	f2, buf := jsonOutput()
	if err := runSync(ctx, target, f2, &SyncOptions{}); err != nil {
		t.Fatalf("target sync failed: %v", err)
	}
	var got syncResultJSON
	if status := decodeResponse(t, buf, &got); status != "ok" {
		t.Fatalf("expected status ok, got %q", status)
	}
	if got.Pulled != 2 {
		t.Fatalf("expected 2 pulled records, got %+v", got)
	}

	pulled, err := target.DB.GetActivityByName(ctx, "Reading")
	if err != nil {
		t.Fatalf("pulled activity missing: %v", err)
	}
	if pulled.Goal != 20 {
		t.Fatalf("unexpected pulled activity %+v", pulled)
	}
}

func TestRenderSyncResult(t *testing.T) {
	cases := []struct {
		name string
		res  sync.Result
		want string
	}{
		{"empty", sync.Result{}, "Already in sync."},
		{"pushed", sync.Result{Pushed: 2}, "Synced: pushed 2"},
		{"mixed", sync.Result{Pushed: 1, Pulled: 3, Skipped: 1}, "Synced: pushed 1, pulled 3, skipped 1"},
		{"deferred", sync.Result{Pulled: 1, Deferred: 2}, "Synced: pulled 1, deferred 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderSyncResult(&tc.res); got != tc.want {
				t.Fatalf("renderSyncResult = %q, want %q", got, tc.want)
			}
		})
	}
}
