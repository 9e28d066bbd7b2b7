package database

import (
	"context"
	"testing"
	"time"

	"github.com/akyairhashvil/tally/internal/models"
)

type TestDataBuilder struct {
	t           *testing.T
	ctx         context.Context
	db          *Database
	activityIDs []string
}

func NewTestDataBuilder(t *testing.T) *TestDataBuilder {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t, ctx)
	return &TestDataBuilder{t: t, ctx: ctx, db: db}
}

// At pins the store's clock so days and timestamps come out deterministic.
func (b *TestDataBuilder) At(now time.Time) *TestDataBuilder {
	b.db.now = func() time.Time { return now.UTC().Truncate(time.Millisecond) }
	return b
}

func (b *TestDataBuilder) WithActivity(name string, kind models.ActivityKind, goal float64) *TestDataBuilder {
	b.t.Helper()
	a, err := b.db.AddActivity(b.ctx, ActivitySeed{Name: name, Kind: kind, Goal: goal})
	if err != nil {
		b.t.Fatalf("AddActivity failed: %v", err)
	}
	b.activityIDs = append(b.activityIDs, a.ID)
	return b
}

// WithSessions logs one session per day on the most recent activity,
// walking back from today.
func (b *TestDataBuilder) WithSessions(days int, value float64) *TestDataBuilder {
	b.t.Helper()
	if len(b.activityIDs) == 0 {
		b.WithActivity("Reading", models.KindCounter, 0)
	}
	id := b.activityIDs[len(b.activityIDs)-1]
	a, err := b.db.GetActivity(b.ctx, id)
	if err != nil {
		b.t.Fatalf("GetActivity failed: %v", err)
	}
	today := b.db.now().Local()
	for i := 0; i < days; i++ {
		seed := SessionSeed{
			ActivityID: id,
			Day:        today.AddDate(0, 0, -i).Format(models.DayLayout),
		}
		if a.Kind == models.KindTimer {
			seed.DurationSec = int64(value)
		} else {
			seed.Value = value
		}
		if _, err := b.db.AddSession(b.ctx, seed); err != nil {
			b.t.Fatalf("AddSession failed: %v", err)
		}
	}
	return b
}

func (b *TestDataBuilder) Build() *Database {
	return b.db
}

func (b *TestDataBuilder) ActivityID(i int) string {
	b.t.Helper()
	if i >= len(b.activityIDs) {
		b.t.Fatalf("activity index %d out of range (%d built)", i, len(b.activityIDs))
	}
	return b.activityIDs[i]
}
