package models

import "time"

// ActivityKind enumerates the two ways an activity measures progress.
type ActivityKind string

const (
	KindCounter ActivityKind = "counter"
	KindTimer   ActivityKind = "timer"
)

// Valid reports whether the kind is one of the known values.
func (k ActivityKind) Valid() bool {
	return k == KindCounter || k == KindTimer
}

// Tombstone entity names.
const (
	EntityActivity = "activity"
	EntitySession  = "session"
)

// DayLayout is the storage and wire format for calendar days.
const DayLayout = "2006-01-02"

// Activity represents a single tracked habit.
type Activity struct {
	ID            string
	Name          string
	Color         string
	Kind          ActivityKind
	Unit          string  // optional display unit for counters ("pages", "km")
	Goal          float64 // daily target: count, or seconds for timers; 0 = none
	Active        bool    // false = archived
	SortOrder     int
	CurrentStreak int // cached, derived from sessions
	BestStreak    int // cached, derived from sessions
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ArchivedAt    *time.Time
	Dirty         bool // pending upload to the mirror
}

// TargetMet reports whether a day total satisfies the activity's goal.
// A zero goal means any positive progress counts.
func (a Activity) TargetMet(total float64) bool {
	if a.Goal <= 0 {
		return total > 0
	}
	return total >= a.Goal
}

// Session represents one recorded instance of progress against an activity.
type Session struct {
	ID          string
	ActivityID  string
	Day         string // YYYY-MM-DD, local date
	Value       float64
	DurationSec int64
	Completed   bool // day target was met when this session was written
	Note        *string
	StartedAt   *time.Time // non-nil while a timer run is open
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Dirty       bool
}

// Measure returns the session's progress in the activity's unit of measure.
func (s Session) Measure(kind ActivityKind) float64 {
	if kind == KindTimer {
		return float64(s.DurationSec)
	}
	return s.Value
}

// Running reports whether the session has an open timer run.
func (s Session) Running() bool {
	return s.StartedAt != nil
}

// Tombstone marks a deleted record so the deletion reaches the mirror.
type Tombstone struct {
	ID        string
	Entity    string // EntityActivity or EntitySession
	DeletedAt time.Time
	Dirty     bool
}
