package database

import (
	"fmt"
	"strings"
)

// ActivityQuery assembles filtered activity selects.
type ActivityQuery struct {
	columns string
	filters []string
	args    []interface{}
	orderBy string
	limit   int
}

func NewActivityQuery() *ActivityQuery {
	return &ActivityQuery{columns: activityColumns}
}

func (q *ActivityQuery) Where(filter string, args ...interface{}) *ActivityQuery {
	q.filters = append(q.filters, filter)
	q.args = append(q.args, args...)
	return q
}

func (q *ActivityQuery) WhereActive() *ActivityQuery {
	return q.Where("active = 1")
}

func (q *ActivityQuery) WhereKind(kind string) *ActivityQuery {
	return q.Where("kind = ?", kind)
}

func (q *ActivityQuery) WhereDirty() *ActivityQuery {
	return q.Where("dirty = 1")
}

func (q *ActivityQuery) OrderBy(orderBy string) *ActivityQuery {
	q.orderBy = orderBy
	return q
}

func (q *ActivityQuery) Limit(limit int) *ActivityQuery {
	q.limit = limit
	return q
}

func (q *ActivityQuery) Build() (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM activities", q.columns)
	if len(q.filters) > 0 {
		query += " WHERE " + strings.Join(q.filters, " AND ")
	}
	if q.orderBy != "" {
		query += " ORDER BY " + q.orderBy
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	return query, q.args
}

// SessionQuery assembles filtered session selects.
type SessionQuery struct {
	columns string
	filters []string
	args    []interface{}
	orderBy string
	limit   int
}

func NewSessionQuery() *SessionQuery {
	return &SessionQuery{columns: sessionColumns}
}

func (q *SessionQuery) Where(filter string, args ...interface{}) *SessionQuery {
	q.filters = append(q.filters, filter)
	q.args = append(q.args, args...)
	return q
}

func (q *SessionQuery) WhereActivity(activityID string) *SessionQuery {
	return q.Where("activity_id = ?", activityID)
}

func (q *SessionQuery) WhereDay(day string) *SessionQuery {
	return q.Where("day = ?", day)
}

func (q *SessionQuery) WhereDayRange(from, to string) *SessionQuery {
	return q.Where("day >= ? AND day <= ?", from, to)
}

func (q *SessionQuery) WhereDirty() *SessionQuery {
	return q.Where("dirty = 1")
}

func (q *SessionQuery) WhereRunning() *SessionQuery {
	return q.Where("started_at IS NOT NULL")
}

func (q *SessionQuery) OrderBy(orderBy string) *SessionQuery {
	q.orderBy = orderBy
	return q
}

func (q *SessionQuery) Limit(limit int) *SessionQuery {
	q.limit = limit
	return q
}

func (q *SessionQuery) Build() (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM sessions", q.columns)
	if len(q.filters) > 0 {
		query += " WHERE " + strings.Join(q.filters, " AND ")
	}
	if q.orderBy != "" {
		query += " ORDER BY " + q.orderBy
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	return query, q.args
}
