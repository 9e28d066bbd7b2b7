package database

import (
	"context"
	"strings"

	"github.com/akyairhashvil/tally/internal/models"
	"github.com/akyairhashvil/tally/internal/util"
)

// SearchActivities returns the activities matching a parsed filter query,
// in the same order as ListActivities. Kind and color terms filter their
// columns, tag terms must all appear as #hashtags in the name, and free
// text terms must each appear in the name.
func (d *Database) SearchActivities(ctx context.Context, q util.SearchQuery, includeArchived bool) ([]models.Activity, error) {
	builder := NewActivityQuery()
	if !includeArchived {
		builder.WhereActive()
	}

	if len(q.Kinds) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(q.Kinds)), ",")
		kindArgs := make([]interface{}, 0, len(q.Kinds))
		for _, kind := range q.Kinds {
			kindArgs = append(kindArgs, kind)
		}
		builder.Where("kind IN ("+placeholders+")", kindArgs...)
	}

	if len(q.Colors) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(q.Colors)), ",")
		colorArgs := make([]interface{}, 0, len(q.Colors))
		for _, color := range q.Colors {
			colorArgs = append(colorArgs, color)
		}
		builder.Where("color IN ("+placeholders+")", colorArgs...)
	}

	if len(q.Tags) > 0 {
		for _, t := range q.Tags {
			builder.Where("name LIKE ?", "%#"+t+"%")
		}
	}

	if len(q.Text) > 0 {
		for _, term := range q.Text {
			if strings.TrimSpace(term) == "" {
				continue
			}
			builder.Where("name LIKE ?", "%"+term+"%")
		}
	}

	query, args := builder.OrderBy("sort_order ASC, created_at ASC").Build()
	matches, err := d.queryActivities(ctx, "search", query, args...)
	if err != nil {
		return nil, err
	}
	if len(q.Tags) == 0 {
		return matches, nil
	}

	// LIKE '%#run%' also matches #running; confirm tags against the
	// extracted set.
	var out []models.Activity
	for _, a := range matches {
		if hasAllTags(a.Name, q.Tags) {
			out = append(out, a)
		}
	}
	return out, nil
}

func hasAllTags(name string, want []string) bool {
	have := util.ExtractTags(name)
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}
