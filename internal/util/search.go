package util

import (
	"regexp"
	"strings"
)

// SearchQuery is the structured form of a list filter string. Prefixed
// terms narrow one field each; everything left over matches names.
type SearchQuery struct {
	Tags   []string
	Kinds  []string
	Colors []string
	Text   []string
}

// Empty reports whether the query constrains anything.
func (q SearchQuery) Empty() bool {
	return len(q.Tags) == 0 && len(q.Kinds) == 0 && len(q.Colors) == 0 && len(q.Text) == 0
}

var (
	tagRegex   = regexp.MustCompile(`tag:(\w+)`)
	kindRegex  = regexp.MustCompile(`kind:(\w+)`)
	colorRegex = regexp.MustCompile(`color:(\w+)`)
)

// ParseSearchQuery breaks down a raw filter string into its structured
// components. Extracted values fold to lowercase to match how kinds,
// colors, and tags are stored.
func ParseSearchQuery(query string) SearchQuery {
	sq := SearchQuery{}

	extract := func(re *regexp.Regexp) []string {
		matches := re.FindAllStringSubmatch(query, -1)
		if matches == nil {
			return nil
		}
		var values []string
		for _, match := range matches {
			if len(match) > 1 {
				values = append(values, strings.ToLower(match[1]))
			}
		}
		query = re.ReplaceAllString(query, "")
		return values
	}

	sq.Tags = extract(tagRegex)
	sq.Kinds = extract(kindRegex)
	sq.Colors = extract(colorRegex)
	sq.Text = strings.Fields(query)

	return sq
}
