package textsearch

import (
	"strings"

	"github.com/smartshopper/visearch/core"
)

// QueryFromAttributes translates extracted image attributes into a
// keyword query, so an image-only request still gets text-engine
// assisted retrieval. Attribute values become search terms; the
// extracted category additionally narrows the filters when the caller
// did not set one.
func QueryFromAttributes(attrs core.AttributeSet, filters core.Filters) (string, core.Filters) {
	if len(attrs) == 0 {
		return "", filters
	}

	query := strings.Join(attrs.Terms(), " ")

	if filters.Category == "" {
		if category := attrs.Category(); category != "" {
			filters.Category = category
		}
	}

	return query, filters
}

// AugmentQuery appends attribute terms to a user text query as boost
// terms, keeping the original query first
func AugmentQuery(textQuery string, attrs core.AttributeSet) string {
	terms := attrs.Terms()
	if len(terms) == 0 {
		return textQuery
	}
	if strings.TrimSpace(textQuery) == "" {
		return strings.Join(terms, " ")
	}
	return textQuery + " " + strings.Join(terms, " ")
}
