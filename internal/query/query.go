// Package query builds the web search queries for a discovery run.
package query

import (
	"fmt"
	"time"
)

// phraseTemplates are crossed with each category and year. %s is the
// category, %d the year.
var phraseTemplates = []string{
	"%s demo day %d",
	"%s demo event %d",
	"try before you buy %s %d",
}

// Build returns the ordered list of search queries for the given categories,
// geographic scope, and reference date. Each category yields one query per
// phrase template for the current and next calendar year. Pure: same inputs,
// same output.
func Build(categories []string, scope string, now time.Time) []string {
	years := []int{now.Year(), now.Year() + 1}

	var queries []string
	for _, category := range categories {
		for _, tmpl := range phraseTemplates {
			for _, year := range years {
				q := fmt.Sprintf(tmpl, category, year)
				if scope != "" {
					q += " " + scope
				}
				queries = append(queries, q)
			}
		}
	}
	return queries
}
