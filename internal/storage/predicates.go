package storage

import (
	"fmt"
	"strings"

	"pulse-analytics/internal/model"
)

// placeholders yields consecutive bind markers in a backend's dialect.
type placeholders func() string

// questionMarks returns ClickHouse-style positional markers.
func questionMarks() placeholders {
	return func() string { return "?" }
}

// dollarSigns returns Postgres-style numbered markers. The same generator is
// reused for trailing parameters (limits) so numbering stays contiguous.
func dollarSigns() placeholders {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}
}

// filterSQL renders the shared filter-application rule: project id exact
// match, event time within the inclusive calendar-day range (end-exclusive on
// the following midnight), plus optional exact-match predicates. Both
// variants build their WHERE clauses through this single function.
func filterSQL(f model.QueryFilter, next placeholders) (string, []any) {
	from, to := f.TimeRange()
	conds := []string{
		"project_id = " + next(),
		"event_time >= " + next(),
		"event_time < " + next(),
	}
	args := []any{f.ProjectID, from, to}

	optional := []struct {
		column string
		value  string
	}{
		{"event_type", f.EventType},
		{"user_id", f.UserID},
		{"session_id", f.SessionID},
		{"page_path", f.PagePath},
		{"country", f.Country},
	}
	for _, opt := range optional {
		if opt.value == "" {
			continue
		}
		conds = append(conds, opt.column+" = "+next())
		args = append(args, opt.value)
	}
	return strings.Join(conds, " AND "), args
}
