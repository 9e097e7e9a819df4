package query

import (
	"time"

	"pulse-analytics/internal/model"
)

const dateLayout = "2006-01-02"

// Params are the unvalidated key-value filter parameters taken from an
// inbound analytics query request.
type Params struct {
	ProjectID string
	StartDate string
	EndDate   string
	EventType string
	UserID    string
	SessionID string
	PagePath  string
	Country   string
}

// ResolveFilter validates and normalizes raw request parameters into the
// canonical filter consumed by every storage variant. It performs no I/O.
func ResolveFilter(p Params) (model.QueryFilter, error) {
	if p.ProjectID == "" {
		return model.QueryFilter{}, &model.ValidationError{Field: "projectId", Message: "required"}
	}
	start, err := time.ParseInLocation(dateLayout, p.StartDate, time.UTC)
	if err != nil {
		return model.QueryFilter{}, &model.ValidationError{Field: "startDate", Message: "must be a YYYY-MM-DD date"}
	}
	end, err := time.ParseInLocation(dateLayout, p.EndDate, time.UTC)
	if err != nil {
		return model.QueryFilter{}, &model.ValidationError{Field: "endDate", Message: "must be a YYYY-MM-DD date"}
	}
	if start.After(end) {
		return model.QueryFilter{}, &model.ValidationError{Field: "startDate", Message: "must not be after endDate"}
	}
	return model.QueryFilter{
		ProjectID: p.ProjectID,
		StartDate: start,
		EndDate:   end,
		EventType: p.EventType,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		PagePath:  p.PagePath,
		Country:   p.Country,
	}, nil
}

// ResolveGranularity maps the request parameter onto a supported bucket size,
// defaulting to daily buckets when unset.
func ResolveGranularity(s string) (model.Granularity, error) {
	if s == "" {
		return model.GranularityDay, nil
	}
	g := model.Granularity(s)
	if !g.Valid() {
		return "", &model.ValidationError{Field: "granularity", Message: "must be hour or day"}
	}
	return g, nil
}
