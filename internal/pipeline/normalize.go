package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulse-analytics/internal/model"
	"pulse-analytics/internal/util"
)

// Namespace for content-derived event ids. Re-normalizing a byte-identical
// payload yields the identical id, so a redelivered batch re-inserts under
// ids the storage layer already knows and can ignore.
var eventIDNamespace = uuid.MustParse("9c1db866-4f3e-4f6d-9d27-b7a20f5e8c41")

// Normalize transforms a raw client event into its canonical stored form. It
// only fails when projectId, eventType or timestamp are missing; every
// optional field degrades to null instead of failing.
func Normalize(raw model.RawEvent) (model.CanonicalEventRow, error) {
	if raw.ProjectID == "" {
		return model.CanonicalEventRow{}, &model.ValidationError{Field: "projectId", Message: "required"}
	}
	if raw.EventType == "" {
		return model.CanonicalEventRow{}, &model.ValidationError{Field: "eventType", Message: "required"}
	}
	if raw.Timestamp == 0 {
		return model.CanonicalEventRow{}, &model.ValidationError{Field: "timestamp", Message: "required"}
	}

	properties, err := serializeProperties(raw.Properties)
	if err != nil {
		return model.CanonicalEventRow{}, &model.ValidationError{Field: "properties", Message: err.Error()}
	}

	row := model.CanonicalEventRow{
		ProjectID:   raw.ProjectID,
		EventType:   raw.EventType,
		EventTime:   time.UnixMilli(raw.Timestamp).UTC(),
		ReceivedAt:  time.Now().UTC(),
		SessionID:   nilIfEmpty(raw.SessionID),
		UserID:      nilIfEmpty(raw.UserID),
		AnonymousID: nilIfEmpty(raw.AnonymousID),
		Properties:  properties,
	}

	if ctx := raw.Context; ctx != nil {
		if ctx.ReceivedAt > 0 {
			row.ReceivedAt = time.UnixMilli(ctx.ReceivedAt).UTC()
		}
		agent := util.ParseAgent(ctx.UserAgent)
		row.BrowserName = agent.BrowserName
		row.BrowserVersion = agent.BrowserVersion
		row.OSName = agent.OSName
		row.OSVersion = agent.OSVersion
		row.DeviceType = agent.DeviceType
		if ctx.Screen != nil {
			row.ScreenWidth = ctx.Screen.Width
			row.ScreenHeight = ctx.Screen.Height
		}
		if ctx.Geo != nil {
			row.Country = nilIfEmpty(ctx.Geo.Country)
			row.City = nilIfEmpty(ctx.Geo.City)
			row.Region = nilIfEmpty(ctx.Geo.Region)
		}
		row.IPAddress = nilIfEmpty(ctx.IP)
		row.Locale = nilIfEmpty(ctx.Locale)
	}

	row.PageURL = pageField(raw, "url", func(p *model.PageContext) string { return p.URL })
	row.PageTitle = pageField(raw, "title", func(p *model.PageContext) string { return p.Title })
	row.PagePath = pageField(raw, "path", func(p *model.PageContext) string { return p.Path })
	row.PageReferrer = pageField(raw, "referrer", func(p *model.PageContext) string { return p.Referrer })

	row.EventID = eventID(raw, row)
	return row, nil
}

// pageField resolves one page facet with the fallback order context.page
// first, then top-level properties, then null. Context always wins.
func pageField(raw model.RawEvent, key string, fromPage func(*model.PageContext) string) *string {
	if raw.Context != nil && raw.Context.Page != nil {
		if v := fromPage(raw.Context.Page); v != "" {
			return &v
		}
	}
	if v, ok := raw.Properties[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// eventID derives a deterministic id from the stable input fields. Client
// clock skew is already folded in via the client timestamp.
func eventID(raw model.RawEvent, row model.CanonicalEventRow) string {
	seed := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		raw.ProjectID,
		raw.EventType,
		raw.Timestamp,
		raw.SessionID,
		raw.UserID,
		raw.AnonymousID,
		deref(row.PagePath),
		deref(row.Properties),
	)
	return uuid.NewSHA1(eventIDNamespace, []byte(seed)).String()
}

// serializeProperties stores absent or empty custom data as null, never as an
// empty string, so the storage layer can tell "no data" from "empty object".
func serializeProperties(props map[string]any) (*string, error) {
	if len(props) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
