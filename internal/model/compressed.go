package model

// CompressedEvent is the abbreviated wire format emitted by the browser
// tracking script (Vercel Analytics style). Both pageviews and custom events
// arrive in this shape.
type CompressedEvent struct {
	EventName    string         `json:"en"`
	Timestamp    int64          `json:"ts"` // milliseconds epoch
	Origin       string         `json:"o"`  // full page URL
	Referrer     string         `json:"r"`
	ScreenWidth  int32          `json:"sw"`
	ScreenHeight int32          `json:"sh"`
	EventData    map[string]any `json:"ed,omitempty"`
}

// Validate checks the fields the tracking script must always send.
func (e *CompressedEvent) Validate() error {
	if e.EventName == "" {
		return &ValidationError{Field: "en", Message: "event name is required"}
	}
	if e.Origin == "" {
		return &ValidationError{Field: "o", Message: "origin is required"}
	}
	return nil
}

// Expand converts the compressed payload into a RawEvent. The project id comes
// from the authenticated request, never from the payload itself.
func (e *CompressedEvent) Expand(projectID, userID string) RawEvent {
	props := map[string]any{
		"url":           e.Origin,
		"screen_width":  e.ScreenWidth,
		"screen_height": e.ScreenHeight,
	}
	if e.Referrer != "" {
		props["referrer"] = e.Referrer
	}
	for k, v := range e.EventData {
		props[k] = v
	}

	page := &PageContext{URL: e.Origin}
	if e.Referrer != "" {
		page.Referrer = e.Referrer
	}
	sw, sh := e.ScreenWidth, e.ScreenHeight

	return RawEvent{
		ProjectID:  projectID,
		EventType:  e.EventName,
		Timestamp:  e.Timestamp,
		UserID:     userID,
		Properties: props,
		Context: &EventContext{
			Page:   page,
			Screen: &ScreenContext{Width: &sw, Height: &sh},
		},
	}
}
