package model

import "time"

// RawEvent is the payload delivered by the transport layer, one per stream record.
type RawEvent struct {
	ProjectID   string         `json:"projectId"`
	EventType   string         `json:"eventType"`
	Timestamp   int64          `json:"timestamp"` // milliseconds epoch
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Context     *EventContext  `json:"context,omitempty"`
}

// EventContext carries transport-supplied metadata about the client.
type EventContext struct {
	Page       *PageContext   `json:"page,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Locale     string         `json:"locale,omitempty"`
	Screen     *ScreenContext `json:"screen,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Geo        *GeoContext    `json:"geo,omitempty"`
	ReceivedAt int64          `json:"receivedAt,omitempty"` // milliseconds epoch
}

// PageContext describes the page the event was emitted from.
type PageContext struct {
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Path     string `json:"path,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// ScreenContext holds the client viewport dimensions.
type ScreenContext struct {
	Width  *int32 `json:"width,omitempty"`
	Height *int32 `json:"height,omitempty"`
}

// GeoContext is geo enrichment supplied by the transport layer. The core never
// resolves IPs itself.
type GeoContext struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
}

// CanonicalEventRow is the normalized, storage-ready representation of one
// event. Exactly one row is written per ingested event; rows are immutable.
type CanonicalEventRow struct {
	EventID     string    `json:"eventId"`
	ProjectID   string    `json:"projectId"`
	EventType   string    `json:"eventType"`
	EventTime   time.Time `json:"eventTime"`
	ReceivedAt  time.Time `json:"receivedAt"`
	SessionID   *string   `json:"sessionId"`
	UserID      *string   `json:"userId"`
	AnonymousID *string   `json:"anonymousId"`

	PageURL      *string `json:"pageUrl"`
	PageTitle    *string `json:"pageTitle"`
	PagePath     *string `json:"pagePath"`
	PageReferrer *string `json:"pageReferrer"`

	BrowserName    *string `json:"browserName"`
	BrowserVersion *string `json:"browserVersion"`
	OSName         *string `json:"osName"`
	OSVersion      *string `json:"osVersion"`
	DeviceType     *string `json:"deviceType"`

	ScreenWidth  *int32 `json:"screenWidth"`
	ScreenHeight *int32 `json:"screenHeight"`

	Country   *string `json:"country"`
	City      *string `json:"city"`
	Region    *string `json:"region"`
	IPAddress *string `json:"ipAddress"`
	Locale    *string `json:"locale"`

	// Properties is the event's custom data serialized as a JSON string, nil
	// when the input carried none. Queried only through backend-specific JSON
	// extraction.
	Properties *string `json:"properties"`
}
