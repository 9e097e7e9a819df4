package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressedEventDecodePageview(t *testing.T) {
	payload := `{
		"en": "pageview",
		"ts": 1767225600000,
		"o": "https://example.com/pricing?plan=pro",
		"r": "https://google.com/",
		"sw": 1920,
		"sh": 1080
	}`

	var e CompressedEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	require.NoError(t, e.Validate())
	require.Equal(t, "pageview", e.EventName)
	require.Equal(t, int64(1767225600000), e.Timestamp)
	require.Equal(t, "https://example.com/pricing?plan=pro", e.Origin)
	require.Equal(t, "https://google.com/", e.Referrer)
	require.Equal(t, int32(1920), e.ScreenWidth)
	require.Equal(t, int32(1080), e.ScreenHeight)
	require.Nil(t, e.EventData)
}

func TestCompressedEventDecodeWebVital(t *testing.T) {
	payload := `{
		"en": "webvital",
		"ts": 1767225600000,
		"o": "https://example.com/",
		"sw": 390,
		"sh": 844,
		"ed": {"metric": "LCP", "value": 2412.5, "rating": "good"}
	}`

	var e CompressedEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	require.NoError(t, e.Validate())
	require.Equal(t, "webvital", e.EventName)
	require.Equal(t, "LCP", e.EventData["metric"])
	require.Equal(t, 2412.5, e.EventData["value"])
	require.Equal(t, "good", e.EventData["rating"])
}

func TestCompressedEventValidate(t *testing.T) {
	cases := []struct {
		name  string
		event CompressedEvent
		field string
	}{
		{"missing name", CompressedEvent{Origin: "https://example.com/"}, "en"},
		{"missing origin", CompressedEvent{EventName: "pageview"}, "o"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestCompressedEventExpand(t *testing.T) {
	e := CompressedEvent{
		EventName:    "signup_click",
		Timestamp:    1767225600000,
		Origin:       "https://example.com/pricing",
		Referrer:     "https://news.ycombinator.com/",
		ScreenWidth:  1440,
		ScreenHeight: 900,
		EventData:    map[string]any{"plan": "pro"},
	}

	raw := e.Expand("proj-1", "user-7")

	require.Equal(t, "proj-1", raw.ProjectID)
	require.Equal(t, "signup_click", raw.EventType)
	require.Equal(t, int64(1767225600000), raw.Timestamp)
	require.Equal(t, "user-7", raw.UserID)

	require.Equal(t, "https://example.com/pricing", raw.Properties["url"])
	require.Equal(t, "https://news.ycombinator.com/", raw.Properties["referrer"])
	require.Equal(t, int32(1440), raw.Properties["screen_width"])
	require.Equal(t, "pro", raw.Properties["plan"])

	require.NotNil(t, raw.Context)
	require.NotNil(t, raw.Context.Page)
	require.Equal(t, "https://example.com/pricing", raw.Context.Page.URL)
	require.Equal(t, "https://news.ycombinator.com/", raw.Context.Page.Referrer)
	require.NotNil(t, raw.Context.Screen)
	require.Equal(t, int32(1440), *raw.Context.Screen.Width)
	require.Equal(t, int32(900), *raw.Context.Screen.Height)
}

func TestCompressedEventExpandWithoutReferrer(t *testing.T) {
	e := CompressedEvent{
		EventName: "pageview",
		Timestamp: 1767225600000,
		Origin:    "https://example.com/",
	}

	raw := e.Expand("proj-1", "")
	require.NotContains(t, raw.Properties, "referrer")
	require.Empty(t, raw.Context.Page.Referrer)
	require.Empty(t, raw.UserID)
}
