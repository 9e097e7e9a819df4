package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAgentChromeWindows(t *testing.T) {
	a := ParseAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36")
	require.NotNil(t, a.BrowserName)
	require.Equal(t, "chrome", *a.BrowserName)
	require.Equal(t, "120.0.0.0", *a.BrowserVersion)
	require.Equal(t, "windows", *a.OSName)
	require.Equal(t, "10.0", *a.OSVersion)
	require.Equal(t, "desktop", *a.DeviceType)
}

func TestParseAgentSafariIPhone(t *testing.T) {
	a := ParseAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 Version/17.2 Mobile/15E148 Safari/604.1")
	require.Equal(t, "safari", *a.BrowserName)
	require.Equal(t, "17.2", *a.BrowserVersion)
	require.Equal(t, "ios", *a.OSName)
	require.Equal(t, "17.2", *a.OSVersion)
	require.Equal(t, "mobile", *a.DeviceType)
}

func TestParseAgentEdge(t *testing.T) {
	a := ParseAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91")
	require.Equal(t, "edge", *a.BrowserName)
	require.Equal(t, "120.0.2210.91", *a.BrowserVersion)
}

func TestParseAgentFirefoxLinux(t *testing.T) {
	a := ParseAgent("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	require.Equal(t, "firefox", *a.BrowserName)
	require.Equal(t, "121.0", *a.BrowserVersion)
	require.Equal(t, "linux", *a.OSName)
	require.Nil(t, a.OSVersion)
}

func TestParseAgentUnrecognizable(t *testing.T) {
	a := ParseAgent("totally-custom-agent/0.1")
	require.Nil(t, a.BrowserName)
	require.Nil(t, a.BrowserVersion)
	require.Nil(t, a.OSName)
	require.NotNil(t, a.DeviceType)
	require.Equal(t, "desktop", *a.DeviceType)
}

func TestParseAgentEmpty(t *testing.T) {
	a := ParseAgent("")
	require.Nil(t, a.BrowserName)
	require.Nil(t, a.OSName)
	require.Nil(t, a.DeviceType)
}

func TestParseAgentAndroidTablet(t *testing.T) {
	a := ParseAgent("Mozilla/5.0 (Linux; Android 13; SM-X700 Tablet) AppleWebKit/537.36 Chrome/118.0.0.0 Safari/537.36")
	require.Equal(t, "android", *a.OSName)
	require.Equal(t, "13", *a.OSVersion)
	require.Equal(t, "tablet", *a.DeviceType)
}

func TestIsBot(t *testing.T) {
	deny := []string{"bot", "crawler", "spider"}
	require.True(t, IsBot("Googlebot/2.1 (+http://www.google.com/bot.html)", deny))
	require.False(t, IsBot("Mozilla/5.0 Chrome/120.0", deny))
	require.False(t, IsBot("", deny))
}
