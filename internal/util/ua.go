package util

import (
	"regexp"
	"strings"
)

// Agent holds the device facet parsed from a User-Agent string. A nil field
// means that sub-field could not be classified; partial parses are expected.
type Agent struct {
	BrowserName    *string
	BrowserVersion *string
	OSName         *string
	OSVersion      *string
	DeviceType     *string
}

var (
	edgeVersion    = regexp.MustCompile(`edg(?:e|ios|a)?/([0-9.]+)`)
	operaVersion   = regexp.MustCompile(`(?:opr|opera)[/ ]([0-9.]+)`)
	chromeVersion  = regexp.MustCompile(`(?:chrome|crios)/([0-9.]+)`)
	firefoxVersion = regexp.MustCompile(`(?:firefox|fxios)/([0-9.]+)`)
	safariVersion  = regexp.MustCompile(`version/([0-9.]+)`)
	windowsVersion = regexp.MustCompile(`windows nt ([0-9.]+)`)
	macVersion     = regexp.MustCompile(`mac os x ([0-9_.]+)`)
	iosVersion     = regexp.MustCompile(`os ([0-9_]+) like mac os x`)
	androidVersion = regexp.MustCompile(`android ([0-9.]+)`)
)

// ParseAgent performs a best-effort classification of a raw User-Agent string.
// An empty UA yields a zero Agent; an unrecognizable but present UA still
// classifies the device type as desktop.
func ParseAgent(ua string) Agent {
	if ua == "" {
		return Agent{}
	}
	lower := strings.ToLower(ua)

	var a Agent
	a.BrowserName, a.BrowserVersion = parseBrowser(lower)
	a.OSName, a.OSVersion = parseOS(lower)
	a.DeviceType = strPtr(parseDeviceType(lower))
	return a
}

func parseBrowser(ua string) (name, version *string) {
	switch {
	case edgeVersion.MatchString(ua):
		return strPtr("edge"), matchVersion(edgeVersion, ua)
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return strPtr("opera"), matchVersion(operaVersion, ua)
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return strPtr("chrome"), matchVersion(chromeVersion, ua)
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return strPtr("firefox"), matchVersion(firefoxVersion, ua)
	case strings.Contains(ua, "safari"):
		return strPtr("safari"), matchVersion(safariVersion, ua)
	default:
		return nil, nil
	}
}

func parseOS(ua string) (name, version *string) {
	switch {
	case strings.Contains(ua, "windows"):
		return strPtr("windows"), matchVersion(windowsVersion, ua)
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod"):
		return strPtr("ios"), dotted(matchVersion(iosVersion, ua))
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macos") || strings.Contains(ua, "darwin"):
		return strPtr("macos"), dotted(matchVersion(macVersion, ua))
	case strings.Contains(ua, "android"):
		return strPtr("android"), matchVersion(androidVersion, ua)
	case strings.Contains(ua, "linux"):
		return strPtr("linux"), nil
	default:
		return nil, nil
	}
}

func parseDeviceType(ua string) string {
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

func matchVersion(re *regexp.Regexp, ua string) *string {
	m := re.FindStringSubmatch(ua)
	if len(m) < 2 || m[1] == "" {
		return nil
	}
	return strPtr(m[1])
}

// dotted normalizes Apple's underscore-separated version tokens.
func dotted(v *string) *string {
	if v == nil {
		return nil
	}
	return strPtr(strings.ReplaceAll(*v, "_", "."))
}

func strPtr(s string) *string { return &s }

// IsBot checks if a UA matches a configurable deny list.
func IsBot(ua string, denyList []string) bool {
	if ua == "" {
		return false
	}
	uaLower := strings.ToLower(ua)
	for _, fragment := range denyList {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if fragment == "" {
			continue
		}
		if strings.Contains(uaLower, fragment) {
			return true
		}
	}
	return false
}
