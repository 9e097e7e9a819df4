package model

import "time"

// OverviewMetrics summarizes a filtered slice of the event table.
// UniqueUsers counts distinct non-null user ids only.
type OverviewMetrics struct {
	TotalEvents    int64 `json:"totalEvents"`
	TotalPageviews int64 `json:"totalPageviews"`
	UniqueSessions int64 `json:"uniqueSessions"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
	UniqueUsers    int64 `json:"uniqueUsers"`
}

// PageViewStat is one entry of the top-pages ranking.
type PageViewStat struct {
	PagePath string `json:"pagePath"`
	Views    int64  `json:"views"`
}

// ReferrerStat aggregates visits by referrer hostname, not full URL.
type ReferrerStat struct {
	Domain string `json:"domain"`
	Visits int64  `json:"visits"`
}

// DeviceStat is a grouped count over the parsed device type.
type DeviceStat struct {
	DeviceType string `json:"deviceType"`
	Count      int64  `json:"count"`
}

// BrowserStat is a grouped count over browser name and version.
type BrowserStat struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Count   int64  `json:"count"`
}

// OSStat is a grouped count over operating system name and version.
type OSStat struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Count   int64  `json:"count"`
}

// DeviceStats bundles the three device-dimension breakdowns.
type DeviceStats struct {
	Devices          []DeviceStat  `json:"devices"`
	Browsers         []BrowserStat `json:"browsers"`
	OperatingSystems []OSStat      `json:"operatingSystems"`
}

// GeoStat aggregates pageviews by country and city.
type GeoStat struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Count   int64  `json:"count"`
}

// TimeSeriesPoint reports activity within one time bucket. Distinct counts are
// computed per bucket, not carried across buckets.
type TimeSeriesPoint struct {
	Bucket    time.Time `json:"bucket"`
	Events    int64     `json:"events"`
	Pageviews int64     `json:"pageviews"`
	Sessions  int64     `json:"sessions"`
	Visitors  int64     `json:"visitors"`
}

// WebVitalMetric reports percentile and rating-bucket aggregates for one web
// vital (LCP, FID, CLS, TTFB, ...).
type WebVitalMetric struct {
	Metric                string  `json:"metric"`
	P50                   float64 `json:"p50"`
	P75                   float64 `json:"p75"`
	P95                   float64 `json:"p95"`
	P99                   float64 `json:"p99"`
	GoodCount             int64   `json:"goodCount"`
	NeedsImprovementCount int64   `json:"needsImprovementCount"`
	PoorCount             int64   `json:"poorCount"`
}
