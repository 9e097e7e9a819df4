package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"pulse-analytics/internal/model"
)

// ClickHouseConfig carries the native-protocol connection settings.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// ClickHouseStore is the columnar analytical backend variant. Batches go
// through the native block protocol; the properties blob is queried with
// JSONExtract functions.
type ClickHouseStore struct {
	conn clickhouse.Conn
}

// NewClickHouseStore opens a native connection pool and verifies
// connectivity. Built once per process, closed on shutdown.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: 5 * time.Second,
		MaxOpenConns: 8,
		MaxIdleConns: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, storageErr("ping", err)
	}
	return &ClickHouseStore{conn: conn}, nil
}

// Close releases the connection pool.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the event table. ReplacingMergeTree keyed on
// (project_id, event_time, event_id) collapses redelivered rows that carry
// the same deterministic id.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events
(
	event_id        UUID,
	project_id      LowCardinality(String),
	event_type      LowCardinality(String),
	event_time      DateTime64(3, 'UTC'),
	received_at     DateTime64(3, 'UTC'),
	session_id      Nullable(String),
	user_id         Nullable(String),
	anonymous_id    Nullable(String),
	page_url        Nullable(String),
	page_title      Nullable(String),
	page_path       Nullable(String),
	page_referrer   Nullable(String),
	browser_name    LowCardinality(Nullable(String)),
	browser_version Nullable(String),
	os_name         LowCardinality(Nullable(String)),
	os_version      Nullable(String),
	device_type     LowCardinality(Nullable(String)),
	screen_width    Nullable(Int32),
	screen_height   Nullable(Int32),
	country         LowCardinality(Nullable(String)),
	city            Nullable(String),
	region          Nullable(String),
	ip_address      Nullable(String),
	locale          Nullable(String),
	properties      Nullable(String),
	INDEX idx_properties properties TYPE tokenbf_v1(512, 3, 0) GRANULARITY 4
)
ENGINE = ReplacingMergeTree(received_at)
PARTITION BY toYYYYMM(event_time)
ORDER BY (project_id, event_time, event_id)`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return storageErr("ensure schema", err)
	}
	return nil
}

// InsertEvents appends the batch to one native block and sends it atomically.
func (s *ClickHouseStore) InsertEvents(ctx context.Context, rows []model.CanonicalEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
INSERT INTO events (
	event_id, project_id, event_type, event_time, received_at,
	session_id, user_id, anonymous_id,
	page_url, page_title, page_path, page_referrer,
	browser_name, browser_version, os_name, os_version, device_type,
	screen_width, screen_height,
	country, city, region, ip_address, locale,
	properties
)`)
	if err != nil {
		return storageErr("prepare batch", err)
	}
	for _, row := range rows {
		if err := batch.Append(
			row.EventID, row.ProjectID, row.EventType, row.EventTime, row.ReceivedAt,
			row.SessionID, row.UserID, row.AnonymousID,
			row.PageURL, row.PageTitle, row.PagePath, row.PageReferrer,
			row.BrowserName, row.BrowserVersion, row.OSName, row.OSVersion, row.DeviceType,
			row.ScreenWidth, row.ScreenHeight,
			row.Country, row.City, row.Region, row.IPAddress, row.Locale,
			row.Properties,
		); err != nil {
			_ = batch.Abort()
			return storageErr("append batch", err)
		}
	}
	if err := batch.Send(); err != nil {
		return storageErr("send batch", err)
	}
	return nil
}

// Overview returns the headline counters over the filtered row set.
func (s *ClickHouseStore) Overview(ctx context.Context, f model.QueryFilter) (model.OverviewMetrics, error) {
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(`
SELECT count() AS total,
	countIf(event_type = 'pageview') AS pageviews,
	uniqExact(session_id) AS sessions,
	uniqExact(anonymous_id) AS visitors,
	uniqExact(user_id) AS users
FROM events
WHERE %s`, where)

	var total, pageviews, sessions, visitors, users uint64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&total, &pageviews, &sessions, &visitors, &users); err != nil {
		return model.OverviewMetrics{}, storageErr("overview", err)
	}
	return model.OverviewMetrics{
		TotalEvents:    int64(total),
		TotalPageviews: int64(pageviews),
		UniqueSessions: int64(sessions),
		UniqueVisitors: int64(visitors),
		UniqueUsers:    int64(users),
	}, nil
}

// PageViews ranks pageview rows by path, ties broken by path for determinism.
func (s *ClickHouseStore) PageViews(ctx context.Context, f model.QueryFilter, limit int) ([]model.PageViewStat, error) {
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(`
SELECT assumeNotNull(page_path) AS path, count() AS views
FROM events
WHERE %s AND event_type = 'pageview' AND page_path IS NOT NULL
GROUP BY path
ORDER BY views DESC, path ASC
LIMIT ?`, where)
	args = append(args, clampLimit(limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("page views", err)
	}
	defer rows.Close()

	var out []model.PageViewStat
	for rows.Next() {
		var path string
		var views uint64
		if err := rows.Scan(&path, &views); err != nil {
			return nil, storageErr("page views", err)
		}
		out = append(out, model.PageViewStat{PagePath: path, Views: int64(views)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("page views", err)
	}
	return out, nil
}

// Referrers groups by referrer hostname via domain(); empty referrers are
// excluded.
func (s *ClickHouseStore) Referrers(ctx context.Context, f model.QueryFilter, limit int) ([]model.ReferrerStat, error) {
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(`
SELECT domain(assumeNotNull(page_referrer)) AS ref_domain, count() AS visits
FROM events
WHERE %s AND page_referrer IS NOT NULL AND page_referrer != ''
GROUP BY ref_domain
HAVING ref_domain != ''
ORDER BY visits DESC, ref_domain ASC
LIMIT ?`, where)
	args = append(args, clampLimit(limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("referrers", err)
	}
	defer rows.Close()

	var out []model.ReferrerStat
	for rows.Next() {
		var domain string
		var visits uint64
		if err := rows.Scan(&domain, &visits); err != nil {
			return nil, storageErr("referrers", err)
		}
		out = append(out, model.ReferrerStat{Domain: domain, Visits: int64(visits)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("referrers", err)
	}
	return out, nil
}

// DeviceStats runs the three device-dimension breakdowns over pageview rows.
func (s *ClickHouseStore) DeviceStats(ctx context.Context, f model.QueryFilter) (model.DeviceStats, error) {
	var stats model.DeviceStats

	where, args := filterSQL(f, questionMarks())
	deviceQuery := fmt.Sprintf(`
SELECT assumeNotNull(device_type) AS device, count() AS total
FROM events
WHERE %s AND event_type = 'pageview' AND device_type IS NOT NULL
GROUP BY device
ORDER BY total DESC, device ASC`, where)
	rows, err := s.conn.Query(ctx, deviceQuery, args...)
	if err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}
	for rows.Next() {
		var device string
		var total uint64
		if err := rows.Scan(&device, &total); err != nil {
			rows.Close()
			return model.DeviceStats{}, storageErr("device stats", err)
		}
		stats.Devices = append(stats.Devices, model.DeviceStat{DeviceType: device, Count: int64(total)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	where, args = filterSQL(f, questionMarks())
	browserQuery := fmt.Sprintf(`
SELECT assumeNotNull(browser_name) AS name, coalesce(browser_version, '') AS version, count() AS total
FROM events
WHERE %s AND event_type = 'pageview' AND browser_name IS NOT NULL
GROUP BY name, version
ORDER BY total DESC, name ASC
LIMIT %d`, where, breakdownLimit)
	rows, err = s.conn.Query(ctx, browserQuery, args...)
	if err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}
	for rows.Next() {
		var name, version string
		var total uint64
		if err := rows.Scan(&name, &version, &total); err != nil {
			rows.Close()
			return model.DeviceStats{}, storageErr("device stats", err)
		}
		stats.Browsers = append(stats.Browsers, model.BrowserStat{Name: name, Version: version, Count: int64(total)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	where, args = filterSQL(f, questionMarks())
	osQuery := fmt.Sprintf(`
SELECT assumeNotNull(os_name) AS name, coalesce(os_version, '') AS version, count() AS total
FROM events
WHERE %s AND event_type = 'pageview' AND os_name IS NOT NULL
GROUP BY name, version
ORDER BY total DESC, name ASC
LIMIT %d`, where, breakdownLimit)
	rows, err = s.conn.Query(ctx, osQuery, args...)
	if err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}
	for rows.Next() {
		var name, version string
		var total uint64
		if err := rows.Scan(&name, &version, &total); err != nil {
			rows.Close()
			return model.DeviceStats{}, storageErr("device stats", err)
		}
		stats.OperatingSystems = append(stats.OperatingSystems, model.OSStat{Name: name, Version: version, Count: int64(total)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	return stats, nil
}

// SELECT aliases are visible inside WHERE in ClickHouse and win over column
// names by default, so the aliases here must not reuse a column referenced by
// a predicate. geo_country keeps the null check bound to the column.
const geoStatsQuery = `
SELECT assumeNotNull(country) AS geo_country, coalesce(city, '') AS geo_city, count() AS total
FROM events
WHERE %s AND event_type = 'pageview' AND country IS NOT NULL
GROUP BY geo_country, geo_city
ORDER BY total DESC, geo_country ASC, geo_city ASC
LIMIT ?`

// GeoStats groups pageviews by country and city; rows without a country are
// excluded.
func (s *ClickHouseStore) GeoStats(ctx context.Context, f model.QueryFilter, limit int) ([]model.GeoStat, error) {
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(geoStatsQuery, where)
	args = append(args, clampLimit(limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("geo stats", err)
	}
	defer rows.Close()

	var out []model.GeoStat
	for rows.Next() {
		var country, city string
		var total uint64
		if err := rows.Scan(&country, &city, &total); err != nil {
			return nil, storageErr("geo stats", err)
		}
		out = append(out, model.GeoStat{Country: country, City: city, Count: int64(total)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("geo stats", err)
	}
	return out, nil
}

// TimeSeries buckets event times with toStartOfHour/toStartOfDay, one point
// per non-empty bucket in ascending order.
func (s *ClickHouseStore) TimeSeries(ctx context.Context, f model.QueryFilter, g model.Granularity) ([]model.TimeSeriesPoint, error) {
	var bucketFn string
	switch g {
	case model.GranularityHour:
		bucketFn = "toStartOfHour"
	case model.GranularityDay:
		bucketFn = "toStartOfDay"
	default:
		return nil, &model.ValidationError{Field: "granularity", Message: "must be hour or day"}
	}
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(`
SELECT %s(event_time) AS bucket,
	count() AS events,
	countIf(event_type = 'pageview') AS pageviews,
	uniqExact(session_id) AS sessions,
	uniqExact(anonymous_id) AS visitors
FROM events
WHERE %s
GROUP BY bucket
ORDER BY bucket ASC`, bucketFn, where)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("time series", err)
	}
	defer rows.Close()

	var out []model.TimeSeriesPoint
	for rows.Next() {
		var bucket time.Time
		var events, pageviews, sessions, visitors uint64
		if err := rows.Scan(&bucket, &events, &pageviews, &sessions, &visitors); err != nil {
			return nil, storageErr("time series", err)
		}
		out = append(out, model.TimeSeriesPoint{
			Bucket:    bucket,
			Events:    int64(events),
			Pageviews: int64(pageviews),
			Sessions:  int64(sessions),
			Visitors:  int64(visitors),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("time series", err)
	}
	return out, nil
}

// WebVitals aggregates webvital rows by the metric name inside the properties
// blob, reporting quantiles of the numeric value and rating-bucket counts.
func (s *ClickHouseStore) WebVitals(ctx context.Context, f model.QueryFilter) ([]model.WebVitalMetric, error) {
	where, args := filterSQL(f, questionMarks())
	query := fmt.Sprintf(`
SELECT JSONExtractString(assumeNotNull(properties), 'metric') AS metric,
	quantile(0.50)(JSONExtractFloat(assumeNotNull(properties), 'value')) AS p50,
	quantile(0.75)(JSONExtractFloat(assumeNotNull(properties), 'value')) AS p75,
	quantile(0.95)(JSONExtractFloat(assumeNotNull(properties), 'value')) AS p95,
	quantile(0.99)(JSONExtractFloat(assumeNotNull(properties), 'value')) AS p99,
	countIf(JSONExtractString(assumeNotNull(properties), 'rating') = 'good') AS good,
	countIf(JSONExtractString(assumeNotNull(properties), 'rating') = 'needs-improvement') AS needs_improvement,
	countIf(JSONExtractString(assumeNotNull(properties), 'rating') = 'poor') AS poor
FROM events
WHERE %s AND event_type = 'webvital' AND properties IS NOT NULL
GROUP BY metric
HAVING metric != ''
ORDER BY metric ASC`, where)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("web vitals", err)
	}
	defer rows.Close()

	var out []model.WebVitalMetric
	for rows.Next() {
		var m model.WebVitalMetric
		var good, needsImprovement, poor uint64
		if err := rows.Scan(&m.Metric, &m.P50, &m.P75, &m.P95, &m.P99,
			&good, &needsImprovement, &poor); err != nil {
			return nil, storageErr("web vitals", err)
		}
		m.GoodCount = int64(good)
		m.NeedsImprovementCount = int64(needsImprovement)
		m.PoorCount = int64(poor)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("web vitals", err)
	}
	return out, nil
}
