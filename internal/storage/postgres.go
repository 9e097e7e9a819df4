package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"pulse-analytics/internal/model"
)

// PostgresStore is the transactional relational backend variant. Batches are
// written inside a single transaction; the jsonb properties column is queried
// with ->> extraction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a bounded connection pool and verifies connectivity.
// The handle is built once per process and closed on shutdown.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("ping", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle; used by tests.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the wide event table and the read-path indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
	event_id        UUID PRIMARY KEY,
	project_id      TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	event_time      TIMESTAMPTZ NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL,
	session_id      TEXT,
	user_id         TEXT,
	anonymous_id    TEXT,
	page_url        TEXT,
	page_title      TEXT,
	page_path       TEXT,
	page_referrer   TEXT,
	browser_name    TEXT,
	browser_version TEXT,
	os_name         TEXT,
	os_version      TEXT,
	device_type     TEXT,
	screen_width    INTEGER,
	screen_height   INTEGER,
	country         TEXT,
	city            TEXT,
	region          TEXT,
	ip_address      TEXT,
	locale          TEXT,
	properties      JSONB
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return storageErr("ensure schema", err)
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_project_time ON events (project_id, event_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_type_time ON events (project_id, event_type, event_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events (session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user ON events (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_anonymous ON events (anonymous_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_path_time ON events (project_id, page_path, event_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_geo ON events (project_id, country, city)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_device ON events (project_id, device_type, browser_name, os_name)`,
		`CREATE INDEX IF NOT EXISTS idx_events_properties ON events USING GIN (properties)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return storageErr("ensure schema", err)
		}
	}
	return nil
}

const pgInsert = `
INSERT INTO events (
	event_id, project_id, event_type, event_time, received_at,
	session_id, user_id, anonymous_id,
	page_url, page_title, page_path, page_referrer,
	browser_name, browser_version, os_name, os_version, device_type,
	screen_width, screen_height,
	country, city, region, ip_address, locale,
	properties
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
) ON CONFLICT (event_id) DO NOTHING`

// InsertEvents writes the batch inside one transaction. Redelivered rows hit
// the event_id conflict and are silently ignored.
func (s *PostgresStore) InsertEvents(ctx context.Context, rows []model.CanonicalEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin insert", err)
	}
	stmt, err := tx.PrepareContext(ctx, pgInsert)
	if err != nil {
		_ = tx.Rollback()
		return storageErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.EventID, row.ProjectID, row.EventType, row.EventTime, row.ReceivedAt,
			row.SessionID, row.UserID, row.AnonymousID,
			row.PageURL, row.PageTitle, row.PagePath, row.PageReferrer,
			row.BrowserName, row.BrowserVersion, row.OSName, row.OSVersion, row.DeviceType,
			row.ScreenWidth, row.ScreenHeight,
			row.Country, row.City, row.Region, row.IPAddress, row.Locale,
			row.Properties,
		); err != nil {
			_ = tx.Rollback()
			return storageErr("insert batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit batch", err)
	}
	return nil
}

// Overview returns the headline counters over the filtered row set.
func (s *PostgresStore) Overview(ctx context.Context, f model.QueryFilter) (model.OverviewMetrics, error) {
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT count(*),
	count(*) FILTER (WHERE event_type = 'pageview'),
	count(DISTINCT session_id),
	count(DISTINCT anonymous_id),
	count(DISTINCT user_id)
FROM events
WHERE %s`, where)

	var m model.OverviewMetrics
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&m.TotalEvents, &m.TotalPageviews, &m.UniqueSessions, &m.UniqueVisitors, &m.UniqueUsers,
	)
	if err != nil {
		return model.OverviewMetrics{}, storageErr("overview", err)
	}
	return m, nil
}

// PageViews ranks pageview rows by path, ties broken by path for determinism.
func (s *PostgresStore) PageViews(ctx context.Context, f model.QueryFilter, limit int) ([]model.PageViewStat, error) {
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT page_path, count(*) AS views
FROM events
WHERE %s AND event_type = 'pageview' AND page_path IS NOT NULL
GROUP BY page_path
ORDER BY views DESC, page_path ASC
LIMIT %s`, where, next())
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("page views", err)
	}
	defer rows.Close()

	var out []model.PageViewStat
	for rows.Next() {
		var stat model.PageViewStat
		if err := rows.Scan(&stat.PagePath, &stat.Views); err != nil {
			return nil, storageErr("page views", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("page views", err)
	}
	return out, nil
}

// Referrers groups by referrer hostname; rows without a referrer are excluded.
func (s *PostgresStore) Referrers(ctx context.Context, f model.QueryFilter, limit int) ([]model.ReferrerStat, error) {
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT domain, count(*) AS visits
FROM (
	SELECT split_part(split_part(page_referrer, '//', 2), '/', 1) AS domain
	FROM events
	WHERE %s AND page_referrer IS NOT NULL AND page_referrer <> ''
) r
WHERE domain <> ''
GROUP BY domain
ORDER BY visits DESC, domain ASC
LIMIT %s`, where, next())
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("referrers", err)
	}
	defer rows.Close()

	var out []model.ReferrerStat
	for rows.Next() {
		var stat model.ReferrerStat
		if err := rows.Scan(&stat.Domain, &stat.Visits); err != nil {
			return nil, storageErr("referrers", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("referrers", err)
	}
	return out, nil
}

// DeviceStats runs the three device-dimension breakdowns over pageview rows.
func (s *PostgresStore) DeviceStats(ctx context.Context, f model.QueryFilter) (model.DeviceStats, error) {
	var stats model.DeviceStats

	next := dollarSigns()
	where, args := filterSQL(f, next)
	deviceQuery := fmt.Sprintf(`
SELECT device_type, count(*) AS total
FROM events
WHERE %s AND event_type = 'pageview' AND device_type IS NOT NULL
GROUP BY device_type
ORDER BY total DESC, device_type ASC`, where)
	if err := s.queryGrouped(ctx, deviceQuery, args, func(rows *sql.Rows) error {
		var d model.DeviceStat
		if err := rows.Scan(&d.DeviceType, &d.Count); err != nil {
			return err
		}
		stats.Devices = append(stats.Devices, d)
		return nil
	}); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	next = dollarSigns()
	where, args = filterSQL(f, next)
	browserQuery := fmt.Sprintf(`
SELECT browser_name, coalesce(browser_version, ''), count(*) AS total
FROM events
WHERE %s AND event_type = 'pageview' AND browser_name IS NOT NULL
GROUP BY browser_name, browser_version
ORDER BY total DESC, browser_name ASC
LIMIT %d`, where, breakdownLimit)
	if err := s.queryGrouped(ctx, browserQuery, args, func(rows *sql.Rows) error {
		var b model.BrowserStat
		if err := rows.Scan(&b.Name, &b.Version, &b.Count); err != nil {
			return err
		}
		stats.Browsers = append(stats.Browsers, b)
		return nil
	}); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	next = dollarSigns()
	where, args = filterSQL(f, next)
	osQuery := fmt.Sprintf(`
SELECT os_name, coalesce(os_version, ''), count(*) AS total
FROM events
WHERE %s AND event_type = 'pageview' AND os_name IS NOT NULL
GROUP BY os_name, os_version
ORDER BY total DESC, os_name ASC
LIMIT %d`, where, breakdownLimit)
	if err := s.queryGrouped(ctx, osQuery, args, func(rows *sql.Rows) error {
		var o model.OSStat
		if err := rows.Scan(&o.Name, &o.Version, &o.Count); err != nil {
			return err
		}
		stats.OperatingSystems = append(stats.OperatingSystems, o)
		return nil
	}); err != nil {
		return model.DeviceStats{}, storageErr("device stats", err)
	}

	return stats, nil
}

// GeoStats groups pageviews by country and city; rows without a country are
// excluded.
func (s *PostgresStore) GeoStats(ctx context.Context, f model.QueryFilter, limit int) ([]model.GeoStat, error) {
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT country, coalesce(city, ''), count(*) AS total
FROM events
WHERE %s AND event_type = 'pageview' AND country IS NOT NULL
GROUP BY country, city
ORDER BY total DESC, country ASC, city ASC
LIMIT %s`, where, next())
	args = append(args, clampLimit(limit))

	var out []model.GeoStat
	if err := s.queryGrouped(ctx, query, args, func(rows *sql.Rows) error {
		var g model.GeoStat
		if err := rows.Scan(&g.Country, &g.City, &g.Count); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	}); err != nil {
		return nil, storageErr("geo stats", err)
	}
	return out, nil
}

// TimeSeries buckets event times at the requested granularity, one point per
// non-empty bucket in ascending order. Truncation happens on the UTC wall
// clock, not the server session time zone, so buckets match the other backend
// variant.
func (s *PostgresStore) TimeSeries(ctx context.Context, f model.QueryFilter, g model.Granularity) ([]model.TimeSeriesPoint, error) {
	if !g.Valid() {
		return nil, &model.ValidationError{Field: "granularity", Message: "must be hour or day"}
	}
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT date_trunc('%s', event_time AT TIME ZONE 'UTC') AS bucket,
	count(*),
	count(*) FILTER (WHERE event_type = 'pageview'),
	count(DISTINCT session_id),
	count(DISTINCT anonymous_id)
FROM events
WHERE %s
GROUP BY bucket
ORDER BY bucket ASC`, g, where)

	var out []model.TimeSeriesPoint
	if err := s.queryGrouped(ctx, query, args, func(rows *sql.Rows) error {
		var p model.TimeSeriesPoint
		if err := rows.Scan(&p.Bucket, &p.Events, &p.Pageviews, &p.Sessions, &p.Visitors); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, storageErr("time series", err)
	}
	return out, nil
}

// WebVitals aggregates webvital rows by the metric name inside the properties
// blob, reporting percentiles of the numeric value and rating-bucket counts.
func (s *PostgresStore) WebVitals(ctx context.Context, f model.QueryFilter) ([]model.WebVitalMetric, error) {
	next := dollarSigns()
	where, args := filterSQL(f, next)
	query := fmt.Sprintf(`
SELECT properties->>'metric' AS metric,
	percentile_cont(0.50) WITHIN GROUP (ORDER BY (properties->>'value')::double precision),
	percentile_cont(0.75) WITHIN GROUP (ORDER BY (properties->>'value')::double precision),
	percentile_cont(0.95) WITHIN GROUP (ORDER BY (properties->>'value')::double precision),
	percentile_cont(0.99) WITHIN GROUP (ORDER BY (properties->>'value')::double precision),
	count(*) FILTER (WHERE properties->>'rating' = 'good'),
	count(*) FILTER (WHERE properties->>'rating' = 'needs-improvement'),
	count(*) FILTER (WHERE properties->>'rating' = 'poor')
FROM events
WHERE %s AND event_type = 'webvital' AND properties->>'metric' IS NOT NULL
GROUP BY metric
ORDER BY metric ASC`, where)

	var out []model.WebVitalMetric
	if err := s.queryGrouped(ctx, query, args, func(rows *sql.Rows) error {
		var m model.WebVitalMetric
		var p50, p75, p95, p99 sql.NullFloat64
		if err := rows.Scan(&m.Metric, &p50, &p75, &p95, &p99,
			&m.GoodCount, &m.NeedsImprovementCount, &m.PoorCount); err != nil {
			return err
		}
		m.P50, m.P75, m.P95, m.P99 = p50.Float64, p75.Float64, p95.Float64, p99.Float64
		out = append(out, m)
		return nil
	}); err != nil {
		return nil, storageErr("web vitals", err)
	}
	return out, nil
}

func (s *PostgresStore) queryGrouped(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
