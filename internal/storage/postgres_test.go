package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"pulse-analytics/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func sampleRow(eventType string) model.CanonicalEventRow {
	path := "/pricing"
	sess := "sess-1"
	return model.CanonicalEventRow{
		EventID:    "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		ProjectID:  "proj-1",
		EventType:  eventType,
		EventTime:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		ReceivedAt: time.Date(2026, 1, 15, 12, 0, 1, 0, time.UTC),
		SessionID:  &sess,
		PagePath:   &path,
	}
}

func TestInsertEventsCommitsWholeBatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prepared := mock.ExpectPrepare("INSERT INTO events")
	prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InsertEvents(context.Background(), []model.CanonicalEventRow{
		sampleRow("pageview"),
		sampleRow("click"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventsRollsBackOnRowFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prepared := mock.ExpectPrepare("INSERT INTO events")
	prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	err := store.InsertEvents(context.Background(), []model.CanonicalEventRow{
		sampleRow("pageview"),
		sampleRow("click"),
		sampleRow("pageview"),
	})
	require.Error(t, err)

	var se *model.StorageError
	require.True(t, errors.As(err, &se))
	require.False(t, se.Retryable)
	require.NoError(t, mock.ExpectationsWereMet(), "the batch must roll back, leaving no row visible")
}

func TestInsertEventsEmptyBatchIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.InsertEvents(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverviewScansCounters(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	mock.ExpectQuery("SELECT count").
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total", "pageviews", "sessions", "visitors", "users"}).
			AddRow(10, 10, 3, 2, 1))

	m, err := store.Overview(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, model.OverviewMetrics{
		TotalEvents:    10,
		TotalPageviews: 10,
		UniqueSessions: 3,
		UniqueVisitors: 2,
		UniqueUsers:    1,
	}, m)
}

func TestOverviewTimeoutIsRetryable(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()

	mock.ExpectQuery("SELECT count").WillReturnError(context.DeadlineExceeded)

	_, err := store.Overview(context.Background(), f)
	require.Error(t, err)
	require.True(t, model.IsRetryable(err))
}

func TestPageViewsRanking(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	mock.ExpectQuery("SELECT page_path").
		WithArgs(f.ProjectID, from, to, 20).
		WillReturnRows(sqlmock.NewRows([]string{"page_path", "views"}).
			AddRow("/", 40).
			AddRow("/pricing", 12))

	stats, err := store.PageViews(context.Background(), f, 20)
	require.NoError(t, err)
	require.Equal(t, []model.PageViewStat{
		{PagePath: "/", Views: 40},
		{PagePath: "/pricing", Views: 12},
	}, stats)
}

func TestReferrersScansDomains(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	mock.ExpectQuery("SELECT domain").
		WithArgs(f.ProjectID, from, to, 20).
		WillReturnRows(sqlmock.NewRows([]string{"domain", "visits"}).
			AddRow("google.com", 25).
			AddRow("news.ycombinator.com", 9))

	stats, err := store.Referrers(context.Background(), f, 20)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, "google.com", stats[0].Domain)
	require.Equal(t, int64(25), stats[0].Visits)
}

func TestDeviceStatsScansThreeBreakdowns(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	mock.ExpectQuery("SELECT device_type").
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"device_type", "total"}).
			AddRow("desktop", 30).
			AddRow("mobile", 12))
	mock.ExpectQuery("SELECT browser_name").
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"browser_name", "version", "total"}).
			AddRow("chrome", "120.0.0.0", 25).
			AddRow("safari", "", 9))
	mock.ExpectQuery("SELECT os_name").
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"os_name", "version", "total"}).
			AddRow("windows", "10.0", 20))

	stats, err := store.DeviceStats(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, []model.DeviceStat{
		{DeviceType: "desktop", Count: 30},
		{DeviceType: "mobile", Count: 12},
	}, stats.Devices)
	require.Equal(t, []model.BrowserStat{
		{Name: "chrome", Version: "120.0.0.0", Count: 25},
		{Name: "safari", Version: "", Count: 9},
	}, stats.Browsers)
	require.Equal(t, []model.OSStat{
		{Name: "windows", Version: "10.0", Count: 20},
	}, stats.OperatingSystems)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGeoStatsRequiresCountry(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	// the expectation only matches a query that keeps the null-country guard
	mock.ExpectQuery(`SELECT country, coalesce\(city, ''\), count\(\*\) AS total FROM events WHERE .* AND event_type = 'pageview' AND country IS NOT NULL`).
		WithArgs(f.ProjectID, from, to, 20).
		WillReturnRows(sqlmock.NewRows([]string{"country", "city", "total"}).
			AddRow("DE", "Berlin", 14).
			AddRow("DE", "", 3))

	stats, err := store.GeoStats(context.Background(), f, 20)
	require.NoError(t, err)
	require.Equal(t, []model.GeoStat{
		{Country: "DE", City: "Berlin", Count: 14},
		{Country: "DE", City: "", Count: 3},
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSeriesAscendingBuckets(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`date_trunc\('day', event_time AT TIME ZONE 'UTC'\)`).
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "events", "pageviews", "sessions", "visitors"}).
			AddRow(day1, 5, 4, 2, 2).
			AddRow(day2, 7, 6, 3, 3))

	points, err := store.TimeSeries(context.Background(), f, model.GranularityDay)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, day1, points[0].Bucket)
	require.Equal(t, int64(5), points[0].Events)
	require.Equal(t, day2, points[1].Bucket)
	require.Equal(t, int64(7), points[1].Events)
}

func TestTimeSeriesRejectsUnknownGranularity(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.TimeSeries(context.Background(), baseFilter(), model.Granularity("week"))
	require.Error(t, err)
	require.True(t, model.IsValidation(err))
}

func TestWebVitalsScansPercentilesAndRatings(t *testing.T) {
	store, mock := newMockStore(t)
	f := baseFilter()
	from, to := f.TimeRange()

	mock.ExpectQuery("percentile_cont").
		WithArgs(f.ProjectID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "p50", "p75", "p95", "p99", "good", "needs_improvement", "poor"}).
			AddRow("CLS", 0.05, 0.09, 0.21, 0.30, 8, 1, 1).
			AddRow("LCP", 2500.0, 3200.0, 4800.0, 5000.0, 1, 1, 1))

	vitals, err := store.WebVitals(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, vitals, 2)
	require.Equal(t, "LCP", vitals[1].Metric)
	require.InDelta(t, 2500.0, vitals[1].P50, 0.001)
	require.Equal(t, int64(1), vitals[1].GoodCount)
	require.Equal(t, int64(1), vitals[1].NeedsImprovementCount)
	require.Equal(t, int64(1), vitals[1].PoorCount)
}
