package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"pulse-analytics/internal/model"
)

// DefaultLimit caps ranked listings (top pages, referrers, geo) unless the
// caller asks for fewer.
const DefaultLimit = 20

// breakdownLimit caps the browser and OS sub-lists of the device breakdown.
const breakdownLimit = 10

// Store is the capability set every storage backend variant implements. The
// two variants (PostgresStore, ClickHouseStore) own their query dialects but
// share this filter/result contract verbatim.
type Store interface {
	// InsertEvents persists a batch all-or-nothing: any row failure rolls
	// back the whole batch. Rows carrying an already-written event id are
	// ignored, not errors.
	InsertEvents(ctx context.Context, rows []model.CanonicalEventRow) error

	Overview(ctx context.Context, f model.QueryFilter) (model.OverviewMetrics, error)
	PageViews(ctx context.Context, f model.QueryFilter, limit int) ([]model.PageViewStat, error)
	Referrers(ctx context.Context, f model.QueryFilter, limit int) ([]model.ReferrerStat, error)
	DeviceStats(ctx context.Context, f model.QueryFilter) (model.DeviceStats, error)
	GeoStats(ctx context.Context, f model.QueryFilter, limit int) ([]model.GeoStat, error)
	TimeSeries(ctx context.Context, f model.QueryFilter, g model.Granularity) ([]model.TimeSeriesPoint, error)
	WebVitals(ctx context.Context, f model.QueryFilter) ([]model.WebVitalMetric, error)

	// EnsureSchema creates the event table and its indexes if absent.
	EnsureSchema(ctx context.Context) error
	Close() error
}

// storageErr wraps a backend failure with its retryability classification.
func storageErr(op string, err error) error {
	return &model.StorageError{Op: op, Retryable: retryable(err), Err: err}
}

// retryable treats timeouts and transport failures as transient; dialect and
// constraint errors are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultLimit
	}
	return limit
}
