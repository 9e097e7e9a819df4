package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pulse-analytics/internal/consumer"
	"pulse-analytics/internal/model"
)

type stubStore struct {
	insertErr error
	inserted  int
}

func (s *stubStore) InsertEvents(_ context.Context, rows []model.CanonicalEventRow) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted += len(rows)
	return nil
}

func (s *stubStore) Overview(context.Context, model.QueryFilter) (model.OverviewMetrics, error) {
	return model.OverviewMetrics{}, nil
}
func (s *stubStore) PageViews(context.Context, model.QueryFilter, int) ([]model.PageViewStat, error) {
	return nil, nil
}
func (s *stubStore) Referrers(context.Context, model.QueryFilter, int) ([]model.ReferrerStat, error) {
	return nil, nil
}
func (s *stubStore) DeviceStats(context.Context, model.QueryFilter) (model.DeviceStats, error) {
	return model.DeviceStats{}, nil
}
func (s *stubStore) GeoStats(context.Context, model.QueryFilter, int) ([]model.GeoStat, error) {
	return nil, nil
}
func (s *stubStore) TimeSeries(context.Context, model.QueryFilter, model.Granularity) ([]model.TimeSeriesPoint, error) {
	return nil, nil
}
func (s *stubStore) WebVitals(context.Context, model.QueryFilter) ([]model.WebVitalMetric, error) {
	return nil, nil
}
func (s *stubStore) EnsureSchema(context.Context) error { return nil }
func (s *stubStore) Close() error                       { return nil }

func eventMessage(t *testing.T) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(model.RawEvent{
		ProjectID: "proj-1",
		EventType: "pageview",
		Timestamp: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	return kafkago.Message{Value: payload}
}

func TestFlushCommitsAfterSuccessfulInsert(t *testing.T) {
	store := &stubStore{}
	var committed []kafkago.Message
	aborted := false

	flush := newFlush(consumer.New(store, zap.NewNop()),
		func(_ context.Context, msgs ...kafkago.Message) error {
			committed = append(committed, msgs...)
			return nil
		},
		time.Second, zap.NewNop(), func() { aborted = true })

	msgs := []kafkago.Message{eventMessage(t), eventMessage(t)}
	require.NoError(t, flush(context.Background(), msgs))
	require.Equal(t, 2, store.inserted)
	require.Len(t, committed, 2)
	require.False(t, aborted)
}

func TestFlushFailureAbortsWithoutCommitting(t *testing.T) {
	store := &stubStore{insertErr: &model.StorageError{Op: "insert batch", Err: errors.New("bad row")}}
	var committed []kafkago.Message
	aborted := false

	flush := newFlush(consumer.New(store, zap.NewNop()),
		func(_ context.Context, msgs ...kafkago.Message) error {
			committed = append(committed, msgs...)
			return nil
		},
		time.Second, zap.NewNop(), func() { aborted = true })

	err := flush(context.Background(), []kafkago.Message{eventMessage(t)})
	require.Error(t, err)
	require.True(t, aborted, "a terminal batch failure must stop the process so the batch is redelivered")
	require.Empty(t, committed, "no offset may be committed past an unpersisted batch")
}
