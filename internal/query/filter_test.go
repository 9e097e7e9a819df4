package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse-analytics/internal/model"
)

func TestResolveFilterValid(t *testing.T) {
	filter, err := ResolveFilter(Params{
		ProjectID: "proj-1",
		StartDate: "2026-01-01",
		EndDate:   "2026-01-31",
		EventType: "pageview",
		Country:   "DE",
	})
	require.NoError(t, err)
	require.Equal(t, "proj-1", filter.ProjectID)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), filter.StartDate)
	require.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), filter.EndDate)
	require.Equal(t, "pageview", filter.EventType)
	require.Equal(t, "DE", filter.Country)

	from, to := filter.TimeRange()
	require.Equal(t, filter.StartDate, from)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), to, "end date must be inclusive of the whole day")
}

func TestResolveFilterSingleDay(t *testing.T) {
	filter, err := ResolveFilter(Params{
		ProjectID: "proj-1",
		StartDate: "2026-03-15",
		EndDate:   "2026-03-15",
	})
	require.NoError(t, err)
	from, to := filter.TimeRange()
	require.Equal(t, 24*time.Hour, to.Sub(from))
}

func TestResolveFilterValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		params Params
	}{
		{"missing project", Params{StartDate: "2026-01-01", EndDate: "2026-01-02"}},
		{"bad start date", Params{ProjectID: "p", StartDate: "01/01/2026", EndDate: "2026-01-02"}},
		{"bad end date", Params{ProjectID: "p", StartDate: "2026-01-01", EndDate: "soon"}},
		{"missing dates", Params{ProjectID: "p"}},
		{"start after end", Params{ProjectID: "p", StartDate: "2026-01-02", EndDate: "2026-01-01"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveFilter(tc.params)
			require.Error(t, err)
			require.True(t, model.IsValidation(err))
		})
	}
}

func TestResolveGranularity(t *testing.T) {
	g, err := ResolveGranularity("")
	require.NoError(t, err)
	require.Equal(t, model.GranularityDay, g)

	g, err = ResolveGranularity("hour")
	require.NoError(t, err)
	require.Equal(t, model.GranularityHour, g)

	_, err = ResolveGranularity("week")
	require.Error(t, err)
	require.True(t, model.IsValidation(err))
}
