package timealign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestAlignStartEndOnBoundary(t *testing.T) {
	boundary := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	aligned := AlignStartCommon(boundary, common.Interval1m)
	require.True(t, aligned.Equal(boundary))
	require.True(t, AlignEndCommon(boundary, common.Interval1m).Equal(boundary))
}

func TestAlignStartRoundsUp(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	aligned := AlignStartCommon(t0, common.Interval1m)
	require.True(t, aligned.Equal(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)))
}

func TestAlignEndRoundsDown(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 1, 30, 0, time.UTC)
	aligned := AlignEndCommon(t0, common.Interval1m)
	require.True(t, aligned.Equal(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)))
}

func TestAlignMonthCalendarBased(t *testing.T) {
	t0 := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	start := AlignStartCommon(t0, common.Interval1M)
	require.True(t, start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	end := AlignEndCommon(t0, common.Interval1M)
	require.True(t, end.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAlignWeekStartsMonday(t *testing.T) {
	// 2024-01-04 is a Thursday.
	t0 := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	down := AlignEndCommon(t0, common.Interval1w)
	require.Equal(t, time.Monday, down.Weekday())
	require.True(t, down.Before(t0) || down.Equal(t0))
}

func TestEstimateRecordsInclusive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Minute)
	require.Equal(t, 5, EstimateRecordsCommon(start, end, common.Interval1m))
}

func TestEstimateRecordsEmptyWhenEndBeforeStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	end := start.Add(-time.Minute)
	require.Equal(t, 0, EstimateRecordsCommon(start, end, common.Interval1m))
}
