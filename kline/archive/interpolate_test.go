package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestInterpolateDayBoundariesSynthesizesMissingMidnightRow(t *testing.T) {
	day1Last := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	day2First := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)

	candles := []common.Candle{
		{OpenTime: day1Last, CloseTime: day1Last.Add(time.Minute - time.Microsecond), Open: 10, High: 12, Low: 9, Close: 11},
		{OpenTime: day2First, CloseTime: day2First.Add(time.Minute - time.Microsecond), Open: 13, High: 14, Low: 12, Close: 13},
	}

	out := InterpolateDayBoundaries(candles, common.Interval1m)
	require.Len(t, out, 3)

	mid := out[1]
	require.True(t, mid.OpenTime.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, candles[0].Close, mid.Open)
	require.Equal(t, lerp(candles[0].Close, candles[1].Open, 0.5), mid.Close)
}

func TestInterpolateDayBoundariesLeavesNonBoundaryGapsAlone(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	candles := []common.Candle{
		{OpenTime: base, CloseTime: base.Add(time.Minute - time.Microsecond)},
		{OpenTime: base.Add(2 * time.Minute), CloseTime: base.Add(3*time.Minute - time.Microsecond)},
	}

	out := InterpolateDayBoundaries(candles, common.Interval1m)
	require.Len(t, out, 2)
}

func TestInterpolateDayBoundariesNoOpOnShortInput(t *testing.T) {
	candles := []common.Candle{{OpenTime: time.Now()}}
	out := InterpolateDayBoundaries(candles, common.Interval1m)
	require.Len(t, out, 1)
}

func TestIsDayBoundaryGap(t *testing.T) {
	openA := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	openB := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	require.True(t, isDayBoundaryGap(openA, openB))

	openB2 := time.Date(2024, 1, 1, 12, 2, 0, 0, time.UTC)
	openA2 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.False(t, isDayBoundaryGap(openA2, openB2))
}
