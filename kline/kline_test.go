package kline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(WithCacheDir(t.TempDir()), WithHotCacheSize(8))
	require.NoError(t, err)
	return e
}

func TestGetRangeRejectsNonUTCTime(t *testing.T) {
	e := newTestEngine(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	end := start.Add(time.Hour)
	_, _, err = e.GetRange(context.Background(), "BTCUSDT", common.Interval1h, start, end, common.SPOT, common.AUTO, true)
	require.ErrorIs(t, err, common.ErrNaiveTime)
}

func TestGetRangeRejectsInvalidRange(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, _, err := e.GetRange(context.Background(), "BTCUSDT", common.Interval1h, start, end, common.SPOT, common.AUTO, true)
	require.ErrorIs(t, err, common.ErrInvalidRange)
}

func TestGetRangeRejectsUnsupportedInterval(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	_, _, err := e.GetRange(context.Background(), "BTCUSDT", common.Interval1s, start, end, common.FUTURES_USDT, common.AUTO, true)
	require.ErrorIs(t, err, common.ErrUnsupportedInterval)
}

func TestGetRangeRejectsFutureTime(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e.SetTimeNowFunc(func() time.Time { return now })

	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)
	_, _, err := e.GetRange(context.Background(), "BTCUSDT", common.Interval1h, start, end, common.SPOT, common.AUTO, true)
	require.ErrorIs(t, err, common.ErrFutureTime)
}

func TestGetRangeServesFullyFromCache(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	e.SetTimeNowFunc(func() time.Time { return now })

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	interval := common.Interval1h
	candles := make([]common.Candle, 24)
	for i := range candles {
		open := day.Add(time.Duration(i) * time.Hour)
		candles[i] = common.Candle{OpenTime: open, CloseTime: open.Add(time.Hour - time.Microsecond), Open: 1, High: 2, Low: 1, Close: 1}
	}
	key := e.cacheKey("BTCUSDT", common.SPOT, interval, day)
	require.NoError(t, e.cache.Store(key, candles))

	start := day
	end := day.Add(24 * time.Hour)
	table, stats, err := e.GetRange(context.Background(), "BTCUSDT", interval, start, end, common.SPOT, common.AUTO, true)
	require.NoError(t, err)
	require.Len(t, table.Candles, 24)
	require.Equal(t, 1, stats.CacheHits)
	require.Equal(t, 0, stats.FetchErrors)

	cumulative := e.CacheStats()
	require.Equal(t, 1, cumulative.CacheHits)
}

func TestValidateCacheIntegrityReportsUnhealthyWhenAbsent(t *testing.T) {
	e := newTestEngine(t)
	healthy, err := e.ValidateCacheIntegrity("BTCUSDT", common.SPOT, common.Interval1h, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, healthy)
}

func TestValidateCacheIntegrityReportsHealthyAfterStore(t *testing.T) {
	e := newTestEngine(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	key := e.cacheKey("BTCUSDT", common.SPOT, common.Interval1h, day)
	require.NoError(t, e.cache.Store(key, []common.Candle{{OpenTime: day, CloseTime: day.Add(time.Hour - time.Microsecond)}}))

	healthy, err := e.ValidateCacheIntegrity("BTCUSDT", common.SPOT, common.Interval1h, day)
	require.NoError(t, err)
	require.True(t, healthy)
}

func TestCacheKeyNormalizesDayToMidnight(t *testing.T) {
	e := newTestEngine(t)
	day := time.Date(2024, 1, 1, 13, 45, 0, 0, time.UTC)
	key := e.cacheKey("BTCUSDT", common.SPOT, common.Interval1h, day)
	require.Equal(t, 0, key.Day.Hour())
	require.Equal(t, 0, key.Day.Minute())
}

func TestCalendarDaysInclusive(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 1, 0, 0, 0, time.UTC)
	days := calendarDays(start, end)
	require.Len(t, days, 3)
	require.True(t, days[0].Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, days[2].Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestCalendarDaysEmptyWhenEndBeforeStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Nil(t, calendarDays(start, start.Add(-time.Hour)))
}

func TestCalendarDaysExcludesEndDayWhenEndIsExactMidnight(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	days := calendarDays(start, end)
	require.Len(t, days, 1)
	require.True(t, days[0].Equal(start))
}

func TestDayBounds(t *testing.T) {
	day := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	start, end := dayBounds(day)
	require.True(t, start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, end.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestIsRecentDay(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	yesterday := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)

	require.True(t, isRecentDay(today, now))
	require.True(t, isRecentDay(yesterday, now))
	require.False(t, isRecentDay(older, now))
}

func TestIsFullDay(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	full := make([]common.Candle, 24)
	for i := range full {
		full[i] = common.Candle{OpenTime: day.Add(time.Duration(i) * time.Hour)}
	}
	require.True(t, isFullDay(full, day, common.Interval1h))
	require.False(t, isFullDay(full[:23], day, common.Interval1h))
	require.False(t, isFullDay(nil, day, common.Interval1h))
}

func TestFilterRangeKeepsHalfOpenInterval(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []common.Candle{
		{OpenTime: base},
		{OpenTime: base.Add(time.Hour)},
		{OpenTime: base.Add(2 * time.Hour)},
	}
	out := filterRange(candles, base, base.Add(2*time.Hour))
	require.Len(t, out, 2)
}

func TestSortAndDedupeOrdersAndDrops(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []common.Candle{
		{OpenTime: base.Add(time.Hour)},
		{OpenTime: base},
		{OpenTime: base},
	}
	out := sortAndDedupe(candles)
	require.Len(t, out, 2)
	require.True(t, out[0].OpenTime.Equal(base))
}
