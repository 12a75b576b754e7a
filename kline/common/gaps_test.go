package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectAndLogGapsCountsGaps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{OpenTime: base},
		{OpenTime: base.Add(time.Minute)},
		{OpenTime: base.Add(3 * time.Minute)}, // gap: should be at +2m
	}
	gaps := DetectAndLogGaps(CacheKey{Symbol: "BTCUSDT"}, candles, Interval1m)
	require.Equal(t, 1, gaps)
}

func TestDetectAndLogGapsNoGaps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{OpenTime: base},
		{OpenTime: base.Add(time.Minute)},
		{OpenTime: base.Add(2 * time.Minute)},
	}
	gaps := DetectAndLogGaps(CacheKey{Symbol: "BTCUSDT"}, candles, Interval1m)
	require.Equal(t, 0, gaps)
}
