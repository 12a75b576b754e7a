package common

import (
	"github.com/rs/zerolog/log"
)

// DetectAndLogGaps scans a sequence of Candles (assumed already sorted
// ascending by OpenTime) for missing intervals and logs each one found. It
// does not fabricate rows -- per spec §3 invariant 2, gaps are "detected and
// logged, not fabricated" except for the single documented archive
// midnight-row case handled in package archive.
//
// Grounded on the teacher's PatchCandlestickHoles scan (candles/common/common.go),
// which walked consecutive candlesticks looking for a timestamp delta other
// than the expected interval; this keeps that scan but changes the action
// from cloning to logging.
func DetectAndLogGaps(key CacheKey, candles []Candle, interval Interval) int {
	if len(candles) < 2 {
		return 0
	}
	dur := interval.Duration()
	gaps := 0
	for i := 1; i < len(candles); i++ {
		delta := candles[i].OpenTime.Sub(candles[i-1].OpenTime)
		if delta != dur {
			gaps++
			log.Warn().
				Str("cache_key", key.String()).
				Time("after", candles[i-1].OpenTime).
				Time("before", candles[i].OpenTime).
				Dur("expected_interval", dur).
				Dur("actual_gap", delta).
				Msg("gap detected in candle sequence; not fabricating data")
		}
	}
	return gaps
}
