package archive

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/kline-history/kline/common"
)

// InterpolateDayBoundaries scans consecutive, already openTime-sorted
// candles for the lost-midnight-row pattern described in spec §4.4: the
// last candle of one day ends at 23:59 and the next present candle opens
// at 00:01 of the following day, with no 00:00 row in between. It
// synthesizes the missing row by linear interpolation of OHLC and
// carry-forward of volume/trade metadata, logging but not flagging it in
// the output.
//
// Only exact one-row gaps at a day boundary are interpolated; any other
// gap is left to common.DetectAndLogGaps.
func InterpolateDayBoundaries(candles []common.Candle, interval common.Interval) []common.Candle {
	if len(candles) < 2 {
		return candles
	}

	unit := interval.Duration()
	out := make([]common.Candle, 0, len(candles)+1)
	for i, c := range candles {
		out = append(out, c)
		if i == len(candles)-1 {
			break
		}
		next := candles[i+1]
		if next.OpenTime.Sub(c.OpenTime) != 2*unit {
			continue
		}
		if !isDayBoundaryGap(c.OpenTime, next.OpenTime) {
			continue
		}

		synth := interpolate(c, next, unit)
		log.Warn().
			Time("after", c.OpenTime).
			Time("before", next.OpenTime).
			Time("synthesized", synth.OpenTime).
			Msg("synthesized missing midnight candle via day-boundary interpolation")
		out = append(out, synth)
	}
	return out
}

// isDayBoundaryGap reports whether the missing row between openA (23:59 of
// some day) and openB (00:01 of the next day) would fall exactly on that
// next day's midnight.
func isDayBoundaryGap(openA, openB time.Time) bool {
	missing := openA.Add(openB.Sub(openA) / 2)
	return missing.Hour() == 0 && missing.Minute() == 0 && missing.Second() == 0 &&
		openB.Year() == missing.Year() && openB.YearDay() == missing.YearDay()
}

// interpolate synthesizes the single candle midway between a and b by
// linearly interpolating OHLC and carrying forward the remaining metadata
// from a, per spec §4.4.
func interpolate(a, b common.Candle, unit time.Duration) common.Candle {
	open := a.Close
	closePrice := lerp(a.Close, b.Open, 0.5)
	high := maxFloat(open, closePrice)
	low := minFloat(open, closePrice)

	openTime := a.OpenTime.Add(unit)
	return common.Candle{
		OpenTime:            openTime,
		CloseTime:           openTime.Add(unit - time.Microsecond),
		Open:                open,
		High:                high,
		Low:                 low,
		Close:               closePrice,
		Volume:              a.Volume,
		QuoteVolume:         a.QuoteVolume,
		TakerBuyVolume:      a.TakerBuyVolume,
		TakerBuyQuoteVolume: a.TakerBuyQuoteVolume,
		Trades:              a.Trades,
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
