package rest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/marianogappa/kline-history/kline/common"
)

// restCandlestick mirrors the teacher's binanceCandlestick
// (candles/binance/api_klines.go): an intermediate struct whose
// toCandle() conversion gives every field its own named parse error.
type restCandlestick struct {
	openTime                time.Time
	closeTime               time.Time
	open, high, low, close  float64
	volume                  float64
	quoteVolume             float64
	trades                  int32
	takerBuyVolume          float64
	takerBuyQuoteVolume     float64
}

func (c restCandlestick) toCandle(interval common.Interval) common.Candle {
	return common.Candle{
		OpenTime:            c.openTime,
		CloseTime:           c.openTime.Add(interval.Duration() - time.Microsecond),
		Open:                c.open,
		High:                c.high,
		Low:                 c.low,
		Close:               c.close,
		Volume:              c.volume,
		QuoteVolume:         c.quoteVolume,
		TakerBuyVolume:      c.takerBuyVolume,
		TakerBuyQuoteVolume: c.takerBuyQuoteVolume,
		Trades:              c.trades,
	}
}

// parseKlinesResponse parses a successful /api/v3/klines-style response: a
// JSON array of 12-element arrays, exactly as the teacher's
// successfulResponse.toCandlesticks() does for its own domain type.
func parseKlinesResponse(raw [][]interface{}, interval common.Interval) ([]common.Candle, error) {
	candles := make([]common.Candle, len(raw))
	for i, row := range raw {
		if len(row) < 11 {
			return nil, fmt.Errorf("%w: candlestick %d has %d fields, want >= 11", common.ErrIntegrity, i, len(row))
		}
		cs, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: candlestick %d: %v", common.ErrIntegrity, i, err)
		}
		candles[i] = cs.toCandle(interval)
	}
	return candles, nil
}

func parseKlineRow(row []interface{}) (restCandlestick, error) {
	var cs restCandlestick

	openTimeMs, ok := asInt64(row[0])
	if !ok {
		return cs, fmt.Errorf("non-numeric open time")
	}
	cs.openTime = time.UnixMilli(openTimeMs).UTC()

	var err error
	if cs.open, err = asFloat(row[1]); err != nil {
		return cs, fmt.Errorf("open: %w", err)
	}
	if cs.high, err = asFloat(row[2]); err != nil {
		return cs, fmt.Errorf("high: %w", err)
	}
	if cs.low, err = asFloat(row[3]); err != nil {
		return cs, fmt.Errorf("low: %w", err)
	}
	if cs.close, err = asFloat(row[4]); err != nil {
		return cs, fmt.Errorf("close: %w", err)
	}
	if cs.volume, err = asFloat(row[5]); err != nil {
		return cs, fmt.Errorf("volume: %w", err)
	}

	closeTimeMs, ok := asInt64(row[6])
	if !ok {
		return cs, fmt.Errorf("non-numeric close time")
	}
	cs.closeTime = time.UnixMilli(closeTimeMs).UTC()

	if cs.quoteVolume, err = asFloat(row[7]); err != nil {
		return cs, fmt.Errorf("quote_volume: %w", err)
	}
	trades, ok := asInt64(row[8])
	if !ok {
		return cs, fmt.Errorf("non-numeric trade count")
	}
	cs.trades = int32(trades)
	if cs.takerBuyVolume, err = asFloat(row[9]); err != nil {
		return cs, fmt.Errorf("taker_buy_volume: %w", err)
	}
	if cs.takerBuyQuoteVolume, err = asFloat(row[10]); err != nil {
		return cs, fmt.Errorf("taker_buy_quote_volume: %w", err)
	}
	// Field 11 ("ignore") is dropped, matching the archive parser.

	return cs, nil
}

func asFloat(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected string, got %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

func asInt64(v interface{}) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
