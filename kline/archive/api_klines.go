package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/marianogappa/kline-history/kline/common"
)

// csvCandlestick mirrors the teacher's binanceCandlestick struct
// (candles/binance/api_klines.go): an intermediate all-fields-present
// struct that toCandle() converts into the shared domain type, giving each
// field conversion its own named error instead of one opaque failure.
type csvCandlestick struct {
	openTime                time.Time
	closeTime               time.Time
	open, high, low, close  float64
	volume                  float64
	quoteVolume             float64
	trades                  int32
	takerBuyVolume          float64
	takerBuyQuoteVolume     float64
}

func (c csvCandlestick) toCandle(interval common.Interval) common.Candle {
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

// parseCSV parses the daily archive's CSV body into Candles. Columns, in
// order, per spec §4.4: open_time, open, high, low, close, volume,
// close_time, quote_volume, trades, taker_buy_volume,
// taker_buy_quote_volume, ignore.
//
// The header row may or may not be present; detected by scanning the first
// token of the first row for a non-numeric "time"-like word, per spec.
func parseCSV(r io.Reader, interval common.Interval) ([]common.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed CSV: %v", common.ErrIntegrity, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if looksLikeHeader(rows[0]) {
		rows = rows[1:]
	}

	candles := make([]common.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 11 {
			return nil, fmt.Errorf("%w: row %d has %d columns, want >= 11", common.ErrIntegrity, i, len(row))
		}
		cs, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", common.ErrIntegrity, i, err)
		}
		candles = append(candles, cs.toCandle(interval))
	}
	return candles, nil
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64); err != nil {
		return true
	}
	return false
}

func parseRow(row []string) (csvCandlestick, error) {
	var cs csvCandlestick

	openTime, err := parseTimestamp(row[0])
	if err != nil {
		return cs, fmt.Errorf("open_time: %w", err)
	}
	cs.openTime = openTime

	if cs.open, err = strconv.ParseFloat(row[1], 64); err != nil {
		return cs, fmt.Errorf("open: %w", err)
	}
	if cs.high, err = strconv.ParseFloat(row[2], 64); err != nil {
		return cs, fmt.Errorf("high: %w", err)
	}
	if cs.low, err = strconv.ParseFloat(row[3], 64); err != nil {
		return cs, fmt.Errorf("low: %w", err)
	}
	if cs.close, err = strconv.ParseFloat(row[4], 64); err != nil {
		return cs, fmt.Errorf("close: %w", err)
	}
	if cs.volume, err = strconv.ParseFloat(row[5], 64); err != nil {
		return cs, fmt.Errorf("volume: %w", err)
	}

	closeTime, err := parseTimestamp(row[6])
	if err != nil {
		return cs, fmt.Errorf("close_time: %w", err)
	}
	cs.closeTime = closeTime

	if cs.quoteVolume, err = strconv.ParseFloat(row[7], 64); err != nil {
		return cs, fmt.Errorf("quote_volume: %w", err)
	}
	trades, err := strconv.ParseInt(row[8], 10, 32)
	if err != nil {
		return cs, fmt.Errorf("trades: %w", err)
	}
	cs.trades = int32(trades)
	if cs.takerBuyVolume, err = strconv.ParseFloat(row[9], 64); err != nil {
		return cs, fmt.Errorf("taker_buy_volume: %w", err)
	}
	if cs.takerBuyQuoteVolume, err = strconv.ParseFloat(row[10], 64); err != nil {
		return cs, fmt.Errorf("taker_buy_quote_volume: %w", err)
	}
	// Column 11 ("ignore") is dropped per spec.

	return cs, nil
}

// parseTimestamp detects millisecond (13 digits) vs microsecond (16 digits)
// epoch timestamps by digit count, per spec §4.4, and converts to UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	switch len(s) {
	case 16:
		return time.UnixMicro(n).UTC(), nil
	case 13:
		return time.UnixMilli(n).UTC(), nil
	default:
		// Tolerate the occasional second-precision export some archives
		// carry for very old days.
		if len(s) <= 10 {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}
}
