package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []common.Candle{
		{
			OpenTime: day, CloseTime: day.Add(time.Minute - time.Microsecond),
			Open: 100, High: 110, Low: 90, Close: 105,
			Volume: 1.5, QuoteVolume: 150, TakerBuyVolume: 0.5, TakerBuyQuoteVolume: 50, Trades: 42,
		},
		{
			OpenTime: day.Add(time.Minute), CloseTime: day.Add(2*time.Minute - time.Microsecond),
			Open: 105, High: 108, Low: 100, Close: 102,
			Volume: 2.5, QuoteVolume: 250, TakerBuyVolume: 1.5, TakerBuyQuoteVolume: 150, Trades: 7,
		},
	}

	rec := encodeCandles(candles)
	defer rec.Release()

	decoded, err := decodeRecord(rec)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range candles {
		require.True(t, candles[i].OpenTime.Equal(decoded[i].OpenTime))
		require.True(t, candles[i].CloseTime.Equal(decoded[i].CloseTime))
		require.Equal(t, candles[i].Open, decoded[i].Open)
		require.Equal(t, candles[i].High, decoded[i].High)
		require.Equal(t, candles[i].Low, decoded[i].Low)
		require.Equal(t, candles[i].Close, decoded[i].Close)
		require.Equal(t, candles[i].Volume, decoded[i].Volume)
		require.Equal(t, candles[i].Trades, decoded[i].Trades)
	}
}

func TestWriteReadArrowFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "2024-01-01.arrow")

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles(day, 5)

	size, err := writeArrowFile(path, candles)
	require.NoError(t, err)
	require.Greater(t, size, int64(0))

	got, err := readArrowFile(path)
	require.NoError(t, err)
	require.Len(t, got, 5)
}

func TestReadArrowFileMissing(t *testing.T) {
	_, err := readArrowFile(filepath.Join(t.TempDir(), "absent.arrow"))
	require.Error(t, err)
}
