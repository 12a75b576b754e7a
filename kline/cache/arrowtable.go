package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/marianogappa/kline-history/kline/common"
)

// tsType is the UTC-marked microsecond timestamp type backing the
// "open_time" primary axis and "close_time" column, satisfying spec §3's
// "timezone-marked UTC" requirement for the Table's datetime axis and §6's
// call for a self-describing columnar IPC format.
var tsType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

var arrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "open_time", Type: tsType},
	{Name: "close_time", Type: tsType},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "quote_volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "taker_buy_volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "taker_buy_quote_volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "trades", Type: arrow.PrimitiveTypes.Int32},
}, nil)

const (
	colOpenTime = iota
	colCloseTime
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	colQuoteVolume
	colTakerBuyVolume
	colTakerBuyQuoteVolume
	colTrades
)

// encodeCandles builds an Arrow record from a slice of Candles.
func encodeCandles(candles []common.Candle) arrow.Record {
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, arrowSchema)
	defer b.Release()

	openTimeB := b.Field(colOpenTime).(*array.TimestampBuilder)
	closeTimeB := b.Field(colCloseTime).(*array.TimestampBuilder)
	openB := b.Field(colOpen).(*array.Float64Builder)
	highB := b.Field(colHigh).(*array.Float64Builder)
	lowB := b.Field(colLow).(*array.Float64Builder)
	closeB := b.Field(colClose).(*array.Float64Builder)
	volumeB := b.Field(colVolume).(*array.Float64Builder)
	quoteVolumeB := b.Field(colQuoteVolume).(*array.Float64Builder)
	takerBuyB := b.Field(colTakerBuyVolume).(*array.Float64Builder)
	takerBuyQuoteB := b.Field(colTakerBuyQuoteVolume).(*array.Float64Builder)
	tradesB := b.Field(colTrades).(*array.Int32Builder)

	for _, c := range candles {
		openTimeB.Append(arrow.Timestamp(c.OpenTime.UnixMicro()))
		closeTimeB.Append(arrow.Timestamp(c.CloseTime.UnixMicro()))
		openB.Append(c.Open)
		highB.Append(c.High)
		lowB.Append(c.Low)
		closeB.Append(c.Close)
		volumeB.Append(c.Volume)
		quoteVolumeB.Append(c.QuoteVolume)
		takerBuyB.Append(c.TakerBuyVolume)
		takerBuyQuoteB.Append(c.TakerBuyQuoteVolume)
		tradesB.Append(c.Trades)
	}

	return b.NewRecord()
}

// decodeRecord reconstructs Candles from an Arrow record.
func decodeRecord(rec arrow.Record) ([]common.Candle, error) {
	n := int(rec.NumRows())
	candles := make([]common.Candle, n)

	openTimeA, ok := rec.Column(colOpenTime).(*array.Timestamp)
	if !ok {
		return nil, fmt.Errorf("%w: open_time column has unexpected type", common.ErrCache)
	}
	closeTimeA, ok := rec.Column(colCloseTime).(*array.Timestamp)
	if !ok {
		return nil, fmt.Errorf("%w: close_time column has unexpected type", common.ErrCache)
	}
	openA := rec.Column(colOpen).(*array.Float64)
	highA := rec.Column(colHigh).(*array.Float64)
	lowA := rec.Column(colLow).(*array.Float64)
	closeA := rec.Column(colClose).(*array.Float64)
	volumeA := rec.Column(colVolume).(*array.Float64)
	quoteVolumeA := rec.Column(colQuoteVolume).(*array.Float64)
	takerBuyA := rec.Column(colTakerBuyVolume).(*array.Float64)
	takerBuyQuoteA := rec.Column(colTakerBuyQuoteVolume).(*array.Float64)
	tradesA := rec.Column(colTrades).(*array.Int32)

	for i := 0; i < n; i++ {
		candles[i] = common.Candle{
			OpenTime:            time.UnixMicro(int64(openTimeA.Value(i))).UTC(),
			CloseTime:           time.UnixMicro(int64(closeTimeA.Value(i))).UTC(),
			Open:                openA.Value(i),
			High:                highA.Value(i),
			Low:                 lowA.Value(i),
			Close:               closeA.Value(i),
			Volume:              volumeA.Value(i),
			QuoteVolume:         quoteVolumeA.Value(i),
			TakerBuyVolume:      takerBuyA.Value(i),
			TakerBuyQuoteVolume: takerBuyQuoteA.Value(i),
			Trades:              tradesA.Value(i),
		}
	}
	return candles, nil
}

// writeArrowFile encodes candles into an Arrow IPC file at path, via a
// temp-file-then-rename for atomicity (spec §4.3).
func writeArrowFile(path string, candles []common.Candle) (int64, error) {
	rec := encodeCandles(candles)
	defer rec.Release()

	dir := dirOf(path)
	if err := ensureDir(dir); err != nil {
		return 0, err
	}
	tmp := tempName(path)

	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	pool := memory.NewGoAllocator()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(arrowSchema), ipc.WithAllocator(pool))
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	info, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return info.Size(), nil
}

// readArrowFile decodes an Arrow IPC file at path back into Candles.
func readArrowFile(path string) ([]common.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pool := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(pool))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCache, err)
	}

	var all []common.Candle
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrCache, err)
		}
		part, err := decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		all = append(all, part...)
	}
	return all, nil
}
