package rest

import (
	"time"

	"github.com/marianogappa/kline-history/kline/common"
)

// chunkDurationCap returns the maximum duration a single REST chunk may
// span for interval, per spec §4.5's per-tier caps.
func chunkDurationCap(interval common.Interval) time.Duration {
	switch interval {
	case common.Interval1s:
		return 1000 * time.Second
	case common.Interval1m:
		return 1000 * time.Minute
	case common.Interval3m, common.Interval5m, common.Interval15m, common.Interval30m:
		return 7 * 24 * time.Hour
	case common.Interval1h, common.Interval2h, common.Interval4h, common.Interval6h, common.Interval8h, common.Interval12h:
		return 30 * 24 * time.Hour
	default:
		// day/week/month: no cap beyond recordsPerChunk * I.
		return time.Duration(1<<63 - 1)
	}
}

// planChunks splits the aligned [start, end] range into successive chunks,
// each covering at most maxRecords candles and never exceeding the
// per-tier duration cap, per spec §4.5. Chunk starts are end-exclusive of
// the previous chunk's end by one millisecond to avoid boundary overlap.
func planChunks(start, end time.Time, interval common.Interval, maxRecords int) []common.TimeRange {
	if !end.After(start) || maxRecords <= 0 {
		return nil
	}

	unit := interval.Duration()
	chunkDuration := time.Duration(maxRecords) * unit
	if cap := chunkDurationCap(interval); chunkDuration > cap {
		chunkDuration = cap
	}
	if chunkDuration <= 0 {
		chunkDuration = unit
	}

	var chunks []common.TimeRange
	cursor := start
	for !cursor.After(end) {
		chunkEnd := cursor.Add(chunkDuration)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, common.TimeRange{Start: cursor, End: chunkEnd})
		if !chunkEnd.Before(end) {
			break
		}
		cursor = chunkEnd.Add(time.Millisecond)
	}
	return chunks
}
