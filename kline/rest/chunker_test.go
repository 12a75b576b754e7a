package rest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestChunkDurationCapTiers(t *testing.T) {
	require.Equal(t, 1000*time.Second, chunkDurationCap(common.Interval1s))
	require.Equal(t, 1000*time.Minute, chunkDurationCap(common.Interval1m))
	require.Equal(t, 7*24*time.Hour, chunkDurationCap(common.Interval15m))
	require.Equal(t, 30*24*time.Hour, chunkDurationCap(common.Interval4h))
}

func TestPlanChunksSingleChunkWhenSmall(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(9 * time.Minute)
	chunks := planChunks(start, end, common.Interval1m, 1000)
	require.Len(t, chunks, 1)
	require.True(t, chunks[0].Start.Equal(start))
	require.True(t, chunks[0].End.Equal(end))
}

func TestPlanChunksSplitsOnRecordLimit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Hour) // 1500 minutes at 1m, cap 1000 records
	chunks := planChunks(start, end, common.Interval1m, 1000)
	require.Len(t, chunks, 2)
	require.True(t, chunks[0].Start.Equal(start))
	require.True(t, chunks[1].Start.Equal(chunks[0].End.Add(time.Millisecond)))
	require.True(t, chunks[len(chunks)-1].End.Equal(end))
}

func TestPlanChunksEmptyWhenEndBeforeStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	chunks := planChunks(start, start.Add(-time.Minute), common.Interval1m, 1000)
	require.Nil(t, chunks)
}

func TestPlanChunksRespectsDurationCapForSubMinuteTier(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3000 * time.Second) // would be one chunk by maxRecords alone
	chunks := planChunks(start, end, common.Interval1s, 10000)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, c.End.Sub(c.Start), 1000*time.Second)
	}
}
