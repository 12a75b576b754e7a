package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestChooseHonorsExplicitHint(t *testing.T) {
	p := Params{Interval: common.Interval1h, Start: time.Now(), End: time.Now(), Hint: common.ArchiveOnly, RestChunkSize: 1000, RestMaxChunks: 8}
	require.Equal(t, Archive, Choose(p))

	p.Hint = common.RESTOnly
	require.Equal(t, REST, Choose(p))
}

func TestChooseForces1sToREST(t *testing.T) {
	p := Params{Interval: common.Interval1s, Hint: common.ArchiveOnly}
	require.Equal(t, REST, Choose(p))
}

func TestChooseLargeRangePicksArchive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 90)
	p := Params{
		Interval:        common.Interval1m,
		Start:           start,
		End:             end,
		Hint:            common.AUTO,
		RestChunkSize:   1000,
		RestMaxChunks:   8,
		VisionDataDelay: 36 * time.Hour,
		Now:             end.Add(45 * 24 * time.Hour),
	}
	require.Equal(t, Archive, Choose(p))
}

func TestChooseOldRangePicksArchive(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	start := now.AddDate(0, -1, 0)
	end := start.Add(time.Hour)
	p := Params{
		Interval:        common.Interval1h,
		Start:           start,
		End:             end,
		Hint:            common.AUTO,
		RestChunkSize:   1000,
		RestMaxChunks:   8,
		VisionDataDelay: 36 * time.Hour,
		Now:             now,
	}
	require.Equal(t, Archive, Choose(p))
}

func TestChooseRecentSmallRangePicksREST(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-10 * time.Minute)
	p := Params{
		Interval:        common.Interval1m,
		Start:           start,
		End:             now,
		Hint:            common.AUTO,
		RestChunkSize:   1000,
		RestMaxChunks:   8,
		VisionDataDelay: 36 * time.Hour,
		Now:             now,
	}
	require.Equal(t, REST, Choose(p))
}
