package timealign

import (
	"time"

	"github.com/marianogappa/kline-history/kline/common"
)

// commonAdapter lets kline/common.Interval satisfy the local Interval
// interface, keeping this package free of a dependency cycle while still
// usable directly with the rest of the module's types.
type commonAdapter struct {
	common.Interval
}

func (a commonAdapter) Duration() time.Duration { return a.Interval.Duration() }
func (a commonAdapter) IsCalendarMonth() bool    { return a.Interval == common.Interval1M }
func (a commonAdapter) IsCalendarWeek() bool     { return a.Interval == common.Interval1w }

// Adapt wraps a common.Interval for use with this package's functions.
func Adapt(i common.Interval) Interval { return commonAdapter{i} }

// AlignStartCommon is a convenience wrapper around AlignStart for
// common.Interval callers.
func AlignStartCommon(t time.Time, i common.Interval) time.Time {
	return AlignStart(t, Adapt(i))
}

// AlignEndCommon is a convenience wrapper around AlignEnd for common.Interval
// callers.
func AlignEndCommon(t time.Time, i common.Interval) time.Time {
	return AlignEnd(t, Adapt(i))
}

// EstimateRecordsCommon estimates the record count for common.Interval callers.
func EstimateRecordsCommon(alignedStart, alignedEnd time.Time, i common.Interval) int {
	return EstimateRecords(alignedStart, alignedEnd, Adapt(i))
}
