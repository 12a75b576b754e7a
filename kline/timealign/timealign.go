// Package timealign implements the pure, stateless boundary-alignment and
// record-count rules of spec §4.6. The orchestrator (package kline) uses it
// to align request bounds; it has no state of its own. REST chunk planning
// lives in package rest (chunker.go).
//
// Grounded on the shape of the teacher's common.NormalizeTimestamp
// (candles/common/common.go): truncate, compare to the original, adjust if
// they differ. This package generalizes that single "round up, optionally
// add one more interval" rule into the spec's two distinct rules (round up
// for start, round down for end) plus calendar-accurate month/week handling,
// resolving the spec's Open Question in favor of calendar alignment for
// month boundaries (the 30-day figure is for REST chunk sizing only).
package timealign

import "time"

// AlignStart rounds t up to the next interval boundary, or returns t
// unchanged if it already sits exactly on one.
func AlignStart(t time.Time, interval Interval) time.Time {
	t = t.UTC().Truncate(time.Microsecond)
	return wrap(interval).alignUp(t)
}

// AlignEnd rounds t down to the previous interval boundary, or returns t
// unchanged if it already sits exactly on one.
func AlignEnd(t time.Time, interval Interval) time.Time {
	t = t.UTC().Truncate(time.Microsecond)
	return wrap(interval).alignDown(t)
}

// EstimateRecords returns the inclusive record count between two already
// aligned instants: floor((end-start)/interval) + 1, per spec §4.6. If
// alignedEnd < alignedStart the estimate is 0 (empty range, not an error).
func EstimateRecords(alignedStart, alignedEnd time.Time, interval Interval) int {
	if alignedEnd.Before(alignedStart) {
		return 0
	}
	dur := interval.Duration()
	if dur <= 0 {
		return 0
	}
	return int(alignedEnd.Sub(alignedStart)/dur) + 1
}

// Interval is the minimal shape timealign needs from a candlestick interval:
// its fixed duration (valid for everything except calendar months/weeks,
// where alignUp/alignDown special-case instead) and whether it is the
// calendar-special 1-month or 1-week interval.
//
// kline/common.Interval satisfies this via the adapter in adapter.go (the
// only file here that imports kline/common), so the alignment functions in
// this file work on the interface alone and remain a pure, independently
// testable library, matching the teacher's "TimeAlignment is a pure
// library" design note.
type Interval interface {
	Duration() time.Duration
	IsCalendarMonth() bool
	IsCalendarWeek() bool
}

func (i concreteInterval) alignUp(t time.Time) time.Time {
	if i.IsCalendarMonth() {
		return alignMonthUp(t)
	}
	if i.IsCalendarWeek() {
		return alignWeekUp(t)
	}
	return alignDurationUp(t, i.Duration())
}

func (i concreteInterval) alignDown(t time.Time) time.Time {
	if i.IsCalendarMonth() {
		return alignMonthDown(t)
	}
	if i.IsCalendarWeek() {
		return alignWeekDown(t)
	}
	return alignDurationDown(t, i.Duration())
}

// concreteInterval is the package-local wrapper used so methods can be
// defined on the Interval values passed in by adapter.go without requiring
// callers to implement alignUp/alignDown themselves.
type concreteInterval struct{ Interval }

func wrap(i Interval) concreteInterval { return concreteInterval{i} }

func alignDurationUp(t time.Time, dur time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	elapsed := t.Sub(epoch)
	rem := elapsed % dur
	if rem == 0 {
		return t
	}
	return t.Add(dur - rem)
}

func alignDurationDown(t time.Time, dur time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	elapsed := t.Sub(epoch)
	rem := elapsed % dur
	if rem == 0 {
		return t
	}
	return t.Add(-rem)
}

// alignMonthUp rounds t up to the 1st of the month 00:00:00 UTC.
func alignMonthUp(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	if first.Equal(t) {
		return t
	}
	return first.AddDate(0, 1, 0)
}

// alignMonthDown rounds t down to the 1st of the month 00:00:00 UTC.
func alignMonthDown(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// alignWeekUp rounds t up to the next Monday 00:00:00 UTC.
func alignWeekUp(t time.Time) time.Time {
	monday := weekStart(t)
	if monday.Equal(t) {
		return t
	}
	return monday.AddDate(0, 0, 7)
}

// alignWeekDown rounds t down to the previous (or same) Monday 00:00:00 UTC.
func alignWeekDown(t time.Time) time.Time {
	return weekStart(t)
}

func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday: Sunday=0 ... Saturday=6. Distance back to Monday:
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
