// Package selector implements the pure SourceSelector function of spec §4.2:
// deciding whether a request should be served by the REST API or the Vision
// archive.
package selector

import (
	"time"

	"github.com/marianogappa/kline-history/kline/common"
)

// Source is the data source chosen to serve a request.
type Source int

const (
	// REST serves the request via the paginated low-latency API.
	REST Source = iota
	// Archive serves the request via daily Vision ZIP downloads.
	Archive
)

func (s Source) String() string {
	if s == Archive {
		return "ARCHIVE"
	}
	return "REST"
}

// Params bundles the inputs to Choose.
type Params struct {
	Interval           common.Interval
	Start              time.Time
	End                time.Time
	Market             common.MarketType
	Hint               common.SourceHint
	RestChunkSize      int
	RestMaxChunks      int
	VisionDataDelay    time.Duration
	Now                time.Time
}

// Choose evaluates the spec §4.2 rules in order, first match wins.
func Choose(p Params) Source {
	if p.Hint == common.RESTOnly {
		return REST
	}
	if p.Hint == common.ArchiveOnly && p.Interval != common.Interval1s {
		return Archive
	}
	// Rule 2: 1s is REST-only, archive never publishes it, regardless of hint.
	if p.Interval == common.Interval1s {
		return REST
	}
	// Rule 3: estimated record count exceeds what REST chunking can cover.
	dur := p.Interval.Duration()
	if dur > 0 {
		estimated := int(p.End.Sub(p.Start) / dur)
		if estimated > p.RestChunkSize*p.RestMaxChunks {
			return Archive
		}
	}
	// Rule 4: range falls entirely in the historical-bulk horizon.
	if p.End.Before(p.Now.Add(-p.VisionDataDelay)) {
		return Archive
	}
	// Rule 5: default.
	return REST
}
