// Package kline implements the Orchestrator of spec §4.1: the single public
// entry point GetRange, which composes the Cache, ArchiveFetcher, and
// RestFetcher into one validated, deduplicated Table.
//
// Grounded on the teacher's Market/NewMarket construction
// (candles/candles.go), generalized from "one exchange client per provider"
// to "one fetcher per data source" behind the same functional-options
// constructor shape.
package kline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/kline-history/kline/archive"
	"github.com/marianogappa/kline-history/kline/cache"
	"github.com/marianogappa/kline-history/kline/common"
	"github.com/marianogappa/kline-history/kline/rest"
	"github.com/marianogappa/kline-history/kline/selector"
	"github.com/marianogappa/kline-history/kline/timealign"
)

const provider = "BINANCE"
const chartType = "klines"

// Engine is the Orchestrator. Construct once with NewEngine and reuse; it
// owns the cache and both fetchers, mirroring the teacher's guarantee that
// "you should only construct a Market once."
type Engine struct {
	cfg engineConfig

	cache   *cache.Cache
	archive *archive.Fetcher
	rest    *rest.Fetcher

	debug   bool
	nowFunc func() time.Time

	statsMu sync.Mutex
	stats   common.Stats
}

// NewEngine constructs an Engine with the given options applied over
// spec-default configuration (spec §6).
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	c, err := cache.New(cfg.cacheDir, cfg.hotCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		cache: c,
		archive: archive.NewFetcher(
			archive.WithMaxConcurrentDownloads(cfg.maxConcurrentDownloads),
			archive.WithAPITimeout(cfg.apiTimeout),
			archive.WithRetryCount(cfg.retryCount),
		),
		rest: rest.NewFetcher(
			rest.WithMaxConcurrent(cfg.maxConcurrent),
			rest.WithRetryCount(cfg.retryCount),
			rest.WithAPITimeout(cfg.apiTimeout),
			rest.WithRestChunkSize(cfg.restChunkSize),
		),
		nowFunc: time.Now,
	}
	return e, nil
}

// SetDebug toggles debug logging across the Engine and every fetcher it
// owns, mirroring the teacher's Market.SetDebug fan-out.
func (e *Engine) SetDebug(debug bool) {
	e.debug = debug
	e.cache.SetDebug(debug)
	e.archive.SetDebug(debug)
	e.rest.SetDebug(debug)
}

// SetTimeNowFunc overrides time.Now() for deterministic tests of the
// FutureTime guard and the today/yesterday cache-bypass rule.
func (e *Engine) SetTimeNowFunc(fn func() time.Time) {
	e.nowFunc = fn
	e.archive.SetTimeNowFunc(fn)
}

// GetRange implements spec §4.1's algorithm end to end.
func (e *Engine) GetRange(
	ctx context.Context,
	symbol string,
	interval common.Interval,
	start, end time.Time,
	market common.MarketType,
	hint common.SourceHint,
	useCache bool,
) (common.Table, common.Stats, error) {
	var stats common.Stats

	if start.Location() != time.UTC || end.Location() != time.UTC {
		return common.Table{}, stats, fmt.Errorf("%w: start and end must be UTC", common.ErrNaiveTime)
	}
	if !start.Before(end) {
		return common.Table{}, stats, fmt.Errorf("%w: start=%v end=%v", common.ErrInvalidRange, start, end)
	}
	if !market.SupportsInterval(interval) {
		return common.Table{}, stats, fmt.Errorf("%w: %v on %v", common.ErrUnsupportedInterval, interval, market)
	}
	now := e.nowFunc().UTC()
	if end.After(now) {
		return common.Table{}, stats, fmt.Errorf("%w: end=%v now=%v", common.ErrFutureTime, end, now)
	}

	normalizedSymbol := market.NormalizeSymbol(symbol)
	alignedStart := timealign.AlignStartCommon(start, interval)
	alignedEnd := timealign.AlignEndCommon(end, interval)

	primary := selector.Choose(selector.Params{
		Interval:        interval,
		Start:           alignedStart,
		End:             alignedEnd,
		Market:          market,
		Hint:            hint,
		RestChunkSize:   e.cfg.restChunkSize,
		RestMaxChunks:   e.cfg.restMaxChunks,
		VisionDataDelay: e.cfg.visionDataDelay,
		Now:             now,
	})

	if e.debug {
		log.Info().Str("symbol", normalizedSymbol).Str("interval", interval.String()).Str("primary_source", primary.String()).Msg("GetRange planned")
	}

	var fragments []common.Candle

	days := calendarDays(alignedStart, alignedEnd)
	var missDays []time.Time
	for _, day := range days {
		if useCache && !isRecentDay(day, now) {
			key := e.cacheKey(normalizedSymbol, market, interval, day)
			if candles, ok := e.cache.Load(key); ok {
				fragments = append(fragments, candles...)
				stats.CacheHits++
				continue
			}
			stats.CacheMisses++
		}
		missDays = append(missDays, day)
	}

	if len(missDays) > 0 {
		if primary == selector.Archive {
			fetched, errs := e.fetchArchiveDays(ctx, normalizedSymbol, market, interval, missDays, now, useCache)
			fragments = append(fragments, fetched...)
			stats.FetchErrors += errs
		} else {
			fetched, errs := e.fetchRestDays(ctx, normalizedSymbol, market, interval, missDays, useCache)
			fragments = append(fragments, fetched...)
			stats.FetchErrors += errs
		}
	}

	fragments = sortAndDedupe(fragments)
	if primary == selector.Archive {
		fragments = archive.InterpolateDayBoundaries(fragments, interval)
	}

	key := e.cacheKey(normalizedSymbol, market, interval, alignedStart)
	common.DetectAndLogGaps(key, fragments, interval)

	fragments = filterRange(fragments, alignedStart, alignedEnd)

	table := common.Table{Symbol: normalizedSymbol, Market: market, Interval: interval, Candles: fragments}
	if err := table.Validate(); err != nil {
		if e.debug {
			log.Warn().Err(err).Msg("assembled table failed invariant validation")
		}
		stats.FetchErrors++
	}

	e.addStats(stats)
	return table, stats, nil
}

// fetchArchiveDays fetches each missing day via the ArchiveFetcher,
// falling back to a single-day REST fetch when the archive returns an
// empty fragment for a day still inside the Vision-data-delay window
// (spec §4.1 step 5: "fallback must not recurse").
func (e *Engine) fetchArchiveDays(ctx context.Context, symbol string, market common.MarketType, interval common.Interval, days []time.Time, now time.Time, useCache bool) ([]common.Candle, int) {
	keys := make([]common.CacheKey, len(days))
	keyByDay := map[time.Time]common.CacheKey{}
	for i, d := range days {
		k := e.cacheKey(symbol, market, interval, d)
		keys[i] = k
		keyByDay[d] = k
	}

	results, errs := e.archive.FetchDays(ctx, keys)

	var out []common.Candle
	errCount := 0
	for _, d := range days {
		k := keyByDay[d]
		candles, fetchErr := results[k], errs[k]

		if fetchErr == nil && len(candles) == 0 && now.Sub(d) < e.cfg.visionDataDelay {
			dayStart, dayEnd := dayBounds(d)
			restCandles, chunksFailed, err := e.rest.FetchRange(ctx, symbol, interval, market, dayStart, dayEnd)
			if err != nil || chunksFailed > 0 {
				errCount += chunksFailed
				if err != nil {
					errCount++
				}
				continue
			}
			candles = restCandles
		} else if fetchErr != nil {
			errCount++
			continue
		}

		out = append(out, candles...)
		if useCache && isFullDay(candles, d, interval) {
			if err := e.cache.Store(k, candles); err != nil && e.debug {
				log.Warn().Err(err).Str("cache_key", k.String()).Msg("failed to persist archive day to cache")
			}
		}
	}
	return out, errCount
}

// fetchRestDays fetches the contiguous span covering every missing day via
// one RestFetcher.FetchRange call, then persists per-day slices whose days
// are fully covered and not subject to the today/yesterday bypass.
func (e *Engine) fetchRestDays(ctx context.Context, symbol string, market common.MarketType, interval common.Interval, days []time.Time, useCache bool) ([]common.Candle, int) {
	if len(days) == 0 {
		return nil, 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	rangeStart, _ := dayBounds(days[0])
	_, rangeEnd := dayBounds(days[len(days)-1])

	candles, chunksFailed, err := e.rest.FetchRange(ctx, symbol, interval, market, rangeStart, rangeEnd)
	if err != nil {
		return nil, chunksFailed + 1
	}

	if useCache {
		now := e.nowFunc().UTC()
		for _, d := range days {
			if isRecentDay(d, now) {
				continue
			}
			dayCandles := filterRange(candles, d, d.Add(24*time.Hour))
			if isFullDay(dayCandles, d, interval) {
				k := e.cacheKey(symbol, market, interval, d)
				if err := e.cache.Store(k, dayCandles); err != nil && e.debug {
					log.Warn().Err(err).Str("cache_key", k.String()).Msg("failed to persist rest day to cache")
				}
			}
		}
	}
	return candles, chunksFailed
}

func (e *Engine) cacheKey(symbol string, market common.MarketType, interval common.Interval, day time.Time) common.CacheKey {
	return common.CacheKey{
		Provider:  provider,
		Market:    market,
		ChartType: chartType,
		Symbol:    symbol,
		Interval:  interval,
		Day:       time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
	}
}

func (e *Engine) addStats(s common.Stats) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.CacheHits += s.CacheHits
	e.stats.CacheMisses += s.CacheMisses
	e.stats.FetchErrors += s.FetchErrors
}

// CacheStats returns cumulative {hits, misses, errors} across every
// GetRange call this Engine has served, per spec §6.
func (e *Engine) CacheStats() common.Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// ValidateCacheIntegrity re-checks one day's cache entry without mutating
// it on success, per spec §6 and the supplemented surface in SPEC_FULL.md.
func (e *Engine) ValidateCacheIntegrity(symbol string, market common.MarketType, interval common.Interval, day time.Time) (bool, error) {
	key := e.cacheKey(market.NormalizeSymbol(symbol), market, interval, day)
	return e.cache.ValidateIntegrity(key)
}

// RepairCache invalidates a day's cache entry and re-fetches it through the
// archive path (fetchArchiveDays, which falls back to REST only when the
// archive is empty for a day inside the vision-data-delay window), storing
// the result if it covers the whole day. It does not consult
// SourceSelector. Returns whether the entry is healthy afterward.
func (e *Engine) RepairCache(ctx context.Context, symbol string, market common.MarketType, interval common.Interval, day time.Time) bool {
	normalized := market.NormalizeSymbol(symbol)
	key := e.cacheKey(normalized, market, interval, day)
	if err := e.cache.Invalidate(key); err != nil {
		return false
	}

	now := e.nowFunc().UTC()
	candles, errCount := e.fetchArchiveDays(ctx, normalized, market, interval, []time.Time{day}, now, true)
	if errCount > 0 || len(candles) == 0 {
		return false
	}
	healthy, err := e.cache.ValidateIntegrity(key)
	return err == nil && healthy
}

// calendarDays returns every UTC calendar day touched by the half-open
// range [start, end). A range ending exactly at a day's midnight does not
// touch that day.
func calendarDays(start, end time.Time) []time.Time {
	if !end.After(start) {
		return nil
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if end.Equal(lastDay) {
		lastDay = lastDay.AddDate(0, 0, -1)
	}
	var days []time.Time
	for !day.After(lastDay) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// isRecentDay reports whether day is today or yesterday in UTC relative to
// now, the "possibly incomplete" bypass window from spec §3.
func isRecentDay(day, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	return day.Equal(today) || day.Equal(yesterday)
}

func isFullDay(candles []common.Candle, day time.Time, interval common.Interval) bool {
	if len(candles) == 0 {
		return false
	}
	dayStart, dayEnd := dayBounds(day)
	expected := int(dayEnd.Sub(dayStart) / interval.Duration())
	return len(candles) == expected
}

func filterRange(candles []common.Candle, start, end time.Time) []common.Candle {
	out := make([]common.Candle, 0, len(candles))
	for _, c := range candles {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
		}
	}
	return out
}

// sortAndDedupe sorts fragments by OpenTime ascending and drops duplicates,
// keeping the first occurrence, per spec §4.1 step 6.
func sortAndDedupe(candles []common.Candle) []common.Candle {
	if len(candles) == 0 {
		return candles
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	out := make([]common.Candle, 0, len(candles))
	var prev time.Time
	for i, c := range candles {
		if i > 0 && c.OpenTime.Equal(prev) {
			continue
		}
		out = append(out, c)
		prev = c.OpenTime
	}
	return out
}
