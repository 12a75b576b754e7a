// Package rest implements the RestFetcher of spec §4.5: chunked, concurrent
// queries against Binance's paginated klines endpoint, with host rotation
// and rate-limit-aware retries.
//
// Grounded on the teacher's per-exchange struct-with-lock-and-requester
// construction (candles/binance/binance.go, candles/common/request_retrier.go),
// generalized from "one fixed host" to "a rotating host pool" since this
// spec's REST layer must fail over across Binance's documented host
// siblings, and from goroutine-free sequential requests to a
// semaphore-bounded fan-out (golang.org/x/sync/semaphore + errgroup),
// since spec §4.5 requires concurrent chunks.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/marianogappa/kline-history/kline/common"
)

const (
	defaultMaxConcurrent = 50
	defaultRetryCount     = 5
	defaultAPITimeout     = 30 * time.Second
	defaultRestChunkSize  = 1000
)

// hostPool is the per-market rotating host list from spec §6.
var hostPool = map[common.MarketType][]string{
	common.SPOT: {
		"https://api.binance.com",
		"https://api1.binance.com",
		"https://api2.binance.com",
		"https://api3.binance.com",
		"https://api4.binance.com",
		"https://data-api.binance.vision",
	},
	common.FUTURES_USDT: {
		"https://fapi.binance.com",
		"https://fapi1.binance.com",
		"https://fapi2.binance.com",
	},
	common.FUTURES_COIN: {
		"https://dapi.binance.com",
		"https://dapi1.binance.com",
		"https://dapi2.binance.com",
	},
}

func apiPath(market common.MarketType) string {
	if market == common.SPOT {
		return "/api/v3/klines"
	}
	return "/fapi/v1/klines"
}

// Fetcher queries the REST klines endpoint, chunked and host-rotated.
type Fetcher struct {
	httpClient *http.Client

	maxConcurrent  int
	retryCount     int
	restChunkSize  int

	debug bool

	// rotation is the only process-wide mutable state this package owns
	// (spec §5's "host-rotation counter mutates under its own lock"), kept
	// per market behind its own mutex.
	rotationMu sync.Mutex
	rotation   map[common.MarketType]int

	// usedWeight tracks the last-seen x-mbx-used-weight-1m per host, the
	// supplemented proactive-rotation feature from SPEC_FULL.md.
	weightMu   sync.Mutex
	usedWeight map[string]int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxConcurrent bounds simultaneous in-flight chunks (spec §5, default 50).
func WithMaxConcurrent(n int) Option { return func(f *Fetcher) { f.maxConcurrent = n } }

// WithRetryCount sets the per-chunk retry attempts (spec §4.5, default 5).
func WithRetryCount(n int) Option { return func(f *Fetcher) { f.retryCount = n } }

// WithAPITimeout sets the per-request HTTP timeout (default 30s).
func WithAPITimeout(d time.Duration) Option { return func(f *Fetcher) { f.httpClient.Timeout = d } }

// WithRestChunkSize sets the upstream record cap per chunk (default 1000).
func WithRestChunkSize(n int) Option { return func(f *Fetcher) { f.restChunkSize = n } }

// NewFetcher constructs a Fetcher with spec-default configuration.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:    &http.Client{Timeout: defaultAPITimeout},
		maxConcurrent: defaultMaxConcurrent,
		retryCount:    defaultRetryCount,
		restChunkSize: defaultRestChunkSize,
		rotation:      map[common.MarketType]int{},
		usedWeight:    map[string]int{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetDebug toggles debug logging.
func (f *Fetcher) SetDebug(debug bool) { f.debug = debug }

// nextHost advances and returns the next host for market, round-robin, and
// proactively skips a host whose last-seen used-weight looks saturated --
// the supplemented rate-limit-awareness feature from SPEC_FULL.md.
func (f *Fetcher) nextHost(market common.MarketType) string {
	hosts := hostPool[market]
	if len(hosts) == 0 {
		return ""
	}

	f.rotationMu.Lock()
	defer f.rotationMu.Unlock()

	for i := 0; i < len(hosts); i++ {
		idx := f.rotation[market] % len(hosts)
		f.rotation[market]++
		host := hosts[idx]
		if !f.isHot(host) {
			return host
		}
	}
	// All hosts look hot; use the next one anyway rather than stalling.
	idx := f.rotation[market] % len(hosts)
	f.rotation[market]++
	return hosts[idx]
}

func (f *Fetcher) isHot(host string) bool {
	f.weightMu.Lock()
	defer f.weightMu.Unlock()
	return f.usedWeight[host] >= 1100 // conservative margin below Binance's 1200/min SPOT cap
}

func (f *Fetcher) recordWeight(host string, weight int) {
	if weight <= 0 {
		return
	}
	f.weightMu.Lock()
	defer f.weightMu.Unlock()
	f.usedWeight[host] = weight
}

// FetchRange fetches [start, end] for symbol/interval/market, chunked and
// dispatched concurrently per spec §4.5, returning the assembled,
// sorted, de-duplicated candles plus the count of chunks that failed after
// exhausting retries.
func (f *Fetcher) FetchRange(ctx context.Context, symbol string, interval common.Interval, market common.MarketType, start, end time.Time) ([]common.Candle, int, error) {
	recordLimit := market.RecordLimit()
	if f.restChunkSize > 0 && f.restChunkSize < recordLimit {
		recordLimit = f.restChunkSize
	}
	chunks := planChunks(start, end, interval, recordLimit)
	if len(chunks) == 0 {
		return nil, 0, nil
	}

	sem := semaphore.NewWeighted(int64(f.maxConcurrent))
	results := make([][]common.Candle, len(chunks))
	var (
		mu           sync.Mutex
		chunksFailed int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				chunksFailed++
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			candles, err := f.fetchChunkWithRetry(gctx, symbol, interval, market, chunk)
			mu.Lock()
			if err != nil {
				chunksFailed++
				if f.debug {
					log.Warn().Str("symbol", symbol).Time("chunk_start", chunk.Start).Err(err).Msg("rest chunk failed after retries")
				}
			} else {
				results[i] = candles
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var all []common.Candle
	for _, r := range results {
		all = append(all, r...)
	}
	all = sortAndDedupe(all)
	return all, chunksFailed, nil
}

// fetchChunkWithRetry retries one chunk up to retryCount attempts with
// exponential backoff, rotating hosts on transport errors and honoring
// Retry-After on 418/429, per spec §4.5.
func (f *Fetcher) fetchChunkWithRetry(ctx context.Context, symbol string, interval common.Interval, market common.MarketType, chunk common.TimeRange) ([]common.Candle, error) {
	attempts := f.retryCount
	if attempts <= 0 {
		attempts = 1
	}
	sleepTime := time.Second

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		host := f.nextHost(market)
		candles, err := f.fetchChunk(ctx, host, symbol, interval, market, chunk)
		if err == nil {
			return candles, nil
		}
		lastErr = err

		var remoteErr common.RemoteError
		if asRemoteError(err, &remoteErr) {
			if remoteErr.IsNotRetryable {
				return nil, err
			}
			if remoteErr.RetryAfter > 0 {
				sleepTime = remoteErr.RetryAfter
			}
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", common.ErrCancelled, ctx.Err())
		case <-time.After(sleepTime):
		}
		if sleepTime < 60*time.Second {
			sleepTime *= 2
			if sleepTime > 60*time.Second {
				sleepTime = 60 * time.Second
			}
		}
	}
	return nil, lastErr
}

func asRemoteError(err error, out *common.RemoteError) bool {
	re, ok := err.(common.RemoteError)
	if ok {
		*out = re
	}
	return ok
}

// fetchChunk performs exactly one HTTP GET for the chunk against host.
func (f *Fetcher) fetchChunk(ctx context.Context, host, symbol string, interval common.Interval, market common.MarketType, chunk common.TimeRange) ([]common.Candle, error) {
	u, err := url.Parse(host + apiPath(market))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval.String())
	q.Set("startTime", strconv.FormatInt(chunk.Start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(chunk.End.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(market.RecordLimit()))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, common.RemoteError{Err: fmt.Errorf("%w: %v", common.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if w, err := strconv.Atoi(resp.Header.Get("x-mbx-used-weight-1m")); err == nil {
		f.recordWeight(host, w)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, common.RemoteError{StatusCode: resp.StatusCode, RetryAfter: retryAfter, Err: fmt.Errorf("%w: status %d", common.ErrRateLimited, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, common.RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: status %d", common.ErrTransport, resp.StatusCode)}
	}

	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, common.RemoteError{Err: fmt.Errorf("%w: invalid JSON response: %v", common.ErrIntegrity, err)}
	}

	candles, err := parseKlinesResponse(raw, interval)
	if err != nil {
		return nil, common.RemoteError{IsNotRetryable: true, Err: err}
	}
	return candles, nil
}

// sortAndDedupe sorts candles by OpenTime ascending and drops duplicates,
// keeping the first occurrence, per spec §4.5's assembly rule.
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
