// Package archive implements the ArchiveFetcher of spec §4.4: downloading,
// checksum-verifying, and parsing Binance Vision's daily kline ZIP archives,
// fanned out across a bounded worker pool.
//
// Grounded on the teacher's per-provider struct-with-lock-and-retrier
// construction (candles/binance/binance.go), generalized from "one HTTP
// client per exchange" to "one HTTP client per data source", and on
// sawpanic-cryptorun's semaphore-gated client pool
// (internal/infrastructure/httpclient/pool.go) for the concurrency shape,
// translated to golang.org/x/sync/semaphore + errgroup.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/marianogappa/kline-history/kline/common"
)

const (
	defaultMaxConcurrentDownloads = 13
	defaultAPITimeout             = 30 * time.Second
	defaultBaseURL                = "https://data.binance.vision"
	userAgent                     = "Mozilla/5.0 (compatible; klinehistory/1.0; +https://github.com/marianogappa/kline-history)"
)

// Fetcher downloads and parses daily Vision archives.
type Fetcher struct {
	httpClient *http.Client

	// baseURL is overridable for tests, mirroring the teacher's apiURL field
	// (candles/binance/binance.go).
	baseURL string

	maxConcurrentDownloads int
	retrier                common.Retrier
	registry               *checksumRegistry

	debug bool

	// nowFunc is overridable for tests, mirroring the teacher iterator's
	// SetTimeNowFunc convention (candles/iterator/iterator.go).
	nowFunc func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxConcurrentDownloads bounds the number of simultaneous day
// downloads (spec §5, default 13).
func WithMaxConcurrentDownloads(n int) Option {
	return func(f *Fetcher) { f.maxConcurrentDownloads = n }
}

// WithAPITimeout sets the per-request HTTP timeout (spec §6, default 30s).
func WithAPITimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.httpClient.Timeout = d }
}

// WithRetryCount sets the checksum/transport retry attempts for one day.
func WithRetryCount(n int) Option {
	return func(f *Fetcher) { f.retrier.Strategy.Attempts = n }
}

// NewFetcher constructs a Fetcher with spec-default configuration.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:             &http.Client{Timeout: defaultAPITimeout},
		baseURL:                defaultBaseURL,
		maxConcurrentDownloads: defaultMaxConcurrentDownloads,
		registry:               newChecksumRegistry(),
		nowFunc:                time.Now,
	}
	f.retrier = common.NewRetrier("archive", common.RetryStrategy{Attempts: 2}, false)
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetDebug toggles debug logging.
func (f *Fetcher) SetDebug(debug bool) { f.debug = debug }

// SetTimeNowFunc overrides time.Now() for testing the "not yet published"
// 404 window.
func (f *Fetcher) SetTimeNowFunc(fn func() time.Time) { f.nowFunc = fn }

// ChecksumFailures reports the (key -> failure count) registry described in
// SPEC_FULL.md's supplemented-features section.
func (f *Fetcher) ChecksumFailures() map[string]int { return f.registry.snapshot() }

func (f *Fetcher) archiveURLs(key common.CacheKey) (zipURL, checksumURL string) {
	base := fmt.Sprintf(
		"%s/data/%s/daily/klines/%s/%s/%s-%s-%s.zip",
		f.baseURL, key.Market.ArchivePath(), key.Symbol, key.Interval, key.Symbol, key.Interval, key.Day.Format("2006-01-02"),
	)
	return base, base + ".CHECKSUM"
}

// FetchDay downloads, verifies, and parses one day's archive. A
// not-yet-published 404 within 2 days of now returns (nil, nil) with a
// warning log, per spec §4.4/§7. A 404 older than 2 days is an error.
func (f *Fetcher) FetchDay(ctx context.Context, key common.CacheKey) ([]common.Candle, error) {
	zipURL, checksumURL := f.archiveURLs(key)

	var candles []common.Candle
	attempt := 0
	err := f.retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		zipBytes, notFound, err := f.get(ctx, zipURL)
		if err != nil {
			return err
		}
		if notFound {
			if f.nowFunc().Sub(key.Day) < 2*24*time.Hour {
				log.Warn().Str("cache_key", key.String()).Msg("archive not yet published")
				return nil
			}
			return common.RemoteError{IsNotRetryable: true, Err: fmt.Errorf("%w: %s", common.ErrNotFound, zipURL)}
		}

		checksumBytes, cfNotFound, err := f.get(ctx, checksumURL)
		if err != nil {
			return err
		}
		if cfNotFound {
			return fmt.Errorf("%w: checksum file missing for %s", common.ErrIntegrity, zipURL)
		}

		if err := verifyChecksum(zipBytes, checksumBytes); err != nil {
			f.registry.record(key)
			if attempt == 1 {
				// Exactly one re-download on checksum mismatch, per spec §4.1/§7.
				return err
			}
			return common.RemoteError{IsNotRetryable: true, Err: err}
		}

		parsed, err := parseZIP(zipBytes, key.Interval)
		if err != nil {
			return common.RemoteError{IsNotRetryable: true, Err: err}
		}
		candles = parsed
		if f.debug {
			log.Info().Str("cache_key", key.String()).Int("candles", len(candles)).Str("size", humanize.Bytes(uint64(len(zipBytes)))).Msg("archive day fetched")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// get performs one GET with redirect-following (the default http.Client
// behaviour) and a browser-like User-Agent, per spec §4.4/§6. Returns
// (body, true, nil) to represent a 404 distinctly from a transport error.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, false, common.RemoteError{Err: fmt.Errorf("%w: %v", common.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, common.RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: unexpected status %d for %s", common.ErrTransport, resp.StatusCode, url)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, common.RemoteError{Err: fmt.Errorf("%w: reading body: %v", common.ErrTransport, err)}
	}
	return body, false, nil
}

// parseZIP opens the single CSV member of a daily archive ZIP and parses it.
func parseZIP(zipBytes []byte, interval common.Interval) ([]common.Candle, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ZIP: %v", common.ErrIntegrity, err)
	}
	if len(r.File) == 0 {
		return nil, fmt.Errorf("%w: ZIP archive has no members", common.ErrIntegrity)
	}
	rc, err := r.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening ZIP member: %v", common.ErrIntegrity, err)
	}
	defer rc.Close()

	return parseCSV(rc, interval)
}

// FetchDays downloads every key in keys concurrently, bounded by
// maxConcurrentDownloads (spec §4.4/§5). Per-day failures are isolated: they
// populate errs for that key but do not cancel the others, and the pool
// joins fully before returning (spec: "The pool joins before the component
// returns").
func (f *Fetcher) FetchDays(ctx context.Context, keys []common.CacheKey) (map[common.CacheKey][]common.Candle, map[common.CacheKey]error) {
	sem := semaphore.NewWeighted(int64(f.maxConcurrentDownloads))
	var (
		results = make(map[common.CacheKey][]common.Candle, len(keys))
		errs    = make(map[common.CacheKey]error)
		mu      sync.Mutex
	)

	g, _ := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs[key] = common.ErrCancelled
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			candles, err := f.FetchDay(ctx, key)
			mu.Lock()
			if err != nil {
				errs[key] = err
			} else {
				results[key] = candles
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
