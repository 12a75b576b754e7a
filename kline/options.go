package kline

import "time"

// engineConfig holds the knobs from spec §6's "Configuration" surface.
type engineConfig struct {
	cacheDir               string
	hotCacheSize           int
	maxConcurrent          int
	maxConcurrentDownloads int
	retryCount             int
	apiTimeout             time.Duration
	visionDataDelay        time.Duration
	restChunkSize          int
	restMaxChunks          int
	debug                  bool
}

func defaultConfig() engineConfig {
	return engineConfig{
		cacheDir:               "./cache",
		hotCacheSize:           256,
		maxConcurrent:          50,
		maxConcurrentDownloads: 13,
		retryCount:             5,
		apiTimeout:             30 * time.Second,
		visionDataDelay:        36 * time.Hour,
		restChunkSize:          1000,
		restMaxChunks:          8,
	}
}

// Option configures an Engine at construction time, mirroring the teacher's
// WithCacheSizes functional-options shape (candles/candles.go).
type Option func(*engineConfig)

// WithCacheDir sets the cache root directory (default "./cache").
func WithCacheDir(dir string) Option { return func(c *engineConfig) { c.cacheDir = dir } }

// WithHotCacheSize sets the in-process decoded-table LRU size (default 256).
func WithHotCacheSize(n int) Option { return func(c *engineConfig) { c.hotCacheSize = n } }

// WithMaxConcurrent sets REST chunk concurrency (default 50, spec §6).
func WithMaxConcurrent(n int) Option { return func(c *engineConfig) { c.maxConcurrent = n } }

// WithMaxConcurrentDownloads sets archive day-download concurrency
// (default 13, spec §6).
func WithMaxConcurrentDownloads(n int) Option {
	return func(c *engineConfig) { c.maxConcurrentDownloads = n }
}

// WithRetryCount sets per-chunk/per-day retry attempts (default 5, spec §6).
func WithRetryCount(n int) Option { return func(c *engineConfig) { c.retryCount = n } }

// WithAPITimeout sets the per-request HTTP deadline (default 30s, spec §6).
func WithAPITimeout(d time.Duration) Option { return func(c *engineConfig) { c.apiTimeout = d } }

// WithVisionDataDelay sets the historical horizon before which archive is
// preferred over REST (default 36h, spec §4.2/§6).
func WithVisionDataDelay(d time.Duration) Option {
	return func(c *engineConfig) { c.visionDataDelay = d }
}

// WithRestChunkSize sets the upstream record cap per REST chunk (default
// 1000, spec §6).
func WithRestChunkSize(n int) Option { return func(c *engineConfig) { c.restChunkSize = n } }

// WithRestMaxChunks sets the REST-vs-archive crossover used by
// SourceSelector's rule 3 (estimated records > restChunkSize*restMaxChunks).
func WithRestMaxChunks(n int) Option { return func(c *engineConfig) { c.restMaxChunks = n } }
