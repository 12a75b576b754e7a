// Package cache implements the durable, content-addressed day-sharded cache
// of spec §4.3: one Arrow IPC file per (provider, market, chartType, symbol,
// interval, day), indexed by a JSON metadata file.
//
// Grounded on the teacher's candles/cache package (an in-memory LRU of
// candlestick slices) generalized into a disk-first store with an
// in-process LRU (hotCache) layered in front of it, since the spec requires
// day-granularity persistence across process restarts rather than a pure
// request-deduplication cache.
package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/kline-history/kline/common"
)

// Cache is the durable, content-addressed store described in spec §4.3.
type Cache struct {
	root string

	hot   *hotCache
	meta  *metadataIndex
	locks *keyLocks

	debug bool

	Hits   int
	Misses int
}

// New constructs a Cache rooted at dir, creating the metadata index if
// absent. hotCacheSize bounds the in-process LRU of decoded day-tables.
func New(dir string, hotCacheSize int) (*Cache, error) {
	idx, err := newMetadataIndex(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCache, err)
	}
	return &Cache{
		root:  dir,
		hot:   newHotCache(hotCacheSize),
		meta:  idx,
		locks: newKeyLocks(),
	}, nil
}

// SetDebug toggles debug logging, mirroring the teacher's SetDebug convention.
func (c *Cache) SetDebug(debug bool) { c.debug = debug }

// Load returns the cached Table for key, or (nil, false) on a miss --
// absent file, corrupt file, schema mismatch, or failed structural
// validation (spec §4.3: "The cache MUST NOT return partially-valid rows").
//
// A hot-cache copy is served only while the file is still on disk at the
// size recorded in the metadata index; otherwise the file is re-read and
// re-validated. A file rewritten in place at the same size is not detected
// while its decoded copy is hot.
func (c *Cache) Load(key common.CacheKey) ([]common.Candle, bool) {
	path := layout(c.root, key)
	if candles, ok := c.hot.get(key); ok {
		if m, found := c.meta.get(key.String()); found {
			if info, err := os.Stat(path); err == nil && info.Size() == m.SizeBytes {
				c.Hits++
				return candles, true
			}
		}
		c.hot.remove(key)
	}

	if _, ok := c.meta.get(key.String()); !ok {
		c.Misses++
		return nil, false
	}

	candles, err := readArrowFile(path)
	if err != nil {
		if c.debug {
			log.Warn().Str("cache_key", key.String()).Err(err).Msg("cache load failed structural/decode check, invalidating")
		}
		_ = c.Invalidate(key)
		c.Misses++
		return nil, false
	}

	table := common.Table{Symbol: key.Symbol, Market: key.Market, Interval: key.Interval, Candles: candles}
	if err := table.Validate(); err != nil {
		log.Warn().Str("cache_key", key.String()).Err(err).Msg("cache entry failed invariant validation, invalidating")
		_ = c.Invalidate(key)
		c.Misses++
		return nil, false
	}

	c.hot.put(key, candles)
	c.Hits++
	return candles, true
}

// Store writes candles for key, replacing any prior entry in full (spec
// §4.3: "mutated only by full replacement"). Concurrent Store calls to the
// same key serialize via a per-key lock; the last writer wins, matching
// spec §4.3's "they are writing equivalent data" rationale.
func (c *Cache) Store(key common.CacheKey, candles []common.Candle) error {
	lock := c.locks.get(key.String())
	lock.Lock()
	defer lock.Unlock()

	path := layout(c.root, key)
	size, err := writeArrowFile(path, candles)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCache, err)
	}

	if err := c.meta.set(key.String(), entryMeta{
		Path:      path,
		SizeBytes: size,
		CreatedAt: time.Now().UTC(),
		RowCount:  len(candles),
	}); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCache, err)
	}

	c.hot.put(key, candles)
	return nil
}

// Invalidate removes the file and metadata entry for key. Idempotent.
func (c *Cache) Invalidate(key common.CacheKey) error {
	c.hot.remove(key)
	path := layout(c.root, key)
	if err := removeIfExists(path); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCache, err)
	}
	return c.meta.delete(key.String())
}

// ValidateIntegrity re-reads and re-validates key's cache entry without
// serving it from the hot cache, reporting whether it's currently healthy.
// Supplements spec §6's ValidateCacheIntegrity surface (see SPEC_FULL.md).
func (c *Cache) ValidateIntegrity(key common.CacheKey) (bool, error) {
	c.hot.remove(key)
	path := layout(c.root, key)
	if _, ok := c.meta.get(key.String()); !ok {
		return false, nil
	}
	candles, err := readArrowFile(path)
	if err != nil {
		return false, nil
	}
	table := common.Table{Symbol: key.Symbol, Market: key.Market, Interval: key.Interval, Candles: candles}
	if err := table.Validate(); err != nil {
		return false, nil
	}
	return true, nil
}
