package cache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/marianogappa/kline-history/kline/common"
)

// hotCache is an in-process LRU of already-decoded Candle slices in front of
// the on-disk Arrow cache, so that repeated GetRange calls within one
// process don't re-read and re-decode the same .arrow file.
//
// Grounded on the teacher's candles/cache package (github.com/hashicorp/golang-lru),
// repurposed from "the only store" to "a hot layer over a durable one".
type hotCache struct {
	lru *lru.Cache
}

func newHotCache(size int) *hotCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New(size)
	return &hotCache{lru: c}
}

func (h *hotCache) get(key common.CacheKey) ([]common.Candle, bool) {
	v, ok := h.lru.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.([]common.Candle), true
}

func (h *hotCache) put(key common.CacheKey, candles []common.Candle) {
	h.lru.Add(key.String(), candles)
}

func (h *hotCache) remove(key common.CacheKey) {
	h.lru.Remove(key.String())
}
