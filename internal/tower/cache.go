package tower

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"
)

// decodeCache is the bounded LRU tile-decode cache of spec.md §4.H: "A
// tile cache (bounded LRU keyed by archive path) MAY short-circuit
// repeated decodes... correctness must not depend on cache presence."
// Grounded on the same PeekOrAdd-style bounded cache the teacher used
// for its dedupe layer, adapted here to cache decoded tile values
// instead of dedup keys.
type decodeCache struct {
	cache *lru.Cache[string, any]
}

// newDecodeCache returns a cache holding at most size decoded tiles.
// size <= 0 disables the cache (every lookup misses).
func newDecodeCache(size int) *decodeCache {
	if size <= 0 {
		return &decodeCache{}
	}
	c, err := lru.New[string, any](size)
	if err != nil {
		// Only returned by lru.New for size <= 0, already excluded above.
		return &decodeCache{}
	}
	return &decodeCache{cache: c}
}

func (d *decodeCache) get(memberPath string) (any, bool) {
	if d.cache == nil {
		return nil, false
	}
	return d.cache.Get(memberPath)
}

func (d *decodeCache) add(memberPath string, v any) {
	if d.cache == nil {
		return
	}
	if evicted := d.cache.Add(memberPath, v); evicted {
		klog.V(2).Infof("goslabs: tile cache evicted an entry to admit %s", memberPath)
	}
}
