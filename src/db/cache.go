package db

import (
	"log"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// Storing cache keys in a concurrent data structure to allow for clearing all
// rule caches on any rule mutation. A mutation clears the cache before it
// returns, so evaluations started after a write always see the new rule set.
// The generation counter fences fills against clears: a fill that began
// before a clear carries a stale generation and is dropped instead of
// re-caching the old rule set.
var (
	Cache         *ristretto.Cache
	RuleCacheKeys = struct {
		sync.RWMutex
		m   map[string]struct{}
		gen uint64
	}{m: make(map[string]struct{})}
)

func InitCache() {
	var err error
	Cache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
}

// RuleCacheGeneration returns the fence value to pass to
// SetRuleCacheIfCurrent. Read it before the database read that produces the
// value being cached.
func RuleCacheGeneration() uint64 {
	RuleCacheKeys.RLock()
	defer RuleCacheKeys.RUnlock()
	return RuleCacheKeys.gen
}

// SetRuleCacheIfCurrent stores the value unless ClearAllRuleCaches ran since
// gen was read, in which case the value may predate a rule mutation and is
// dropped. Returns whether the value was cached.
func SetRuleCacheIfCurrent(cacheKey string, value interface{}, gen uint64) bool {
	RuleCacheKeys.Lock()
	defer RuleCacheKeys.Unlock()
	if RuleCacheKeys.gen != gen {
		return false
	}
	RuleCacheKeys.m[cacheKey] = struct{}{}
	Cache.Set(cacheKey, value, 1)
	Cache.Wait()
	return true
}

func ClearAllRuleCaches() {
	RuleCacheKeys.Lock()
	RuleCacheKeys.gen++
	for key := range RuleCacheKeys.m {
		Cache.Del(key)
	}
	RuleCacheKeys.m = make(map[string]struct{})
	RuleCacheKeys.Unlock()
}
