// Copyright 2025 Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pathresolver

import (
	"os"
	"sync"
	"time"
)

// DefaultCacheTTL matches spec.md §4.1's getCached default of 1000ms.
const DefaultCacheTTL = 1000 * time.Millisecond

type cacheEntry struct {
	value    any
	mtime    time.Time
	cachedAt time.Time
}

// ttlCache is a TTL cache keyed by path, invalidated either by TTL
// expiry or by a changed file mtime, matching spec.md's "TTL cache
// keyed by path+mtime" requirement.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newTTLCache() *ttlCache {
	return &ttlCache{entries: make(map[string]cacheEntry)}
}

func (c *ttlCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// GetCached returns a cached value for path if it is within ttl and
// the file's mtime has not advanced since caching; otherwise it calls
// load, caches the result, and returns it. If the file does not exist,
// defaultValue is returned (and not cached).
func (r *Resolver) GetCached(path string, ttl time.Duration, load func() (any, error), defaultValue any) (any, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return defaultValue, nil
	}

	r.cache.mu.Lock()
	entry, ok := r.cache.entries[path]
	r.cache.mu.Unlock()

	if ok && time.Since(entry.cachedAt) < ttl && entry.mtime.Equal(info.ModTime()) {
		return entry.value, nil
	}

	value, err := load()
	if err != nil {
		return nil, err
	}

	r.cache.mu.Lock()
	r.cache.entries[path] = cacheEntry{value: value, mtime: info.ModTime(), cachedAt: time.Now()}
	r.cache.mu.Unlock()

	return value, nil
}
