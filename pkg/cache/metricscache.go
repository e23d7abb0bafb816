/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache holds the process-local metrics cache. It is not a
// correctness-critical cache: entries may vanish at any time and every
// cached computation must be safe to redo.
package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/courierd/courierd/pkg/operator/logging"
)

const (
	DefaultMetricsTTL   = 5 * time.Minute
	DefaultMetricsSweep = time.Minute
)

// Stats is a point-in-time census of the cache.
type Stats struct {
	// Size counts every stored entry, expired-but-unswept included.
	Size int
	// Valid counts entries that a read would still return.
	Valid int
	// Expired counts entries waiting for the next sweep.
	Expired int
}

// MetricsCache memoises expensive analytics lookups with a TTL.
type MetricsCache struct {
	cache *cache.Cache
}

func NewMetricsCache(ttl, sweep time.Duration) *MetricsCache {
	c := cache.New(ttl, sweep)
	c.OnEvicted(func(string, interface{}) {
		evictionsTotal.Inc()
	})
	return &MetricsCache{cache: c}
}

// Get returns the cached value for key when present and fresh.
func (m *MetricsCache) Get(key string) (any, bool) {
	value, found := m.cache.Get(key)
	if found {
		hitsTotal.Inc()
		return value, true
	}
	missesTotal.Inc()
	return nil, false
}

// Set stores value under key with the default TTL. Callers must only store
// successful upstream responses.
func (m *MetricsCache) Set(key string, value any) {
	m.cache.SetDefault(key, value)
}

// GetOrFetch returns the cached value for key, fetching and storing it on a
// miss. Failed fetches are never cached.
func (m *MetricsCache) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if value, found := m.Get(key); found {
		return value, nil
	}
	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(key, value)
	logging.FromContext(ctx).V(1).Info("cached metrics entry", "key", key)
	return value, nil
}

// Stats scans the cache for its census. Expired entries linger until the
// sweeper runs, which is what the Expired count surfaces.
func (m *MetricsCache) Stats() Stats {
	valid := len(m.cache.Items())
	size := m.cache.ItemCount()
	return Stats{
		Size:    size,
		Valid:   valid,
		Expired: size - valid,
	}
}

// Flush drops every entry.
func (m *MetricsCache) Flush() {
	m.cache.Flush()
	flushesTotal.Inc()
}
