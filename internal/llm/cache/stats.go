package cache

// Stats holds cache metrics. Shared-tier and pool fields stay zero when no
// SharedStore is configured.
type Stats struct {
	// Hits is the number of lookups answered by the local cache.
	Hits int64
	// Misses is the number of local lookups that found nothing fresh.
	Misses int64
	// Evictions counts entries dropped to respect the size bound.
	Evictions int64
	// Expirations counts entries removed for age, lazily or by the sweep.
	Expirations int64
	// Size is the current number of local entries.
	Size int
	// HitRate is Hits / (Hits + Misses).
	HitRate float64

	// SharedHits is the number of local misses answered by the shared tier.
	SharedHits int64
	// SharedErrors counts shared-tier failures that were degraded to a miss.
	SharedErrors int64

	// PoolHits is the number of times a free connection was found in the pool.
	PoolHits uint32
	// PoolMisses is the number of times a free connection was not found in the pool.
	PoolMisses uint32
	// PoolTimeouts is the number of times a wait for a connection timed out.
	PoolTimeouts uint32
	// PoolTotalConns is the total number of connections in the pool.
	PoolTotalConns uint32
}

// Stats returns current local cache metrics.
func (c *ResponseCache[V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        c.Len(),
		HitRate:     hitRate,
	}
}
