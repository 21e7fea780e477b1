package models

import "time"

// CacheTTL is the age after which a cached snapshot counts as stale.
// Staleness never blocks a read; it only schedules a background refresh.
const CacheTTL = 24 * time.Hour

// CacheEntry wraps a cached value with the time it was stored.
type CacheEntry[T any] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Stale reports whether the entry is older than CacheTTL at the given time.
func (c CacheEntry[T]) Stale(now time.Time) bool {
	return now.Sub(c.Timestamp) > CacheTTL
}
