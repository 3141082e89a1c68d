// Package cache provides the TTL cache the gateway answers market
// metadata lookups from, so repeated GetMarket calls do not burn REST
// rate-limit tokens.
package cache

import "time"

// Cache is a TTL key-value store.
type Cache interface {
	// Get returns (value, true) when the key is present and fresh.
	Get(key string) (interface{}, bool)

	// Set stores a value under the key for the given TTL. Admission is
	// best-effort; a false return means the entry was not admitted.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete drops the key.
	Delete(key string)

	// Clear drops everything.
	Clear()

	// Close releases the cache's resources.
	Close()
}
