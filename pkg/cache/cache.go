// Package cache provides byte-level caching for remote lookups.
//
// The pipeline caches identifier-mapping responses so that repeated runs
// do not hit the remote annotation service again. Three backends exist:
//
//   - [FileCache]: JSON envelopes under ~/.cache/exprflow (CLI default)
//   - [RedisCache]: shared cache for teams running many analyses
//   - [NullCache]: disables caching (--no-cache)
//
// Keys are produced by a [Keyer] so that every backend sees the same
// key layout.
package cache

import (
	"context"
	"time"
)

// Default TTLs per entry kind.
const (
	// TTLMapping is how long identifier cross-references stay valid.
	// Ensembl releases roughly quarterly, so a week is conservative.
	TTLMapping = 7 * 24 * time.Hour

	// TTLGeneSets is how long downloaded gene-set collections stay valid.
	TTLGeneSets = 30 * 24 * time.Hour
)

// Cache stores opaque byte payloads under string keys.
type Cache interface {
	// Get returns the payload and true on a hit. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Stats describes the contents of a cache.
type Stats struct {
	Entries int
	Bytes   int64
	Expired int // entries past their TTL that have not been evicted yet
}

// Maintainer is implemented by backends that can be inspected and emptied
// as a whole.
type Maintainer interface {
	// Clear removes every entry owned by the cache and reports how many.
	Clear(ctx context.Context) (int, error)

	// Stats summarizes the entries owned by the cache.
	Stats(ctx context.Context) (Stats, error)
}

// Keyer generates cache keys.
type Keyer interface {
	// HTTPKey generates a key for a raw HTTP response body.
	HTTPKey(namespace, key string) string

	// MappingKey generates a key for one batch of identifier mappings.
	MappingKey(service, dataset string, ids []string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey generates a key for HTTP response caching.
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// MappingKey hashes the identifier batch so long batches produce short keys.
// The batch order matters: callers pass IDs in a stable order.
func (DefaultKeyer) MappingKey(service, dataset string, ids []string) string {
	return "mapping:" + service + ":" + dataset + ":" + idDigest(ids)
}
