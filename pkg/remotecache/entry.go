// Package remotecache provides the Redis-backed remote tier of the product
// cache. Every operation is best-effort: the remote cache is an
// optimization, never a correctness dependency, so failures degrade to
// "acts as if empty" instead of propagating.
package remotecache

import (
	"time"

	"github.com/retailstack/product-cache/pkg/catalog"
)

// Entry is the envelope stored in Redis for a cached product lookup.
type Entry struct {
	// Product is the cached payload. Nil together with Negative=true
	// marks a confirmed absence ("looked up, does not exist"), which is
	// distinct from a cache miss ("never looked up").
	Product *catalog.Product `json:"product,omitempty"`

	// Negative marks a confirmed-absent product.
	Negative bool `json:"negative,omitempty"`

	// Tier names the tier that originally produced this value
	// (for statistics and debugging).
	Tier string `json:"tier"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`
}
