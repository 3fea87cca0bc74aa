package engine

import (
	"sync"

	"github.com/retailstack/product-cache/pkg/catalog"
)

// resolution is the outcome of one chain walk for a single id.
type resolution struct {
	product *catalog.Product
	tier    Tier
	miss    bool // true for a fresh confirmed absence (NotFound from a source)
}

// inflightCall is a shared fetch that concurrent lookups of the same id
// join instead of walking the chain themselves. The done channel closes
// once res is populated; res is immutable afterwards.
type inflightCall struct {
	done chan struct{}
	res  resolution
}

// inflightGroup guarantees at most one in-flight chain walk per id.
//
// golang.org/x/sync/singleflight is not used here because batch lookups
// need to claim many ids atomically and resolve them from a single
// FetchBatch call, which singleflight's per-key callback model cannot
// express; the group below exposes claim/complete directly so single,
// batch and preload paths all share one in-flight table.
type inflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newInflightGroup() *inflightGroup {
	return &inflightGroup{calls: make(map[string]*inflightCall)}
}

// claim registers an in-flight fetch for id. The second return value is
// true when the caller became the owner and must eventually call complete;
// false means an existing flight was joined.
func (g *inflightGroup) claim(id string) (*inflightCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[id]; ok {
		engineSharedFlights.Inc()
		return c, false
	}

	c := &inflightCall{done: make(chan struct{})}
	g.calls[id] = c
	return c, true
}

// complete publishes the resolution and releases the id for future flights.
func (g *inflightGroup) complete(id string, c *inflightCall, res resolution) {
	g.mu.Lock()
	delete(g.calls, id)
	g.mu.Unlock()

	c.res = res
	close(c.done)
}
