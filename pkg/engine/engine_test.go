package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/localcache"
)

// fakeSource is an in-memory catalog.Source with controllable failures.
type fakeSource struct {
	mu          sync.Mutex
	products    map[string]*catalog.Product
	unavailable bool
	delay       time.Duration

	fetchCalls int
	batchCalls int
}

func newFakeSource(products ...*catalog.Product) *fakeSource {
	s := &fakeSource{products: make(map[string]*catalog.Product)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeSource) setUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *fakeSource) counts() (fetch, batch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls, s.batchCalls
}

func (s *fakeSource) Fetch(ctx context.Context, id string) (*catalog.Product, error) {
	s.mu.Lock()
	s.fetchCalls++
	down := s.unavailable
	delay := s.delay
	p, ok := s.products[id]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if down {
		return nil, fmt.Errorf("%w: fake outage", catalog.ErrSourceUnavailable)
	}
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (s *fakeSource) FetchBatch(ctx context.Context, ids []string) (map[string]catalog.BatchResult, error) {
	s.mu.Lock()
	s.batchCalls++
	down := s.unavailable
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	results := make(map[string]catalog.BatchResult, len(ids))
	for _, id := range ids {
		if down {
			results[id] = catalog.BatchResult{Err: fmt.Errorf("%w: fake outage", catalog.ErrSourceUnavailable)}
			continue
		}
		s.mu.Lock()
		p, ok := s.products[id]
		s.mu.Unlock()
		if !ok {
			results[id] = catalog.BatchResult{Err: catalog.ErrNotFound}
			continue
		}
		results[id] = catalog.BatchResult{Product: p}
	}
	return results, nil
}

// newTestEngine builds an engine with the remote tier disabled, which is
// the pure local + source degradation mode. Remote-tier behavior is
// covered by the integration tests.
func newTestEngine(t *testing.T, cfg Config, primary, secondary catalog.Source) *Engine {
	t.Helper()

	store := localcache.New(localcache.Config{MaxEntries: 1000})
	t.Cleanup(func() { store.Close() })

	cfg.EnableRemoteCache = false
	eng, err := New(cfg, store, nil, primary, secondary)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableRemoteCache = false
	return cfg
}

func TestNew_Validation(t *testing.T) {
	store := localcache.New(localcache.Config{})
	defer store.Close()
	src := newFakeSource()

	tests := []struct {
		name    string
		mutate  func(*Config)
		store   *localcache.Store
		primary catalog.Source
	}{
		{"nil store", func(c *Config) {}, nil, src},
		{"nil primary", func(c *Config) {}, store, nil},
		{"zero default ttl", func(c *Config) { c.DefaultTTL = 0 }, store, src},
		{"zero negative ttl", func(c *Config) { c.NegativeTTL = 0 }, store, src},
		{"remote enabled without client", func(c *Config) { c.EnableRemoteCache = true }, store, src},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, tt.store, nil, tt.primary, nil); err == nil {
				t.Error("New should have failed")
			}
		})
	}
}

func TestGetProduct_EmptyID(t *testing.T) {
	eng := newTestEngine(t, testConfig(), newFakeSource(), nil)

	_, err := eng.GetProduct(context.Background(), "")
	if !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

// TestGetProduct_SourceThenLocal is the canonical two-call scenario: the
// first lookup resolves at the source, the second at the local store, and
// the source is consulted exactly once.
func TestGetProduct_SourceThenLocal(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Price: 20, Available: true})
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	p, err := eng.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Title != "Shirt" || p.Price != 20 {
		t.Errorf("got %+v, want Shirt/20", p)
	}

	snap := eng.Stats()
	if snap.HitsByTier[TierSource] != 1 {
		t.Errorf("source hits = %d, want 1", snap.HitsByTier[TierSource])
	}

	p2, err := eng.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("second GetProduct failed: %v", err)
	}
	if p2.Title != p.Title {
		t.Errorf("second lookup returned different value: %+v vs %+v", p2, p)
	}

	snap = eng.Stats()
	if snap.HitsByTier[TierLocal] != 1 {
		t.Errorf("local hits = %d, want 1", snap.HitsByTier[TierLocal])
	}

	if fetches, _ := src.counts(); fetches != 1 {
		t.Errorf("fetch calls = %d, want 1", fetches)
	}
}

func TestGetProduct_NegativeCaching(t *testing.T) {
	src := newFakeSource() // empty catalog: everything is NotFound
	cfg := testConfig()
	cfg.NegativeTTL = 50 * time.Millisecond
	eng := newTestEngine(t, cfg, src, nil)
	ctx := context.Background()

	p, err := eng.GetProduct(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p == nil || p.Available {
		t.Errorf("got %+v, want unavailable placeholder", p)
	}

	snap := eng.Stats()
	if snap.Misses != 1 {
		t.Errorf("misses = %d, want 1", snap.Misses)
	}

	// Within the negative TTL the source must not be consulted again.
	if _, err := eng.GetProduct(ctx, "ghost"); err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if fetches, _ := src.counts(); fetches != 1 {
		t.Errorf("fetch calls = %d, want 1 within negative TTL", fetches)
	}

	// After expiry the absence is re-confirmed upstream.
	time.Sleep(60 * time.Millisecond)
	if _, err := eng.GetProduct(ctx, "ghost"); err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if fetches, _ := src.counts(); fetches != 2 {
		t.Errorf("fetch calls = %d, want 2 after negative TTL expiry", fetches)
	}
}

func TestGetProduct_SecondaryFallback(t *testing.T) {
	primary := newFakeSource()
	primary.setUnavailable(true)
	secondary := newFakeSource(&catalog.Product{ID: "p1", Title: "Backup Shirt", Available: true})

	eng := newTestEngine(t, testConfig(), primary, secondary)

	p, err := eng.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Title != "Backup Shirt" {
		t.Errorf("got %+v, want Backup Shirt", p)
	}

	snap := eng.Stats()
	if snap.HitsByTier[TierSecondary] != 1 {
		t.Errorf("secondary hits = %d, want 1", snap.HitsByTier[TierSecondary])
	}
	if snap.ErrorsByTier[TierSource] != 1 {
		t.Errorf("source errors = %d, want 1", snap.ErrorsByTier[TierSource])
	}
}

// TestGetProduct_FallbackCompleteness: when every tier fails, the engine
// still answers with a product-shaped placeholder and never an error.
func TestGetProduct_FallbackCompleteness(t *testing.T) {
	primary := newFakeSource()
	primary.setUnavailable(true)
	secondary := newFakeSource()
	secondary.setUnavailable(true)

	cfg := testConfig()
	cfg.SynthesizedTTL = 30 * time.Millisecond
	eng := newTestEngine(t, cfg, primary, secondary)
	ctx := context.Background()

	p, err := eng.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct must not fail for availability reasons: %v", err)
	}
	if p == nil {
		t.Fatal("got nil product")
	}
	if p.Available {
		t.Error("placeholder should have Available == false")
	}
	if p.Title != "Unknown Product" {
		t.Errorf("Title = %q, want Unknown Product", p.Title)
	}

	snap := eng.Stats()
	if snap.HitsByTier[TierSynthesized] != 1 {
		t.Errorf("synthesized hits = %d, want 1", snap.HitsByTier[TierSynthesized])
	}
	if snap.ErrorsByTier[TierSource] != 1 || snap.ErrorsByTier[TierSecondary] != 1 {
		t.Errorf("errors = %+v, want 1 for source and secondary", snap.ErrorsByTier)
	}

	// The placeholder is served from the local store within its TTL.
	if _, err := eng.GetProduct(ctx, "p1"); err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if fetches, _ := primary.counts(); fetches != 1 {
		t.Errorf("fetch calls = %d, want 1 within synthesized TTL", fetches)
	}

	// Once the source recovers and the placeholder expires, the real
	// value takes over (self-healing).
	primary.setUnavailable(false)
	primary.mu.Lock()
	primary.products["p1"] = &catalog.Product{ID: "p1", Title: "Shirt", Available: true}
	primary.mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	p, err = eng.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Title != "Shirt" {
		t.Errorf("got %+v, want real product after self-heal", p)
	}
}

// TestGetProduct_SingleFlight: N concurrent lookups of an uncached id
// result in exactly one source fetch, and all callers observe the same
// resolved value.
func TestGetProduct_SingleFlight(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Available: true})
	src.delay = 50 * time.Millisecond
	eng := newTestEngine(t, testConfig(), src, nil)

	const callers = 20
	var wg sync.WaitGroup
	products := make([]*catalog.Product, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			products[i], errs[i] = eng.GetProduct(context.Background(), "p1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if products[i] != products[0] {
			t.Errorf("caller %d observed a different value", i)
		}
	}

	if fetches, _ := src.counts(); fetches != 1 {
		t.Errorf("fetch calls = %d, want 1", fetches)
	}

	snap := eng.Stats()
	if snap.TotalLookups != callers {
		t.Errorf("total lookups = %d, want %d", snap.TotalLookups, callers)
	}
}

// TestGetProduct_CancelledWaiter: a waiter that cancels abandons only its
// own wait; the shared fetch completes for other callers.
func TestGetProduct_CancelledWaiter(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Available: true})
	src.delay = 100 * time.Millisecond
	eng := newTestEngine(t, testConfig(), src, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var survivorProduct *catalog.Product
	var survivorErr error
	go func() {
		defer wg.Done()
		survivorProduct, survivorErr = eng.GetProduct(context.Background(), "p1")
	}()

	// Give the owner time to start the fetch, then join and cancel.
	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := eng.GetProduct(ctx, "p1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter got %v, want context.Canceled", err)
	}

	wg.Wait()
	if survivorErr != nil {
		t.Fatalf("surviving caller failed: %v", survivorErr)
	}
	if survivorProduct.Title != "Shirt" {
		t.Errorf("surviving caller got %+v, want Shirt", survivorProduct)
	}

	if fetches, _ := src.counts(); fetches != 1 {
		t.Errorf("fetch calls = %d, want 1", fetches)
	}
}

// TestGetProducts_CancelledCaller: the caller that claimed the batch can
// abandon its wait just like a joiner; the detached fetch still completes
// and serves later lookups from cache.
func TestGetProducts_CancelledCaller(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Available: true})
	src.delay = 300 * time.Millisecond
	eng := newTestEngine(t, testConfig(), src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := eng.GetProducts(ctx, []string{"p1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed >= src.delay {
		t.Errorf("caller waited %v, should abandon before the %v fetch", elapsed, src.delay)
	}

	// The detached batch finishes and populates the cache; this lookup
	// joins it (or hits the cache) without a second source call.
	product, err := eng.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if product.Title != "Shirt" {
		t.Errorf("got %+v, want Shirt", product)
	}

	fetches, batches := src.counts()
	if fetches+batches != 1 {
		t.Errorf("source calls = %d, want 1", fetches+batches)
	}
}

// TestGetProducts_BatchEfficiency: ids missing from cache are resolved
// with batch source calls, never per-id fetches.
func TestGetProducts_BatchEfficiency(t *testing.T) {
	var fixtures []*catalog.Product
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
		fixtures = append(fixtures, &catalog.Product{ID: ids[i], Title: "T", Available: true})
	}
	src := newFakeSource(fixtures...)
	eng := newTestEngine(t, testConfig(), src, nil)

	products, err := eng.GetProducts(context.Background(), ids)
	if err != nil {
		t.Fatalf("GetProducts failed: %v", err)
	}
	if len(products) != 20 {
		t.Errorf("got %d products, want 20", len(products))
	}

	fetches, batches := src.counts()
	if fetches != 0 {
		t.Errorf("fetch calls = %d, want 0", fetches)
	}
	if batches != 1 {
		t.Errorf("batch calls = %d, want 1", batches)
	}

	snap := eng.Stats()
	if snap.TotalLookups != 20 {
		t.Errorf("total lookups = %d, want 20", snap.TotalLookups)
	}
	if snap.HitsByTier[TierSource] != 20 {
		t.Errorf("source hits = %d, want 20", snap.HitsByTier[TierSource])
	}
}

func TestGetProducts_MixedOutcomes(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "have", Title: "Shirt", Available: true})
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	// Warm one id so it resolves from cache.
	if _, err := eng.GetProduct(ctx, "have"); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}

	products, err := eng.GetProducts(ctx, []string{"have", "missing"})
	if err != nil {
		t.Fatalf("GetProducts failed: %v", err)
	}

	if products["have"].Title != "Shirt" {
		t.Errorf("have = %+v, want Shirt", products["have"])
	}
	if products["missing"] == nil || products["missing"].Available {
		t.Errorf("missing = %+v, want unavailable placeholder", products["missing"])
	}

	snap := eng.Stats()
	if snap.HitsByTier[TierLocal] != 1 {
		t.Errorf("local hits = %d, want 1", snap.HitsByTier[TierLocal])
	}
	if snap.Misses != 1 {
		t.Errorf("misses = %d, want 1", snap.Misses)
	}
}

func TestGetProducts_EmptyIDRejected(t *testing.T) {
	eng := newTestEngine(t, testConfig(), newFakeSource(), nil)

	_, err := eng.GetProducts(context.Background(), []string{"ok", ""})
	if !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestGetProducts_SharesInflightWithSingleLookups(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Available: true})
	src.delay = 80 * time.Millisecond
	eng := newTestEngine(t, testConfig(), src, nil)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := eng.GetProduct(context.Background(), "p1"); err != nil {
			t.Errorf("GetProduct failed: %v", err)
		}
	}()

	time.Sleep(10 * time.Millisecond) // let the single lookup claim the id

	go func() {
		defer wg.Done()
		products, err := eng.GetProducts(context.Background(), []string{"p1"})
		if err != nil {
			t.Errorf("GetProducts failed: %v", err)
			return
		}
		if products["p1"].Title != "Shirt" {
			t.Errorf("batch observed %+v, want Shirt", products["p1"])
		}
	}()

	wg.Wait()

	fetches, batches := src.counts()
	if fetches+batches != 1 {
		t.Errorf("upstream calls = %d (fetch=%d batch=%d), want exactly 1", fetches+batches, fetches, batches)
	}
}

func TestPreload_WarmsCaches(t *testing.T) {
	var fixtures []*catalog.Product
	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
		fixtures = append(fixtures, &catalog.Product{ID: ids[i], Title: "T", Available: true})
	}
	src := newFakeSource(fixtures...)
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	if err := eng.Preload(ctx, ids, 4); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}

	fetchesBefore, batchesBefore := src.counts()

	// Every id now resolves locally without touching the source.
	for _, id := range ids {
		p, err := eng.GetProduct(ctx, id)
		if err != nil {
			t.Fatalf("GetProduct(%s) failed: %v", id, err)
		}
		if !p.Available {
			t.Errorf("%s = %+v, want warmed real product", id, p)
		}
	}

	fetchesAfter, batchesAfter := src.counts()
	if fetchesAfter != fetchesBefore || batchesAfter != batchesBefore {
		t.Errorf("source consulted after preload: fetch %d->%d batch %d->%d",
			fetchesBefore, fetchesAfter, batchesBefore, batchesAfter)
	}
}

func TestInvalidate(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "Shirt", Available: true})
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	if _, err := eng.GetProduct(ctx, "p1"); err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}

	if err := eng.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if _, err := eng.GetProduct(ctx, "p1"); err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if fetches, _ := src.counts(); fetches != 2 {
		t.Errorf("fetch calls = %d, want 2 after invalidate", fetches)
	}

	if err := eng.Invalidate(ctx, ""); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("Invalidate(\"\") = %v, want ErrInvalidArgument", err)
	}
}

func TestInvalidateBatch(t *testing.T) {
	src := newFakeSource(
		&catalog.Product{ID: "p1", Title: "A", Available: true},
		&catalog.Product{ID: "p2", Title: "B", Available: true},
	)
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	if _, err := eng.GetProducts(ctx, []string{"p1", "p2"}); err != nil {
		t.Fatalf("GetProducts failed: %v", err)
	}

	if err := eng.InvalidateBatch(ctx, []string{"p1", "p2"}); err != nil {
		t.Fatalf("InvalidateBatch failed: %v", err)
	}

	if _, err := eng.GetProducts(ctx, []string{"p1", "p2"}); err != nil {
		t.Fatalf("GetProducts failed: %v", err)
	}
	if _, batches := src.counts(); batches != 2 {
		t.Errorf("batch calls = %d, want 2 after invalidate", batches)
	}
}

// TestStats_Invariant: hits + misses always equals total lookups.
func TestStats_Invariant(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "A", Available: true})
	eng := newTestEngine(t, testConfig(), src, nil)
	ctx := context.Background()

	eng.GetProduct(ctx, "p1")      // source hit
	eng.GetProduct(ctx, "p1")      // local hit
	eng.GetProduct(ctx, "missing") // miss
	eng.GetProducts(ctx, []string{"p1", "other"})

	snap := eng.Stats()
	var hits uint64
	for _, n := range snap.HitsByTier {
		hits += n
	}
	if hits+snap.Misses != snap.TotalLookups {
		t.Errorf("invariant violated: hits %d + misses %d != total %d", hits, snap.Misses, snap.TotalLookups)
	}
	if snap.HitRatio <= 0 || snap.HitRatio > 1 {
		t.Errorf("hit ratio = %f, want (0, 1]", snap.HitRatio)
	}
}

func TestResetStats(t *testing.T) {
	src := newFakeSource(&catalog.Product{ID: "p1", Title: "A", Available: true})
	eng := newTestEngine(t, testConfig(), src, nil)

	eng.GetProduct(context.Background(), "p1")
	eng.ResetStats()

	snap := eng.Stats()
	if snap.TotalLookups != 0 || snap.Misses != 0 || len(snap.HitsByTier) != 0 {
		t.Errorf("stats not reset: %+v", snap)
	}
}
