// Package testutil provides testing utilities for the product cache.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/retailstack/product-cache/pkg/catalog"
)

// MockCatalog is a configurable fake of the upstream product catalog API.
// It serves the same endpoints the source adapter consumes:
//
//	GET /products/{id}.json      -> {"product": {...}} or 404
//	GET /products.json?ids=a,b,c -> {"products": [...]}
type MockCatalog struct {
	server *httptest.Server

	mu       sync.RWMutex
	products map[string]*catalog.Product
	failWith int           // non-zero: every request answers this status
	delay    time.Duration // artificial latency per request

	// Tracking
	fetchCount int
	batchCount int
}

// NewMockCatalog creates a mock catalog server with no products.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		products: make(map[string]*catalog.Product),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// AddProduct registers a product fixture.
func (m *MockCatalog) AddProduct(p *catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// RemoveProduct deletes a fixture so subsequent lookups 404.
func (m *MockCatalog) RemoveProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

// FailWith makes every request answer the given HTTP status. Pass 0 to
// restore normal behavior.
func (m *MockCatalog) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = status
}

// SetDelay adds artificial latency to every request.
func (m *MockCatalog) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FetchCount returns the number of single-product requests served.
func (m *MockCatalog) FetchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchCount
}

// BatchCount returns the number of batch requests served.
func (m *MockCatalog) BatchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchCount
}

// Reset clears request counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCount = 0
	m.batchCount = 0
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	failWith := m.failWith
	delay := m.delay
	isBatch := r.URL.Path == "/products.json"
	if isBatch {
		m.batchCount++
	} else {
		m.fetchCount++
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failWith != 0 {
		http.Error(w, `{"error":"unavailable"}`, failWith)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if isBatch {
		m.handleBatch(w, r)
		return
	}
	m.handleSingle(w, r)
}

func (m *MockCatalog) handleSingle(w http.ResponseWriter, r *http.Request) {
	// Path: /products/{id}.json
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/products/"), ".json")

	m.mu.RLock()
	p, ok := m.products[id]
	m.mu.RUnlock()

	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]*catalog.Product{"product": p})
}

func (m *MockCatalog) handleBatch(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	m.mu.RLock()
	found := make([]*catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			found = append(found, p)
		}
	}
	m.mu.RUnlock()

	json.NewEncoder(w).Encode(map[string][]*catalog.Product{"products": found})
}
