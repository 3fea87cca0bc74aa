// Package catalog defines the product model, the error taxonomy shared by
// all cache tiers, and the Source interface implemented by upstream
// catalog adapters.
package catalog

import "context"

// Product is a catalog record. Products are immutable once cached: a fresh
// fetch produces a new value, never a mutation of an existing one.
type Product struct {
	// ID is the stable product identifier (required).
	ID string `json:"id"`

	// Title is the display name.
	Title string `json:"title"`

	// Price is the unit price in the smallest currency denomination
	// the upstream uses (passed through unmodified).
	Price float64 `json:"price"`

	// Currency is the ISO 4217 code (e.g. "USD").
	Currency string `json:"currency,omitempty"`

	// Category is the upstream product category.
	Category string `json:"category,omitempty"`

	// Attributes carries additional upstream fields unmodified.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Available is false for degraded placeholder records synthesized
	// when every real tier failed, and for confirmed-absent products.
	Available bool `json:"available"`
}

// Placeholder returns the minimal degraded record for an id whose product
// could not be resolved from any tier.
func Placeholder(id string) *Product {
	return &Product{
		ID:        id,
		Title:     "Unknown Product",
		Available: false,
	}
}

// BatchResult is the per-id outcome of a batch fetch. Exactly one of
// Product and Err is meaningful; Err is ErrNotFound for confirmed absence
// or a wrapped ErrSourceUnavailable when the id's chunk failed.
type BatchResult struct {
	Product *Product
	Err     error
}

// Source is an upstream product catalog. Implementations are expected to be
// slow and unreliable; callers treat every method as a suspension point.
type Source interface {
	// Fetch returns the product for id. Returns ErrNotFound for a
	// confirmed absence and ErrSourceUnavailable (possibly wrapped) for
	// transient upstream failures.
	Fetch(ctx context.Context, id string) (*Product, error)

	// FetchBatch resolves each id independently. Partial failures never
	// abort the batch: ids whose chunk errored carry the error in their
	// BatchResult. The returned map has an entry for every requested id.
	FetchBatch(ctx context.Context, ids []string) (map[string]BatchResult, error)
}
