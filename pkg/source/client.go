// Package source implements the product source adapter: an HTTP client over
// a Shopify-style catalog API with per-call timeouts, retry with backoff,
// and a circuit breaker so a dead upstream short-circuits quickly.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/logging"
)

// Config holds catalog client configuration.
type Config struct {
	// BaseURL is the catalog API root, e.g. "https://shop.example.com/api".
	BaseURL string

	// Timeout bounds every HTTP call. Keep small: the cache engine's
	// worst case is the sum of per-tier timeouts.
	Timeout time.Duration

	// BatchSize is the maximum number of ids per batch request.
	BatchSize int

	// MaxRetries is the number of retry attempts for unavailable-class
	// errors (confirmed absences are never retried).
	MaxRetries int

	// InitialBackoff is the starting backoff for retries.
	InitialBackoff time.Duration

	// BreakerThreshold is the number of consecutive failures that trips
	// the circuit breaker.
	BreakerThreshold uint32

	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          5 * time.Second,
		BatchSize:        50,
		MaxRetries:       3,
		InitialBackoff:   200 * time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// CatalogClient fetches products from the upstream catalog. It implements
// catalog.Source.
type CatalogClient struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New creates a catalog client.
func New(cfg Config) (*CatalogClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	logger := logging.NewLogger("catalog-source")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "catalog-source",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Catalog circuit breaker state changed")
		},
	})

	return &CatalogClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
		breaker:    breaker,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *CatalogClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type productResponse struct {
	Product *catalog.Product `json:"product"`
}

type productsResponse struct {
	Products []catalog.Product `json:"products"`
}

// Fetch returns the product for id. catalog.ErrNotFound marks a confirmed
// absence; transient failures come back wrapped around
// catalog.ErrSourceUnavailable after retries are exhausted.
func (c *CatalogClient) Fetch(ctx context.Context, id string) (*catalog.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty product id", catalog.ErrInvalidArgument)
	}

	start := time.Now()
	defer func() {
		sourceRequestDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	}()

	endpoint := fmt.Sprintf("%s/products/%s.json", strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(id))

	var body []byte
	err := retryWithBackoff(ctx, c.config, c.logger, func() error {
		var reqErr error
		body, reqErr = c.roundTrip(ctx, endpoint, id, "fetch")
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &catalog.SourceError{Op: "fetch", ID: id, Err: fmt.Errorf("%w: decode response: %v", catalog.ErrSourceUnavailable, err)}
	}
	if resp.Product == nil || resp.Product.ID == "" {
		return nil, catalog.ErrNotFound
	}

	sourceRequestsTotal.WithLabelValues("fetch", "ok").Inc()
	return resp.Product, nil
}

// FetchBatch resolves ids in chunks of Config.BatchSize. Each id resolves
// independently: ids missing from a successful chunk response are reported
// as catalog.ErrNotFound, and a failed chunk marks only its own ids with
// the failure. The whole batch never aborts.
func (c *CatalogClient) FetchBatch(ctx context.Context, ids []string) (map[string]catalog.BatchResult, error) {
	results := make(map[string]catalog.BatchResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	start := time.Now()
	defer func() {
		sourceRequestDuration.WithLabelValues("fetch_batch").Observe(time.Since(start).Seconds())
	}()

	for chunkStart := 0; chunkStart < len(ids); chunkStart += c.config.BatchSize {
		end := chunkStart + c.config.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		c.fetchChunk(ctx, ids[chunkStart:end], results)
	}

	return results, nil
}

func (c *CatalogClient) fetchChunk(ctx context.Context, ids []string, results map[string]catalog.BatchResult) {
	endpoint := fmt.Sprintf("%s/products.json?ids=%s",
		strings.TrimRight(c.config.BaseURL, "/"),
		url.QueryEscape(strings.Join(ids, ",")))

	var body []byte
	err := retryWithBackoff(ctx, c.config, c.logger, func() error {
		var reqErr error
		body, reqErr = c.roundTrip(ctx, endpoint, "", "fetch_batch")
		return reqErr
	})
	if err != nil {
		for _, id := range ids {
			results[id] = catalog.BatchResult{Err: err}
		}
		return
	}

	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		decodeErr := &catalog.SourceError{Op: "fetch_batch", Err: fmt.Errorf("%w: decode response: %v", catalog.ErrSourceUnavailable, err)}
		for _, id := range ids {
			results[id] = catalog.BatchResult{Err: decodeErr}
		}
		return
	}

	found := make(map[string]*catalog.Product, len(resp.Products))
	for i := range resp.Products {
		p := resp.Products[i]
		found[p.ID] = &p
	}

	for _, id := range ids {
		if p, ok := found[id]; ok {
			results[id] = catalog.BatchResult{Product: p}
		} else {
			results[id] = catalog.BatchResult{Err: catalog.ErrNotFound}
		}
	}

	sourceRequestsTotal.WithLabelValues("fetch_batch", "ok").Inc()
}

// roundTrip executes one HTTP GET through the circuit breaker and
// classifies the outcome. 404 is a confirmed absence and does not count
// against the breaker.
func (c *CatalogClient) roundTrip(ctx context.Context, endpoint, id, op string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			sourceRequestsTotal.WithLabelValues(op, "network_error").Inc()
			return nil, &catalog.SourceError{Op: op, ID: id, Err: fmt.Errorf("%w: %v", catalog.ErrSourceUnavailable, err)}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			sourceRequestsTotal.WithLabelValues(op, "404").Inc()
			// Success from the breaker's point of view: the upstream
			// answered, the product just does not exist.
			return nil, nil
		case resp.StatusCode >= 400:
			sourceRequestsTotal.WithLabelValues(op, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			return nil, &catalog.SourceError{
				Op:         op,
				ID:         id,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%w: %s", catalog.ErrSourceUnavailable, resp.Status),
			}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &catalog.SourceError{Op: op, ID: id, Err: fmt.Errorf("%w: read body: %v", catalog.ErrSourceUnavailable, err)}
		}
		return data, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			sourceBreakerRejections.Inc()
			return nil, &catalog.SourceError{Op: op, ID: id, Err: fmt.Errorf("%w: circuit breaker open", catalog.ErrSourceUnavailable)}
		}
		return nil, err
	}

	if body == nil {
		return nil, catalog.ErrNotFound
	}
	return body, nil
}
