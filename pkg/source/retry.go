package source

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/catalog"
)

const (
	maxBackoff        = 5 * time.Second
	backoffMultiplier = 2.0
)

// retryWithBackoff executes fn with exponential backoff and jitter.
// Only unavailable-class errors are retried: a confirmed absence or an
// invalid argument returns immediately. Context cancellation aborts the
// backoff wait.
func retryWithBackoff(ctx context.Context, cfg Config, logger zerolog.Logger, fn func() error) error {
	maxAttempts := cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Catalog request succeeded after retry")
			}
			return nil
		}

		if !catalog.IsUnavailable(err) {
			return err
		}
		lastErr = err

		if attempt >= maxAttempts {
			break
		}

		sourceRetriesTotal.Inc()

		// ±20% jitter to avoid synchronized retries.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		sourceRetryBackoff.Observe(jitter.Seconds())

		logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying catalog request after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", catalog.ErrSourceUnavailable, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * backoffMultiplier)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	sourceRetryExhausted.Inc()
	logger.Warn().Int("max_attempts", maxAttempts).Msg("Catalog retry attempts exhausted")
	return lastErr
}
