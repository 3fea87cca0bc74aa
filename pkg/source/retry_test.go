package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/catalog"
)

func retryCfg(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), retryCfg(3), zerolog.Nop(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), retryCfg(3), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky", catalog.ErrSourceUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), retryCfg(2), zerolog.Nop(), func() error {
		calls++
		return fmt.Errorf("%w: down", catalog.ErrSourceUnavailable)
	})
	if !catalog.IsUnavailable(err) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestRetryWithBackoff_NotFoundReturnsImmediately(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), retryCfg(5), zerolog.Nop(), func() error {
		calls++
		return catalog.ErrNotFound
	})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Hour} // backoff long enough to park
	errCh := make(chan error, 1)
	go func() {
		errCh <- retryWithBackoff(ctx, cfg, zerolog.Nop(), func() error {
			calls++
			return fmt.Errorf("%w: down", catalog.ErrSourceUnavailable)
		})
	}()

	// Give the first attempt time to fail and enter backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !catalog.IsUnavailable(err) {
			t.Errorf("got %v, want unavailable-class error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not return after context cancellation")
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
