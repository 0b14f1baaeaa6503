// Package retry runs calls to external services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0 to 1.0, fraction of delay to randomize
}

// DefaultOCRConfig is tuned for an OCR worker that may be cold-starting.
var DefaultOCRConfig = Config{
	MaxRetries:     2,
	InitialDelay:   500 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.3,
}

// DefaultModelConfig is tuned for a model-serving endpoint on the request path.
var DefaultModelConfig = Config{
	MaxRetries:     1,
	InitialDelay:   200 * time.Millisecond,
	MaxDelay:       1 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// Retryable is implemented by errors that know whether another attempt can help.
type Retryable interface {
	IsRetryable() bool
}

// Do executes fn with exponential backoff + jitter.
// It stops retrying if the error reports IsRetryable() == false,
// the context is cancelled, or max retries are exhausted.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var r Retryable
		if errors.As(err, &r) && !r.IsRetryable() {
			return zero, err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(Backoff(cfg, attempt)):
		}
	}

	return zero, lastErr
}

// Backoff returns the delay before the retry that follows the given attempt.
func Backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterFraction > 0 {
		jitter := delay * cfg.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
		delay += jitter
		if delay < 0 {
			delay = float64(cfg.InitialDelay)
		}
	}

	return time.Duration(delay)
}
