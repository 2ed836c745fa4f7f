package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/paradigm-offline/pkg/intercept"
	"github.com/Sternrassler/paradigm-offline/pkg/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Common errors returned by the worker.
var (
	// ErrRetryExhausted is returned when all install attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// Prometheus metrics for install retries.
var (
	paradigmRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_worker_install_retries_total",
		Help: "Total install retry attempts by error class",
	}, []string{"error_class"})

	paradigmRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paradigm_worker_install_backoff_seconds",
		Help:    "Backoff duration before install retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	paradigmRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_worker_install_retry_exhausted_total",
		Help: "Total number of times install retries were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for install retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of install attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// classifyInstallError maps a failed install to an error class.
// A precache asset answered with a status is a client or server error;
// anything else (transport, timeout, storage) counts as network.
func classifyInstallError(err error) intercept.ErrorClass {
	var assetErr *lifecycle.AssetError
	if errors.As(err, &assetErr) && assetErr.StatusCode != 0 {
		if assetErr.StatusCode >= 500 {
			return intercept.ErrorClassServer
		}
		return intercept.ErrorClassClient
	}
	if errors.Is(err, lifecycle.ErrInvalidState) {
		return intercept.ErrorClassClient
	}
	return intercept.ErrorClassNetwork
}

// shouldRetry determines if an install failure should be retried.
func shouldRetry(errorClass intercept.ErrorClass) bool {
	switch errorClass {
	case intercept.ErrorClassClient:
		// A missing manifest asset will not appear by retrying
		return false
	case intercept.ErrorClassServer, intercept.ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or config.MaxAttempts is reached. It respects context cancellation and
// adds ±20% jitter to each backoff.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	var errorClass intercept.ErrorClass
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Install succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classifyInstallError(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		paradigmRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		paradigmRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying install after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during install backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	paradigmRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Install retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
