package recording

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/switchboard/internal/backoff"
	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/retry"
)

// RetryConfig configures RetryingFetcher.
type RetryConfig struct {
	// MaxAttempts defaults to 3.
	MaxAttempts int
	// Policy defaults to backoff.RecordingPolicy().
	Policy backoff.Policy
	// Sleep replaces backoff.Sleep in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Observe receives the attempt count and final error of every Fetch.
	Observe func(attempts int, err error)
	Logger  *slog.Logger
}

// RetryingFetcher retries a Fetcher on retryable failures. Auth and
// malformed-input failures stop after the first attempt.
type RetryingFetcher struct {
	next   Fetcher
	cfg    RetryConfig
	logger *slog.Logger
}

var _ Fetcher = (*RetryingFetcher)(nil)

// NewRetryingFetcher wraps next.
func NewRetryingFetcher(next Fetcher, cfg RetryConfig) *RetryingFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Policy == (backoff.Policy{}) {
		cfg.Policy = backoff.RecordingPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingFetcher{next: next, cfg: cfg, logger: logger.With("component", component)}
}

// Fetch returns the recording or the last classified failure.
func (f *RetryingFetcher) Fetch(ctx context.Context, callID, ref string) (Audio, error) {
	audio, result := retry.Do(ctx, retry.Config{
		MaxAttempts: f.cfg.MaxAttempts,
		Policy:      f.cfg.Policy,
		Retryable:   failure.IsRetryable,
		Sleep:       f.cfg.Sleep,
		OnAttempt: func(attempt int, err error) {
			if err == nil {
				f.logger.InfoContext(ctx, "recording fetch succeeded", "call_id", callID, "attempt", attempt)
				return
			}
			f.logger.WarnContext(ctx, "recording fetch attempt failed",
				"call_id", callID,
				"attempt", attempt,
				"max_attempts", f.cfg.MaxAttempts,
				"kind", failure.KindOf(err),
				"error", err)
		},
	}, func(ctx context.Context, _ int) (Audio, error) {
		return f.next.Fetch(ctx, callID, ref)
	})

	err := result.Err
	if err != nil {
		err = failure.FromTransport(component, "fetch", err)
	}
	if f.cfg.Observe != nil {
		f.cfg.Observe(result.Attempts, err)
	}
	if err != nil {
		return Audio{}, err
	}
	return audio, nil
}
