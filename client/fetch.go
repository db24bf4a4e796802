package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/rs/zerolog/log"
)

// UsageRecorder receives the units billed for each call
type UsageRecorder interface {
	RecordUsage(id string, units int)
}

// CallOptions describe one logical API call
type CallOptions struct {
	Op         string
	Cost       int
	MaxRetries int
	BaseDelay  time.Duration
}

// Fetcher runs API calls with exponential backoff on transient failures
// and bills every charged attempt to the credential that made it.
type Fetcher struct {
	usage UsageRecorder
	retry config.RetryConfig
}

// NewFetcher creates a Fetcher reporting usage to usage
func NewFetcher(usage UsageRecorder, retry config.RetryConfig) *Fetcher {
	return &Fetcher{usage: usage, retry: retry}
}

// Options returns CallOptions for op with the fetcher's retry defaults
func (f *Fetcher) Options(op string, cost int) CallOptions {
	return CallOptions{
		Op:         op,
		Cost:       cost,
		MaxRetries: f.retry.MaxRetries,
		BaseDelay:  f.retry.BaseDelay,
	}
}

// Do runs fn with retries. Client errors are returned after one attempt,
// transient errors are retried up to MaxRetries times with delays of
// BaseDelay * 2^attempt. A cancelled ctx yields a nil error; callers
// check ctx.Err() to tell cancellation apart from success.
func (f *Fetcher) Do(ctx context.Context, key string, opts CallOptions, fn func(ctx context.Context) error) error {
	_, err := Fetch(ctx, f, key, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Fetch is the value-returning form of Fetcher.Do
func Fetch[T any](ctx context.Context, f *Fetcher, key string, opts CallOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, nil
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempt := 0
	var result T
	operation := func() error {
		attempt++
		out, err := fn(ctx)
		if err == nil {
			f.bill(key, opts)
			metrics.Metrics.APICalls.WithLabelValues(opts.Op, "success").Inc()
			result = out
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		classified := Classify(ctx, err)
		var apiErr *APIError
		if errors.As(classified, &apiErr) && apiErr.IsTransient() {
			metrics.Metrics.APICalls.WithLabelValues(opts.Op, "transient").Inc()
			return classified
		}

		if apiErr != nil && apiErr.billed() {
			f.bill(key, opts)
		}
		metrics.Metrics.APICalls.WithLabelValues(opts.Op, "client_error").Inc()
		return backoff.Permanent(classified)
	}

	notify := func(err error, wait time.Duration) {
		metrics.Metrics.FetchRetries.WithLabelValues(opts.Op).Inc()
		log.Debug().
			Err(err).
			Str("op", opts.Op).
			Str("credential", quota.MaskKey(key)).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Retrying API call")
	}

	err := backoff.RetryNotify(operation, newBackOff(ctx, opts.BaseDelay, maxRetries), notify)
	if ctx.Err() != nil {
		return zero, nil
	}
	if err != nil {
		if attempt > maxRetries {
			log.Warn().
				Err(err).
				Str("op", opts.Op).
				Int("attempts", attempt).
				Msg("API call failed after retries")
		}
		return zero, err
	}
	return result, nil
}

func (f *Fetcher) bill(key string, opts CallOptions) {
	if opts.Cost <= 0 {
		return
	}
	metrics.Metrics.QuotaUnits.WithLabelValues(opts.Op).Add(float64(opts.Cost))
	if f.usage != nil {
		f.usage.RecordUsage(key, opts.Cost)
	}
}

// newBackOff builds a deterministic schedule of base, 2*base, 4*base, ...
// capped at maxRetries retries and bound to ctx.
func newBackOff(ctx context.Context, base time.Duration, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << min(maxRetries, 20)
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}
