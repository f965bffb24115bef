package webclient

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetries is used when an indexer does not configure its own count.
const DefaultRetries = 2

// ExponentialDelay waits 2^attempt/4 seconds: 0.5s, 1s, 2s, 4s...
func ExponentialDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt)) / 4 * float64(time.Second))
}

// SleepContext waits d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy re-runs a request on 5xx responses and transport errors.
// Attempts are strictly sequential.
type RetryPolicy struct {
	Retries int
	Delay   func(attempt int) time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  zerolog.Logger

	// OnRetry is called before each wait, after the warning is logged.
	OnRetry func(attempt int)
}

// NewRetryPolicy returns a policy using ExponentialDelay.
func NewRetryPolicy(retries int, logger zerolog.Logger) *RetryPolicy {
	if retries < 0 {
		retries = 0
	}
	return &RetryPolicy{
		Retries: retries,
		Delay:   ExponentialDelay,
		Sleep:   SleepContext,
		Logger:  logger,
	}
}

// Do runs op up to Retries+1 times. 4xx and other non-5xx statuses return
// immediately. When every attempt fails, the last response or error is
// returned unchanged.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) (*Response, error)) (*Response, error) {
	delay := p.Delay
	if delay == nil {
		delay = ExponentialDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; ; attempt++ {
		resp, err := op(ctx)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if ctx.Err() != nil || attempt >= p.Retries {
			return resp, err
		}

		wait := delay(attempt + 1)
		ev := p.Logger.Warn().
			Int("attempt", attempt+1).
			Int("max_attempts", p.Retries+1).
			Dur("retry_in", wait)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("Request failed, retrying")

		if p.OnRetry != nil {
			p.OnRetry(attempt + 1)
		}

		if serr := sleep(ctx, wait); serr != nil {
			return nil, fmt.Errorf("retry cancelled: %w", serr)
		}
	}
}
