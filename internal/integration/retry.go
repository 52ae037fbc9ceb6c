package integration

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-resty/resty/v2"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
)

// RetryPolicy bounds how often a call that the remote side refused
// outright is repeated. Timeouts and transport errors are never retried:
// the remote may already have acted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NoRetry performs exactly one attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		var perr *appErrors.ProviderError
		if !errors.As(err, &perr) || !perr.Retryable() || attempt == attempts {
			return err
		}
		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			return err
		}
	}
	return err
}

// Backoff is BaseDelay doubled per completed attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify turns a resty result into a ProviderError, or nil on a 2xx.
func Classify(provider string, resp *resty.Response, err error) error {
	if err != nil {
		kind := appErrors.ProviderFailure
		if IsTimeout(err) {
			kind = appErrors.ProviderTimeout
		}
		return &appErrors.ProviderError{Provider: provider, Kind: kind, Err: err}
	}
	if resp.IsError() {
		return &appErrors.ProviderError{
			Provider:   provider,
			Kind:       appErrors.ProviderFailure,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(truncate(resp.String(), 256)),
		}
	}
	return nil
}

// IsTimeout reports deadline and network timeouts.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
