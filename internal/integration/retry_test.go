package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
)

func testPolicy(attempts int, slept *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
		sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestRetryPolicy_RetriesDefiniteRejections(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := testPolicy(4, &slept).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &appErrors.ProviderError{Kind: appErrors.ProviderFailure, StatusCode: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)
}

func TestRetryPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := testPolicy(3, &slept).Do(context.Background(), func(context.Context) error {
		calls++
		return &appErrors.ProviderError{Kind: appErrors.ProviderFailure, StatusCode: 429}
	})

	var perr *appErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)
}

func TestRetryPolicy_NeverRetriesTimeouts(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := testPolicy(5, &slept).Do(context.Background(), func(context.Context) error {
		calls++
		return &appErrors.ProviderError{Kind: appErrors.ProviderTimeout, Err: context.DeadlineExceeded}
	})

	assert.True(t, appErrors.IsProviderTimeout(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestRetryPolicy_NeverRetriesPlainErrors(t *testing.T) {
	var slept []time.Duration
	calls := 0
	boom := errors.New("connection reset")
	err := testPolicy(5, &slept).Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, time.Duration(0), NoRetry.Backoff(3))
}

func TestRetryPolicy_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return &appErrors.ProviderError{Kind: appErrors.ProviderFailure, StatusCode: 502}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("nope")))
}
