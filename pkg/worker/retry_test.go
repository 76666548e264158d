package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/core"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	var attempts int
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	var attempts int
	want := errors.New("connection refused")
	err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
		attempts++
		return want
	})
	assert.Equal(t, want, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_GuardErrorsNotRetried(t *testing.T) {
	for _, guard := range []error{
		fmt.Errorf("%w: expected queued", core.ErrStaleTransition),
		fmt.Errorf("%w: failed", core.ErrJobTerminal),
		fmt.Errorf("%w: job j1", core.ErrLeaseLost),
		core.NoRetry(errors.New("bad input")),
		context.Canceled,
	} {
		var attempts int
		err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
			attempts++
			return guard
		})
		assert.Equal(t, guard, err)
		assert.Equal(t, 1, attempts, guard.Error())
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, cfg, func() error {
		attempts.Add(1)
		return errors.New("keep failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryWithBackoff_BackoffGrows(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	var stamps []time.Time
	err := retryWithBackoff(context.Background(), cfg, func() error {
		stamps = append(stamps, time.Now())
		return errors.New("fail")
	})
	assert.Error(t, err)
	require.Len(t, stamps, 4)
	assert.Greater(t, stamps[3].Sub(stamps[2]), stamps[1].Sub(stamps[0]))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"driver error", errors.New("database is locked"), true},
		{"wrapped driver error", fmt.Errorf("advance: %w", errors.New("broken pipe")), true},
		{"draft conflict", core.ErrDraftConflict, false},
		{"job not found", fmt.Errorf("%w: j1", core.ErrJobNotFound), false},
		{"lease lost", core.ErrLeaseLost, false},
		{"no retry", core.NoRetry(errors.New("x")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}
