package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelayCapsAtMax(t *testing.T) {
	p := retryPolicy{baseDelay: time.Second, maxDelay: 4 * time.Second, maxRetries: 5}

	assert.Equal(t, 2*time.Second, p.delay(0))
	assert.Equal(t, 4*time.Second, p.delay(1))
	assert.Equal(t, 4*time.Second, p.delay(4))
}

func TestIsTransientClassifiesConnectionRefused(t *testing.T) {
	assert.True(t, isTransient(errors.New("dial tcp 10.0.0.1:22: connect: connection refused")))
	assert.True(t, isTransient(errors.New("read tcp: i/o timeout")))
	assert.False(t, isTransient(errors.New("ssh: handshake failed: permission denied")))
	assert.False(t, isTransient(nil))
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), retryPolicy{baseDelay: time.Millisecond, maxDelay: time.Millisecond, maxRetries: 3}, nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permErr := errors.New("ssh: handshake failed: permission denied")
	err := withRetry(context.Background(), defaultRetryPolicy(), nil, func() error {
		attempts++
		return permErr
	})

	require.ErrorIs(t, err, permErr)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), retryPolicy{baseDelay: time.Millisecond, maxDelay: time.Millisecond, maxRetries: 2}, nil, func() error {
		attempts++
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // 1 initial + 2 retries
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetry(ctx, retryPolicy{baseDelay: time.Second, maxDelay: time.Second, maxRetries: 3}, nil, func() error {
		attempts++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
