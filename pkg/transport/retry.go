package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// retryPolicy implements an exponential
// backoff with a 1s base, doubling, capped at 30s, up to 3 attempts, and
// only for transient failure classes.
type retryPolicy struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{baseDelay: time.Second, maxDelay: 30 * time.Second, maxRetries: 3}
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.maxDelay {
			return p.maxDelay
		}
	}
	return d
}

// isTransient classifies an error into the retryable transient set:
// connect-refused, network-timeout, and the SSH auth-transient banner
// exchange failure. auth-permanent (wrong credentials) and nonzero command
// exit codes are never retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	transientSubstrings := []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"no route to host",
		"EOF",
		"handshake failed",
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	var authErr *ssh.OpenChannelError
	return errors.As(err, &authErr)
}

// withRetry runs op up to policy.maxRetries+1 times, retrying only on
// transient errors, sleeping policy.delay(attempt) between attempts
// (honoring ctx cancellation while sleeping).
func withRetry(ctx context.Context, policy retryPolicy, onRetry func(), op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == policy.maxRetries {
			break
		}
		if onRetry != nil {
			onRetry()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return lastErr
}
