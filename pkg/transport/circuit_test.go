package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterLimit(t *testing.T) {
	b := newCircuitBreaker(3, time.Minute)

	assert.False(t, b.isOpen("host-1"))
	assert.False(t, b.recordFailure("host-1"))
	assert.False(t, b.recordFailure("host-1"))
	assert.True(t, b.recordFailure("host-1"))
	assert.True(t, b.isOpen("host-1"))
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	b := newCircuitBreaker(2, time.Minute)

	b.recordFailure("host-1")
	b.recordFailure("host-1")
	assert.True(t, b.isOpen("host-1"))

	b.recordSuccess("host-1")
	assert.False(t, b.isOpen("host-1"))
}

func TestCircuitBreakerIsolatesTargets(t *testing.T) {
	b := newCircuitBreaker(1, time.Minute)

	b.recordFailure("host-1")
	assert.True(t, b.isOpen("host-1"))
	assert.False(t, b.isOpen("host-2"))
}

func TestCircuitBreakerHalfOpensAfterCoolDown(t *testing.T) {
	b := newCircuitBreaker(1, 10*time.Millisecond)

	b.recordFailure("host-1")
	assert.True(t, b.isOpen("host-1"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, b.isOpen("host-1"), "cool-down elapsed: next caller should get a half-open probe")

	assert.True(t, b.recordFailure("host-1"), "failed probe should re-trip the breaker")
	assert.True(t, b.isOpen("host-1"))
}
