package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/metrics"
	"github.com/cuemby/cyris/pkg/types"
)

type pooledConn struct {
	mu     sync.Mutex // serializes calls against this target
	client *ssh.Client
}

// Pool is the Remote Executor (C2): a pooled, retrying SSH/SCP transport
// keyed by (host, user). Cross-target calls run independently; calls
// against the same target serialize through that target's mutex.
type Pool struct {
	retry   retryPolicy
	breaker *circuitBreaker

	mu    sync.Mutex
	conns map[string]*pooledConn
}

// NewPool constructs an empty Pool. Connections are dialed lazily on first
// use and cached until Release or a connect failure invalidates them.
func NewPool() *Pool {
	return &Pool{
		retry:   defaultRetryPolicy(),
		breaker: newCircuitBreaker(5, 30*time.Second),
		conns:   make(map[string]*pooledConn),
	}
}

func (p *Pool) connFor(target Target) *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[target.key()]
	if !ok {
		c = &pooledConn{}
		p.conns[target.key()] = c
	}
	return c
}

func (p *Pool) ensureDialed(ctx context.Context, target Target, c *pooledConn) (*ssh.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	if p.breaker.isOpen(target.key()) {
		return nil, types.NewCoreError(types.ErrorTransport, "transport", target.key(), "circuit breaker open", nil)
	}

	var client *ssh.Client
	err := withRetry(ctx, p.retry, func() {
		metrics.SSHRetriesTotal.Inc()
	}, func() error {
		var dialErr error
		client, dialErr = dial(ctx, target)
		return dialErr
	})

	if err != nil {
		if p.breaker.recordFailure(target.key()) {
			metrics.CircuitBreakerOpenTotal.WithLabelValues(target.key()).Inc()
			log.WithComponent("transport").Warn().Str("target", target.key()).Msg("circuit breaker opened")
		}
		return nil, types.NewCoreError(types.ErrorTransport, "transport", target.key(), "dial failed", err)
	}

	p.breaker.recordSuccess(target.key())
	c.client = client
	return client, nil
}

// Run executes cmd on target, retrying transient dial/transport failures
// per the configured policy. stdin may be nil. The call blocks at most
// timeout (plus the retry backoff budget) before ctx is cancelled.
func (p *Pool) Run(ctx context.Context, target Target, cmd string, stdin []byte, timeout time.Duration) (CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := p.connFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	var result CommandResult
	err := withRetry(ctx, p.retry, func() {
		metrics.SSHRetriesTotal.Inc()
		c.client = nil // force redial on retry
	}, func() error {
		client, err := p.ensureDialed(ctx, target, c)
		if err != nil {
			return err
		}
		r, runErr := runOnClient(ctx, client, cmd, stdin)
		result = r
		return runErr
	})

	if err != nil {
		return result, types.NewCoreError(types.ErrorTransport, "transport", target.key(), fmt.Sprintf("run %q", cmd), err)
	}
	return result, nil
}

// Put writes content to remotePath on target's filesystem with the given
// octal mode string (e.g. "0644").
func (p *Pool) Put(ctx context.Context, target Target, remotePath string, content io.Reader, mode string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := p.connFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	return withRetry(ctx, p.retry, func() { metrics.SSHRetriesTotal.Inc(); c.client = nil }, func() error {
		client, err := p.ensureDialed(ctx, target, c)
		if err != nil {
			return err
		}
		return putFile(ctx, client, remotePath, content, mode)
	})
}

// Get reads remotePath's contents back from target.
func (p *Pool) Get(ctx context.Context, target Target, remotePath string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := p.connFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []byte
	err := withRetry(ctx, p.retry, func() { metrics.SSHRetriesTotal.Inc(); c.client = nil }, func() error {
		client, err := p.ensureDialed(ctx, target, c)
		if err != nil {
			return err
		}
		var getErr error
		out, getErr = getFile(ctx, client, remotePath)
		return getErr
	})
	return out, err
}

// HealthCheck runs a trivial command against target to confirm
// reachability without going through the full retry budget of Run.
func (p *Pool) HealthCheck(ctx context.Context, target Target) error {
	_, err := p.Run(ctx, target, "true", nil, 10*time.Second)
	return err
}

// Release closes and forgets the cached connection for target, if any.
func (p *Pool) Release(target Target) {
	p.mu.Lock()
	c, ok := p.conns[target.key()]
	if ok {
		delete(p.conns, target.key())
	}
	p.mu.Unlock()

	if ok {
		c.mu.Lock()
		if c.client != nil {
			_ = c.client.Close()
		}
		c.mu.Unlock()
	}
}

// ResetBreaker clears the circuit breaker for target, used by
// reconciliation once a host is confirmed reachable again.
func (p *Pool) ResetBreaker(target Target) {
	p.breaker.Reset(target.key())
}
