// Package transport implements the pooled, retrying SSH/SCP executor used
// to run post-boot tasks against range guests and hosts, built on
// golang.org/x/crypto/ssh's client-dial-and-session idiom.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

// Target identifies one remote endpoint to run commands against.
type Target struct {
	Host string // "host:22" or "host" (default port appended)
	User string
	Auth AuthMethod
}

// AuthMethod carries the credential used to dial a Target. Exactly one of
// its fields should be set.
type AuthMethod struct {
	Password   string
	PrivateKey []byte
}

func (a AuthMethod) sshAuthMethods() ([]ssh.AuthMethod, error) {
	if len(a.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
}

func (t Target) key() string {
	return t.User + "@" + t.Host
}

func (t Target) addr() string {
	host := t.Host
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host
		}
	}
	return host + ":22"
}

// CommandResult is the outcome of a single Run call.
type CommandResult struct {
	ExitCode int
	Output   string // combined stdout+stderr, capped by outputCap
	Duration time.Duration
}

const outputCap = 64 * 1024 // 64 KiB head+tail ring cap

func capOutput(b []byte) string {
	if len(b) <= outputCap {
		return string(b)
	}
	half := outputCap / 2
	return string(b[:half]) + "\n...[truncated]...\n" + string(b[len(b)-half:])
}

func dial(ctx context.Context, target Target) (*ssh.Client, error) {
	methods, err := target.Auth.sshAuthMethods()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", target.addr(), config)
		resultCh <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.client, r.err
	}
}

// runOnClient executes cmd on an already-dialed client, with stdin attached
// if non-empty and the run cancelled when ctx is done.
func runOnClient(ctx context.Context, client *ssh.Client, cmd string, stdin []byte) (CommandResult, error) {
	start := time.Now()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var outBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &outBuf
	if len(stdin) > 0 {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return CommandResult{Output: capOutput(outBuf.Bytes()), Duration: time.Since(start)}, ctx.Err()
	case err := <-done:
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return CommandResult{Output: capOutput(outBuf.Bytes()), Duration: time.Since(start)}, fmt.Errorf("run command: %w", err)
			}
		}
		return CommandResult{
			ExitCode: exitCode,
			Output:   capOutput(outBuf.Bytes()),
			Duration: time.Since(start),
		}, nil
	}
}

// putFile streams content to remotePath on client using the `cat > file`
// idiom over an SSH session's stdin (no SFTP dependency required).
func putFile(ctx context.Context, client *ssh.Client, remotePath string, content io.Reader, mode string) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	session.Stdin = bytes.NewReader(data)

	cmd := fmt.Sprintf("cat > %q && chmod %s %q", remotePath, mode, remotePath)

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("put file %s: %w", remotePath, err)
		}
		return nil
	}
}

// getFile reads remotePath's contents back over a `cat` session.
func getFile(ctx context.Context, client *ssh.Client, remotePath string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(fmt.Sprintf("cat %q", remotePath)) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("get file %s: %w", remotePath, err)
		}
		return out.Bytes(), nil
	}
}
