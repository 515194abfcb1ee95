package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("copy_content", copyContent)
}

func localHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyContent uploads src (resolved on the controller) to dst on the guest,
// skipping the transfer entirely when the remote hash already matches.
func copyContent(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	src := task.Params["src"]
	dst := task.Params["dst"]
	if src == "" || dst == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "copy_content requires src and dst", nil)
	}
	mode := task.Params["mode"]
	if mode == "" {
		mode = "0644"
	}
	owner := task.Params["owner"]

	wantHash, err := localHash(src)
	if err != nil {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, fmt.Sprintf("read local source %s", src), err)
	}

	remoteHashResult, _ := runCommand(ctx, pool, target, "tasks", task.ID,
		fmt.Sprintf("sha256sum %q 2>/dev/null | cut -d' ' -f1", dst), 30*time.Second)
	if trimNewline(remoteHashResult.Output) == wantHash {
		return Result{Success: true, Output: "content already present, hash matches"}, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, fmt.Sprintf("open local source %s", src), err)
	}
	defer f.Close()

	if err := pool.Put(ctx, target, dst, f, mode, 10*time.Minute); err != nil {
		return Result{}, fmt.Errorf("put content: %w", err)
	}

	if owner != "" {
		if _, err := runCommand(ctx, pool, target, "tasks", task.ID, fmt.Sprintf("chown %s %q", owner, dst), 30*time.Second); err != nil {
			return Result{}, err
		}
	}

	return Result{Success: true, Output: fmt.Sprintf("copied to %s", dst), Artifacts: []string{dst}}, nil
}
