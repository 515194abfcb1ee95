package tasks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("install_ssh_key", installSSHKey)
}

// installSSHKey appends a public key line to user's authorized_keys if not
// already present, creating the .ssh directory with 0700 and the file with
// 0600 as required.
func installSSHKey(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	user := task.Params["user"]
	key := strings.TrimSpace(task.Params["public_key"])
	if user == "" || key == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "install_ssh_key requires user and public_key", nil)
	}

	homeResult, err := runCommand(ctx, pool, target, "tasks", task.ID,
		fmt.Sprintf("getent passwd %q | cut -d: -f6", user), 30*time.Second)
	if err != nil {
		return Result{}, err
	}
	home := trimNewline(homeResult.Output)
	if home == "" {
		return Result{}, types.NewCoreError(types.ErrorTask, "tasks", task.ID, fmt.Sprintf("no home directory for user %s", user), nil)
	}

	sshDir := home + "/.ssh"
	authorizedKeys := sshDir + "/authorized_keys"

	setup := fmt.Sprintf("mkdir -p %q && chmod 700 %q && touch %q && chmod 600 %q && chown -R %s:%s %q",
		sshDir, sshDir, authorizedKeys, authorizedKeys, user, user, sshDir)
	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, setup, 30*time.Second); err != nil {
		return Result{}, err
	}

	existing, err := pool.Get(ctx, target, authorizedKeys, 30*time.Second)
	if err != nil {
		return Result{}, fmt.Errorf("read authorized_keys: %w", err)
	}
	for _, line := range bytes.Split(existing, []byte("\n")) {
		if strings.TrimSpace(string(line)) == key {
			return Result{Success: true, Output: "key already present"}, nil
		}
	}

	appended := append(append([]byte{}, existing...), []byte(key+"\n")...)
	if err := pool.Put(ctx, target, authorizedKeys, bytes.NewReader(appended), "0600", 30*time.Second); err != nil {
		return Result{}, fmt.Errorf("write authorized_keys: %w", err)
	}

	return Result{Success: true, Output: fmt.Sprintf("key installed for %s", user)}, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
