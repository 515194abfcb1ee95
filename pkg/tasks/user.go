package tasks

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("add_user", addUser)
	register("modify_user", modifyUser)
}

const generatedPasswordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

func generatePassword(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(generatedPasswordChars))))
		if err != nil {
			return "", err
		}
		out[i] = generatedPasswordChars[idx.Int64()]
	}
	return string(out), nil
}

// addUser creates name if absent, setting a generated password when none
// was supplied. Re-applying updates groups/shell but never resets an
// operator- or user-changed password.
func addUser(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	name := task.Params["name"]
	if name == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "add_user requires name", nil)
	}

	check, err := pool.Run(ctx, target, fmt.Sprintf("id -u %q", name), nil, 30*time.Second)
	if err != nil {
		return Result{}, fmt.Errorf("check existing user: %w", err)
	}

	password := task.Params["password"]
	generated := false
	if password == "" && check.ExitCode != 0 {
		password, err = generatePassword(10)
		if err != nil {
			return Result{}, fmt.Errorf("generate password: %w", err)
		}
		generated = true
	}

	groups := task.Params["groups"]
	shell := task.Params["shell"]
	if shell == "" {
		shell = "/bin/bash"
	}

	var cmd string
	if check.ExitCode != 0 {
		cmd = fmt.Sprintf("useradd -m -s %q", shell)
		if groups != "" {
			cmd += fmt.Sprintf(" -G %q", groups)
		}
		cmd += fmt.Sprintf(" %q", name)
		if password != "" {
			cmd += fmt.Sprintf(" && echo %q | chpasswd", name+":"+password)
		}
	} else {
		cmd = fmt.Sprintf("usermod -s %q", shell)
		if groups != "" {
			cmd += fmt.Sprintf(" -G %q", groups)
		}
		cmd += fmt.Sprintf(" %q", name)
	}

	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, cmd, time.Minute); err != nil {
		return Result{}, err
	}

	output := fmt.Sprintf("user %s present", name)
	if generated {
		output = fmt.Sprintf("user %s created with generated password %s", name, password)
	}
	return Result{Success: true, Output: output}, nil
}

// modifyUser applies an attribute diff; idempotent because usermod is
// itself idempotent per attribute.
func modifyUser(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	name := task.Params["name"]
	changes := task.Params["changes"]
	if name == "" || changes == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "modify_user requires name and changes", nil)
	}

	cmd := fmt.Sprintf("usermod %s %q", changes, name)
	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, cmd, time.Minute); err != nil {
		return Result{}, err
	}
	return Result{Success: true, Output: fmt.Sprintf("applied changes %q to %s", changes, name)}, nil
}
