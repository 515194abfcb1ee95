package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("run_program", runProgram)
}

// runProgram runs path with argv/env/cwd, never skipping on re-apply:
// ordering between repeated runs is controlled entirely by the task's
// dependency edges, not by any idempotency check here.
func runProgram(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	path := task.Params["path"]
	if path == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "run_program requires path", nil)
	}

	var argv []string
	if raw := task.Params["argv"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &argv); err != nil {
			return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "argv must be a JSON string array", err)
		}
	}

	var env map[string]string
	if raw := task.Params["env"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "env must be a JSON string map", err)
		}
	}

	expectExit := 0
	if raw := task.Params["expect_exit"]; raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "expect_exit must be an integer", err)
		}
		expectExit = v
	}

	var cmd strings.Builder
	if cwd := task.Params["cwd"]; cwd != "" {
		cmd.WriteString(fmt.Sprintf("cd %q && ", cwd))
	}
	for k, v := range env {
		cmd.WriteString(fmt.Sprintf("%s=%q ", k, v))
	}
	cmd.WriteString(fmt.Sprintf("%q", path))
	for _, a := range argv {
		cmd.WriteString(fmt.Sprintf(" %q", a))
	}

	result, err := pool.Run(ctx, target, cmd.String(), nil, 10*time.Minute)
	if err != nil {
		return Result{}, fmt.Errorf("run program: %w", err)
	}

	if result.ExitCode != expectExit {
		return Result{Success: false, Output: result.Output}, types.NewCoreError(types.ErrorTask, "tasks", task.ID,
			fmt.Sprintf("program exited %d, expected %d", result.ExitCode, expectExit), nil)
	}

	return Result{Success: true, Output: result.Output}, nil
}
