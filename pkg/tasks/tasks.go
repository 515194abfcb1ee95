// Package tasks implements the Task Library (C3): one executor per task
// kind, each compiling to one or more pkg/transport calls against a
// guest's SSH target.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

// Result is the outcome every task kind returns, regardless of kind.
type Result struct {
	Success   bool
	Output    string
	Artifacts []string
	Duration  time.Duration
}

// Executor runs one Task against target over pool. networks is the set of
// Networks belonging to the Task's owning Range, consulted by kinds (only
// emulate_attack today) that must validate a target address before acting.
type Executor func(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, networks []types.Network) (Result, error)

// registry maps a Task's Kind to the Executor that runs it. Populated by
// each kind's init().
var registry = map[string]Executor{}

func register(kind string, exec Executor) {
	registry[kind] = exec
}

// Dispatch looks up task.Kind and runs it. An unknown kind is an
// ErrorValidation CoreError: the planner should never emit one that isn't
// registered here.
func Dispatch(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, networks []types.Network) (Result, error) {
	exec, ok := registry[task.Kind]
	if !ok {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, fmt.Sprintf("unknown task kind %q", task.Kind), nil)
	}

	logger := log.WithTaskID(task.ID)
	logger.Debug().Str("kind", task.Kind).Msg("dispatching task")

	start := time.Now()
	res, err := exec(ctx, pool, target, task, networks)
	res.Duration = time.Since(start)

	if err != nil {
		logger.Warn().Err(err).Str("kind", task.Kind).Msg("task failed")
		return res, err
	}
	logger.Debug().Str("kind", task.Kind).Dur("duration", res.Duration).Msg("task succeeded")
	return res, nil
}

// runCommand is the shared helper every kind uses to shell out over pool,
// wrapping non-zero exits as ErrorTask CoreErrors.
func runCommand(ctx context.Context, pool *transport.Pool, target transport.Target, component, resource, cmd string, timeout time.Duration) (transport.CommandResult, error) {
	result, err := pool.Run(ctx, target, cmd, nil, timeout)
	if err != nil {
		return result, fmt.Errorf("run command: %w", err)
	}
	if result.ExitCode != 0 {
		return result, types.NewCoreError(types.ErrorTask, component, resource,
			fmt.Sprintf("command exited %d: %s", result.ExitCode, result.Output), nil)
	}
	return result, nil
}
