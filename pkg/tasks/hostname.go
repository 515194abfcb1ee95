package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("set_hostname", setHostname)
}

// setHostname sets and persists the guest's hostname via hostnamectl,
// falling back to the raw hostname command plus /etc/hostname when
// hostnamectl is unavailable (minimal images without systemd).
func setHostname(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	hostname := task.Params["hostname"]
	if hostname == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "set_hostname requires hostname", nil)
	}

	current, err := runCommand(ctx, pool, target, "tasks", task.ID, "hostname", 10*time.Second)
	if err == nil && trimNewline(current.Output) == hostname {
		return Result{Success: true, Output: "hostname already set"}, nil
	}

	cmd := fmt.Sprintf(
		"(command -v hostnamectl >/dev/null 2>&1 && hostnamectl set-hostname %q) || (hostname %q && echo %q > /etc/hostname)",
		hostname, hostname, hostname,
	)
	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, cmd, 30*time.Second); err != nil {
		return Result{}, err
	}

	return Result{Success: true, Output: fmt.Sprintf("hostname set to %s", hostname)}, nil
}
