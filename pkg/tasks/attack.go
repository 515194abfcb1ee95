package tasks

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("emulate_attack", emulateAttack)
}

var attackScripts = map[string]string{
	"ssh_bruteforce": "/opt/cyris/attacks/ssh_bruteforce.sh",
	"dos":            "/opt/cyris/attacks/dos.sh",
	"ddos":           "/opt/cyris/attacks/ddos.sh",
}

// targetWithinRanges refuses (rather than silently skips) an attack whose
// declared target address falls outside every network belonging to the
// owning Range, enforcing the emulation-task safety requirement.
func targetWithinRanges(targetAddr string, networks []types.Network) bool {
	host, _, err := net.SplitHostPort(targetAddr)
	if err != nil {
		host = targetAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	for _, n := range networks {
		prefix, err := netip.ParsePrefix(n.CIDR)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// emulateAttack places the requested attack kind's script on the guest and
// runs it for the declared duration, collecting a pcap artifact. Never
// idempotent: each invocation is a distinct attack run.
func emulateAttack(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, networks []types.Network) (Result, error) {
	kind := task.Params["kind"]
	script, ok := attackScripts[kind]
	if !ok {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, fmt.Sprintf("unknown emulate_attack kind %q", kind), nil)
	}

	attackTarget := task.Params["target"]
	if attackTarget == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "emulate_attack requires target", nil)
	}
	if !targetWithinRanges(attackTarget, networks) {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID,
			fmt.Sprintf("attack target %s falls outside every range network", attackTarget), nil)
	}

	duration := task.Params["duration"]
	if duration == "" {
		duration = "30s"
	}
	parsedDuration, err := time.ParseDuration(duration)
	if err != nil {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "duration must be a Go duration string", err)
	}
	intensity := task.Params["intensity"]
	if intensity == "" {
		intensity = "low"
	}

	pcapPath := fmt.Sprintf("/tmp/cyris-attack-%s.pcap", task.ID)
	cmd := fmt.Sprintf("%s %q %q %q %q", script, attackTarget, duration, intensity, pcapPath)

	runTimeout := parsedDuration + 30*time.Second
	result, err := pool.Run(ctx, target, cmd, nil, runTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("run attack script: %w", err)
	}
	if result.ExitCode != 0 {
		return Result{Success: false, Output: result.Output}, types.NewCoreError(types.ErrorTask, "tasks", task.ID,
			fmt.Sprintf("attack script exited %d: %s", result.ExitCode, result.Output), nil)
	}

	return Result{Success: true, Output: result.Output, Artifacts: []string{pcapPath}}, nil
}
