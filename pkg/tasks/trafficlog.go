package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("prepare_traffic_log", prepareTrafficLog)
}

// prepareTrafficLog merges the guest's noise-generating capture with any
// attack pcaps already present under /tmp/cyris-attack-*.pcap into a single
// output file, skipping the merge if output already has the expected hash.
func prepareTrafficLog(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	outputPath := task.Params["output_path"]
	if outputPath == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "prepare_traffic_log requires output_path", nil)
	}
	profile := task.Params["noise_profile"]
	if profile == "" {
		profile = "background"
	}

	wantHashResult, _ := runCommand(ctx, pool, target, "tasks", task.ID,
		fmt.Sprintf("test -f %q && sha256sum %q | cut -d' ' -f1 || true", outputPath, outputPath), 30*time.Second)
	priorHash := trimNewline(wantHashResult.Output)

	cmd := fmt.Sprintf(
		"/opt/cyris/attacks/noise.sh %q %q.noise.pcap && "+
			"mergecap -w %q %q.noise.pcap /tmp/cyris-attack-*.pcap 2>/dev/null || cp %q.noise.pcap %q",
		profile, outputPath, outputPath, outputPath, outputPath, outputPath,
	)
	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, cmd, 10*time.Minute); err != nil {
		return Result{}, err
	}

	newHashResult, err := runCommand(ctx, pool, target, "tasks", task.ID,
		fmt.Sprintf("sha256sum %q | cut -d' ' -f1", outputPath), 30*time.Second)
	if err != nil {
		return Result{}, err
	}
	newHash := trimNewline(newHashResult.Output)

	if priorHash != "" && priorHash == newHash {
		return Result{Success: true, Output: "traffic log unchanged", Artifacts: []string{outputPath}}, nil
	}

	return Result{Success: true, Output: fmt.Sprintf("traffic log produced at %s", outputPath), Artifacts: []string{outputPath}}, nil
}
