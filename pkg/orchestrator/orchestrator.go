package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/cyris/pkg/corectx"
	"github.com/cuemby/cyris/pkg/hypervisor"
	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/metrics"
	"github.com/cuemby/cyris/pkg/planner"
	"github.com/cuemby/cyris/pkg/tasks"
	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

// Orchestrator executes Plans produced by pkg/planner against a
// corectx.CoreContext, driving the Range lifecycle state machine.
type Orchestrator struct {
	cctx *corectx.CoreContext
}

// New builds an Orchestrator over cctx.
func New(cctx *corectx.CoreContext) *Orchestrator {
	return &Orchestrator{cctx: cctx}
}

func workerCount(hosts []types.Host) int64 {
	n := int64(len(hosts)) * 4
	if n < 4 {
		n = 4
	}
	return n
}

// buildHostCloneSemaphores returns one clone-concurrency gate per host,
// weighted by that host's Capacity, so concurrent CloneGuest steps landing
// on the same host are bounded independently of the global worker pool.
func buildHostCloneSemaphores(hosts []types.Host) map[string]*semaphore.Weighted {
	sems := make(map[string]*semaphore.Weighted, len(hosts))
	for _, h := range hosts {
		n := int64(h.Capacity)
		if n < 1 {
			n = 1
		}
		sems[h.ID] = semaphore.NewWeighted(n)
	}
	return sems
}

// Deploy persists result's entities, transitions the Range to Deploying,
// and runs its Plan to completion, landing the Range in Active or Failed
// per the partial-failure policy.
func (o *Orchestrator) Deploy(ctx context.Context, result planner.Result) error {
	logger := log.WithRangeID(result.Plan.RangeID)

	for _, n := range result.Networks {
		if err := o.cctx.Store.PutNetwork(n); err != nil {
			return fmt.Errorf("persist network %s: %w", n.ID, err)
		}
	}
	for _, g := range result.Guests {
		if err := o.cctx.Store.PutGuest(g); err != nil {
			return fmt.Errorf("persist guest %s: %w", g.ID, err)
		}
	}
	for _, t := range result.Tasks {
		if err := o.cctx.Store.PutTask(t); err != nil {
			return fmt.Errorf("persist task %s: %w", t.ID, err)
		}
	}
	if err := o.cctx.Store.SavePlan(result.Plan); err != nil {
		return fmt.Errorf("persist plan: %w", err)
	}

	r, err := o.cctx.Store.GetRange(result.Plan.RangeID)
	if err != nil {
		return err
	}
	r.State = types.RangeStateDeploying
	r.PlanID = result.Plan.ID
	r.UpdatedAt = time.Now()
	if err := o.cctx.Store.PutRange(r); err != nil {
		return err
	}
	metrics.RangesTotal.WithLabelValues(string(types.RangeStateDeploying)).Inc()

	hosts, err := o.cctx.Store.ListHosts()
	if err != nil {
		return err
	}

	deployCtx, cancel := context.WithTimeout(ctx, o.cctx.Timeouts.DeployOverall)
	defer cancel()

	guestHostByID := make(map[string]string, len(result.Guests))
	for _, g := range result.Guests {
		guestHostByID[g.ID] = g.HostID
	}
	hostSems := buildHostCloneSemaphores(hosts)
	gate := cloneGate(func(step types.Step) (*semaphore.Weighted, bool) {
		if step.Kind != types.StepCloneGuest {
			return nil, false
		}
		sem, ok := hostSems[guestHostByID[step.RefID]]
		return sem, ok
	})

	timer := metrics.NewTimer()
	outcomes := runDAG(deployCtx, result.Plan.Steps, workerCount(hosts), gate, o.handleStep)
	timer.ObserveDurationVec(metrics.TaskDuration, "deploy")

	for _, step := range result.Plan.Steps {
		if outcome := outcomes[step.ID]; outcome.Err != nil {
			logger.Warn().Str("step", step.ID).Err(outcome.Err).Msg("step failed")
		}
	}
	rangeFailed := o.rangeFailureRequested(outcomes, result)

	r, err = o.cctx.Store.GetRange(result.Plan.RangeID)
	if err != nil {
		return err
	}
	if rangeFailed {
		r.State = types.RangeStateFailed
		_ = o.cctx.Store.PutRange(r)
		logger.Error().Msg("range deploy failed: critical task failure, beginning teardown")
		return o.Destroy(ctx, result.Plan.RangeID)
	}

	// A non-critical guest or task failure does not hold the range back from
	// Active: the failed entity's own state carries the detail, surfaced via
	// EntityStates rather than by demoting the range as a whole.
	r.State = types.RangeStateActive
	r.UpdatedAt = time.Now()
	return o.cctx.Store.PutRange(r)
}

// rangeFailureRequested reports whether any critical_to_range task failed,
// which transitions the whole Range to Failed.
func (o *Orchestrator) rangeFailureRequested(outcomes map[string]StepOutcome, result planner.Result) bool {
	criticalByTaskID := make(map[string]bool, len(result.Tasks))
	for _, t := range result.Tasks {
		criticalByTaskID[t.ID] = t.CriticalToRange
	}
	for _, step := range result.Plan.Steps {
		if step.Kind != types.StepRunTask {
			continue
		}
		if !criticalByTaskID[step.RefID] {
			continue
		}
		if oc := outcomes[step.ID]; oc.Err != nil {
			return true
		}
	}
	return false
}

func (o *Orchestrator) handleStep(ctx context.Context, step types.Step) error {
	switch step.Kind {
	case types.StepCreateNetwork:
		return o.handleCreateNetwork(ctx, step)
	case types.StepPlaceImage:
		return o.handlePlaceImage(ctx, step)
	case types.StepCloneGuest:
		return o.handleCloneGuest(ctx, step)
	case types.StepWaitBoot:
		return o.handleWaitBoot(ctx, step)
	case types.StepRunTask:
		return o.handleRunTask(ctx, step)
	case types.StepFinalizeRange:
		return nil
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (o *Orchestrator) handleCreateNetwork(ctx context.Context, step types.Step) error {
	network, err := o.cctx.Store.GetNetwork(step.RefID)
	if err != nil {
		return err
	}

	guests, err := o.cctx.Store.ListGuests("")
	if err != nil {
		return err
	}

	hostIDs := map[string]bool{}
	for _, g := range guests {
		for _, nic := range g.NICs {
			if nic.NetworkID == network.ID {
				hostIDs[g.HostID] = true
			}
		}
	}

	if network.Handles == nil {
		network.Handles = make(map[string]string, len(hostIDs))
	}

	for hostID := range hostIDs {
		host, err := o.cctx.Store.GetHost(hostID)
		if err != nil {
			return err
		}
		driver, ok := o.cctx.DriverFor(host.Provider)
		if !ok {
			return types.NewCoreError(types.ErrorValidation, "orchestrator", hostID, fmt.Sprintf("no driver for provider %q", host.Provider), nil)
		}
		handle, err := driver.EnsureNetwork(ctx, hypervisor.NetworkSpec{Name: network.Name, CIDR: network.CIDR})
		if err != nil {
			return fmt.Errorf("ensure network %s on host %s: %w", network.ID, hostID, err)
		}
		network.Handles[hostID] = handle.ID
	}
	return o.cctx.Store.PutNetwork(network)
}

// handlePlaceImage parses the "baseImagePath@hostID" key the planner
// encodes into step.RefID and distributes that single image to that
// single host.
func (o *Orchestrator) handlePlaceImage(ctx context.Context, step types.Step) error {
	parts := strings.SplitN(step.RefID, "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed place_image ref %q", step.RefID)
	}
	baseImagePath, hostID := parts[0], parts[1]

	host, err := o.cctx.Store.GetHost(hostID)
	if err != nil {
		return err
	}

	imgCtx, cancel := context.WithTimeout(ctx, o.cctx.Timeouts.ImageTransfer)
	defer cancel()

	results, err := o.cctx.Distributor.Distribute(imgCtx, baseImagePath, []types.Host{host})
	if err != nil {
		return fmt.Errorf("distribute image: %w", err)
	}
	if len(results) == 0 || results[0].Err != nil {
		if len(results) > 0 {
			return failGuestsOnHost(o.cctx, hostID, types.GuestStateFailedPreCreate, results[0].Err)
		}
		return fmt.Errorf("distribute image: no result")
	}
	return nil
}

func failGuestsOnHost(cctx *corectx.CoreContext, hostID string, state types.GuestState, cause error) error {
	guests, err := cctx.Store.ListGuestsByHost(hostID)
	if err != nil {
		return err
	}
	for _, g := range guests {
		g.State = state
		_ = cctx.Store.PutGuest(g)
	}
	return fmt.Errorf("place image on host %s: %w", hostID, cause)
}

func (o *Orchestrator) handleCloneGuest(ctx context.Context, step types.Step) error {
	guest, err := o.cctx.Store.GetGuest(step.RefID)
	if err != nil {
		return err
	}
	host, err := o.cctx.Store.GetHost(guest.HostID)
	if err != nil {
		return err
	}
	driver, ok := o.cctx.DriverFor(host.Provider)
	if !ok {
		return types.NewCoreError(types.ErrorValidation, "orchestrator", guest.ID, fmt.Sprintf("no driver for provider %q", host.Provider), nil)
	}

	guest.State = types.GuestStateCloning
	_ = o.cctx.Store.PutGuest(guest)

	nics := make([]hypervisor.NICAttachment, 0, len(guest.NICs))
	for _, n := range guest.NICs {
		net, err := o.cctx.Store.GetNetwork(n.NetworkID)
		if err == nil {
			nics = append(nics, hypervisor.NICAttachment{NetworkName: net.Name, StaticIP: n.IP})
		}
	}

	spec := hypervisor.DomainSpec{
		Name:      guest.Name,
		VCPU:      guest.VCPU,
		MemoryMB:  guest.MemoryMB,
		DiskGB:    guest.DiskGB,
		ImagePath: guest.BaseImage,
		Labels: map[string]string{
			"cyris.managed": "true",
			"cyris.range":   guest.RangeID,
			"cyris.guest":   guest.ID,
		},
		NICs: nics,
	}

	cloneCtx, cancel := context.WithTimeout(ctx, o.cctx.Timeouts.CloneGuest)
	defer cancel()

	timer := metrics.NewTimer()
	handle, err := driver.CloneGuest(cloneCtx, spec)
	timer.ObserveDuration(metrics.GuestCloneDuration)
	if err != nil {
		guest.State = types.GuestStateFailedCreate
		_ = o.cctx.Store.PutGuest(guest)
		return fmt.Errorf("clone guest %s: %w", guest.ID, err)
	}

	guest.OverlayPath = handle.ID
	_ = o.cctx.Store.RecordOverlay(guest.RangeID, handle.ID)

	if err := driver.Start(cloneCtx, handle); err != nil {
		_ = driver.Destroy(ctx, handle)
		guest.State = types.GuestStateFailedCreate
		_ = o.cctx.Store.PutGuest(guest)
		return fmt.Errorf("start guest %s: %w", guest.ID, err)
	}

	guest.State = types.GuestStateBooting
	return o.cctx.Store.PutGuest(guest)
}

func (o *Orchestrator) handleWaitBoot(ctx context.Context, step types.Step) error {
	guest, err := o.cctx.Store.GetGuest(step.RefID)
	if err != nil {
		return err
	}
	host, err := o.cctx.Store.GetHost(guest.HostID)
	if err != nil {
		return err
	}
	driver, ok := o.cctx.DriverFor(host.Provider)
	if !ok {
		return types.NewCoreError(types.ErrorValidation, "orchestrator", guest.ID, fmt.Sprintf("no driver for provider %q", host.Provider), nil)
	}

	bootCtx, cancel := context.WithTimeout(ctx, o.cctx.Timeouts.WaitBoot)
	defer cancel()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GuestBootDuration)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	handle := hypervisor.DomainHandle{ID: guest.OverlayPath}
	for {
		select {
		case <-bootCtx.Done():
			guest.State = types.GuestStateFailedBoot
			_ = o.cctx.Store.PutGuest(guest)
			return types.NewCoreError(types.ErrorTimeout, "orchestrator", guest.ID, "guest did not boot in time", bootCtx.Err())
		case <-ticker.C:
			obs, err := driver.Observe(bootCtx, handle)
			if err != nil {
				continue
			}
			if obs.State == hypervisor.PowerStateRunning && obs.LeasedIP != "" {
				guest.State = types.GuestStateRunning
				guest.LeasedIP = obs.LeasedIP
				return o.cctx.Store.PutGuest(guest)
			}
		}
	}
}

func (o *Orchestrator) handleRunTask(ctx context.Context, step types.Step) error {
	task, err := o.cctx.Store.GetTask(step.RefID)
	if err != nil {
		return err
	}
	guest, err := o.cctx.Store.GetGuest(task.GuestID)
	if err != nil {
		return err
	}

	networks, err := o.cctx.Store.ListNetworks(guest.RangeID)
	if err != nil {
		return err
	}

	target := transport.Target{Host: guest.LeasedIP, User: o.cctx.GuestSSHUser}

	task.State = types.TaskStateRunning
	_ = o.cctx.Store.PutTask(task)

	taskCtx, cancel := context.WithTimeout(ctx, o.cctx.Timeouts.RunTask)
	defer cancel()

	res, err := tasks.Dispatch(taskCtx, o.cctx.Executor, target, task, networks)
	task.Output = res.Output
	task.Artifacts = res.Artifacts
	task.Duration = res.Duration

	if err != nil {
		task.State = types.TaskStateFailed
		_ = o.cctx.Store.PutTask(task)
		guest.State = types.GuestStateFailedTask
		_ = o.cctx.Store.PutGuest(guest)
		return fmt.Errorf("run task %s: %w", task.ID, err)
	}

	task.State = types.TaskStateSucceeded
	return o.cctx.Store.PutTask(task)
}
