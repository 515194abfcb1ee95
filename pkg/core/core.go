// Package core is the top-level operations boundary: create, destroy,
// status, list and cleanup-orphans, wiring pkg/spec, pkg/planner,
// pkg/orchestrator, pkg/registry and pkg/images behind one structured
// result surface.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/cyris/pkg/corectx"
	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/orchestrator"
	"github.com/cuemby/cyris/pkg/planner"
	"github.com/cuemby/cyris/pkg/spec"
	"github.com/cuemby/cyris/pkg/types"
)

// EntityState is one line of an OperationResult's state snapshot: a
// range, guest, host or task and the state it landed in.
type EntityState struct {
	Kind  string `json:"kind"` // "range", "guest", "host", "task"
	ID    string `json:"id"`
	State string `json:"state"`
}

// FailureDetail names one grouped failure: component -> resource -> kind
// -> message.
type FailureDetail struct {
	Component string `json:"component"`
	Resource  string `json:"resource"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// OperationResult is the structured surface every pkg/core operation
// returns, letting cmd/cyris render success/failure without inspecting
// error chains itself.
type OperationResult struct {
	Success      bool            `json:"success"`
	EntityStates []EntityState   `json:"entity_states,omitempty"`
	Errors       []FailureDetail `json:"errors,omitempty"`
}

func failureFrom(component, resource string, err error) FailureDetail {
	if ce, ok := err.(*types.CoreError); ok {
		return FailureDetail{Component: ce.Component, Resource: ce.Resource, Kind: string(ce.Kind), Message: ce.Message}
	}
	return FailureDetail{Component: component, Resource: resource, Kind: string(types.ErrorInternal), Message: err.Error()}
}

func failed(component, resource string, err error) OperationResult {
	return OperationResult{Success: false, Errors: []FailureDetail{failureFrom(component, resource, err)}}
}

// Create validates input, compiles a Plan, registers its hosts, and
// deploys it through pkg/orchestrator, returning the resulting entity
// states regardless of whether the deploy fully succeeded.
func Create(ctx context.Context, cctx *corectx.CoreContext, input types.RangeInputSpec) (OperationResult, error) {
	if err := spec.Validate(input); err != nil {
		return failed("spec", input.Name, err), err
	}

	rangeID := uuid.NewString()
	logger := log.WithRangeID(rangeID)
	logger.Info().Str("name", input.Name).Msg("creating range")

	now := time.Now()
	r := types.Range{ID: rangeID, Name: input.Name, State: types.RangeStatePending, CreatedAt: now, UpdatedAt: now}
	if err := cctx.Store.PutRange(r); err != nil {
		return failed("registry", rangeID, err), err
	}

	hosts := make([]types.Host, 0, len(input.Hosts))
	for _, hs := range input.Hosts {
		h := types.Host{
			ID: hs.ID, Name: hs.ID, Address: hs.Address, Provider: hs.Provider,
			SSHUser: hs.SSHUser, Status: types.HostStatusHealthy, Capacity: hs.Capacity,
		}
		if err := cctx.Store.PutHost(h); err != nil {
			return failed("registry", hs.ID, err), err
		}
		hosts = append(hosts, h)
	}

	result, err := planner.Build(rangeID, input, hosts)
	if err != nil {
		r.State = types.RangeStateFailed
		_ = cctx.Store.PutRange(r)
		return failed("planner", rangeID, err), err
	}

	orch := orchestrator.New(cctx)
	deployErr := orch.Deploy(ctx, result)

	final, err := cctx.Store.GetRange(rangeID)
	if err != nil {
		return failed("registry", rangeID, err), err
	}

	opResult, err := statusResult(cctx, final)
	if deployErr != nil {
		opResult.Success = false
		opResult.Errors = append(opResult.Errors, failureFrom("orchestrator", rangeID, deployErr))
		return opResult, nil
	}
	return opResult, err
}

// Destroy tears rangeID down and reports its final entity states.
func Destroy(ctx context.Context, cctx *corectx.CoreContext, rangeID string) (OperationResult, error) {
	orch := orchestrator.New(cctx)
	if err := orch.Destroy(ctx, rangeID); err != nil {
		return failed("orchestrator", rangeID, err), err
	}
	r, err := cctx.Store.GetRange(rangeID)
	if err != nil {
		return failed("registry", rangeID, err), err
	}
	return statusResult(cctx, r)
}

// Status reports a single range's current entity states.
func Status(_ context.Context, cctx *corectx.CoreContext, rangeID string) (OperationResult, error) {
	r, err := cctx.Store.GetRange(rangeID)
	if err != nil {
		return failed("registry", rangeID, err), err
	}
	return statusResult(cctx, r)
}

// List reports every known range's own top-level state line.
func List(_ context.Context, cctx *corectx.CoreContext) (OperationResult, error) {
	ranges, err := cctx.Store.ListRanges()
	if err != nil {
		return failed("registry", "", err), err
	}
	out := OperationResult{Success: true}
	for _, r := range ranges {
		out.EntityStates = append(out.EntityStates, EntityState{Kind: "range", ID: r.ID, State: string(r.State)})
	}
	return out, nil
}

// CleanupOrphans runs one reconciliation cycle and reports what it found,
// without itself destroying anything: orphan/phantom remediation is an
// operator decision.
func CleanupOrphans(ctx context.Context, cctx *corectx.CoreContext) (OperationResult, error) {
	orch := orchestrator.New(cctx)
	rec := orchestrator.NewReconciler(orch)

	report, err := rec.Reconcile(ctx)
	if err != nil {
		return failed("reconciler", "", err), err
	}

	out := OperationResult{Success: true}
	for _, id := range report.OrphanDomainIDs {
		out.EntityStates = append(out.EntityStates, EntityState{Kind: "orphan_domain", ID: id, State: "untracked"})
	}
	for _, id := range report.PhantomGuestIDs {
		out.EntityStates = append(out.EntityStates, EntityState{Kind: "phantom_guest", ID: id, State: "not-on-host"})
	}
	return out, nil
}

func statusResult(cctx *corectx.CoreContext, r types.Range) (OperationResult, error) {
	out := OperationResult{Success: r.State == types.RangeStateActive || r.State == types.RangeStateDestroyed}
	out.EntityStates = append(out.EntityStates, EntityState{Kind: "range", ID: r.ID, State: string(r.State)})

	guests, err := cctx.Store.ListGuests(r.ID)
	if err != nil {
		return out, fmt.Errorf("list guests for range %s: %w", r.ID, err)
	}
	for _, g := range guests {
		out.EntityStates = append(out.EntityStates, EntityState{Kind: "guest", ID: g.ID, State: string(g.State)})
	}

	tasks, err := cctx.Store.ListTasks("")
	if err != nil {
		return out, fmt.Errorf("list tasks: %w", err)
	}
	for _, t := range tasks {
		if t.RangeID != r.ID {
			continue
		}
		out.EntityStates = append(out.EntityStates, EntityState{Kind: "task", ID: t.ID, State: string(t.State)})
	}

	return out, nil
}
