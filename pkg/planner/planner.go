// Package planner implements the Planner (C6): compiling a validated
// RangeInputSpec into a DAG of provisioning Steps with explicit dependency
// edges and host assignments, emitted once and persisted immutably.
package planner

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cuemby/cyris/pkg/types"
)

// Result is everything a Plan's execution needs: the materialized entities
// alongside the DAG that orders their creation.
type Result struct {
	Plan     types.Plan
	Networks []types.Network
	Guests   []types.Guest
	Tasks    []types.Task
}

// Build compiles spec into a Result for a range identified by rangeID,
// assigning guests to hosts and emitting six step kinds with explicit
// dependency edges:
//
//  1. CreateNetwork per declared network.
//  2. PlaceImage per distinct (base_image, host) pair in use.
//  3. CloneGuest(g) depends on its PlaceImage and every CreateNetwork it attaches to.
//  4. WaitBoot(g) depends on CloneGuest(g).
//  5. RunTask(t) depends on WaitBoot(g) and RunTask(t') for each declared predecessor.
//  6. FinalizeRange depends on all RunTask nodes.
func Build(rangeID string, spec types.RangeInputSpec, hosts []types.Host) (Result, error) {
	if err := checkTaskCycles(spec.Tasks); err != nil {
		return Result{}, err
	}

	assigner := newHostAssigner(hosts)

	networks := make([]types.Network, 0, len(spec.Networks))
	networkByID := make(map[string]types.Network, len(spec.Networks))
	for _, ns := range spec.Networks {
		n := types.Network{ID: ns.ID, Name: ns.Name, CIDR: ns.CIDR, RangeID: rangeID}
		networks = append(networks, n)
		networkByID[n.ID] = n
	}

	baseImageByID := make(map[string]types.BaseImageSpec, len(spec.BaseImages))
	for _, b := range spec.BaseImages {
		baseImageByID[b.ID] = b
	}

	guests := make([]types.Guest, 0, len(spec.Guests))
	guestHostByID := make(map[string]string, len(spec.Guests))
	for _, gs := range spec.Guests {
		base, ok := baseImageByID[gs.BaseImageID]
		if !ok {
			return Result{}, fmt.Errorf("guest %s references unknown base image %s", gs.ID, gs.BaseImageID)
		}

		hostID := gs.HostID
		if hostID == "" {
			assigned, err := assigner.assign()
			if err != nil {
				return Result{}, fmt.Errorf("assign host for guest %s: %w", gs.ID, err)
			}
			hostID = assigned
		} else {
			assigner.reserve(hostID)
		}
		guestHostByID[gs.ID] = hostID

		nics := make([]types.NIC, 0, len(gs.NICs))
		for _, n := range gs.NICs {
			nics = append(nics, types.NIC{NetworkID: n.NetworkID, IP: n.IP})
		}

		guests = append(guests, types.Guest{
			ID:        gs.ID,
			Name:      gs.Name,
			RangeID:   rangeID,
			HostID:    hostID,
			BaseImage: base.SourcePath,
			VCPU:      gs.VCPU,
			MemoryMB:  gs.MemoryMB,
			DiskGB:    gs.DiskGB,
			NICs:      nics,
			State:     types.GuestStatePending,
		})
	}

	tasks := make([]types.Task, 0, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		tasks = append(tasks, types.Task{
			ID:              ts.ID,
			GuestID:         ts.GuestID,
			RangeID:         rangeID,
			Kind:            ts.Kind,
			Params:          ts.Params,
			DependsOn:       ts.DependsOn,
			CriticalToRange: ts.CriticalToRange,
			State:           types.TaskStatePending,
		})
	}

	steps := buildSteps(rangeID, spec, guestHostByID)

	plan := types.Plan{
		ID:      uuid.NewString(),
		RangeID: rangeID,
		Steps:   steps,
	}

	return Result{Plan: plan, Networks: networks, Guests: guests, Tasks: tasks}, nil
}

func buildSteps(rangeID string, spec types.RangeInputSpec, guestHostByID map[string]string) []types.Step {
	var steps []types.Step

	networkStepID := func(networkID string) string { return "create_network:" + networkID }
	for _, ns := range spec.Networks {
		steps = append(steps, types.Step{ID: networkStepID(ns.ID), Kind: types.StepCreateNetwork, RefID: ns.ID})
	}

	placeImageStepID := func(baseImageID, hostID string) string { return "place_image:" + baseImageID + "@" + hostID }
	placedPairs := make(map[string]bool)
	for _, gs := range spec.Guests {
		hostID := guestHostByID[gs.ID]
		key := gs.BaseImageID + "@" + hostID
		if placedPairs[key] {
			continue
		}
		placedPairs[key] = true
		steps = append(steps, types.Step{
			ID:    placeImageStepID(gs.BaseImageID, hostID),
			Kind:  types.StepPlaceImage,
			RefID: key,
		})
	}

	cloneStepID := func(guestID string) string { return "clone_guest:" + guestID }
	waitBootStepID := func(guestID string) string { return "wait_boot:" + guestID }
	for _, gs := range spec.Guests {
		hostID := guestHostByID[gs.ID]
		deps := []string{placeImageStepID(gs.BaseImageID, hostID)}
		for _, nic := range gs.NICs {
			deps = append(deps, networkStepID(nic.NetworkID))
		}
		steps = append(steps, types.Step{ID: cloneStepID(gs.ID), Kind: types.StepCloneGuest, RefID: gs.ID, DependsOn: deps})
		steps = append(steps, types.Step{ID: waitBootStepID(gs.ID), Kind: types.StepWaitBoot, RefID: gs.ID, DependsOn: []string{cloneStepID(gs.ID)}})
	}

	runTaskStepID := func(taskID string) string { return "run_task:" + taskID }
	taskByID := make(map[string]types.TaskSpec, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		taskByID[ts.ID] = ts
	}
	allTaskStepIDs := make([]string, 0, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		deps := []string{waitBootStepID(ts.GuestID)}
		for _, predID := range ts.DependsOn {
			if _, ok := taskByID[predID]; ok {
				deps = append(deps, runTaskStepID(predID))
			}
		}
		id := runTaskStepID(ts.ID)
		steps = append(steps, types.Step{ID: id, Kind: types.StepRunTask, RefID: ts.ID, DependsOn: deps})
		allTaskStepIDs = append(allTaskStepIDs, id)
	}

	sort.Strings(allTaskStepIDs)
	steps = append(steps, types.Step{
		ID:        "finalize_range:" + rangeID,
		Kind:      types.StepFinalizeRange,
		RefID:     rangeID,
		DependsOn: allTaskStepIDs,
	})

	return steps
}

// checkTaskCycles runs a Kahn's-algorithm topological sort over the task
// dependency graph, returning an error naming a participant if any cycle
// survives to a round where no node has zero remaining in-degree.
func checkTaskCycles(taskSpecs []types.TaskSpec) error {
	inDegree := make(map[string]int, len(taskSpecs))
	dependents := make(map[string][]string, len(taskSpecs))
	ids := make(map[string]bool, len(taskSpecs))

	for _, t := range taskSpecs {
		ids[t.ID] = true
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
	}
	for _, t := range taskSpecs {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				continue // dangling reference caught by spec validation, not here
			}
			inDegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	visited := 0
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		visited++

		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if visited != len(ids) {
		return fmt.Errorf("task dependency graph contains a cycle")
	}
	return nil
}
