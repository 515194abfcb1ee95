// Package orchestrator implements the Orchestrator (C7): it drives a
// Plan's DAG across a bounded worker pool, handles partial failure per
// step kind, and owns the Range lifecycle state machine including
// destruction and reconciliation.
package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/cyris/pkg/types"
)

// StepOutcome is what running or skipping one Step produced.
type StepOutcome struct {
	Skipped bool
	Err     error
}

// StepHandler executes one Step and returns an error if the step failed.
type StepHandler func(ctx context.Context, step types.Step) error

// cloneGate lets a step additionally acquire a second, narrower semaphore
// before running — used to bound CloneGuest steps by their target host's
// own capacity, independent of the global worker pool. Returns ok=false
// for any step that has no such gate.
type cloneGate func(step types.Step) (*semaphore.Weighted, bool)

// runDAG walks steps in topological waves: every step in a wave has had all
// its dependencies resolved, and a wave's steps run concurrently bounded by
// concurrency (and, for steps cloneGate matches, by that second semaphore
// too). A step whose any dependency failed or was itself skipped is never
// handed to handler — it is recorded as skipped and its own dependents are
// skipped in turn, so a single failure's downstream is pruned without
// halting unrelated branches. This is the explicit ready-set worker loop
// the plan-execution design calls for, not recursion.
func runDAG(ctx context.Context, steps []types.Step, concurrency int64, gate cloneGate, handler StepHandler) map[string]StepOutcome {
	byID := make(map[string]types.Step, len(steps))
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))

	for _, s := range steps {
		byID[s.ID] = s
		indegree[s.ID] = 0
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	outcomes := make(map[string]StepOutcome, len(steps))
	sem := semaphore.NewWeighted(concurrency)

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		current := ready
		ready = nil

		var mu sync.Mutex
		var wg sync.WaitGroup
		nextReady := make([]string, 0)

		for _, id := range current {
			upstreamFailed := false
			for _, dep := range byID[id].DependsOn {
				if o, ok := outcomes[dep]; ok && (o.Skipped || o.Err != nil) {
					upstreamFailed = true
					break
				}
			}

			wg.Add(1)
			go func(id string, upstreamFailed bool) {
				defer wg.Done()

				var outcome StepOutcome
				if upstreamFailed {
					outcome = StepOutcome{Skipped: true}
				} else {
					outcome = runGatedStep(ctx, sem, gate, byID[id], handler)
				}

				mu.Lock()
				outcomes[id] = outcome
				for _, dep := range dependents[id] {
					indegree[dep]--
					if indegree[dep] == 0 {
						nextReady = append(nextReady, dep)
					}
				}
				mu.Unlock()
			}(id, upstreamFailed)
		}

		wg.Wait()
		ready = nextReady
	}

	return outcomes
}

// runGatedStep acquires the global semaphore, then (if gate matches this
// step) the narrower per-host one, before handing the step to handler.
func runGatedStep(ctx context.Context, sem *semaphore.Weighted, gate cloneGate, step types.Step, handler StepHandler) StepOutcome {
	if err := sem.Acquire(ctx, 1); err != nil {
		return StepOutcome{Err: err}
	}
	defer sem.Release(1)

	if hostSem, ok := gate(step); ok {
		if err := hostSem.Acquire(ctx, 1); err != nil {
			return StepOutcome{Err: err}
		}
		defer hostSem.Release(1)
	}

	return StepOutcome{Err: handler(ctx, step)}
}
