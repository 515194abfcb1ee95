package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/cyris/pkg/types"
)

func noGate(types.Step) (*semaphore.Weighted, bool) { return nil, false }

func TestRunDAGExecutesInDependencyOrder(t *testing.T) {
	steps := []types.Step{
		{ID: "a", Kind: types.StepCreateNetwork},
		{ID: "b", Kind: types.StepPlaceImage, DependsOn: []string{"a"}},
		{ID: "c", Kind: types.StepCloneGuest, DependsOn: []string{"b"}},
	}

	var mu sync.Mutex
	var order []string
	handler := func(_ context.Context, step types.Step) error {
		mu.Lock()
		order = append(order, step.ID)
		mu.Unlock()
		return nil
	}

	outcomes := runDAG(context.Background(), steps, 4, noGate, handler)
	require.Len(t, order, 3)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, id := range []string{"a", "b", "c"} {
		assert.NoError(t, outcomes[id].Err)
		assert.False(t, outcomes[id].Skipped)
	}
}

func TestRunDAGSkipsDownstreamOfFailure(t *testing.T) {
	steps := []types.Step{
		{ID: "a", Kind: types.StepCreateNetwork},
		{ID: "b", Kind: types.StepPlaceImage, DependsOn: []string{"a"}},
		{ID: "c", Kind: types.StepCloneGuest, DependsOn: []string{"b"}},
		{ID: "d", Kind: types.StepWaitBoot, DependsOn: []string{"c"}},
		{ID: "e", Kind: types.StepCreateNetwork}, // independent branch
	}

	handler := func(_ context.Context, step types.Step) error {
		if step.ID == "b" {
			return errors.New("place image failed")
		}
		return nil
	}

	outcomes := runDAG(context.Background(), steps, 4, noGate, handler)
	assert.Error(t, outcomes["b"].Err)
	assert.True(t, outcomes["c"].Skipped)
	assert.True(t, outcomes["d"].Skipped)
	assert.False(t, outcomes["e"].Skipped)
	assert.NoError(t, outcomes["e"].Err)
}

func TestRunDAGBoundsConcurrency(t *testing.T) {
	steps := make([]types.Step, 0, 20)
	for i := 0; i < 20; i++ {
		steps = append(steps, types.Step{ID: string(rune('a' + i)), Kind: types.StepRunTask})
	}

	var mu sync.Mutex
	current, maxConcurrent := 0, 0
	handler := func(_ context.Context, _ types.Step) error {
		mu.Lock()
		current++
		if current > maxConcurrent {
			maxConcurrent = current
		}
		mu.Unlock()

		mu.Lock()
		current--
		mu.Unlock()
		return nil
	}

	runDAG(context.Background(), steps, 3, noGate, handler)
	assert.LessOrEqual(t, maxConcurrent, 3)
}

func TestRunDAGBoundsCloneConcurrencyPerHost(t *testing.T) {
	steps := []types.Step{
		{ID: "clone-1", Kind: types.StepCloneGuest, RefID: "g1"},
		{ID: "clone-2", Kind: types.StepCloneGuest, RefID: "g2"},
		{ID: "clone-3", Kind: types.StepCloneGuest, RefID: "g3"},
	}
	guestHost := map[string]string{"g1": "host-a", "g2": "host-a", "g3": "host-a"}
	hostSem := semaphore.NewWeighted(1)
	gate := func(step types.Step) (*semaphore.Weighted, bool) {
		if step.Kind != types.StepCloneGuest {
			return nil, false
		}
		_, ok := guestHost[step.RefID]
		return hostSem, ok
	}

	var mu sync.Mutex
	current, maxConcurrent := 0, 0
	handler := func(_ context.Context, _ types.Step) error {
		mu.Lock()
		current++
		if current > maxConcurrent {
			maxConcurrent = current
		}
		mu.Unlock()

		mu.Lock()
		current--
		mu.Unlock()
		return nil
	}

	runDAG(context.Background(), steps, 10, gate, handler)
	assert.LessOrEqual(t, maxConcurrent, 1, "clones on the same host must not run concurrently past its capacity")
}
