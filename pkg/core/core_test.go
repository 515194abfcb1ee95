package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cyris/pkg/corectx"
	"github.com/cuemby/cyris/pkg/hypervisor"
	"github.com/cuemby/cyris/pkg/registry"
	"github.com/cuemby/cyris/pkg/types"
)

func testContext(t *testing.T) *corectx.CoreContext {
	t.Helper()
	store, err := registry.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return corectx.New(t.TempDir(), corectx.DefaultTimeouts(), map[string]hypervisor.Driver{}, nil, store, nil)
}

func TestCreateRejectsInvalidSpecWithoutTouchingOrchestrator(t *testing.T) {
	cctx := testContext(t)

	result, err := Create(context.Background(), cctx, types.RangeInputSpec{Name: "bad"})
	require.Error(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, string(types.ErrorValidation), result.Errors[0].Kind)

	ranges, listErr := cctx.Store.ListRanges()
	require.NoError(t, listErr)
	assert.Empty(t, ranges, "an invalid spec must not create a range entity")
}

func TestStatusReportsRangeGuestAndTaskStates(t *testing.T) {
	cctx := testContext(t)
	now := time.Now()

	require.NoError(t, cctx.Store.PutRange(types.Range{ID: "r1", Name: "demo", State: types.RangeStateActive, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, cctx.Store.PutGuest(types.Guest{ID: "g1", RangeID: "r1", State: types.GuestStateRunning}))
	require.NoError(t, cctx.Store.PutTask(types.Task{ID: "t1", RangeID: "r1", GuestID: "g1", State: types.TaskStateSucceeded}))
	require.NoError(t, cctx.Store.PutTask(types.Task{ID: "t2", RangeID: "other-range", GuestID: "g2", State: types.TaskStateFailed}))

	result, err := Status(context.Background(), cctx, "r1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	kinds := map[string]string{}
	for _, es := range result.EntityStates {
		kinds[es.Kind+":"+es.ID] = es.State
	}
	assert.Equal(t, "active", kinds["range:r1"])
	assert.Equal(t, "running", kinds["guest:g1"])
	assert.Equal(t, "succeeded", kinds["task:t1"])
	_, leaked := kinds["task:t2"]
	assert.False(t, leaked, "status must not leak tasks from other ranges")
}

func TestListReportsEveryRange(t *testing.T) {
	cctx := testContext(t)
	now := time.Now()
	require.NoError(t, cctx.Store.PutRange(types.Range{ID: "r1", State: types.RangeStateActive, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, cctx.Store.PutRange(types.Range{ID: "r2", State: types.RangeStateDestroyed, CreatedAt: now, UpdatedAt: now}))

	result, err := List(context.Background(), cctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.EntityStates, 2)
}

func TestCleanupOrphansWithNoHostsReportsEmpty(t *testing.T) {
	cctx := testContext(t)

	result, err := CleanupOrphans(context.Background(), cctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.EntityStates)
}

func TestFailureFromPreservesCoreErrorFields(t *testing.T) {
	ce := types.NewCoreError(types.ErrorResource, "registry", "g1", "guest not found", nil)
	fd := failureFrom("fallback", "fallback-resource", ce)
	assert.Equal(t, "registry", fd.Component)
	assert.Equal(t, "g1", fd.Resource)
	assert.Equal(t, string(types.ErrorResource), fd.Kind)
}

func TestFailureFromWrapsPlainErrorAsInternal(t *testing.T) {
	fd := failureFrom("planner", "r1", assertError("boom"))
	assert.Equal(t, string(types.ErrorInternal), fd.Kind)
	assert.Equal(t, "planner", fd.Component)
}

type assertError string

func (e assertError) Error() string { return string(e) }
