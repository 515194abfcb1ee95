package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cyris/pkg/types"
)

func sampleSpec() types.RangeInputSpec {
	return types.RangeInputSpec{
		Name: "sample",
		Hosts: []types.HostSpec{
			{ID: "h1", Address: "10.0.0.1", Provider: "kvm", Capacity: 4},
		},
		Networks: []types.NetworkSpec{
			{ID: "n1", Name: "segment-a", CIDR: "10.1.0.0/24"},
		},
		BaseImages: []types.BaseImageSpec{
			{ID: "b1", SourcePath: "/images/ubuntu.qcow2"},
		},
		Guests: []types.GuestSpec{
			{ID: "g1", Name: "victim", BaseImageID: "b1", VCPU: 2, MemoryMB: 2048, DiskGB: 20,
				NICs: []types.NICSpec{{NetworkID: "n1"}}},
		},
		Tasks: []types.TaskSpec{
			{ID: "t1", GuestID: "g1", Kind: "add_user", Params: map[string]string{"name": "trainee01"}},
			{ID: "t2", GuestID: "g1", Kind: "install_ssh_key", DependsOn: []string{"t1"}},
		},
	}
}

func hostsFromSpec(spec types.RangeInputSpec) []types.Host {
	out := make([]types.Host, 0, len(spec.Hosts))
	for _, h := range spec.Hosts {
		out = append(out, types.Host{ID: h.ID, Address: h.Address, Provider: h.Provider, Capacity: h.Capacity})
	}
	return out
}

func TestBuildAssignsUnpinnedGuestToAvailableHost(t *testing.T) {
	spec := sampleSpec()
	result, err := Build("r1", spec, hostsFromSpec(spec))
	require.NoError(t, err)

	require.Len(t, result.Guests, 1)
	assert.Equal(t, "h1", result.Guests[0].HostID)
	assert.Equal(t, "r1", result.Guests[0].RangeID)
}

func TestBuildEmitsDependencyEdgesPerSpec(t *testing.T) {
	spec := sampleSpec()
	result, err := Build("r1", spec, hostsFromSpec(spec))
	require.NoError(t, err)

	byID := make(map[string]types.Step)
	for _, s := range result.Plan.Steps {
		byID[s.ID] = s
	}

	clone, ok := byID["clone_guest:g1"]
	require.True(t, ok)
	assert.Contains(t, clone.DependsOn, "create_network:n1")
	assert.Contains(t, clone.DependsOn, "place_image:b1@h1")

	waitBoot, ok := byID["wait_boot:g1"]
	require.True(t, ok)
	assert.Equal(t, []string{"clone_guest:g1"}, waitBoot.DependsOn)

	runT2, ok := byID["run_task:t2"]
	require.True(t, ok)
	assert.Contains(t, runT2.DependsOn, "run_task:t1")
	assert.Contains(t, runT2.DependsOn, "wait_boot:g1")

	finalize, ok := byID["finalize_range:r1"]
	require.True(t, ok)
	assert.Contains(t, finalize.DependsOn, "run_task:t1")
	assert.Contains(t, finalize.DependsOn, "run_task:t2")
}

func TestBuildDeduplicatesPlaceImagePerHostImagePair(t *testing.T) {
	spec := sampleSpec()
	spec.Guests = append(spec.Guests, types.GuestSpec{
		ID: "g2", Name: "victim-2", BaseImageID: "b1", VCPU: 1, MemoryMB: 1024, DiskGB: 10,
	})

	result, err := Build("r1", spec, hostsFromSpec(spec))
	require.NoError(t, err)

	placeImageSteps := 0
	for _, s := range result.Plan.Steps {
		if s.Kind == types.StepPlaceImage {
			placeImageSteps++
		}
	}
	assert.Equal(t, 1, placeImageSteps)
}

func TestBuildDetectsTaskCycle(t *testing.T) {
	spec := sampleSpec()
	spec.Tasks = []types.TaskSpec{
		{ID: "t1", GuestID: "g1", Kind: "add_user", DependsOn: []string{"t2"}},
		{ID: "t2", GuestID: "g1", Kind: "install_ssh_key", DependsOn: []string{"t1"}},
	}

	_, err := Build("r1", spec, hostsFromSpec(spec))
	assert.Error(t, err)
}

func TestBuildFailsWithNoHostCapacity(t *testing.T) {
	spec := sampleSpec()
	spec.Hosts[0].Capacity = 0

	_, err := Build("r1", spec, hostsFromSpec(spec))
	assert.Error(t, err)
}

func TestHostAssignerPrefersMostRemainingCapacity(t *testing.T) {
	a := newHostAssigner([]types.Host{
		{ID: "h1", Capacity: 2, InUse: 2},
		{ID: "h2", Capacity: 4, InUse: 0},
	})

	picked, err := a.assign()
	require.NoError(t, err)
	assert.Equal(t, "h2", picked)
}
