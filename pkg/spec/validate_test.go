package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/cyris/pkg/types"
)

func validSpec() types.RangeInputSpec {
	return types.RangeInputSpec{
		Name: "demo",
		Hosts: []types.HostSpec{
			{ID: "host1", Address: "10.0.0.1", Provider: "kvm", Capacity: 4},
		},
		Networks: []types.NetworkSpec{
			{ID: "net1", Name: "dmz", CIDR: "192.168.10.0/24"},
		},
		BaseImages: []types.BaseImageSpec{
			{ID: "ubuntu", SourcePath: "/images/ubuntu.qcow2"},
		},
		Guests: []types.GuestSpec{
			{
				ID: "victim", Name: "victim", BaseImageID: "ubuntu",
				VCPU: 1, MemoryMB: 512,
				NICs: []types.NICSpec{{NetworkID: "net1"}},
			},
		},
		Tasks: []types.TaskSpec{
			{ID: "t1", GuestID: "victim", Kind: "add_user"},
			{ID: "t2", GuestID: "victim", Kind: "install_ssh_key", DependsOn: []string{"t1"}},
		},
	}
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	assert.NoError(t, Validate(validSpec()))
}

func TestValidateRejectsUnknownBaseImage(t *testing.T) {
	s := validSpec()
	s.Guests[0].BaseImageID = "does-not-exist"

	err := Validate(s)
	require.Error(t, err)
	ce, ok := err.(*types.CoreError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorValidation, ce.Kind)
	assert.Contains(t, ce.Error(), "unknown base_image_id")
}

func TestValidateRejectsUnknownNetworkOnNIC(t *testing.T) {
	s := validSpec()
	s.Guests[0].NICs[0].NetworkID = "missing-net"

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network_id")
}

func TestValidateRejectsDanglingTaskDependency(t *testing.T) {
	s := validSpec()
	s.Tasks[1].DependsOn = []string{"does-not-exist"}

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends_on references unknown task")
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	s := validSpec()
	s.Hosts = append(s.Hosts, s.Hosts[0])

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate host id")
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	s := validSpec()
	s.Networks[0].CIDR = "not-a-cidr"

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cidr")
}

func TestValidateRejectsPinnedHostThatDoesNotExist(t *testing.T) {
	s := validSpec()
	s.Guests[0].HostID = "ghost-host"

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinned host_id")
}

func TestValidateRejectsEmptyRange(t *testing.T) {
	err := Validate(types.RangeInputSpec{Name: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one host")
	assert.Contains(t, err.Error(), "at least one guest")
}

// TestValidateSurvivesYAMLRoundtrip guards the fixture shape used across
// this package's other tests: a spec written by hand as YAML, the form
// operators actually author these in, parses into the same struct JSON
// would and still validates cleanly.
func TestValidateSurvivesYAMLRoundtrip(t *testing.T) {
	original := validSpec()

	raw, err := yaml.Marshal(original)
	require.NoError(t, err)

	var roundtripped types.RangeInputSpec
	require.NoError(t, yaml.Unmarshal(raw, &roundtripped))

	assert.Equal(t, original, roundtripped)
	assert.NoError(t, Validate(roundtripped))
}

func TestValidateCollectsMultipleProblemsAtOnce(t *testing.T) {
	s := validSpec()
	s.Guests[0].BaseImageID = "missing"
	s.Networks[0].CIDR = "garbage"

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown base_image_id")
	assert.Contains(t, err.Error(), "invalid cidr")
}
