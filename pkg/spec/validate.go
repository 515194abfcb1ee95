// Package spec validates a raw RangeInputSpec before it is handed to
// pkg/planner. Validate is a pure function: no I/O, no mutation of its
// argument.
package spec

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/cuemby/cyris/pkg/types"
)

// Validate checks referential integrity and required fields across s,
// returning every problem found rather than stopping at the first one.
func Validate(s types.RangeInputSpec) error {
	var problems []string

	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(s.Hosts) == 0 {
		problems = append(problems, "at least one host is required")
	}
	if len(s.Guests) == 0 {
		problems = append(problems, "at least one guest is required")
	}

	hostIDs := idSet(len(s.Hosts))
	for _, h := range s.Hosts {
		if h.ID == "" {
			problems = append(problems, "host with empty id")
			continue
		}
		if hostIDs[h.ID] {
			problems = append(problems, fmt.Sprintf("duplicate host id %q", h.ID))
		}
		hostIDs[h.ID] = true

		if h.Address == "" {
			problems = append(problems, fmt.Sprintf("host %s: address is required", h.ID))
		}
		if h.Provider != "kvm" && h.Provider != "cloudx" {
			problems = append(problems, fmt.Sprintf("host %s: provider must be kvm or cloudx, got %q", h.ID, h.Provider))
		}
		if h.Capacity <= 0 {
			problems = append(problems, fmt.Sprintf("host %s: capacity must be positive", h.ID))
		}
	}

	networkIDs := idSet(len(s.Networks))
	for _, n := range s.Networks {
		if n.ID == "" {
			problems = append(problems, "network with empty id")
			continue
		}
		if networkIDs[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate network id %q", n.ID))
		}
		networkIDs[n.ID] = true

		if _, err := netip.ParsePrefix(n.CIDR); err != nil {
			problems = append(problems, fmt.Sprintf("network %s: invalid cidr %q: %v", n.ID, n.CIDR, err))
		}
	}

	baseImageIDs := idSet(len(s.BaseImages))
	for _, b := range s.BaseImages {
		if b.ID == "" {
			problems = append(problems, "base image with empty id")
			continue
		}
		if baseImageIDs[b.ID] {
			problems = append(problems, fmt.Sprintf("duplicate base image id %q", b.ID))
		}
		baseImageIDs[b.ID] = true

		if b.SourcePath == "" {
			problems = append(problems, fmt.Sprintf("base image %s: source_path is required", b.ID))
		}
	}

	guestIDs := idSet(len(s.Guests))
	for _, g := range s.Guests {
		if g.ID == "" {
			problems = append(problems, "guest with empty id")
			continue
		}
		if guestIDs[g.ID] {
			problems = append(problems, fmt.Sprintf("duplicate guest id %q", g.ID))
		}
		guestIDs[g.ID] = true

		if _, ok := baseImageIDs[g.BaseImageID]; !ok {
			problems = append(problems, fmt.Sprintf("guest %s: unknown base_image_id %q", g.ID, g.BaseImageID))
		}
		if g.HostID != "" {
			if _, ok := hostIDs[g.HostID]; !ok {
				problems = append(problems, fmt.Sprintf("guest %s: pinned host_id %q does not exist", g.ID, g.HostID))
			}
		}
		if g.VCPU <= 0 {
			problems = append(problems, fmt.Sprintf("guest %s: vcpu must be positive", g.ID))
		}
		if g.MemoryMB <= 0 {
			problems = append(problems, fmt.Sprintf("guest %s: memory_mb must be positive", g.ID))
		}
		for _, nic := range g.NICs {
			if _, ok := networkIDs[nic.NetworkID]; !ok {
				problems = append(problems, fmt.Sprintf("guest %s: nic references unknown network_id %q", g.ID, nic.NetworkID))
			}
		}
	}

	taskIDs := idSet(len(s.Tasks))
	for _, t := range s.Tasks {
		if t.ID == "" {
			problems = append(problems, "task with empty id")
			continue
		}
		if taskIDs[t.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id %q", t.ID))
		}
		taskIDs[t.ID] = true

		if _, ok := guestIDs[t.GuestID]; !ok {
			problems = append(problems, fmt.Sprintf("task %s: references unknown guest_id %q", t.ID, t.GuestID))
		}
		if !knownTaskKinds[t.Kind] {
			problems = append(problems, fmt.Sprintf("task %s: unknown kind %q", t.ID, t.Kind))
		}
	}
	for _, t := range s.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := taskIDs[dep]; !ok {
				problems = append(problems, fmt.Sprintf("task %s: depends_on references unknown task %q", t.ID, dep))
			}
		}
	}

	if len(problems) > 0 {
		return types.NewCoreError(types.ErrorValidation, "spec", s.Name, strings.Join(problems, "; "), nil)
	}
	return nil
}

var knownTaskKinds = map[string]bool{
	"add_user": true, "modify_user": true, "install_ssh_key": true, "set_hostname": true,
	"firewall_rules": true, "copy_content": true, "run_program": true, "emulate_attack": true,
	"prepare_traffic_log": true,
}

func idSet(hint int) map[string]bool { return make(map[string]bool, hint) }
