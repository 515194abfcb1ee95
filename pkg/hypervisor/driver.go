// Package hypervisor defines the Driver interface every hypervisor backend
// implements and the drivers themselves (local KVM via Lima, a generic
// cloud REST backend).
package hypervisor

import (
	"context"
	"time"
)

// DomainSpec describes the shape of a guest VM to clone.
type DomainSpec struct {
	Name      string
	VCPU      int
	MemoryMB  int
	DiskGB    int
	ImagePath string // local overlay path (kvm) or image reference (cloud)
	Labels    map[string]string
	NICs      []NICAttachment
}

// NICAttachment binds a guest interface to a previously-ensured network.
type NICAttachment struct {
	NetworkName string
	StaticIP    string
}

// NetworkSpec describes a virtual network to ensure exists before any guest
// attached to it is cloned.
type NetworkSpec struct {
	Name string
	CIDR string
}

// PowerState is the observed run state of a domain.
type PowerState string

const (
	PowerStateRunning PowerState = "running"
	PowerStateStopped PowerState = "stopped"
	PowerStateUnknown PowerState = "unknown"
)

// Observation is the result of polling a domain's state.
type Observation struct {
	State    PowerState
	LeasedIP string
}

// DomainHandle identifies a cloned guest on its host.
type DomainHandle struct {
	ID string // driver-specific instance identifier
}

// NetworkHandle identifies an ensured network on its host.
type NetworkHandle struct {
	ID string
}

// Driver is the capability set every hypervisor backend must implement, per
// the component design's C1 responsibilities. All methods are synchronous:
// they return only after the operation is acknowledged by the backend.
type Driver interface {
	// EnsureNetwork creates the network if absent, or returns its existing
	// handle. Idempotent.
	EnsureNetwork(ctx context.Context, spec NetworkSpec) (NetworkHandle, error)

	// DestroyNetwork removes a network previously returned by EnsureNetwork.
	// Called once per (network, host) pair during range teardown.
	DestroyNetwork(ctx context.Context, handle NetworkHandle) error

	// CloneGuest materializes a new domain from spec. Returns a handle once
	// the backend has accepted the clone; it does not imply the guest has
	// booted.
	CloneGuest(ctx context.Context, spec DomainSpec) (DomainHandle, error)

	// Start powers on a cloned domain.
	Start(ctx context.Context, handle DomainHandle) error

	// Shutdown requests a graceful power-off.
	Shutdown(ctx context.Context, handle DomainHandle, timeout time.Duration) error

	// ForceOff powers off a domain immediately.
	ForceOff(ctx context.Context, handle DomainHandle) error

	// Destroy removes the domain and its backing storage.
	Destroy(ctx context.Context, handle DomainHandle) error

	// Observe polls the domain's current power state and leased address.
	Observe(ctx context.Context, handle DomainHandle) (Observation, error)

	// ListDomains enumerates domains on this host carrying the given label
	// key, used by reconciliation to find orphaned or phantom guests.
	ListDomains(ctx context.Context, labelKey, labelValue string) ([]DomainHandle, error)
}
