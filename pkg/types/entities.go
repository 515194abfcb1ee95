// Package types defines the core data model shared across the orchestrator:
// ranges, hosts, guests, networks, tasks, plans and image records.
package types

import "time"

// RangeState tracks the lifecycle of a Range. Transitions are monotonic and
// enforced by pkg/orchestrator; nothing outside that package may move a
// Range backward in this list.
type RangeState string

const (
	RangeStatePending    RangeState = "pending"
	RangeStatePlanning   RangeState = "planning"
	RangeStateDeploying  RangeState = "deploying"
	RangeStateActive     RangeState = "active"
	RangeStateDestroying RangeState = "destroying"
	RangeStateDestroyed  RangeState = "destroyed"
	RangeStateFailed     RangeState = "failed"
)

// GuestState tracks the lifecycle of a single Guest VM.
type GuestState string

const (
	GuestStatePending         GuestState = "pending"
	GuestStateImaging         GuestState = "imaging"
	GuestStateCloning         GuestState = "cloning"
	GuestStateBooting         GuestState = "booting"
	GuestStateRunning         GuestState = "running"
	GuestStateFailedPreCreate GuestState = "failed-pre-create"
	GuestStateFailedCreate    GuestState = "failed-create"
	GuestStateFailedBoot      GuestState = "failed-boot"
	GuestStateFailedTask      GuestState = "failed-task"
	GuestStateFailed          GuestState = "failed"
	GuestStateDestroying      GuestState = "destroying"
	GuestStateDestroyed       GuestState = "destroyed"
)

// HostStatus reflects reachability of a hypervisor host, maintained by
// reconciliation.
type HostStatus string

const (
	HostStatusHealthy     HostStatus = "healthy"
	HostStatusUnreachable HostStatus = "unreachable"
	HostStatusQuarantined HostStatus = "quarantined"
)

// TaskState tracks a post-boot task's execution.
type TaskState string

const (
	TaskStatePending               TaskState = "pending"
	TaskStateRunning               TaskState = "running"
	TaskStateSucceeded             TaskState = "succeeded"
	TaskStateFailed                TaskState = "failed"
	TaskStateSkipped               TaskState = "skipped"
	TaskStateSkippedUpstreamFailed TaskState = "skipped-upstream-failed"
)

// Range is a single deployed cyber range: a collection of Hosts, Networks,
// Guests and Tasks materialized from a validated RangeInputSpec.
type Range struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     RangeState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PlanID    string     `json:"plan_id,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// Host is a hypervisor host capable of running Guests, addressed over
// pkg/transport for post-boot task execution.
type Host struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Provider   string     `json:"provider"` // "kvm" or "cloudx"
	SSHUser    string     `json:"ssh_user"`
	Status     HostStatus `json:"status"`
	Capacity   int        `json:"capacity"` // max concurrent guest clones
	InUse      int        `json:"in_use"`
}

// Network is a virtual network spanning one or more Hosts, created before
// any Guest attached to it is cloned.
type Network struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CIDR    string `json:"cidr"`
	RangeID string `json:"range_id"`
	// Handles maps host ID to the driver-assigned NetworkHandle.ID returned
	// by that host's EnsureNetwork call, so destroy can tear down exactly
	// the handles that were actually created.
	Handles map[string]string `json:"handles,omitempty"`
}

// NIC describes one guest network interface attachment.
type NIC struct {
	NetworkID string `json:"network_id"`
	IP        string `json:"ip,omitempty"`
}

// Guest is a single VM instantiated from a base image onto a Host, within a
// Range.
type Guest struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RangeID   string     `json:"range_id"`
	HostID    string     `json:"host_id"`
	BaseImage string     `json:"base_image"`
	VCPU      int        `json:"vcpu"`
	MemoryMB  int        `json:"memory_mb"`
	DiskGB    int        `json:"disk_gb"`
	NICs      []NIC      `json:"nics"`
	State     GuestState `json:"state"`
	LeasedIP  string     `json:"leased_ip,omitempty"`
	// OverlayPath holds the hypervisor driver's DomainHandle.ID for this
	// guest (a Lima instance name for local KVM, a provider instance id
	// for cloud) -- named for the common case, not literal for every driver.
	OverlayPath string `json:"overlay_path,omitempty"`
}

// Task is a post-boot operation applied to a Guest.
type Task struct {
	ID              string            `json:"id"`
	GuestID         string            `json:"guest_id"`
	RangeID         string            `json:"range_id"`
	Kind            string            `json:"kind"`
	Params          map[string]string `json:"params"`
	DependsOn       []string          `json:"depends_on,omitempty"`
	CriticalToRange bool              `json:"critical_to_range,omitempty"`
	State           TaskState         `json:"state"`
	Output          string            `json:"output,omitempty"`
	Artifacts       []string          `json:"artifacts,omitempty"`
	Duration        time.Duration     `json:"duration,omitempty"`
}

// StepKind enumerates the node kinds a Plan's DAG is built from.
type StepKind string

const (
	StepCreateNetwork StepKind = "create_network"
	StepPlaceImage    StepKind = "place_image"
	StepCloneGuest    StepKind = "clone_guest"
	StepWaitBoot      StepKind = "wait_boot"
	StepRunTask       StepKind = "run_task"
	StepFinalizeRange StepKind = "finalize_range"
)

// Step is a single node in a Plan's dependency DAG.
type Step struct {
	ID        string   `json:"id"`
	Kind      StepKind `json:"kind"`
	RefID     string   `json:"ref_id"` // network/guest/task id this step acts on
	DependsOn []string `json:"depends_on,omitempty"`
}

// Plan is the ordered DAG of Steps the Planner emits for a Range, persisted
// immutably once emitted.
type Plan struct {
	ID      string `json:"id"`
	RangeID string `json:"range_id"`
	Steps   []Step `json:"steps"`
}

// ImageRecord tracks one placed copy of a base image's content on a Host.
type ImageRecord struct {
	Fingerprint string    `json:"fingerprint"`
	HostID      string    `json:"host_id"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	PlacedAt    time.Time `json:"placed_at"`
}
