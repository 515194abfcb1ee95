package types

// RangeInputSpec is the validated, fully-resolved description of a range to
// build. It is the boundary object pkg/spec produces and pkg/planner
// consumes; nothing upstream of Validate() may be trusted.
type RangeInputSpec struct {
	Name       string           `json:"name" yaml:"name"`
	Hosts      []HostSpec       `json:"hosts" yaml:"hosts"`
	Networks   []NetworkSpec    `json:"networks" yaml:"networks"`
	BaseImages []BaseImageSpec  `json:"base_images" yaml:"base_images"`
	Guests     []GuestSpec      `json:"guests" yaml:"guests"`
	Tasks      []TaskSpec       `json:"tasks" yaml:"tasks"`
}

// HostSpec describes one hypervisor host available to the range.
type HostSpec struct {
	ID       string `json:"id" yaml:"id"`
	Address  string `json:"address" yaml:"address"`
	Provider string `json:"provider" yaml:"provider"` // "kvm" or "cloudx"
	SSHUser  string `json:"ssh_user" yaml:"ssh_user"`
	Capacity int    `json:"capacity" yaml:"capacity"`
}

// NetworkSpec describes one virtual network to create before any attached
// guest is cloned.
type NetworkSpec struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	CIDR string `json:"cidr" yaml:"cidr"`
}

// BaseImageSpec names a source image to be fingerprinted and distributed.
type BaseImageSpec struct {
	ID         string `json:"id" yaml:"id"`
	SourcePath string `json:"source_path" yaml:"source_path"`
}

// NICSpec attaches a guest to one declared network.
type NICSpec struct {
	NetworkID string `json:"network_id" yaml:"network_id"`
	IP        string `json:"ip,omitempty" yaml:"ip,omitempty"`
}

// GuestSpec describes one VM to provision.
type GuestSpec struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	BaseImageID string    `json:"base_image_id" yaml:"base_image_id"`
	HostID      string    `json:"host_id,omitempty" yaml:"host_id,omitempty"` // pinned host, optional
	VCPU        int       `json:"vcpu" yaml:"vcpu"`
	MemoryMB    int       `json:"memory_mb" yaml:"memory_mb"`
	DiskGB      int       `json:"disk_gb" yaml:"disk_gb"`
	NICs        []NICSpec `json:"nics" yaml:"nics"`
}

// TaskSpec describes one post-boot task to apply to a guest.
type TaskSpec struct {
	ID              string            `json:"id" yaml:"id"`
	GuestID         string            `json:"guest_id" yaml:"guest_id"`
	Kind            string            `json:"kind" yaml:"kind"`
	Params          map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn       []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	CriticalToRange bool              `json:"critical_to_range,omitempty" yaml:"critical_to_range,omitempty"`
}
