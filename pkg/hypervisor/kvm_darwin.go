// +build darwin

package hypervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"

	"github.com/cuemby/cyris/pkg/log"
)

// LocalKVMDriver drives one Lima (QEMU-backed) instance per guest on the
// machine the orchestrator process itself runs on. Adapted from a
// single-shared-VM manager into a per-guest VM lifecycle driver: CloneGuest
// creates a qemu-img COW overlay against the requested base image and
// points a generated Lima instance at that overlay instead of Lima's own
// image-download flow.
type LocalKVMDriver struct {
	dataDir string
	logger  zerolog.Logger

	mu        sync.Mutex
	instances map[string]string // guest id -> lima instance name
}

var _ Driver = (*LocalKVMDriver)(nil)

// NewLocalKVMDriver constructs a driver rooted at dataDir, where overlay
// images and per-guest instance state live.
func NewLocalKVMDriver(dataDir string) (*LocalKVMDriver, error) {
	if !limaInstalled() {
		return nil, fmt.Errorf("lima is not installed: install with `brew install lima`")
	}
	return &LocalKVMDriver{
		dataDir:   dataDir,
		logger:    log.WithComponent("hypervisor.kvm"),
		instances: make(map[string]string),
	}, nil
}

func limaInstalled() bool {
	_, err := exec.LookPath("limactl")
	return err == nil
}

func instanceName(guestName string) string {
	return "cyris-" + guestName
}

// labelsPath returns the sidecar file a domain's labels are stashed in:
// Lima's own config has no field for arbitrary caller metadata, so
// ListDomains's label matching reads this instead.
func (d *LocalKVMDriver) labelsPath(name string) string {
	return filepath.Join(d.dataDir, "labels", name+".json")
}

func (d *LocalKVMDriver) writeLabels(name string, labels map[string]string) error {
	path := d.labelsPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create labels dir: %w", err)
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func (d *LocalKVMDriver) readLabels(name string) map[string]string {
	raw, err := os.ReadFile(d.labelsPath(name))
	if err != nil {
		return nil
	}
	var labels map[string]string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil
	}
	return labels
}

// EnsureNetwork is a no-op for the local KVM driver: Lima's user-mode
// networking is shared across instances by name, and the bridge is
// configured once per instance at clone time via NICAttachment.
func (d *LocalKVMDriver) EnsureNetwork(ctx context.Context, spec NetworkSpec) (NetworkHandle, error) {
	return NetworkHandle{ID: spec.Name}, nil
}

// DestroyNetwork is a no-op for the local KVM driver: Lima's user-mode
// network is a named, shared resource with no per-guest allocation to
// release, matching EnsureNetwork's own no-op creation.
func (d *LocalKVMDriver) DestroyNetwork(ctx context.Context, handle NetworkHandle) error {
	return nil
}

func (d *LocalKVMDriver) overlayPath(spec DomainSpec) string {
	return filepath.Join(d.dataDir, "overlays", spec.Name+".qcow2")
}

func (d *LocalKVMDriver) createOverlay(ctx context.Context, spec DomainSpec) (string, error) {
	overlay := d.overlayPath(spec)
	if err := os.MkdirAll(filepath.Dir(overlay), 0o755); err != nil {
		return "", fmt.Errorf("create overlay dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "qemu-img", "create", "-f", "qcow2",
		"-b", spec.ImagePath, "-F", "qcow2", overlay, fmt.Sprintf("%dG", spec.DiskGB))
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("qemu-img create overlay: %w: %s", err, out)
	}
	return overlay, nil
}

func (d *LocalKVMDriver) buildConfig(spec DomainSpec, overlay string) limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}

	cpus := spec.VCPU
	memory := fmt.Sprintf("%dGiB", spec.MemoryMB/1024)
	disk := fmt.Sprintf("%dGiB", spec.DiskGB)

	networks := make([]limayaml.Network, 0, len(spec.NICs))
	for _, nic := range spec.NICs {
		networks = append(networks, limayaml.Network{Lima: nic.NetworkName})
	}

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
		Images: []limayaml.Image{
			{File: limayaml.File{Location: overlay, Arch: arch}},
		},
		Networks: networks,
		Message:  fmt.Sprintf("cyris guest %s ready", spec.Name),
	}
}

// CloneGuest creates a COW overlay against spec.ImagePath and registers a
// Lima instance backed by it, without starting it.
func (d *LocalKVMDriver) CloneGuest(ctx context.Context, spec DomainSpec) (DomainHandle, error) {
	name := instanceName(spec.Name)

	overlay, err := d.createOverlay(ctx, spec)
	if err != nil {
		return DomainHandle{}, err
	}

	cfg := d.buildConfig(spec, overlay)
	cfgYAML, err := limayaml.Marshal(&cfg, false)
	if err != nil {
		return DomainHandle{}, fmt.Errorf("marshal lima config: %w", err)
	}

	if _, err := instance.Create(ctx, name, cfgYAML, false); err != nil {
		return DomainHandle{}, fmt.Errorf("create lima instance: %w", err)
	}

	if err := d.writeLabels(name, spec.Labels); err != nil {
		return DomainHandle{}, fmt.Errorf("write labels for %s: %w", name, err)
	}

	d.mu.Lock()
	d.instances[spec.Name] = name
	d.mu.Unlock()

	return DomainHandle{ID: name}, nil
}

func (d *LocalKVMDriver) Start(ctx context.Context, handle DomainHandle) error {
	inst, err := store.Inspect(handle.ID)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", handle.ID, err)
	}
	if inst.Status == store.StatusRunning {
		return nil
	}
	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("start %s: %w", handle.ID, err)
	}
	return nil
}

func (d *LocalKVMDriver) Shutdown(ctx context.Context, handle DomainHandle, timeout time.Duration) error {
	inst, err := store.Inspect(handle.ID)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", handle.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := instance.StopGracefully(ctx, inst, false); err != nil {
		d.logger.Warn().Str("instance", handle.ID).Err(err).Msg("graceful stop failed")
		return err
	}
	return nil
}

func (d *LocalKVMDriver) ForceOff(ctx context.Context, handle DomainHandle) error {
	inst, err := store.Inspect(handle.ID)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", handle.ID, err)
	}
	instance.StopForcibly(inst)
	return nil
}

func (d *LocalKVMDriver) Destroy(ctx context.Context, handle DomainHandle) error {
	inst, err := store.Inspect(handle.ID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("inspect %s: %w", handle.ID, err)
	}
	instance.StopForcibly(inst)
	if err := os.RemoveAll(inst.Dir); err != nil {
		return fmt.Errorf("remove instance dir %s: %w", inst.Dir, err)
	}
	_ = os.Remove(d.labelsPath(handle.ID))
	return nil
}

func (d *LocalKVMDriver) Observe(ctx context.Context, handle DomainHandle) (Observation, error) {
	inst, err := store.Inspect(handle.ID)
	if err != nil {
		return Observation{State: PowerStateUnknown}, fmt.Errorf("inspect %s: %w", handle.ID, err)
	}

	state := PowerStateStopped
	if inst.Status == store.StatusRunning {
		state = PowerStateRunning
	}

	leasedIP := ""
	if len(inst.IPAddresses) > 0 {
		leasedIP = inst.IPAddresses[0].String()
	}

	return Observation{State: state, LeasedIP: leasedIP}, nil
}

func (d *LocalKVMDriver) ListDomains(ctx context.Context, labelKey, labelValue string) ([]DomainHandle, error) {
	names, err := store.Instances()
	if err != nil {
		return nil, fmt.Errorf("list lima instances: %w", err)
	}

	var out []DomainHandle
	for _, name := range names {
		if len(name) < 6 || name[:6] != "cyris-" {
			continue
		}
		if labels := d.readLabels(name); labels[labelKey] == labelValue {
			out = append(out, DomainHandle{ID: name})
		}
	}
	return out, nil
}
