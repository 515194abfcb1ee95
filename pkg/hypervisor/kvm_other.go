// +build !darwin

package hypervisor

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// LocalKVMDriver is unavailable on this platform: Lima's QEMU/vz backend is
// only wired for darwin hosts (see kvm_darwin.go), matching the scope of
// the embedded VM manager it is adapted from.
type LocalKVMDriver struct{}

var _ Driver = (*LocalKVMDriver)(nil)

// NewLocalKVMDriver always fails on non-darwin platforms.
func NewLocalKVMDriver(dataDir string) (*LocalKVMDriver, error) {
	return nil, fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) EnsureNetwork(ctx context.Context, spec NetworkSpec) (NetworkHandle, error) {
	return NetworkHandle{}, fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) DestroyNetwork(ctx context.Context, handle NetworkHandle) error {
	return fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) CloneGuest(ctx context.Context, spec DomainSpec) (DomainHandle, error) {
	return DomainHandle{}, fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) Start(ctx context.Context, handle DomainHandle) error {
	return fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) Shutdown(ctx context.Context, handle DomainHandle, timeout time.Duration) error {
	return fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) ForceOff(ctx context.Context, handle DomainHandle) error {
	return fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) Destroy(ctx context.Context, handle DomainHandle) error {
	return fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) Observe(ctx context.Context, handle DomainHandle) (Observation, error) {
	return Observation{State: PowerStateUnknown}, fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}

func (d *LocalKVMDriver) ListDomains(ctx context.Context, labelKey, labelValue string) ([]DomainHandle, error) {
	return nil, fmt.Errorf("local kvm driver unsupported on %s", runtime.GOOS)
}
