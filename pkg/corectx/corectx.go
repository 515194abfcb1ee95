// Package corectx holds the process-wide configuration and shared
// subsystem handles every other package is threaded explicitly rather than
// reaching for globals.
package corectx

import (
	"time"

	"github.com/cuemby/cyris/pkg/hypervisor"
	"github.com/cuemby/cyris/pkg/images"
	"github.com/cuemby/cyris/pkg/registry"
	"github.com/cuemby/cyris/pkg/transport"
)

// Timeouts bundles the per-kind step timeouts the orchestrator enforces via
// context.WithTimeout at its step dispatch boundary.
type Timeouts struct {
	CloneGuest     time.Duration
	WaitBoot       time.Duration
	RunTask        time.Duration
	ImageTransfer  time.Duration
	DeployOverall  time.Duration
}

// DefaultTimeouts returns the timeouts used when a CoreContext is
// constructed without overrides.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		CloneGuest:    120 * time.Second,
		WaitBoot:      300 * time.Second,
		RunTask:       180 * time.Second,
		ImageTransfer: 1800 * time.Second,
		DeployOverall: 2 * time.Hour,
	}
}

// CoreContext is constructed once at process startup and passed explicitly
// into pkg/core's operations; it carries no request-scoped state.
type CoreContext struct {
	DataDir      string
	Timeouts     Timeouts
	GuestSSHUser string // default login used to reach a guest for task dispatch
	Drivers      map[string]hypervisor.Driver // provider name -> driver
	Executor     *transport.Pool
	Store        *registry.Store
	Distributor  *images.Distributor
}

// New wires a CoreContext from already-constructed subsystems.
func New(dataDir string, timeouts Timeouts, drivers map[string]hypervisor.Driver, executor *transport.Pool, store *registry.Store, distributor *images.Distributor) *CoreContext {
	return &CoreContext{
		DataDir:      dataDir,
		Timeouts:     timeouts,
		GuestSSHUser: "cyris",
		Drivers:      drivers,
		Executor:     executor,
		Store:        store,
		Distributor:  distributor,
	}
}

// DriverFor resolves the hypervisor driver registered for a host's provider.
func (c *CoreContext) DriverFor(provider string) (hypervisor.Driver, bool) {
	d, ok := c.Drivers[provider]
	return d, ok
}
