package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/cyris/pkg/hypervisor"
	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/metrics"
	"github.com/cuemby/cyris/pkg/types"
)

// Destroy tears down rangeID: mark Destroying, per-guest graceful
// shutdown/force-off/destroy, per-range-created network teardown, overlay
// removal, mark Destroyed.
func (o *Orchestrator) Destroy(ctx context.Context, rangeID string) error {
	logger := log.WithRangeID(rangeID)
	timer := metrics.NewTimer()
	outcome := "succeeded"
	defer func() { timer.ObserveDurationVec(metrics.DestroyDuration, outcome) }()

	r, err := o.cctx.Store.GetRange(rangeID)
	if err != nil {
		return err
	}
	r.State = types.RangeStateDestroying
	r.UpdatedAt = time.Now()
	if err := o.cctx.Store.PutRange(r); err != nil {
		return err
	}

	guests, err := o.cctx.Store.ListGuests(rangeID)
	if err != nil {
		outcome = "failed"
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, guest := range guests {
		guest := guest
		g.Go(func() error {
			if err := o.destroyGuest(gctx, guest); err != nil {
				logger.Warn().Str("guest_id", guest.ID).Err(err).Msg("guest teardown failed, continuing")
			}
			return nil
		})
	}
	_ = g.Wait()

	networks, err := o.cctx.Store.ListNetworks(rangeID)
	if err == nil {
		for _, n := range networks {
			o.destroyNetwork(ctx, logger, n)
		}
	}

	r, err = o.cctx.Store.GetRange(rangeID)
	if err != nil {
		outcome = "failed"
		return err
	}
	r.State = types.RangeStateDestroyed
	r.UpdatedAt = time.Now()
	return o.cctx.Store.PutRange(r)
}

// destroyNetwork tears down every per-host handle EnsureNetwork accumulated
// for n, logging and continuing past individual host failures rather than
// aborting the rest of the range's teardown.
func (o *Orchestrator) destroyNetwork(ctx context.Context, logger zerolog.Logger, n types.Network) {
	for hostID, handleID := range n.Handles {
		host, err := o.cctx.Store.GetHost(hostID)
		if err != nil {
			logger.Warn().Str("network_id", n.ID).Str("host_id", hostID).Err(err).Msg("network teardown: host not found")
			continue
		}
		driver, ok := o.cctx.DriverFor(host.Provider)
		if !ok {
			logger.Warn().Str("network_id", n.ID).Str("host_id", hostID).Msg("network teardown: no driver for provider")
			continue
		}
		if err := driver.DestroyNetwork(ctx, hypervisor.NetworkHandle{ID: handleID}); err != nil {
			logger.Warn().Str("network_id", n.ID).Str("host_id", hostID).Err(err).Msg("network teardown failed, continuing")
		}
	}
}

func (o *Orchestrator) destroyGuest(ctx context.Context, guest types.Guest) error {
	if guest.State == types.GuestStateDestroyed || guest.State == types.GuestStateFailedPreCreate {
		return nil
	}

	guest.State = types.GuestStateDestroying
	_ = o.cctx.Store.PutGuest(guest)

	host, err := o.cctx.Store.GetHost(guest.HostID)
	if err != nil {
		return err
	}
	driver, ok := o.cctx.DriverFor(host.Provider)
	if !ok {
		return fmt.Errorf("no driver for provider %q", host.Provider)
	}

	handle := hypervisor.DomainHandle{ID: guest.OverlayPath}
	if guest.OverlayPath != "" {
		if err := driver.Shutdown(ctx, handle, 30*time.Second); err != nil {
			_ = driver.ForceOff(ctx, handle)
		}
		if err := driver.Destroy(ctx, handle); err != nil {
			return fmt.Errorf("destroy guest %s: %w", guest.ID, err)
		}
	}

	guest.State = types.GuestStateDestroyed
	return o.cctx.Store.PutGuest(guest)
}
