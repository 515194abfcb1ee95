// Package images implements the Image Distributor (C4): fingerprinting,
// deduplicated placement tracking, and bounded-concurrency fan-out of base
// images to hypervisor hosts.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/metrics"
	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

// Distributor fans a base image out to every host that needs it, skipping
// hosts the placement table already shows as current, and bounds
// concurrency both fleet-wide and per-host using golang.org/x/sync
// (errgroup + semaphore), the pattern this spec borrows from the one pack
// repo that depends on it.
type Distributor struct {
	placement     *PlacementTable
	executor      *transport.Pool
	remoteDir     string
	fleetSem      *semaphore.Weighted
	perHostSemMu  sync.Mutex
	perHostSem    map[string]*semaphore.Weighted
	perHostLimit  int64
}

// NewDistributor builds a Distributor writing placed images under
// remoteDir on each host, bounding total concurrent streams to
// fleetConcurrency and per-host streams to perHostConcurrency.
func NewDistributor(placement *PlacementTable, executor *transport.Pool, remoteDir string, fleetConcurrency, perHostConcurrency int64) *Distributor {
	return &Distributor{
		placement:    placement,
		executor:     executor,
		remoteDir:    remoteDir,
		fleetSem:     semaphore.NewWeighted(fleetConcurrency),
		perHostSem:   make(map[string]*semaphore.Weighted),
		perHostLimit: perHostConcurrency,
	}
}

func (d *Distributor) hostSem(hostID string) *semaphore.Weighted {
	d.perHostSemMu.Lock()
	defer d.perHostSemMu.Unlock()

	s, ok := d.perHostSem[hostID]
	if !ok {
		s = semaphore.NewWeighted(d.perHostLimit)
		d.perHostSem[hostID] = s
	}
	return s
}

// DistributeResult reports, per host, whether the image ended up placed.
type DistributeResult struct {
	HostID string
	Record types.ImageRecord
	Err    error
}

// Distribute fingerprints sourcePath once and places it on every host in
// hosts that doesn't already have a current copy, quarantining any host
// that fails twice.
func (d *Distributor) Distribute(ctx context.Context, sourcePath string, hosts []types.Host) ([]DistributeResult, error) {
	fingerprint, err := Fingerprint(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", sourcePath, err)
	}

	results := make([]DistributeResult, len(hosts))
	g, gctx := errgroup.WithContext(ctx)

	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			rec, err := d.placeOnHost(gctx, sourcePath, fingerprint, host)
			results[i] = DistributeResult{HostID: host.ID, Record: rec, Err: err}
			return nil // per-host failures don't cancel siblings
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (d *Distributor) placeOnHost(ctx context.Context, sourcePath, fingerprint string, host types.Host) (types.ImageRecord, error) {
	logger := log.WithHostID(host.ID)

	if existing, ok, err := d.placement.Get(fingerprint, host.ID); err == nil && ok {
		logger.Debug().Str("fingerprint", fingerprint).Msg("image already placed, skipping")
		return existing, nil
	}

	if err := d.fleetSem.Acquire(ctx, 1); err != nil {
		return types.ImageRecord{}, fmt.Errorf("acquire fleet slot: %w", err)
	}
	defer d.fleetSem.Release(1)

	hostSem := d.hostSem(host.ID)
	if err := hostSem.Acquire(ctx, 1); err != nil {
		return types.ImageRecord{}, fmt.Errorf("acquire host slot: %w", err)
	}
	defer hostSem.Release(1)

	timer := metrics.NewTimer()
	rec, err := d.transferWithRetry(ctx, sourcePath, fingerprint, host)
	timer.ObserveDuration(metrics.ImageTransferDuration)
	if err != nil {
		metrics.ImageTransferFailuresTotal.Inc()
		return types.ImageRecord{}, err
	}
	return rec, nil
}

// transferWithRetry uploads sourcePath to host, re-hashes the remote copy,
// and retries once from scratch if the hash mismatches.
func (d *Distributor) transferWithRetry(ctx context.Context, sourcePath, fingerprint string, host types.Host) (types.ImageRecord, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := d.transferOnce(ctx, sourcePath, fingerprint, host)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		log.WithHostID(host.ID).Warn().Err(err).Int("attempt", attempt).Msg("image transfer failed, retrying")
	}
	return types.ImageRecord{}, types.NewCoreError(types.ErrorIntegrity, "images", host.ID, "transfer failed after retry", lastErr)
}

func (d *Distributor) transferOnce(ctx context.Context, sourcePath, fingerprint string, host types.Host) (types.ImageRecord, error) {
	remotePath := filepath.Join(d.remoteDir, fingerprint+filepath.Ext(sourcePath))

	f, err := os.Open(sourcePath)
	if err != nil {
		return types.ImageRecord{}, fmt.Errorf("open source image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.ImageRecord{}, fmt.Errorf("stat source image: %w", err)
	}

	target := transport.Target{Host: host.Address, User: host.SSHUser}
	if err := d.executor.Put(ctx, target, remotePath, f, "0644", 30*time.Minute); err != nil {
		return types.ImageRecord{}, fmt.Errorf("put image to %s: %w", host.ID, err)
	}

	remoteHash, err := d.hashRemote(ctx, target, remotePath)
	if err != nil {
		return types.ImageRecord{}, err
	}
	if remoteHash != fingerprint {
		_, _ = d.executor.Run(ctx, target, fmt.Sprintf("rm -f %q", remotePath), nil, time.Minute)
		return types.ImageRecord{}, fmt.Errorf("hash mismatch after transfer: want %s got %s", fingerprint, remoteHash)
	}

	rec := types.ImageRecord{
		Fingerprint: fingerprint,
		HostID:      host.ID,
		Path:        remotePath,
		SizeBytes:   info.Size(),
		PlacedAt:    time.Now(),
	}
	if err := d.placement.Put(rec); err != nil {
		return types.ImageRecord{}, fmt.Errorf("record placement: %w", err)
	}
	if all, err := d.placement.List(); err == nil {
		metrics.ImagesPlacedTotal.Set(float64(len(all)))
	}
	return rec, nil
}

func (d *Distributor) hashRemote(ctx context.Context, target transport.Target, remotePath string) (string, error) {
	result, err := d.executor.Run(ctx, target, fmt.Sprintf("sha256sum %q | cut -d' ' -f1", remotePath), nil, 5*time.Minute)
	if err != nil {
		return "", fmt.Errorf("hash remote copy: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("sha256sum exited %d: %s", result.ExitCode, result.Output)
	}
	return trimNewline(result.Output), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
