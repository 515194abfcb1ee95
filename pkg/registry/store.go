// Package registry implements the Persistence / Range Registry (C5): a
// JSON snapshot plus append-only journal, durable before any write is
// acknowledged upward, with per-range plan and overlay inventory files.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/cyris/pkg/types"
)

// Store is the CRUD surface every upstream package uses to read and write
// range state, backed by a JSON snapshot plus an append-only journal
// rather than a bucket-per-entity embedded database.
type Store struct {
	dataDir string

	mu   sync.RWMutex
	data snapshotData
	jrnl *journal
}

// Open loads dataDir/registry.json (if present), replays
// dataDir/journal.log written since that snapshot, and returns a Store
// ready for reads and writes. Crash recovery never under-reports live
// resources: anything journaled but not yet compacted is reconstructed
// here before Open returns.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	snapshotPath := filepath.Join(dataDir, "registry.json")
	journalPath := filepath.Join(dataDir, "journal.log")

	data, err := loadSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}

	err = replayJournal(journalPath, func(op journalOp, payload json.RawMessage) error {
		return applyJournalEntry(&data, op, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jrnl, err := openJournal(journalPath)
	if err != nil {
		return nil, err
	}

	return &Store{dataDir: dataDir, data: data, jrnl: jrnl}, nil
}

func applyJournalEntry(data *snapshotData, op journalOp, payload json.RawMessage) error {
	switch op {
	case opPutRange:
		var r types.Range
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		data.Ranges[r.ID] = &r
	case opPutHost:
		var h types.Host
		if err := json.Unmarshal(payload, &h); err != nil {
			return err
		}
		data.Hosts[h.ID] = &h
	case opPutGuest:
		var g types.Guest
		if err := json.Unmarshal(payload, &g); err != nil {
			return err
		}
		data.Guests[g.ID] = &g
	case opPutNetwork:
		var n types.Network
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		data.Networks[n.ID] = &n
	case opPutTask:
		var t types.Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return err
		}
		data.Tasks[t.ID] = &t
	default:
		return fmt.Errorf("unknown journal op %q", op)
	}
	return nil
}

func clone[T any](v T) T { return v }

// PutRange creates or updates a Range, journaling before acknowledging.
func (s *Store) PutRange(r types.Range) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jrnl.append(opPutRange, r); err != nil {
		return fmt.Errorf("journal range %s: %w", r.ID, err)
	}
	cp := r
	s.data.Ranges[r.ID] = &cp
	return nil
}

// GetRange returns the Range with id, or an ErrorResource CoreError if
// absent.
func (s *Store) GetRange(id string) (types.Range, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data.Ranges[id]
	if !ok {
		return types.Range{}, types.NewCoreError(types.ErrorResource, "registry", id, "range not found", nil)
	}
	return clone(*r), nil
}

// ListRanges returns every known Range.
func (s *Store) ListRanges() ([]types.Range, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Range, 0, len(s.data.Ranges))
	for _, r := range s.data.Ranges {
		out = append(out, clone(*r))
	}
	return out, nil
}

// PutHost creates or updates a Host.
func (s *Store) PutHost(h types.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jrnl.append(opPutHost, h); err != nil {
		return fmt.Errorf("journal host %s: %w", h.ID, err)
	}
	cp := h
	s.data.Hosts[h.ID] = &cp
	return nil
}

// GetHost returns the Host with id.
func (s *Store) GetHost(id string) (types.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data.Hosts[id]
	if !ok {
		return types.Host{}, types.NewCoreError(types.ErrorResource, "registry", id, "host not found", nil)
	}
	return clone(*h), nil
}

// ListHosts returns every known Host.
func (s *Store) ListHosts() ([]types.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Host, 0, len(s.data.Hosts))
	for _, h := range s.data.Hosts {
		out = append(out, clone(*h))
	}
	return out, nil
}

// PutGuest creates or updates a Guest.
func (s *Store) PutGuest(g types.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jrnl.append(opPutGuest, g); err != nil {
		return fmt.Errorf("journal guest %s: %w", g.ID, err)
	}
	cp := g
	s.data.Guests[g.ID] = &cp
	return nil
}

// GetGuest returns the Guest with id.
func (s *Store) GetGuest(id string) (types.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.data.Guests[id]
	if !ok {
		return types.Guest{}, types.NewCoreError(types.ErrorResource, "registry", id, "guest not found", nil)
	}
	return clone(*g), nil
}

// ListGuests returns guests belonging to rangeID, or every guest if
// rangeID is empty.
func (s *Store) ListGuests(rangeID string) ([]types.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Guest, 0)
	for _, g := range s.data.Guests {
		if rangeID == "" || g.RangeID == rangeID {
			out = append(out, clone(*g))
		}
	}
	return out, nil
}

// ListGuestsByHost returns every guest the registry believes lives on
// hostID, used by reconciliation to cross-check against the hypervisor's
// own ListDomains report.
func (s *Store) ListGuestsByHost(hostID string) ([]types.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Guest, 0)
	for _, g := range s.data.Guests {
		if g.HostID == hostID {
			out = append(out, clone(*g))
		}
	}
	return out, nil
}

// PutNetwork creates or updates a Network.
func (s *Store) PutNetwork(n types.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jrnl.append(opPutNetwork, n); err != nil {
		return fmt.Errorf("journal network %s: %w", n.ID, err)
	}
	cp := n
	s.data.Networks[n.ID] = &cp
	return nil
}

// GetNetwork returns the Network with id.
func (s *Store) GetNetwork(id string) (types.Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data.Networks[id]
	if !ok {
		return types.Network{}, types.NewCoreError(types.ErrorResource, "registry", id, "network not found", nil)
	}
	return clone(*n), nil
}

// ListNetworks returns networks belonging to rangeID, or all if empty.
func (s *Store) ListNetworks(rangeID string) ([]types.Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Network, 0)
	for _, n := range s.data.Networks {
		if rangeID == "" || n.RangeID == rangeID {
			out = append(out, clone(*n))
		}
	}
	return out, nil
}

// PutTask creates or updates a Task.
func (s *Store) PutTask(t types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jrnl.append(opPutTask, t); err != nil {
		return fmt.Errorf("journal task %s: %w", t.ID, err)
	}
	cp := t
	s.data.Tasks[t.ID] = &cp
	return nil
}

// GetTask returns the Task with id.
func (s *Store) GetTask(id string) (types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data.Tasks[id]
	if !ok {
		return types.Task{}, types.NewCoreError(types.ErrorResource, "registry", id, "task not found", nil)
	}
	return clone(*t), nil
}

// ListTasks returns tasks belonging to guestID, or all tasks if guestID is
// empty.
func (s *Store) ListTasks(guestID string) ([]types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Task, 0)
	for _, t := range s.data.Tasks {
		if guestID == "" || t.GuestID == guestID {
			out = append(out, clone(*t))
		}
	}
	return out, nil
}

// SavePlan writes plan.json under ranges/<id>/, immutable once written:
// callers must not call SavePlan twice for the same range.
func (s *Store) SavePlan(plan types.Plan) error {
	dir, err := rangeDir(s.dataDir, plan.RangeID)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "plan.json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("plan.json already exists for range %s", plan.RangeID)
	}

	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write plan.json: %w", err)
	}
	return nil
}

// GetPlan reads a range's plan.json.
func (s *Store) GetPlan(rangeID string) (types.Plan, error) {
	path := filepath.Join(s.dataDir, "ranges", rangeID, "plan.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Plan{}, fmt.Errorf("read plan.json for range %s: %w", rangeID, err)
	}

	var plan types.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return types.Plan{}, fmt.Errorf("parse plan.json for range %s: %w", rangeID, err)
	}
	return plan, nil
}

// overlayInventory is ranges/<id>/overlays/inventory.json: the list of live
// overlay paths a range's guests hold, consulted by destroy and by crash
// recovery to find storage to reclaim even if the in-memory Guest records
// are stale.
type overlayInventory struct {
	Paths []string `json:"paths"`
}

// RecordOverlay appends path to rangeID's overlay inventory.
func (s *Store) RecordOverlay(rangeID, path string) error {
	dir, err := rangeDir(s.dataDir, rangeID)
	if err != nil {
		return err
	}
	overlayDir := filepath.Join(dir, "overlays")
	if err := os.MkdirAll(overlayDir, 0o755); err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}

	invPath := filepath.Join(overlayDir, "inventory.json")
	inv, err := loadOverlayInventory(invPath)
	if err != nil {
		return err
	}
	inv.Paths = append(inv.Paths, path)

	raw, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal overlay inventory: %w", err)
	}
	return os.WriteFile(invPath, raw, 0o644)
}

// ListOverlays returns rangeID's recorded overlay paths.
func (s *Store) ListOverlays(rangeID string) ([]string, error) {
	invPath := filepath.Join(s.dataDir, "ranges", rangeID, "overlays", "inventory.json")
	inv, err := loadOverlayInventory(invPath)
	if err != nil {
		return nil, err
	}
	return inv.Paths, nil
}

func loadOverlayInventory(path string) (overlayInventory, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return overlayInventory{}, nil
	}
	if err != nil {
		return overlayInventory{}, fmt.Errorf("read overlay inventory %s: %w", path, err)
	}
	var inv overlayInventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return overlayInventory{}, fmt.Errorf("parse overlay inventory %s: %w", path, err)
	}
	return inv, nil
}

// Compact writes the current in-memory state to registry.json and truncates
// journal.log, since everything in it is now reflected in the snapshot.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshotPath := filepath.Join(s.dataDir, "registry.json")
	if err := saveSnapshot(snapshotPath, s.data); err != nil {
		return err
	}

	if err := s.jrnl.close(); err != nil {
		return fmt.Errorf("close journal before truncate: %w", err)
	}
	journalPath := filepath.Join(s.dataDir, "journal.log")
	if err := os.Truncate(journalPath, 0); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	jrnl, err := openJournal(journalPath)
	if err != nil {
		return err
	}
	s.jrnl = jrnl
	return nil
}

// Close flushes and closes the journal file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jrnl.close()
}
