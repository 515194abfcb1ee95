package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/cyris/pkg/types"
)

// snapshotData is the full contents of registry.json: the compacted state
// of every entity as of the last Compact call.
type snapshotData struct {
	Ranges   map[string]*types.Range   `json:"ranges"`
	Hosts    map[string]*types.Host    `json:"hosts"`
	Guests   map[string]*types.Guest   `json:"guests"`
	Networks map[string]*types.Network `json:"networks"`
	Tasks    map[string]*types.Task    `json:"tasks"`
}

func newSnapshotData() snapshotData {
	return snapshotData{
		Ranges:   make(map[string]*types.Range),
		Hosts:    make(map[string]*types.Host),
		Guests:   make(map[string]*types.Guest),
		Networks: make(map[string]*types.Network),
		Tasks:    make(map[string]*types.Task),
	}
}

func loadSnapshot(path string) (snapshotData, error) {
	data := newSnapshotData()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if data.Ranges == nil {
		data.Ranges = make(map[string]*types.Range)
	}
	if data.Hosts == nil {
		data.Hosts = make(map[string]*types.Host)
	}
	if data.Guests == nil {
		data.Guests = make(map[string]*types.Guest)
	}
	if data.Networks == nil {
		data.Networks = make(map[string]*types.Network)
	}
	if data.Tasks == nil {
		data.Tasks = make(map[string]*types.Task)
	}
	return data, nil
}

// saveSnapshot writes data to path atomically (write to a temp file, then
// rename) so a crash mid-write never corrupts the last good snapshot.
func saveSnapshot(path string, data snapshotData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// rangeDir returns ranges/<id> under dataDir, creating it if absent.
func rangeDir(dataDir, rangeID string) (string, error) {
	dir := filepath.Join(dataDir, "ranges", rangeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create range dir %s: %w", dir, err)
	}
	return dir, nil
}
