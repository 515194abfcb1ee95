package planner

import (
	"fmt"
	"sort"

	"github.com/cuemby/cyris/pkg/types"
)

// hostAssigner round-robins unpinned guests across hosts weighted by
// remaining concurrent-clone capacity.
type hostAssigner struct {
	ids       []string
	remaining map[string]int
}

func newHostAssigner(hosts []types.Host) *hostAssigner {
	ids := make([]string, 0, len(hosts))
	remaining := make(map[string]int, len(hosts))
	for _, h := range hosts {
		ids = append(ids, h.ID)
		remaining[h.ID] = h.Capacity - h.InUse
	}
	sort.Strings(ids)
	return &hostAssigner{ids: ids, remaining: remaining}
}

// assign picks the host with the most remaining capacity, breaking ties by
// host ID for determinism, and reserves one slot on it.
func (a *hostAssigner) assign() (string, error) {
	if len(a.ids) == 0 {
		return "", fmt.Errorf("no hosts available")
	}

	best := ""
	bestRemaining := -1
	for _, id := range a.ids {
		r := a.remaining[id]
		if r > bestRemaining {
			best = id
			bestRemaining = r
		}
	}
	if bestRemaining <= 0 {
		return "", fmt.Errorf("no host has remaining clone capacity")
	}

	a.remaining[best]--
	return best, nil
}

// reserve accounts for a pinned guest's slot on hostID without going
// through the weighted selection.
func (a *hostAssigner) reserve(hostID string) {
	if _, ok := a.remaining[hostID]; ok {
		a.remaining[hostID]--
	}
}
