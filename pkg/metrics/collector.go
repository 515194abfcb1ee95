package metrics

import (
	"time"

	"github.com/cuemby/cyris/pkg/registry"
	"github.com/cuemby/cyris/pkg/types"
)

// Collector periodically samples the registry and publishes gauge metrics.
type Collector struct {
	store  *registry.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store *registry.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRangeMetrics()
	c.collectHostMetrics()
	c.collectGuestMetrics()
	c.collectTaskMetrics()
}

func (c *Collector) collectRangeMetrics() {
	ranges, err := c.store.ListRanges()
	if err != nil {
		return
	}

	counts := make(map[types.RangeState]int)
	for _, r := range ranges {
		counts[r.State]++
	}
	for state, count := range counts {
		RangesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectHostMetrics() {
	hosts, err := c.store.ListHosts()
	if err != nil {
		return
	}

	counts := make(map[types.HostStatus]int)
	for _, h := range hosts {
		counts[h.Status]++
	}
	for status, count := range counts {
		HostsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectGuestMetrics() {
	guests, err := c.store.ListGuests("")
	if err != nil {
		return
	}

	counts := make(map[types.GuestState]int)
	for _, g := range guests {
		counts[g.State]++
	}
	for state, count := range counts {
		GuestsTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.store.ListTasks("")
	if err != nil {
		return
	}

	counts := make(map[types.TaskState]int)
	for _, t := range tasks {
		counts[t.State]++
	}
	for state, count := range counts {
		TasksTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}
