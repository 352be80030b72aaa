package metrics

import (
	"time"

	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

// Collector samples Core's in-memory state into the gauges on a fixed
// interval, the same ticker-driven shape as the teacher's node/service/task
// collector, retargeted at WorkerTable/TaskGraph instead of a raft-backed
// manager.
type Collector struct {
	core   *core.Core
	stopCh chan struct{}
}

// NewCollector creates a collector for c.
func NewCollector(c *core.Core) *Collector {
	return &Collector{
		core:   c,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
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
	c.collectWorkerMetrics()
	c.collectTaskMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	workers := c.core.Workers.All()

	counts := make(map[workertable.Lifecycle]int)
	for _, w := range workers {
		counts[w.Lifecycle]++
	}
	for state, count := range counts {
		WorkersTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectTaskMetrics() {
	byJob := c.core.Graph.WaitingTasksByJob()

	waiting := 0
	for _, entry := range byJob {
		waiting += entry.Count
	}
	WaitingTasks.Set(float64(waiting))

	for state, count := range c.core.Graph.CountByState() {
		TasksTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}
