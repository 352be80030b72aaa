// Package workertable holds WorkerTable: each connected worker's
// configuration, current load, assigned task set, and lifecycle state.
// Grounded on cuemby-warren's pkg/types.Node/NodeResources shape,
// generalized from a flat CPU-core count to the full resources.Descriptor.
package workertable

import (
	"sync"
	"time"

	"github.com/hashicorp/go-set/v3"
	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/resources"
)

// Lifecycle mirrors the teacher's NodeStatus string-enum style.
type Lifecycle string

const (
	Joining  Lifecycle = "joining"
	Running  Lifecycle = "running"
	Stopping Lifecycle = "stopping"
	Lost     Lifecycle = "lost"
)

// Config is a worker's static configuration as reported at join time.
type Config struct {
	Hostname         string
	Resources        resources.Descriptor
	HeartbeatInterval time.Duration
	IdleTimeout      *time.Duration
	TimeLimit        *time.Duration
	JoinedAt         time.Time
}

// Worker is one entry of the WorkerTable.
type Worker struct {
	Id        ids.WorkerId
	Config    Config
	Load      resources.Load
	Tasks     *set.Set[ids.TaskId]
	Lifecycle Lifecycle
}

// RemainingTime returns how much of the worker's configured time limit is
// left as of now, or nil if the worker is unbounded.
func (w *Worker) RemainingTime(now time.Time) *time.Duration {
	if w.Config.TimeLimit == nil {
		return nil
	}
	elapsed := now.Sub(w.Config.JoinedAt)
	remaining := *w.Config.TimeLimit - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// Table is the WorkerTable. Mutated by the Reactor and SchedulerState only
// (§5); the mutex serializes them, since the reactor's callers (HTTP
// handlers) and the scheduler loop run on separate goroutines.
type Table struct {
	mu      sync.Mutex
	workers map[ids.WorkerId]*Worker
	logger  zerolog.Logger
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		workers: make(map[ids.WorkerId]*Worker),
		logger:  log.WithComponent("workertable"),
	}
}

// Join implements on_new_worker: inserts w in Running state.
func (t *Table) Join(id ids.WorkerId, cfg Config) *Worker {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := &Worker{
		Id:        id,
		Config:    cfg,
		Load:      resources.NewLoad(&cfg.Resources),
		Tasks:     set.New[ids.TaskId](0),
		Lifecycle: Running,
	}
	t.workers[id] = w
	t.logger.Info().Uint64("worker_id", uint64(id)).Str("hostname", cfg.Hostname).Msg("worker joined")
	return w
}

// Get returns the worker for id, if present.
func (t *Table) Get(id ids.WorkerId) (*Worker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[id]
	return w, ok
}

// Reserve assigns placement p to worker id's load and task set.
func (t *Table) Reserve(id ids.WorkerId, task ids.TaskId, p resources.Placement) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[id]
	if !ok {
		return hqerr.Internal("reserve: unknown worker %s", id)
	}
	resources.Reserve(&w.Load, p)
	w.Tasks.Insert(task)
	return nil
}

// Release frees placement p from worker id's load and task set.
func (t *Table) Release(id ids.WorkerId, task ids.TaskId, p resources.Placement) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[id]
	if !ok {
		// Worker already removed (e.g. lost); nothing to release onto.
		return nil
	}
	resources.Release(&w.Load, p)
	w.Tasks.Remove(task)
	return nil
}

// Candidates returns every worker currently eligible to receive new work:
// Running, not Stopping.
func (t *Table) Candidates() []*Worker {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Worker, 0, len(t.workers))
	for _, w := range t.workers {
		if w.Lifecycle == Running {
			out = append(out, w)
		}
	}
	return out
}

// MarkStopping moves a worker to Stopping: it keeps its running tasks but
// stops receiving new assignments.
func (t *Table) MarkStopping(id ids.WorkerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.workers[id]; ok {
		w.Lifecycle = Stopping
	}
}

// Lose implements the WorkerTable side of on_worker_lost: marks the worker
// Lost and returns the task ids that were assigned to it so the Reactor can
// requeue them via pkg/graph.
func (t *Table) Lose(id ids.WorkerId) []ids.TaskId {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.workers[id]
	if !ok {
		return nil
	}
	w.Lifecycle = Lost
	tasks := w.Tasks.Slice()
	w.Tasks = set.New[ids.TaskId](0)
	t.logger.Warn().Uint64("worker_id", uint64(id)).Int("tasks_affected", len(tasks)).Msg("worker lost")
	return tasks
}

// All returns every worker currently in the table, for sanity checks and
// metrics sampling.
func (t *Table) All() []*Worker {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Worker, 0, len(t.workers))
	for _, w := range t.workers {
		out = append(out, w)
	}
	return out
}
