// Package core owns the TaskGraph, WorkerTable and Comm: the single mutable
// cell described in §5/§9. Grounded on cuemby-warren's pkg/manager.Manager,
// which plays the same aggregation-root role for its own subsystems; raft,
// storage, and security are dropped (see DESIGN.md) because this domain has
// no clustering or persisted state to own.
package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/comm"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

// Core is the shared cell the Reactor and SchedulerState borrow mutably
// during each event/pass. Core's own lock only protects the id counters
// below, which concurrent HTTP handlers allocate from; the subsystems each
// guard themselves.
type Core struct {
	Graph   *graph.Graph
	Workers *workertable.Table
	Comm    comm.Comm
	Logger  zerolog.Logger

	mu         sync.Mutex
	nextTaskId ids.TaskId
	nextJobId  ids.JobId
}

// New builds a Core wired to an InMemory Comm with the given per-worker
// mailbox buffer size.
func New(mailboxBuffer int) *Core {
	return &Core{
		Graph:   graph.New(),
		Workers: workertable.New(),
		Comm:    comm.NewInMemory(mailboxBuffer),
		Logger:  log.WithComponent("core"),
	}
}

// NextTaskId allocates a fresh monotonic TaskId.
func (c *Core) NextTaskId() ids.TaskId {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTaskId++
	return c.nextTaskId
}

// NextJobId allocates a fresh monotonic JobId.
func (c *Core) NextJobId() ids.JobId {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextJobId++
	return c.nextJobId
}
