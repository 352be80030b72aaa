// Package autoalloc implements AutoAllocState and AutoAllocLoop (§4.5,
// §4.6): the control loop that watches task backlog pressure and
// provisions PBS/SLURM allocations to keep the scheduler fed.
package autoalloc

import (
	"time"

	"github.com/spirali/hyperqueue/pkg/ids"
)

// ManagerType names the underlying batch system a QueueDescriptor targets.
type ManagerType string

const (
	Pbs   ManagerType = "pbs"
	Slurm ManagerType = "slurm"
)

// QueueInfo is a queue descriptor's user-facing configuration, the
// AddQueueParams of §6.
type QueueInfo struct {
	Backlog         int // 1..=100
	WorkersPerAlloc int // >=1
	Queue           string // PBS queue name or SLURM partition
	Timelimit       time.Duration
	Name            string // optional, empty if unset
	AdditionalArgs  []string
}

// AllocationStatusKind is the batch-system-observed state of one
// allocation.
type AllocationStatusKind string

const (
	StatusQueued   AllocationStatusKind = "queued"
	StatusRunning  AllocationStatusKind = "running"
	StatusFinished AllocationStatusKind = "finished"
	StatusFailed   AllocationStatusKind = "failed"
)

// AllocationStatus is the result of a get_allocation_status call: Kind plus
// whichever timestamps apply.
type AllocationStatus struct {
	Kind      AllocationStatusKind
	StartedAt time.Time
}

// Allocation tracks one submitted batch job.
type Allocation struct {
	Id          ids.AllocationId
	WorkerCount int
	QueuedAt    time.Time
	WorkingDir  string
	Status      AllocationStatus
}

// Active reports whether the allocation is still Queued or Running.
func (a *Allocation) Active() bool {
	return a.Status.Kind == StatusQueued || a.Status.Kind == StatusRunning
}

// EventKind enumerates the AllocationEvent variants of §3.
type EventKind string

const (
	EventQueueFail             EventKind = "queue_fail"
	EventAllocationQueued      EventKind = "allocation_queued"
	EventAllocationStarted     EventKind = "allocation_started"
	EventAllocationFinished    EventKind = "allocation_finished"
	EventAllocationFailed      EventKind = "allocation_failed"
	EventAllocationDisappeared EventKind = "allocation_disappeared"
	EventStatusFail            EventKind = "status_fail"
)

// Event is one entry of a descriptor's append-only event log.
type Event struct {
	Kind         EventKind
	AllocationId ids.AllocationId // empty for QueueFail
	Error        string           // set for QueueFail/StatusFail
	Timestamp    time.Time
}

// CreatedAllocation is what schedule_allocation returns on success.
type CreatedAllocation struct {
	Id         ids.AllocationId
	WorkingDir string
}
