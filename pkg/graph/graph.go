package graph

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/resources"
)

// readyHeap orders TaskIds ascending so the smaller id pops first, the
// stable tie-break §4.2 requires (preserves submission order).
type readyHeap []ids.TaskId

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(ids.TaskId)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Graph is the TaskGraph: every task, its job grouping, and the ready
// queue. It is mutated exclusively by the Reactor (§4.2); the scheduler only
// moves tasks between Ready and Assigned via PopReady/Assign.
//
// The mutex serializes access from the goroutines that share the graph: the
// scheduler loop, the HTTP API handlers and the autoalloc loop's pressure
// reads.
type Graph struct {
	mu     sync.Mutex
	tasks  map[ids.TaskId]*Task
	jobs   map[ids.JobId]*Job
	ready  readyHeap
	logger zerolog.Logger
}

// New returns an empty Graph.
func New() *Graph {
	g := &Graph{
		tasks:  make(map[ids.TaskId]*Task),
		jobs:   make(map[ids.JobId]*Job),
		ready:  readyHeap{},
		logger: log.WithComponent("graph"),
	}
	heap.Init(&g.ready)
	return g
}

// AddBatch implements on_new_tasks: atomic, either every task in tasks is
// accepted or none are. Rejects a batch containing a duplicate TaskId or a
// dep referencing a task unknown both to the graph and to the batch itself.
// Tasks with no deps land in Ready immediately.
func (g *Graph) AddBatch(job *Job, tasks []*Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	inBatch := make(map[ids.TaskId]bool, len(tasks))
	for _, t := range tasks {
		if _, exists := g.tasks[t.Id]; exists {
			return hqerr.Wrap(hqerr.ErrInvalidRequest, "task %s already exists", t.Id)
		}
		if inBatch[t.Id] {
			return hqerr.Wrap(hqerr.ErrInvalidRequest, "duplicate task %s in batch", t.Id)
		}
		inBatch[t.Id] = true
	}
	for _, t := range tasks {
		depSlice := t.Deps.Slice()
		for _, dep := range depSlice {
			if _, exists := g.tasks[dep]; !exists && !inBatch[dep] {
				return hqerr.Wrap(hqerr.ErrInvalidRequest, "task %s depends on unknown task %s", t.Id, dep)
			}
		}
	}

	if _, exists := g.jobs[job.Id]; !exists {
		g.jobs[job.Id] = job
	}

	for _, t := range tasks {
		g.tasks[t.Id] = t
		g.jobs[job.Id].TaskIds.Insert(t.Id)
		for _, dep := range t.Deps.Slice() {
			if depTask, ok := g.tasks[dep]; ok {
				depTask.Consumers.Insert(t.Id)
			}
		}
	}
	for _, t := range tasks {
		if g.depsFinished(t) {
			g.toReady(t)
		}
	}
	return nil
}

func (g *Graph) depsFinished(t *Task) bool {
	for _, dep := range t.Deps.Slice() {
		depTask, ok := g.tasks[dep]
		if !ok || depTask.State != Finished {
			return false
		}
	}
	return true
}

func (g *Graph) toReady(t *Task) {
	t.State = Ready
	heap.Push(&g.ready, t.Id)
}

// PopReady removes and returns the smallest-id ready task, or false if the
// ready queue is empty. Called only by the scheduler's Assign phase.
func (g *Graph) PopReady() (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.ready.Len() > 0 {
		id := heap.Pop(&g.ready).(ids.TaskId)
		t, ok := g.tasks[id]
		if !ok || t.State != Ready {
			continue // stale entry: task cancelled or already reassigned
		}
		return t, true
	}
	return nil, false
}

// pushReadyLocked re-inserts a task id into the ready queue. Callers must
// already be inside a method holding g.mu (used by steal rollback/finalize
// below); exported mutation entry points take the lock themselves.
func (g *Graph) pushReadyLocked(id ids.TaskId) {
	heap.Push(&g.ready, id)
}

// RequeueReady pushes a task that was popped from the ready queue but could
// not be placed this pass back onto it, so the next pass reconsiders it.
// The task must still be in state Ready.
func (g *Graph) RequeueReady(id ids.TaskId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok && t.State == Ready {
		g.pushReadyLocked(id)
	}
}

// Assign moves a Ready task to Assigned on worker w, recording its
// placement. Called by the scheduler's Assign phase, which has already
// reserved load on w via resources.Reserve.
func (g *Graph) Assign(id ids.TaskId, w ids.WorkerId, placement resources.Placement) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return hqerr.Internal("assign: unknown task %s", id)
	}
	if t.State != Ready {
		return hqerr.Internal("assign: task %s is %s, not ready", id, t.State)
	}
	worker := w
	t.Worker = &worker
	t.Placement = placement
	t.State = Assigned
	return nil
}

// MarkSteal records a provisional steal: task id, currently Assigned to its
// existing worker, gains a StealTarget. It is not moved out of Assigned
// until the corresponding StealResponse arrives.
func (g *Graph) MarkSteal(id ids.TaskId, target ids.WorkerId) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return hqerr.Internal("steal: unknown task %s", id)
	}
	if t.State != Assigned {
		return hqerr.Internal("steal: task %s is %s, not assigned", id, t.State)
	}
	tgt := target
	t.StealTarget = &tgt
	return nil
}

// StealOutcome is a worker's response to one task named in a StealRequest.
type StealOutcome int

const (
	// StealOk: the source worker had not started the task; ownership
	// transfers to the target.
	StealOk StealOutcome = iota
	// StealNotHere: the source worker has no record of the task (treated
	// the same as StealOk per DESIGN.md).
	StealNotHere
	// StealRunning: the task started running on the source before the
	// StealRequest arrived; the steal is rolled back.
	StealRunning
)

// FinalizeSteal applies one (task, outcome) pair from an on_steal_response
// event. On StealOk/StealNotHere the task is released from its old worker
// and returned to Ready so the next Assign phase can place it (likely, but
// not necessarily, on the target). On StealRunning the provisional target
// is discarded and the task remains Assigned/Running on its original
// worker.
func (g *Graph) FinalizeSteal(id ids.TaskId, outcome StealOutcome) (oldWorker ids.WorkerId, released resources.Placement, ok bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, exists := g.tasks[id]
	if !exists {
		return 0, resources.Placement{}, false, hqerr.Internal("steal response: unknown task %s", id)
	}
	if t.StealTarget == nil {
		// Response for a steal that was already reconciled (e.g. a
		// duplicate message); ignore.
		return 0, resources.Placement{}, false, nil
	}

	switch outcome {
	case StealOk, StealNotHere:
		if t.Worker == nil {
			return 0, resources.Placement{}, false, hqerr.Internal("steal response: task %s has no worker", id)
		}
		oldWorker = *t.Worker
		released = t.Placement
		t.Worker = nil
		t.Placement = resources.Placement{}
		t.StealTarget = nil
		t.State = Ready
		g.pushReadyLocked(id)
		return oldWorker, released, true, nil
	case StealRunning:
		t.StealTarget = nil
		return 0, resources.Placement{}, false, nil
	default:
		return 0, resources.Placement{}, false, hqerr.Internal("steal response: unknown outcome for task %s", id)
	}
}

// MarkRunning implements on_task_running: asserts the task is Assigned to
// w, then moves it to Running.
func (g *Graph) MarkRunning(id ids.TaskId, w ids.WorkerId) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return hqerr.Internal("task_running: unknown task %s", id)
	}
	if t.State != Assigned || t.Worker == nil || *t.Worker != w {
		return hqerr.Internal("task_running: task %s is not assigned to worker %s", id, w)
	}
	t.State = Running
	return nil
}

// MarkFinished implements on_task_finished: moves the task to Finished and
// returns the consumers that became Ready as a result (those whose
// remaining deps are now all Finished).
func (g *Graph) MarkFinished(id ids.TaskId) (nowReady []ids.TaskId, worker ids.WorkerId, placement resources.Placement, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return nil, 0, resources.Placement{}, hqerr.Internal("task_finished: unknown task %s", id)
	}
	if t.Worker == nil {
		return nil, 0, resources.Placement{}, hqerr.Internal("task_finished: task %s has no worker", id)
	}
	worker = *t.Worker
	placement = t.Placement
	t.State = Finished

	for _, consumerId := range t.Consumers.Slice() {
		consumer, ok := g.tasks[consumerId]
		if !ok || consumer.State != Waiting {
			continue
		}
		if g.depsFinished(consumer) {
			g.toReady(consumer)
			nowReady = append(nowReady, consumerId)
		}
	}
	return nowReady, worker, placement, nil
}

// MarkFailed implements on_task_finished's failure branch: moves the task
// to Failed and returns the transitive consumer closure to cancel, along
// with the worker/placement to release.
func (g *Graph) MarkFailed(id ids.TaskId) (toCancel []ids.TaskId, worker ids.WorkerId, placement resources.Placement, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return nil, 0, resources.Placement{}, hqerr.Internal("task_failed: unknown task %s", id)
	}
	if t.Worker != nil {
		worker = *t.Worker
		placement = t.Placement
	}
	t.State = Failed
	toCancel = g.consumerClosureLocked(id)
	g.cancelSetLocked(toCancel)
	return toCancel, worker, placement, nil
}

// Cancel implements on_cancel_tasks: cancels every id in ids and the
// transitive consumer closure of each, returning the tasks it actually
// moved to Cancelled (already-terminal tasks are left untouched and not
// returned) along with, per worker, the ids of tasks that were
// Assigned/Running there and must be released/stopped.
func (g *Graph) Cancel(taskIds []ids.TaskId) (cancelled []ids.TaskId, toStop map[ids.WorkerId][]ids.TaskId, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[ids.TaskId]bool)
	toStop = make(map[ids.WorkerId][]ids.TaskId)
	var closure []ids.TaskId
	for _, id := range taskIds {
		for _, c := range g.consumerClosureLocked(id) {
			if !seen[c] {
				seen[c] = true
				closure = append(closure, c)
			}
		}
		if !seen[id] {
			seen[id] = true
			closure = append(closure, id)
		}
	}

	for _, id := range closure {
		t, ok := g.tasks[id]
		if !ok || t.State.Terminal() {
			continue
		}
		if t.Worker != nil && (t.State == Assigned || t.State == Running) {
			toStop[*t.Worker] = append(toStop[*t.Worker], id)
		}
		t.State = Cancelled
		t.Worker = nil
		t.Placement = resources.Placement{}
		cancelled = append(cancelled, id)
	}
	return cancelled, toStop, nil
}

// consumerClosureLocked walks the consumer graph transitively from id,
// returning every strict descendant (not including id itself). Caller must
// hold g.mu.
func (g *Graph) consumerClosureLocked(id ids.TaskId) []ids.TaskId {
	t, ok := g.tasks[id]
	if !ok {
		return nil
	}
	var closure []ids.TaskId
	seen := make(map[ids.TaskId]bool)
	queue := t.Consumers.Slice()
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		closure = append(closure, cur)
		if ct, ok := g.tasks[cur]; ok {
			queue = append(queue, ct.Consumers.Slice()...)
		}
	}
	return closure
}

// cancelSetLocked marks every task in ids as Cancelled unless already
// terminal. Caller must hold g.mu.
func (g *Graph) cancelSetLocked(taskIds []ids.TaskId) {
	for _, id := range taskIds {
		t, ok := g.tasks[id]
		if !ok || t.State.Terminal() {
			continue
		}
		t.State = Cancelled
		t.Worker = nil
		t.Placement = resources.Placement{}
	}
}

// MarkWorkerLost implements on_worker_lost: every task Assigned/Running on
// w returns to Ready (unless it was already Finished, which cannot occur
// for a lost worker's current task set). Returns the affected task ids.
func (g *Graph) MarkWorkerLost(w ids.WorkerId, onWorker []ids.TaskId) []ids.TaskId {
	g.mu.Lock()
	defer g.mu.Unlock()

	var affected []ids.TaskId
	for _, id := range onWorker {
		t, ok := g.tasks[id]
		if !ok {
			continue
		}
		if t.State != Assigned && t.State != Running {
			continue
		}
		t.Worker = nil
		t.Placement = resources.Placement{}
		t.StealTarget = nil
		t.State = Ready
		g.pushReadyLocked(id)
		affected = append(affected, id)
	}
	return affected
}

// Task returns a snapshot copy of the task for id, if it exists.
func (g *Graph) Task(id ids.TaskId) (Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Job returns the job for id, if it exists.
func (g *Graph) Job(id ids.JobId) (*Job, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[id]
	return j, ok
}

// JobPressure is one job's contribution to autoalloc backlog pressure: how
// many of its tasks are not yet running, and the job's MinTime (the
// maximum request MinTime across those tasks, the pessimistic per-job
// feasibility bound from §9).
type JobPressure struct {
	Count   int
	MinTime time.Duration
}

// WaitingTasksByJob returns, for every job, the count of tasks in Waiting,
// Ready, or Assigned state (not yet Running or terminal) and its MinTime.
// This is the narrow accessor §5 describes for the AutoAllocLoop.
func (g *Graph) WaitingTasksByJob() map[ids.JobId]JobPressure {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make(map[ids.JobId]JobPressure)
	for _, t := range g.tasks {
		if t.State != Waiting && t.State != Ready && t.State != Assigned {
			continue
		}
		entry := result[t.JobId]
		entry.Count++
		if t.Request.MinTime > entry.MinTime {
			entry.MinTime = t.Request.MinTime
		}
		result[t.JobId] = entry
	}
	return result
}

// CountByState returns the number of tasks currently in each State, for
// metrics sampling.
func (g *Graph) CountByState() map[State]int {
	g.mu.Lock()
	defer g.mu.Unlock()

	counts := make(map[State]int)
	for _, t := range g.tasks {
		counts[t.State]++
	}
	return counts
}

// SanityCheck implements the debug invariant checks from §4.4/§8: every
// ready task has all deps Finished, every Assigned/Running task belongs to
// exactly one worker's task set (checked by the caller against WorkerTable),
// and every task's state is internally consistent.
func (g *Graph) SanityCheck() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range g.tasks {
		if t.State == Ready && !g.depsFinished(t) {
			return hqerr.Internal("task %s is ready but a dep is not finished", t.Id)
		}
		if (t.State == Assigned || t.State == Running) && t.Worker == nil {
			return hqerr.Internal("task %s is %s but has no worker", t.Id, t.State)
		}
	}
	return nil
}
