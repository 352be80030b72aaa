// Package scheduler implements SchedulerState (§4.4): a periodic
// Assign/Balance/Finish pass over Core's ready queue and worker table.
// Grounded on cuemby-warren's pkg/scheduler.Scheduler directly for the
// Start/Stop/run ticker-select shape, the schedule() method locking a
// mutex and logging-not-aborting on a per-item failure, and the
// metrics.NewTimer/ObserveDuration wrapping around the whole pass. The
// candidate-selection logic (selectNode) is replaced entirely: the teacher
// picks the node with fewest containers, this domain instead orders
// candidates by the lexicographic (CPU load, generic load, WorkerId) key
// §4.4 specifies.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/metrics"
	"github.com/spirali/hyperqueue/pkg/resources"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

// TaskBody resolves the opaque, scheduler-invisible command body Comm sends
// with ComputeTask; supplied by the caller since the scheduler has no
// notion of task content.
type TaskBody func(ids.TaskId) []byte

// Scheduler runs the periodic scheduling pass over a Core.
type Scheduler struct {
	core     *core.Core
	taskBody TaskBody
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	wakeCh   chan struct{}
	interval time.Duration
}

// New builds a Scheduler over c, ticking every interval and additionally
// whenever Wake is invoked (e.g. by the Reactor after a new-ready event).
func New(c *core.Core, interval time.Duration, taskBody TaskBody) *Scheduler {
	return &Scheduler{
		core:     c,
		taskBody: taskBody,
		logger:   log.WithComponent("scheduler"),
		stopCh:   make(chan struct{}),
		wakeCh:   make(chan struct{}, 1),
		interval: interval,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// Wake requests an extra scheduling pass at the next opportunity, without
// waiting for the next tick. Non-blocking: a pending wake is coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runPass()
		case <-s.wakeCh:
			s.runPass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runPass() {
	if err := s.Pass(); err != nil {
		s.logger.Error().Err(err).Msg("scheduling pass failed")
	}
}

// Pass runs one Assign/Balance/Finish cycle, per §4.4. Exported so tests can
// drive it directly.
func (s *Scheduler) Pass() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	assignments := s.assign()
	stolen := s.balance()
	if err := s.finish(assignments, stolen); err != nil {
		return err
	}

	if err := s.core.Graph.SanityCheck(); err != nil {
		s.logger.Error().Err(err).Msg("sanity check failed after scheduling pass")
	}
	return nil
}

type assignment struct {
	task      ids.TaskId
	worker    ids.WorkerId
	placement resources.Placement
}

// assign implements phase 1: for each ready task in order, pick the
// candidate worker minimising (post-assignment CPU load, post-assignment
// generic load, WorkerId) lexicographically, reserve its load, and record
// the assignment. It does not send any Comm message yet.
func (s *Scheduler) assign() []assignment {
	var out []assignment
	var unplaced []ids.TaskId
	now := time.Now()

	for {
		task, ok := s.core.Graph.PopReady()
		if !ok {
			break
		}

		worker, placement, ok := s.pickCandidate(task, now)
		if !ok {
			// No candidate right now; the task stays Ready for the next
			// pass to re-examine. Collect it instead of re-pushing
			// immediately so it is not popped again within this pass.
			unplaced = append(unplaced, task.Id)
			continue
		}

		if err := s.core.Graph.Assign(task.Id, worker, placement); err != nil {
			s.logger.Error().Err(err).Uint64("task_id", uint64(task.Id)).Msg("assign failed")
			continue
		}
		if err := s.core.Workers.Reserve(worker, task.Id, placement); err != nil {
			s.logger.Error().Err(err).Uint64("task_id", uint64(task.Id)).Msg("reserve failed")
			continue
		}
		out = append(out, assignment{task: task.Id, worker: worker, placement: placement})
		metrics.TasksAssigned.Inc()
	}

	for _, id := range unplaced {
		s.core.Graph.RequeueReady(id)
	}
	return out
}

// pickCandidate implements the candidate ordering from §4.4.
func (s *Scheduler) pickCandidate(task *graph.Task, now time.Time) (ids.WorkerId, resources.Placement, bool) {
	type candidate struct {
		worker    *workertable.Worker
		placement resources.Placement
		key       resources.LoadKey
	}

	var candidates []candidate
	for _, w := range s.core.Workers.Candidates() {
		remaining := time.Duration(1<<63 - 1)
		if r := w.RemainingTime(now); r != nil {
			remaining = *r
		}
		d := w.Config.Resources
		d.TimeLimit = w.Config.TimeLimit
		placement, ok := resources.Fit(&d, &w.Load, task.Request, remaining)
		if !ok {
			continue
		}
		key := resources.Key(&w.Load, placement)
		candidates = append(candidates, candidate{worker: w, placement: placement, key: key})
	}
	if len(candidates) == 0 {
		return 0, resources.Placement{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].key != candidates[j].key {
			return candidates[i].key.Less(candidates[j].key)
		}
		return candidates[i].worker.Id < candidates[j].worker.Id
	})

	best := candidates[0]
	return best.worker.Id, best.placement, true
}

type steal struct {
	source ids.WorkerId
	target ids.WorkerId
	tasks  []ids.TaskId
}

// balance implements phase 2: finds an Assigned-not-Running task on the
// most-loaded worker and reassigns it to the least-loaded worker when the
// latter's resources can take it, marking the provisional steal on the
// graph. Running tasks are never touched. One steal per pass keeps
// balancing gradual and re-evaluated every tick rather than thrashing.
func (s *Scheduler) balance() []steal {
	workers := s.core.Workers.Candidates()
	if len(workers) < 2 {
		return nil
	}

	sort.Slice(workers, func(i, j int) bool {
		return resources.Key(&workers[i].Load, resources.Placement{}).Less(resources.Key(&workers[j].Load, resources.Placement{}))
	})

	idle := workers[0]
	loaded := workers[len(workers)-1]
	if idle.Id == loaded.Id {
		return nil
	}

	var out []steal
	for _, taskId := range loaded.Tasks.Slice() {
		task, ok := s.core.Graph.Task(taskId)
		if !ok || task.State != graph.Assigned {
			continue // only steal tasks that have not started running
		}
		remaining := time.Duration(1<<63 - 1)
		if r := idle.RemainingTime(time.Now()); r != nil {
			remaining = *r
		}
		d := idle.Config.Resources
		d.TimeLimit = idle.Config.TimeLimit
		if _, ok := resources.Fit(&d, &idle.Load, task.Request, remaining); !ok {
			continue
		}
		if err := s.core.Graph.MarkSteal(taskId, idle.Id); err != nil {
			s.logger.Error().Err(err).Uint64("task_id", uint64(taskId)).Msg("mark steal failed")
			continue
		}
		out = append(out, steal{source: loaded.Id, target: idle.Id, tasks: []ids.TaskId{taskId}})
		metrics.TasksStolen.Inc()
		break
	}
	return out
}

// finish implements phase 3: flushes queued per-worker Comm messages for
// every assignment and steal decided this pass.
func (s *Scheduler) finish(assignments []assignment, steals []steal) error {
	for _, a := range assignments {
		var body []byte
		if s.taskBody != nil {
			body = s.taskBody(a.task)
		}
		if err := s.core.Comm.SendComputeTask(a.worker, a.task, body); err != nil {
			return hqerr.Wrap(hqerr.ErrWorkerTransportFailure, "send compute_task to worker %s", a.worker)
		}
	}
	for _, st := range steals {
		if err := s.core.Comm.SendStealRequest(st.source, st.tasks); err != nil {
			return hqerr.Wrap(hqerr.ErrWorkerTransportFailure, "send steal_request to worker %s", st.source)
		}
	}
	return nil
}
