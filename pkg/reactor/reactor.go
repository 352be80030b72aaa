// Package reactor implements the seven public events of §4.3: every
// TaskGraph state change except the scheduler's Ready->Assigned moves and
// steal marks goes through it. Grounded on
// cuemby-warren's pkg/reconciler.Reconciler shape (component logger,
// guarded mutation methods, log-and-continue on a sub-step failure),
// adapted from periodic reconciliation to event-driven handling.
package reactor

import (
	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

// Reactor mutates a Core in response to external events. It never runs a
// scheduling pass itself; it only requests one (via Wake) when new work may
// have become schedulable.
type Reactor struct {
	core   *core.Core
	logger zerolog.Logger
	// Wake is called after any event that may have created new ready work
	// or freed capacity, asking the scheduler for another pass. Nil is a
	// valid no-op, used by tests that drive the reactor directly.
	Wake func()
}

// New builds a Reactor over c. wake is invoked after each event that may
// require a fresh scheduling pass.
func New(c *core.Core, wake func()) *Reactor {
	return &Reactor{core: c, logger: log.WithComponent("reactor"), Wake: wake}
}

func (r *Reactor) wake() {
	if r.Wake != nil {
		r.Wake()
	}
}

// OnNewTasks implements on_new_tasks(batch): atomic accept/reject of an
// entire job's task batch.
func (r *Reactor) OnNewTasks(job *graph.Job, tasks []*graph.Task) error {
	if err := r.core.Graph.AddBatch(job, tasks); err != nil {
		r.logger.Warn().Err(err).Uint64("job_id", uint64(job.Id)).Msg("rejected task batch")
		return err
	}
	r.logger.Info().Uint64("job_id", uint64(job.Id)).Int("count", len(tasks)).Msg("accepted task batch")
	r.wake()
	return nil
}

// OnNewWorker implements on_new_worker(worker): inserts into WorkerTable
// and requests a scheduling pass.
func (r *Reactor) OnNewWorker(id ids.WorkerId, cfg workertable.Config) *workertable.Worker {
	w := r.core.Workers.Join(id, cfg)
	r.wake()
	return w
}

// OnTaskRunning implements on_task_running(worker, task).
func (r *Reactor) OnTaskRunning(worker ids.WorkerId, task ids.TaskId) error {
	if err := r.core.Graph.MarkRunning(task, worker); err != nil {
		r.logger.Error().Err(err).Uint64("task_id", uint64(task)).Msg("task_running event rejected")
		return err
	}
	return nil
}

// OnTaskFinished implements on_task_finished(worker, msg) for the success
// path: frees the worker's load, promotes newly-ready consumers, and wakes
// the scheduler.
func (r *Reactor) OnTaskFinished(task ids.TaskId) error {
	_, worker, placement, err := r.core.Graph.MarkFinished(task)
	if err != nil {
		return err
	}
	if err := r.core.Workers.Release(worker, task, placement); err != nil {
		return err
	}
	r.wake()
	return nil
}

// OnTaskFailed implements on_task_finished's failure path: cancels the
// consumer closure, frees the worker's load and wakes the scheduler. It
// returns the cancelled consumer ids; no cause is recorded on the cancelled
// tasks themselves.
func (r *Reactor) OnTaskFailed(task ids.TaskId) (cancelledWithCause []ids.TaskId, err error) {
	toCancel, worker, placement, err := r.core.Graph.MarkFailed(task)
	if err != nil {
		return nil, err
	}
	if err := r.core.Workers.Release(worker, task, placement); err != nil {
		return nil, err
	}
	r.logger.Warn().Uint64("task_id", uint64(task)).Int("consumers_cancelled", len(toCancel)).Msg("task failed, cancelling descendants")
	r.wake()
	return toCancel, nil
}

// StealResponse is one (task, outcome) pair from a worker's response to a
// StealRequest.
type StealResponse struct {
	Task    ids.TaskId
	Outcome graph.StealOutcome
}

// OnStealResponse implements on_steal_response(worker, responses): for
// each response, returns the task to Ready and releases the source worker's
// load (Ok/NotHere) or rolls the steal back (Running) per DESIGN.md.
func (r *Reactor) OnStealResponse(responses []StealResponse) error {
	wake := false
	for _, resp := range responses {
		oldWorker, placement, finalized, err := r.core.Graph.FinalizeSteal(resp.Task, resp.Outcome)
		if err != nil {
			r.logger.Error().Err(err).Uint64("task_id", uint64(resp.Task)).Msg("steal response rejected")
			continue
		}
		if finalized {
			if err := r.core.Workers.Release(oldWorker, resp.Task, placement); err != nil {
				r.logger.Error().Err(err).Msg("failed to release placement after steal")
			}
			wake = true
		}
	}
	if wake {
		r.wake()
	}
	return nil
}

// OnCancelTasks implements on_cancel_tasks(task_ids): cancels the
// transitive closure and emits CancelTasks/StopWorker-equivalent Comm
// messages to workers holding running instances.
func (r *Reactor) OnCancelTasks(taskIds []ids.TaskId) ([]ids.TaskId, error) {
	cancelled, toStop, err := r.core.Graph.Cancel(taskIds)
	if err != nil {
		return nil, err
	}
	for worker, tasks := range toStop {
		if err := r.core.Comm.SendCancelTasks(worker, tasks); err != nil {
			r.logger.Error().Err(err).Uint64("worker_id", uint64(worker)).Msg("failed to send cancel")
		}
	}
	r.logger.Info().Int("count", len(cancelled)).Msg("tasks cancelled")
	return cancelled, nil
}

// OnWorkerLost implements on_worker_lost(worker, reason): returns the
// worker's tasks to Ready and reports which task ids were affected so the
// client can be notified.
func (r *Reactor) OnWorkerLost(worker ids.WorkerId, reason string) []ids.TaskId {
	onWorker := r.core.Workers.Lose(worker)
	affected := r.core.Graph.MarkWorkerLost(worker, onWorker)
	r.logger.Warn().Uint64("worker_id", uint64(worker)).Str("reason", reason).Msg("worker lost, requeued tasks")
	if len(affected) > 0 {
		r.wake()
	}
	return affected
}
