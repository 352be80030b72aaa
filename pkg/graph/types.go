package graph

import (
	"time"

	"github.com/hashicorp/go-set/v3"

	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/resources"
)

// State is a task's position in the state machine described in §4.2:
// Waiting -> Ready -> Assigned -> Running -> {Finished, Failed, Cancelled}.
type State string

const (
	Waiting   State = "waiting"
	Ready     State = "ready"
	Assigned  State = "assigned"
	Running   State = "running"
	Finished  State = "finished"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

// Terminal reports whether s has no further transitions.
func (s State) Terminal() bool {
	return s == Finished || s == Failed || s == Cancelled
}

// Task is one node of the DAG. Deps/Consumers are id-set algebra, never
// owning pointers, per the "identifier-indexed table" guidance in §9.
type Task struct {
	Id      ids.TaskId
	JobId   ids.JobId
	Deps    *set.Set[ids.TaskId]
	Consumers *set.Set[ids.TaskId]
	NumOutputs int
	Request resources.Request
	Keep    bool

	State  State
	Worker *ids.WorkerId // set once Assigned or Running
	Placement resources.Placement

	// StealTarget is set while a steal is in flight: the task is still
	// Assigned to Worker, but a StealRequest naming it has been sent and
	// a candidate new owner has been chosen. Cleared on steal response.
	StealTarget *ids.WorkerId

	SubmittedAt time.Time
}

// NewTask builds a Task in Waiting state with empty dep/consumer sets.
func NewTask(id ids.TaskId, job ids.JobId, req resources.Request, keep bool, numOutputs int) *Task {
	return &Task{
		Id:         id,
		JobId:      job,
		Deps:       set.New[ids.TaskId](0),
		Consumers:  set.New[ids.TaskId](0),
		NumOutputs: numOutputs,
		Request:    req,
		Keep:       keep,
		State:      Waiting,
	}
}

// Job groups tasks submitted together in one SubmitRequest. The autoalloc
// feasibility gate (§4.5, §9) is computed per job using MinTime, the
// maximum request.MinTime across the job's not-yet-running tasks.
type Job struct {
	Id       ids.JobId
	Name     string
	MaxFails int
	TaskIds  *set.Set[ids.TaskId]
}

// NewJob builds an empty Job.
func NewJob(id ids.JobId, name string, maxFails int) *Job {
	return &Job{Id: id, Name: name, MaxFails: maxFails, TaskIds: set.New[ids.TaskId](0)}
}
