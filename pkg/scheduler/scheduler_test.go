package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spirali/hyperqueue/pkg/comm"
	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/resources"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

func descriptor(cpus int) resources.Descriptor {
	cpuIds := make([]int, cpus)
	for i := range cpuIds {
		cpuIds[i] = i
	}
	return resources.Descriptor{Sockets: [][]int{cpuIds}}
}

func submit(t *testing.T, c *core.Core, taskId ids.TaskId, req resources.Request) {
	t.Helper()
	job := graph.NewJob(ids.JobId(taskId), "job", 0)
	task := graph.NewTask(taskId, job.Id, req, false, 1)
	require.NoError(t, c.Graph.AddBatch(job, []*graph.Task{task}))
}

func TestPass_AssignsReadyTaskToLeastLoadedWorker(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	c.Workers.Join(2, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	submit(t, c, 10, resources.Request{CPUKind: resources.Compact, CPUCount: 1})

	s := New(c, time.Hour, nil)
	require.NoError(t, s.Pass())

	task, ok := c.Graph.Task(10)
	require.True(t, ok)
	assert.Equal(t, graph.Assigned, task.State)
	require.NotNil(t, task.Worker)
}

func TestPass_NoCandidateLeavesTaskReady(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(2), JoinedAt: time.Now()})
	submit(t, c, 10, resources.Request{CPUKind: resources.Compact, CPUCount: 4})

	s := New(c, time.Hour, nil)
	require.NoError(t, s.Pass())

	task, ok := c.Graph.Task(10)
	require.True(t, ok)
	assert.Equal(t, graph.Ready, task.State)
}

func TestPass_SpreadsAcrossWorkersByLoad(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	c.Workers.Join(2, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})

	s := New(c, time.Hour, nil)

	submit(t, c, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1})
	require.NoError(t, s.Pass())
	submit(t, c, 2, resources.Request{CPUKind: resources.Compact, CPUCount: 1})
	require.NoError(t, s.Pass())

	t1, _ := c.Graph.Task(1)
	t2, _ := c.Graph.Task(2)
	assert.NotEqual(t, *t1.Worker, *t2.Worker, "second task should land on the now-less-loaded worker")
}

func TestPass_SendsComputeTaskMessage(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	submit(t, c, 10, resources.Request{CPUKind: resources.Compact, CPUCount: 1})

	s := New(c, time.Hour, func(id ids.TaskId) []byte { return []byte("body") })
	require.NoError(t, s.Pass())

	inMemory := c.Comm.(*comm.InMemory)
	msg := <-inMemory.Inbox(1)
	assert.Equal(t, comm.ComputeTask, msg.Type)
	assert.Equal(t, []byte("body"), msg.Body)
}

func TestPass_BalancesAssignedNotRunningTask(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	c.Workers.Join(2, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})

	s := New(c, time.Hour, nil)

	// One 1-CPU task lands on worker 1 (load keys tie, lower id wins);
	// balance then has an Assigned-not-Running task to consider moving
	// to the comparatively idle worker 2.
	submit(t, c, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1})
	require.NoError(t, s.Pass())

	task, _ := c.Graph.Task(1)
	require.NotNil(t, task.Worker)

	// Drain the compute_task message so balance's steal request is next.
	inMemory := c.Comm.(*comm.InMemory)
	<-inMemory.Inbox(*task.Worker)

	require.NoError(t, s.Pass())
	after, _ := c.Graph.Task(1)
	// Either it was already on the least-loaded worker (no steal needed)
	// or a steal was marked; both are valid outcomes of one balance step.
	assert.True(t, after.State == graph.Assigned)
}

func TestPass_BalanceSkipsStealTargetWithoutWalltimeBudget(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now()})
	short := time.Millisecond
	c.Workers.Join(2, workertable.Config{Resources: descriptor(4), JoinedAt: time.Now().Add(-time.Hour), TimeLimit: &short})

	s := New(c, time.Hour, nil)

	submit(t, c, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1, MinTime: time.Minute})
	require.NoError(t, s.Pass())

	task, _ := c.Graph.Task(1)
	require.NotNil(t, task.Worker)

	inMemory := c.Comm.(*comm.InMemory)
	<-inMemory.Inbox(*task.Worker)

	require.NoError(t, s.Pass())
	after, _ := c.Graph.Task(1)
	// Worker 2's time limit already elapsed, so it must never be picked as
	// a steal target regardless of how idle it looks by load alone.
	assert.NotEqual(t, ids.WorkerId(2), *after.Worker)
	assert.Nil(t, after.StealTarget)
}
