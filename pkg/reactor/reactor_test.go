package reactor

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

func descriptor() resources.Descriptor {
	return resources.Descriptor{Sockets: [][]int{{0, 1, 2, 3}}}
}

func TestOnNewTasks_WakesAndAccepts(t *testing.T) {
	c := core.New(4)
	woke := false
	r := New(c, func() { woke = true })

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))
	assert.True(t, woke)

	got, ok := c.Graph.Task(1)
	require.True(t, ok)
	assert.Equal(t, graph.Ready, got.State)
}

func TestOnNewTasks_RejectsDuplicate(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))

	dup := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	assert.Error(t, r.OnNewTasks(job, []*graph.Task{dup}))
}

func TestOnTaskFinished_ReleasesLoadAndPromotesConsumer(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	a := graph.NewTask(10, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	b := graph.NewTask(11, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	b.Deps.Insert(10)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{a, b}))

	task, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, ok := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, task.Request, time.Hour)
	require.True(t, ok)
	require.NoError(t, c.Graph.Assign(task.Id, 1, placement))
	require.NoError(t, c.Workers.Reserve(1, task.Id, placement))
	require.NoError(t, r.OnTaskRunning(1, task.Id))

	require.NoError(t, r.OnTaskFinished(task.Id))

	w, _ := c.Workers.Get(1)
	assert.Equal(t, 0, w.Load.SocketUsed[0])

	bt, _ := c.Graph.Task(11)
	assert.Equal(t, graph.Ready, bt.State)
}

func TestOnWorkerLost_RequeuesTasks(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)
	c.Workers.Join(5, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))

	popped, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, _ := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, popped.Request, time.Hour)
	require.NoError(t, c.Graph.Assign(popped.Id, 5, placement))
	require.NoError(t, c.Workers.Reserve(5, popped.Id, placement))

	affected := r.OnWorkerLost(5, "heartbeat timeout")
	assert.Equal(t, []ids.TaskId{popped.Id}, affected)

	got, _ := c.Graph.Task(popped.Id)
	assert.Equal(t, graph.Ready, got.State)
}

func TestOnNewWorker_JoinsAndWakes(t *testing.T) {
	c := core.New(4)
	woke := false
	r := New(c, func() { woke = true })

	w := r.OnNewWorker(7, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})
	require.NotNil(t, w)
	assert.True(t, woke)

	got, ok := c.Workers.Get(7)
	require.True(t, ok)
	assert.Equal(t, ids.WorkerId(7), got.Id)
}

func TestOnTaskFailed_ReleasesLoadAndCancelsConsumer(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	a := graph.NewTask(10, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	b := graph.NewTask(11, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	b.Deps.Insert(10)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{a, b}))

	task, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, ok := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, task.Request, time.Hour)
	require.True(t, ok)
	require.NoError(t, c.Graph.Assign(task.Id, 1, placement))
	require.NoError(t, c.Workers.Reserve(1, task.Id, placement))
	require.NoError(t, r.OnTaskRunning(1, task.Id))

	cancelled, err := r.OnTaskFailed(task.Id)
	require.NoError(t, err)
	assert.Equal(t, []ids.TaskId{11}, cancelled)

	w, _ := c.Workers.Get(1)
	assert.Equal(t, 0, w.Load.SocketUsed[0])

	bt, _ := c.Graph.Task(11)
	assert.Equal(t, graph.Cancelled, bt.State)
}

func TestOnStealResponse_OkReleasesSourceAndWakes(t *testing.T) {
	c := core.New(4)
	woke := false
	r := New(c, func() { woke = true })
	c.Workers.Join(1, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})
	c.Workers.Join(2, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(10, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))

	popped, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, ok := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, popped.Request, time.Hour)
	require.True(t, ok)
	require.NoError(t, c.Graph.Assign(popped.Id, 1, placement))
	require.NoError(t, c.Workers.Reserve(1, popped.Id, placement))
	require.NoError(t, c.Graph.MarkSteal(popped.Id, 2))

	require.NoError(t, r.OnStealResponse([]StealResponse{{Task: popped.Id, Outcome: graph.StealOk}}))
	assert.True(t, woke)

	w, _ := c.Workers.Get(1)
	assert.Equal(t, 0, w.Load.SocketUsed[0])

	got, _ := c.Graph.Task(popped.Id)
	assert.Equal(t, graph.Ready, got.State)
}

func TestOnStealResponse_RunningRollsBackWithoutRelease(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})
	c.Workers.Join(2, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(10, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))

	popped, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, ok := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, popped.Request, time.Hour)
	require.True(t, ok)
	require.NoError(t, c.Graph.Assign(popped.Id, 1, placement))
	require.NoError(t, c.Workers.Reserve(1, popped.Id, placement))
	require.NoError(t, c.Graph.MarkSteal(popped.Id, 2))
	require.NoError(t, r.OnTaskRunning(1, popped.Id))

	require.NoError(t, r.OnStealResponse([]StealResponse{{Task: popped.Id, Outcome: graph.StealRunning}}))

	w, _ := c.Workers.Get(1)
	assert.Equal(t, 1, w.Load.SocketUsed[0], "source worker's reservation must stay held after a rolled-back steal")

	got, _ := c.Graph.Task(popped.Id)
	assert.Equal(t, graph.Running, got.State)
}

func TestOnCancelTasks_NotifiesWorker(t *testing.T) {
	c := core.New(4)
	r := New(c, nil)
	c.Workers.Join(1, workertable.Config{Resources: descriptor(), JoinedAt: time.Now()})

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 1)
	require.NoError(t, r.OnNewTasks(job, []*graph.Task{task}))

	popped, ok := c.Graph.PopReady()
	require.True(t, ok)
	d := descriptor()
	placement, _ := resources.Fit(&d, &resources.Load{SocketUsed: []int{0}}, popped.Request, time.Hour)
	require.NoError(t, c.Graph.Assign(popped.Id, 1, placement))
	require.NoError(t, r.OnTaskRunning(1, popped.Id))

	cancelled, err := r.OnCancelTasks([]ids.TaskId{popped.Id})
	require.NoError(t, err)
	assert.Equal(t, []ids.TaskId{popped.Id}, cancelled)

	inMemory := c.Comm.(*comm.InMemory)
	msg := <-inMemory.Inbox(1)
	assert.Equal(t, comm.CancelTasks, msg.Type)
	assert.Equal(t, []ids.TaskId{popped.Id}, msg.TaskIds)
}
