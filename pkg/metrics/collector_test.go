package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/resources"
	"github.com/spirali/hyperqueue/pkg/workertable"
)

func TestCollector_CollectWorkerAndTaskMetrics(t *testing.T) {
	c := core.New(4)
	c.Workers.Join(ids.WorkerId(1), workertable.Config{
		Resources: resources.Descriptor{Sockets: [][]int{{0, 1}}},
	})

	job := graph.NewJob(1, "job", 0)
	task := graph.NewTask(1, 1, resources.Request{CPUKind: resources.Compact, CPUCount: 1}, false, 0)
	require.NoError(t, c.Graph.AddBatch(job, []*graph.Task{task}))

	collector := NewCollector(c)
	collector.collect()

	counts := c.Graph.CountByState()
	assert.Equal(t, 1, counts[graph.Ready])

	collector.Start()
	time.Sleep(10 * time.Millisecond)
	collector.Stop()
}
