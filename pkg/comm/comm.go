// Package comm is the abstract outbound channel to workers described in
// §4.4/§6: Comm sends ComputeTask/StealRequest/CancelTasks/StopWorker
// messages, in order, to a single worker at a time. Grounded on
// cuemby-warren's pkg/events.Broker (map of channels guarded by a mutex,
// Start/Stop lifecycle), adapted from fan-out publish/subscribe to
// per-worker FIFO delivery: §5 requires messages to one worker arrive in
// emission order, which a broadcast broker does not guarantee per-reader.
package comm

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
)

// MessageType names the server->worker message kinds from §6.
type MessageType string

const (
	ComputeTask  MessageType = "compute_task"
	StealRequest MessageType = "steal_request"
	CancelTasks  MessageType = "cancel_tasks"
	StopWorker   MessageType = "stop_worker"
)

// Message is one server->worker message. TaskIds carries the relevant task
// ids for StealRequest/CancelTasks/ComputeTask(singular); Body carries the
// opaque task body for ComputeTask.
type Message struct {
	Type    MessageType
	TaskIds []ids.TaskId
	Body    []byte
}

// Comm is the outbound channel the SchedulerState/Reactor use to talk to
// workers. Implementations must deliver messages to a given worker in the
// order Send was called (§5 ordering guarantee (b)).
type Comm interface {
	SendComputeTask(worker ids.WorkerId, task ids.TaskId, body []byte) error
	SendStealRequest(worker ids.WorkerId, tasks []ids.TaskId) error
	SendCancelTasks(worker ids.WorkerId, tasks []ids.TaskId) error
	SendStopWorker(worker ids.WorkerId) error
}

// mailbox is one worker's ordered inbox.
type mailbox chan Message

// InMemory is a Comm backed by one buffered, ordered channel per worker. It
// is the Comm of every Core (see core.New); tests drain Inbox(worker) to
// assert on emitted messages. Outside tests nothing in this repository reads
// the inboxes.
type InMemory struct {
	mu       sync.Mutex
	inboxes  map[ids.WorkerId]mailbox
	logger   zerolog.Logger
	bufSize  int
}

// NewInMemory returns an InMemory Comm whose per-worker mailboxes buffer up
// to bufSize messages before Send blocks.
func NewInMemory(bufSize int) *InMemory {
	return &InMemory{
		inboxes: make(map[ids.WorkerId]mailbox),
		logger:  log.WithComponent("comm"),
		bufSize: bufSize,
	}
}

// Inbox returns (creating if necessary) the ordered channel for worker w.
func (c *InMemory) Inbox(w ids.WorkerId) mailbox {
	c.mu.Lock()
	defer c.mu.Unlock()
	box, ok := c.inboxes[w]
	if !ok {
		box = make(mailbox, c.bufSize)
		c.inboxes[w] = box
	}
	return box
}

// Drop removes a worker's inbox, e.g. after on_worker_lost.
func (c *InMemory) Drop(w ids.WorkerId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inboxes, w)
}

func (c *InMemory) send(w ids.WorkerId, msg Message) error {
	c.Inbox(w) <- msg
	c.logger.Debug().Uint64("worker_id", uint64(w)).Str("type", string(msg.Type)).Msg("message queued")
	return nil
}

func (c *InMemory) SendComputeTask(w ids.WorkerId, task ids.TaskId, body []byte) error {
	return c.send(w, Message{Type: ComputeTask, TaskIds: []ids.TaskId{task}, Body: body})
}

func (c *InMemory) SendStealRequest(w ids.WorkerId, tasks []ids.TaskId) error {
	return c.send(w, Message{Type: StealRequest, TaskIds: tasks})
}

func (c *InMemory) SendCancelTasks(w ids.WorkerId, tasks []ids.TaskId) error {
	return c.send(w, Message{Type: CancelTasks, TaskIds: tasks})
}

func (c *InMemory) SendStopWorker(w ids.WorkerId) error {
	return c.send(w, Message{Type: StopWorker})
}
