package autoalloc

import (
	"context"
	"strconv"
	"sync"

	"github.com/spirali/hyperqueue/pkg/ids"
)

// FakeHandler is a function-valued QueueHandler used by tests, the Go
// counterpart of the original implementation's generic test Handler<Fn...>.
// Tests compose it from closures instead of a generic type, matching how
// Go tests in this pack stub out dependencies (function fields, not
// interfaces-of-interfaces).
type FakeHandler struct {
	mu sync.Mutex

	ScheduleFn func(descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error)
	StatusFn   func(id ids.AllocationId) (*AllocationStatus, error)
	RemoveFn   func(id ids.AllocationId) error
}

func (h *FakeHandler) ScheduleAllocation(ctx context.Context, descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ScheduleFn(descriptor, info, workerCount)
}

func (h *FakeHandler) GetAllocationStatus(ctx context.Context, id ids.AllocationId) (*AllocationStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.StatusFn(id)
}

func (h *FakeHandler) RemoveAllocation(ctx context.Context, id ids.AllocationId) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RemoveFn == nil {
		return nil
	}
	return h.RemoveFn(id)
}

// AlwaysQueuedHandler returns a FakeHandler whose schedule_allocation
// always succeeds with a fresh incrementing id and whose status is always
// Queued — the baseline handler for backlog-filling tests.
func AlwaysQueuedHandler() *FakeHandler {
	var next int
	var mu sync.Mutex
	return &FakeHandler{
		ScheduleFn: func(descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error) {
			mu.Lock()
			defer mu.Unlock()
			id := next
			next++
			return CreatedAllocation{Id: ids.AllocationId(strconv.Itoa(id)), WorkingDir: "/tmp/fake"}, nil
		},
		StatusFn: func(id ids.AllocationId) (*AllocationStatus, error) {
			return &AllocationStatus{Kind: StatusQueued}, nil
		},
	}
}

// AlwaysFailingHandler returns a FakeHandler whose schedule_allocation
// always errors, for the "handler failure is surfaced and non-fatal"
// scenario.
func AlwaysFailingHandler(err error) *FakeHandler {
	return &FakeHandler{
		ScheduleFn: func(descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error) {
			return CreatedAllocation{}, err
		},
		StatusFn: func(id ids.AllocationId) (*AllocationStatus, error) {
			return &AllocationStatus{Kind: StatusQueued}, nil
		},
	}
}
