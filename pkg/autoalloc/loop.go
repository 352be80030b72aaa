// Package autoalloc (continued): AutoAllocLoop, the periodic tick from
// §4.5. Grounded on _examples/original_source's process.rs for the exact
// algorithm (refresh-then-schedule per descriptor, saturating decrement,
// per-iteration QueueFail-without-abort, parallel best-effort shutdown)
// and on cuemby-warren's pkg/reconciler.Reconciler for the Go
// ticker/logger/metrics wrapper the loop itself runs inside.
package autoalloc

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/metrics"
)

// PressureSource is the narrow accessor §5 describes: AutoAllocLoop reads
// task backlog pressure through it and never touches TaskGraph/WorkerTable
// directly.
type PressureSource interface {
	WaitingTasksByJob() map[ids.JobId]graph.JobPressure
}

// Loop is the AutoAllocLoop: it owns no scheduling state of its own beyond
// a reference to the shared AutoAllocState and a read-only view of task
// pressure.
type Loop struct {
	state    *State
	pressure PressureSource
	logger   zerolog.Logger

	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop builds a Loop over state, polling pressure at the given interval.
// The spec's default tick interval is "on the order of ten seconds"; callers
// pick the concrete value (see pkg/config).
func NewLoop(state *State, pressure PressureSource, interval time.Duration) *Loop {
	return &Loop{
		state:    state,
		pressure: pressure,
		logger:   log.WithComponent("autoalloc"),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the tick loop. Ticks never overlap (§5): a long tick simply
// delays the next one, since the loop goroutine runs Tick synchronously and
// time.Ticker drops the ticks a slow receiver misses.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop signals the loop to exit after its current tick, if any, completes.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Tick(ctx)
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one full refresh+schedule pass over every descriptor. Per §5
// ordering guarantee (c), a descriptor's Refresh precedes its own Schedule;
// per (d), descriptors are processed with no ordering guarantee between
// them, so they run concurrently here (mirroring the original's
// join_all(descriptor_ids.map(process_descriptor))).
func (l *Loop) Tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AutoAllocTickDuration)

	l.logger.Debug().Msg("running autoalloc tick")

	var wg sync.WaitGroup
	for _, id := range l.state.DescriptorIds() {
		wg.Add(1)
		go func(id ids.DescriptorId) {
			defer wg.Done()
			l.processDescriptor(ctx, id)
		}(id)
	}
	wg.Wait()
}

func (l *Loop) processDescriptor(ctx context.Context, id ids.DescriptorId) {
	l.refresh(ctx, id)
	l.schedule(ctx, id)
}

// refresh implements §4.5 step 1: polls get_allocation_status for every
// active allocation of descriptor id and updates its status/events.
//
// The descriptor/allocation may disappear across the await (another
// goroutine's RemoveQueue, or the allocation having already been pruned);
// per §5 that is an ordinary early-continue, not an error.
func (l *Loop) refresh(ctx context.Context, id ids.DescriptorId) {
	d, ok := l.state.Descriptor(id)
	if !ok {
		return
	}
	d.mu.Lock()
	activeIds := make([]ids.AllocationId, 0, len(d.allocations))
	for aid, a := range d.allocations {
		if a.Active() {
			activeIds = append(activeIds, aid)
		}
	}
	handler := d.Handler
	d.mu.Unlock()

	for _, allocId := range activeIds {
		status, err := handler.GetAllocationStatus(ctx, allocId)

		d, ok := l.state.Descriptor(id)
		if !ok {
			return
		}
		d.mu.Lock()
		if err != nil {
			d.addEvent(Event{Kind: EventStatusFail, Error: err.Error(), Timestamp: now()})
			d.mu.Unlock()
			l.logger.Error().Err(err).Str("allocation", string(allocId)).Msg("failed to get allocation status")
			continue
		}
		if status == nil {
			delete(d.allocations, allocId)
			d.addEvent(Event{Kind: EventAllocationDisappeared, AllocationId: allocId, Timestamp: now()})
			d.mu.Unlock()
			l.logger.Warn().Str("allocation", string(allocId)).Msg("allocation disappeared from batch system")
			continue
		}

		alloc, ok := d.allocations[allocId]
		if !ok {
			d.mu.Unlock()
			continue
		}
		prior := alloc.Status.Kind
		alloc.Status = *status
		switch status.Kind {
		case StatusRunning:
			if prior == StatusQueued {
				d.addEvent(Event{Kind: EventAllocationStarted, AllocationId: allocId, Timestamp: now()})
			}
		case StatusFinished:
			d.addEvent(Event{Kind: EventAllocationFinished, AllocationId: allocId, Timestamp: now()})
		case StatusFailed:
			d.addEvent(Event{Kind: EventAllocationFailed, AllocationId: allocId, Timestamp: now()})
		}
		metrics.AllocationsActive.WithLabelValues(id.String()).Set(float64(activeCountLocked(d)))
		d.mu.Unlock()
	}
}

// activeCountLocked mirrors Descriptor.ActiveCount but assumes d.mu is
// already held.
func activeCountLocked(d *Descriptor) int {
	n := 0
	for _, a := range d.allocations {
		if a.Active() {
			n++
		}
	}
	return n
}

// queuedCountLocked counts allocations still in StatusQueued, the quantity
// the backlog cap actually governs (see schedule). Caller must hold d.mu.
func queuedCountLocked(d *Descriptor) int {
	n := 0
	for _, a := range d.allocations {
		if a.Status.Kind == StatusQueued {
			n++
		}
	}
	return n
}

// schedule implements §4.5 step 2: computes waiting-task pressure gated by
// per-job walltime feasibility, then submits allocations one at a time up
// to the backlog until pressure is satisfied or allocs_to_create iterations
// are exhausted.
func (l *Loop) schedule(ctx context.Context, id ids.DescriptorId) {
	d, ok := l.state.Descriptor(id)
	if !ok {
		return
	}
	d.mu.Lock()
	info := d.Info
	queuedCount := queuedCountLocked(d)
	d.mu.Unlock()

	// The backlog bounds allocations still sitting in the batch system's
	// queue, not the ones already running (grounded on process.rs's
	// queued_allocations() — an allocation that started running has
	// already done its job of feeding the scheduler a worker, so it no
	// longer counts against the cap that governs how many more to submit).
	allocsToCreate := info.Backlog - queuedCount
	if allocsToCreate < 0 {
		allocsToCreate = 0
	}

	waitingTasks := l.countAvailableTasks(info)
	if waitingTasks == 0 {
		l.logger.Debug().Uint64("descriptor", uint64(id)).Msg("no waiting tasks, skipping allocation")
		return
	}

	for i := 0; i < allocsToCreate; i++ {
		d, ok := l.state.Descriptor(id)
		if !ok {
			return
		}
		d.mu.Lock()
		handler := d.Handler
		descInfo := d.Info
		d.mu.Unlock()

		created, err := handler.ScheduleAllocation(ctx, id, descInfo, descInfo.WorkersPerAlloc)

		d, ok = l.state.Descriptor(id)
		if !ok {
			return
		}
		d.mu.Lock()
		if err != nil {
			d.addEvent(Event{Kind: EventQueueFail, Error: err.Error(), Timestamp: now()})
			metrics.QueueFailuresTotal.WithLabelValues(id.String()).Inc()
			d.mu.Unlock()
			l.logger.Error().Err(err).Uint64("descriptor", uint64(id)).Msg("failed to schedule allocation")
			continue
		}

		d.allocations[created.Id] = &Allocation{
			Id:          created.Id,
			WorkerCount: descInfo.WorkersPerAlloc,
			QueuedAt:    now(),
			WorkingDir:  created.WorkingDir,
			Status:      AllocationStatus{Kind: StatusQueued},
		}
		d.addEvent(Event{Kind: EventAllocationQueued, AllocationId: created.Id, Timestamp: now()})
		metrics.AllocationsCreated.WithLabelValues(id.String()).Inc()
		d.mu.Unlock()

		l.logger.Info().Uint64("descriptor", uint64(id)).Int("workers", descInfo.WorkersPerAlloc).Str("allocation", string(created.Id)).Msg("allocation queued")

		if descInfo.WorkersPerAlloc >= waitingTasks {
			waitingTasks = 0
		} else {
			waitingTasks -= descInfo.WorkersPerAlloc
		}
		if waitingTasks == 0 {
			break
		}
	}
}

// countAvailableTasks sums n_waiting_tasks across jobs whose min_time fits
// the queue's walltime, the feasibility gate §4.5/§9 specifies. Kept
// per-job (DESIGN.md's resolved Open Question), matching the original's
// can_provide_worker/count_available_tasks.
func (l *Loop) countAvailableTasks(info QueueInfo) int {
	total := 0
	for _, p := range l.pressure.WaitingTasksByJob() {
		if p.MinTime < info.Timelimit {
			total += p.Count
		}
	}
	metrics.WaitingTasks.Set(float64(total))
	return total
}

// Shutdown implements the best-effort, parallel autoalloc_shutdown: it
// snapshots every active allocation across all descriptors and calls
// RemoveAllocation on each concurrently, logging per-result outcomes. It
// must not block on allocations that are already finished or disappeared.
func Shutdown(ctx context.Context, state *State) error {
	type target struct {
		descriptor ids.DescriptorId
		handler    QueueHandler
		allocation ids.AllocationId
	}

	var targets []target
	for _, id := range state.DescriptorIds() {
		d, ok := state.Descriptor(id)
		if !ok {
			continue
		}
		d.mu.Lock()
		handler := d.Handler
		for aid, a := range d.allocations {
			if a.Active() {
				targets = append(targets, target{descriptor: id, handler: handler, allocation: aid})
			}
		}
		d.mu.Unlock()
	}

	logger := log.WithComponent("autoalloc")
	var mu sync.Mutex
	var result *multierror.Error
	group, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		group.Go(func() error {
			if err := t.handler.RemoveAllocation(gctx, t.allocation); err != nil {
				logger.Error().Err(err).Str("allocation", string(t.allocation)).Msg("failed to remove allocation")
				mu.Lock()
				result = multierror.Append(result, hqerr.Wrap(hqerr.ErrAllocatorFailure, "remove allocation %s: %v", t.allocation, err))
				mu.Unlock()
				return nil
			}
			logger.Info().Str("allocation", string(t.allocation)).Msg("allocation removed")
			return nil
		})
	}
	// errgroup only fans the goroutines out and waits; every failure is
	// aggregated into result via go-multierror instead of being returned
	// through Wait, so one allocation's removal failure never hides another's.
	_ = group.Wait()
	return result.ErrorOrNil()
}
